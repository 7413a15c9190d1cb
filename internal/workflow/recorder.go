package workflow

import (
	"database/sql"
	"fmt"

	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/models"
	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/repository"
	"go.uber.org/zap"
)

// Recorder appends audit entries for workflow events. It is write-only:
// history rows are never updated or deleted, and every write happens inside
// the same transaction as the state change it documents, so the trail can
// never diverge from the instance state.
type Recorder struct {
	historyRepo *repository.HistoryRepository
	logger      *zap.Logger
}

// NewRecorder creates a new history recorder
func NewRecorder(historyRepo *repository.HistoryRepository, logger *zap.Logger) *Recorder {
	return &Recorder{historyRepo: historyRepo, logger: logger}
}

// Record appends one history entry
func (r *Recorder) Record(tx *sql.Tx, record *models.ApprovalHistory) error {
	if err := r.historyRepo.Create(tx, record); err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}

	r.logger.Debug("Recorded approval history",
		zap.Int64("instance_id", record.InstanceID),
		zap.String("action", record.Action),
		zap.String("actor_id", record.ActorID))
	return nil
}

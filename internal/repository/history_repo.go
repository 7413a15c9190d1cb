package repository

import (
	"database/sql"
	"fmt"

	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/models"
	"go.uber.org/zap"
)

// HistoryRepository handles approval history database operations. The table
// is append-only: this repository exposes no update or delete.
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{db: db, logger: logger}
}

// Create appends a history record
func (r *HistoryRepository) Create(tx *sql.Tx, record *models.ApprovalHistory) error {
	query := `
		INSERT INTO approval_history (
			instance_id, task_id, node_id, node_name,
			actor_id, actor_name, action, comment, attachments
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var taskID, nodeID interface{}
	if record.TaskID != nil {
		taskID = *record.TaskID
	}
	if record.NodeID != nil {
		nodeID = *record.NodeID
	}

	result, err := exec(tx, r.db, query,
		record.InstanceID,
		taskID,
		nodeID,
		record.NodeName,
		record.ActorID,
		record.ActorName,
		record.Action,
		record.Comment,
		record.Attachments,
	)
	if err != nil {
		r.logger.Error("Failed to create history record",
			zap.Int64("instance_id", record.InstanceID),
			zap.String("action", record.Action),
			zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	record.ID = id
	return nil
}

// ListByInstance retrieves all history records for an instance in creation
// order; replaying them reconstructs the instance's final state.
func (r *HistoryRepository) ListByInstance(instanceID int64) ([]*models.ApprovalHistory, error) {
	query := `
		SELECT id, instance_id, task_id, node_id, node_name,
			actor_id, actor_name, action, comment, attachments, created_at
		FROM approval_history
		WHERE instance_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(query, instanceID)
	if err != nil {
		r.logger.Error("Failed to list history", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var records []*models.ApprovalHistory
	for rows.Next() {
		var record models.ApprovalHistory
		var taskID, nodeID sql.NullInt64
		err := rows.Scan(
			&record.ID,
			&record.InstanceID,
			&taskID,
			&nodeID,
			&record.NodeName,
			&record.ActorID,
			&record.ActorName,
			&record.Action,
			&record.Comment,
			&record.Attachments,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		if taskID.Valid {
			record.TaskID = &taskID.Int64
		}
		if nodeID.Valid {
			record.NodeID = &nodeID.Int64
		}
		records = append(records, &record)
	}

	return records, rows.Err()
}

package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/models"
	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/repository"
	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/workflow"
	"github.com/javalianxisheng-shenglaogou/bs-sub001/pkg/database"
)

func newTestService(t *testing.T) *WorkflowService {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:            ":memory:",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "0001_init.sql"))
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	definitions := repository.NewDefinitionRepository(db.DB, logger)
	instances := repository.NewInstanceRepository(db.DB, logger)
	tasks := repository.NewTaskRepository(db.DB, logger)
	history := repository.NewHistoryRepository(db.DB, logger)
	engine := workflow.NewEngine(db, definitions, instances, tasks, history, logger)

	return NewWorkflowService(engine, definitions, instances, tasks, history,
		Limits{MaxApproversPerNode: 3, PageSizeLimit: 10}, logger)
}

func reviewDefinition(code string, approvers ...string) DefinitionInput {
	return DefinitionInput{
		Code: code,
		Name: code,
		Nodes: []NodeInput{
			{Name: "start", Type: models.NodeTypeStart, SortOrder: 0},
			{
				Name: "review", Type: models.NodeTypeApproval, SortOrder: 1,
				ApproverMode: models.ApproverModeByUser,
				ApproverIDs:  approvers,
				ApprovalMode: models.ApprovalModeAll,
			},
			{Name: "end", Type: models.NodeTypeEnd, SortOrder: 2},
		},
	}
}

// publishReviewFlow creates and publishes a two-approver ALL definition
func publishReviewFlow(t *testing.T, svc *WorkflowService, code string, approvers ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.CreateDefinition(ctx, reviewDefinition(code, approvers...))
	require.NoError(t, err)
	require.NoError(t, svc.PublishDefinition(ctx, code))
}

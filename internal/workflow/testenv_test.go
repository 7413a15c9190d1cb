package workflow

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/models"
	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/repository"
	"github.com/javalianxisheng-shenglaogou/bs-sub001/pkg/database"
)

type testEnv struct {
	db          *database.DB
	engine      *Engine
	definitions *repository.DefinitionRepository
	instances   *repository.InstanceRepository
	tasks       *repository.TaskRepository
	history     *repository.HistoryRepository
}

func newTestEnv(t *testing.T) *testEnv {
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

	return &testEnv{
		db:          db,
		engine:      NewEngine(db, definitions, instances, tasks, history, logger),
		definitions: definitions,
		instances:   instances,
		tasks:       tasks,
		history:     history,
	}
}

// createWorkflow publishes a definition with START and END wrapped around the
// given middle nodes; sort orders are assigned by position.
func (env *testEnv) createWorkflow(t *testing.T, code string, middle ...*models.WorkflowNode) *models.WorkflowDefinition {
	t.Helper()

	def := &models.WorkflowDefinition{
		Code:   code,
		Name:   code,
		Status: models.DefinitionStatusActive,
	}
	def.Nodes = append(def.Nodes, &models.WorkflowNode{
		Name: "start", Type: models.NodeTypeStart, SortOrder: 0,
	})
	for i, node := range middle {
		node.SortOrder = i + 1
		def.Nodes = append(def.Nodes, node)
	}
	def.Nodes = append(def.Nodes, &models.WorkflowNode{
		Name: "end", Type: models.NodeTypeEnd, SortOrder: len(middle) + 1,
	})

	require.NoError(t, env.definitions.Create(nil, def))
	return def
}

func approvalNode(name, mode string, approvers ...string) *models.WorkflowNode {
	return &models.WorkflowNode{
		Name:         name,
		Type:         models.NodeTypeApproval,
		ApproverMode: models.ApproverModeByUser,
		ApproverIDs:  approvers,
		ApprovalMode: mode,
	}
}

// taskFor returns the open task assigned to the given user in an instance
func (env *testEnv) taskFor(t *testing.T, instanceID int64, assigneeID string) *models.WorkflowTask {
	t.Helper()
	tasks, err := env.tasks.ListByInstance(nil, instanceID)
	require.NoError(t, err)
	for _, task := range tasks {
		if task.AssigneeID == assigneeID && !models.IsTerminalTaskStatus(task.Status) {
			return task
		}
	}
	t.Fatalf("no open task for assignee %s in instance %d", assigneeID, instanceID)
	return nil
}

func (env *testEnv) instanceByID(t *testing.T, id int64) *models.WorkflowInstance {
	t.Helper()
	instance, err := env.instances.GetByID(nil, id)
	require.NoError(t, err)
	require.NotNil(t, instance)
	return instance
}

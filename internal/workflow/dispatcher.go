package workflow

import (
	"database/sql"
	"fmt"

	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/models"
	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/repository"
	"go.uber.org/zap"
)

// Dispatcher translates a node's approver configuration into concrete tasks
// and evaluates node-level resolution. It never touches instance state; the
// engine owns that.
type Dispatcher struct {
	taskRepo *repository.TaskRepository
	logger   *zap.Logger
}

// NewDispatcher creates a new task dispatcher
func NewDispatcher(taskRepo *repository.TaskRepository, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{taskRepo: taskRepo, logger: logger}
}

// Materialize creates the tasks for a node that just became active. ANY and
// ALL modes create one task per approver eagerly; SEQUENTIAL creates only the
// first assignee's task, later ones are materialized as their predecessors
// approve.
func (d *Dispatcher) Materialize(tx *sql.Tx, instance *models.WorkflowInstance, node *models.WorkflowNode, cfg approvalConfig) ([]*models.WorkflowTask, error) {
	if len(cfg.ApproverIDs) == 0 {
		return nil, fmt.Errorf("%w: node %q has no approvers", ErrInvalidRequest, node.Name)
	}

	approvers := cfg.ApproverIDs
	if cfg.Mode == models.ApprovalModeSequential {
		approvers = approvers[:1]
	}

	var tasks []*models.WorkflowTask
	for i, approverID := range approvers {
		task := &models.WorkflowTask{
			InstanceID: instance.ID,
			NodeID:     node.ID,
			AssigneeID: approverID,
			Status:     models.TaskStatusPending,
			Sequence:   i,
		}
		if err := d.taskRepo.Create(tx, task); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	d.logger.Info("Materialized tasks for node",
		zap.Int64("instance_id", instance.ID),
		zap.String("node", node.Name),
		zap.String("mode", cfg.Mode),
		zap.Int("count", len(tasks)))
	return tasks, nil
}

// MaterializeNext creates the next assignee's task for a SEQUENTIAL node
// after the previous one resolved APPROVE. Returns nil when every assignee
// already has a task.
func (d *Dispatcher) MaterializeNext(tx *sql.Tx, instance *models.WorkflowInstance, node *models.WorkflowNode, cfg approvalConfig) (*models.WorkflowTask, error) {
	existing, err := d.taskRepo.ListByInstanceAndNode(tx, instance.ID, node.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) >= len(cfg.ApproverIDs) {
		return nil, nil
	}

	next := len(existing)
	task := &models.WorkflowTask{
		InstanceID: instance.ID,
		NodeID:     node.ID,
		AssigneeID: cfg.ApproverIDs[next],
		Status:     models.TaskStatusPending,
		Sequence:   next,
	}
	if err := d.taskRepo.Create(tx, task); err != nil {
		return nil, err
	}

	d.logger.Info("Materialized next sequential task",
		zap.Int64("instance_id", instance.ID),
		zap.String("node", node.Name),
		zap.String("assignee_id", task.AssigneeID),
		zap.Int("sequence", next))
	return task, nil
}

// Evaluate computes the node outcome from the node's current tasks. Must run
// inside the transaction that recorded the deciding task's terminal status so
// two concurrent approvers cannot both observe themselves resolving the node.
func (d *Dispatcher) Evaluate(tx *sql.Tx, instanceID, nodeID int64, cfg approvalConfig) (NodeOutcome, error) {
	tasks, err := d.taskRepo.ListByInstanceAndNode(tx, instanceID, nodeID)
	if err != nil {
		return NodeOutcomePending, err
	}
	return evaluateOutcome(cfg.Mode, len(cfg.ApproverIDs), tasks), nil
}

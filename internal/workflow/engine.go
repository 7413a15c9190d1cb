package workflow

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/models"
	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/repository"
	"github.com/javalianxisheng-shenglaogou/bs-sub001/pkg/database"
)

// CompletionListener is notified after an instance reaches a terminal status
// and the transaction has committed. Business modules use it to flip their
// own status fields (e.g. publish content once approved).
type CompletionListener interface {
	OnWorkflowCompleted(ctx context.Context, instance *models.WorkflowInstance)
}

// Engine orchestrates the approval workflow instance lifecycle. It is the
// only component that mutates instance status and the current node pointer;
// every public operation runs inside a single transaction.
type Engine struct {
	db             *database.DB
	definitionRepo *repository.DefinitionRepository
	instanceRepo   *repository.InstanceRepository
	taskRepo       *repository.TaskRepository
	dispatcher     *Dispatcher
	recorder       *Recorder
	listener       CompletionListener
	logger         *zap.Logger
}

// NewEngine creates a new workflow engine
func NewEngine(
	db *database.DB,
	definitionRepo *repository.DefinitionRepository,
	instanceRepo *repository.InstanceRepository,
	taskRepo *repository.TaskRepository,
	historyRepo *repository.HistoryRepository,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		db:             db,
		definitionRepo: definitionRepo,
		instanceRepo:   instanceRepo,
		taskRepo:       taskRepo,
		dispatcher:     NewDispatcher(taskRepo, logger),
		recorder:       NewRecorder(historyRepo, logger),
		logger:         logger,
	}
}

// SetCompletionListener registers the callback invoked when instances reach a
// terminal status. Optional; a nil listener is simply skipped.
func (e *Engine) SetCompletionListener(l CompletionListener) {
	e.listener = l
}

// StartRequest carries everything needed to start an approval run. The actor
// identity arrives pre-resolved; the engine never consults ambient state.
type StartRequest struct {
	WorkflowCode  string
	BusinessType  string
	BusinessID    string
	BusinessTitle string
	InitiatorID   string
	InitiatorName string
	ApprovalMode  string   // optional override of the node configuration
	ApproverIDs   []string // optional override of the node configuration
	Comment       string
}

// Start creates a workflow instance for a business object and materializes
// tasks for the first approval node. A workflow without approval nodes is
// vacuous: the instance is created already APPROVED.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*models.WorkflowInstance, error) {
	def, err := e.definitionRepo.GetByCode(nil, req.WorkflowCode)
	if err != nil {
		return nil, err
	}
	if def == nil || def.Status != models.DefinitionStatusActive {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, req.WorkflowCode)
	}

	nodes, err := e.definitionRepo.GetNodes(nil, def.ID)
	if err != nil {
		return nil, err
	}
	firstNode := nextApprovalNode(nodes, -1)

	now := time.Now()
	instance := &models.WorkflowInstance{
		InstanceNo:    uuid.NewString(),
		WorkflowID:    def.ID,
		BusinessType:  req.BusinessType,
		BusinessID:    req.BusinessID,
		BusinessTitle: req.BusinessTitle,
		Status:        models.InstanceStatusRunning,
		InitiatorID:   req.InitiatorID,
		InitiatorName: req.InitiatorName,
		ApprovalMode:  req.ApprovalMode,
		ApproverIDs:   req.ApproverIDs,
		StartedAt:     now,
	}
	if firstNode != nil {
		instance.CurrentNodeID = firstNode.ID
	} else {
		instance.Status = models.InstanceStatusApproved
		instance.CompletedAt = &now
	}

	err = e.db.WithTransaction(func(tx *sql.Tx) error {
		running, err := e.instanceRepo.GetRunningByBusiness(tx, req.BusinessType, req.BusinessID)
		if err != nil {
			return err
		}
		if running != nil {
			return fmt.Errorf("%w: business object %s/%s already has a running instance",
				ErrConflict, req.BusinessType, req.BusinessID)
		}

		if err := e.instanceRepo.Create(tx, instance); err != nil {
			return err
		}

		if err := e.recorder.Record(tx, &models.ApprovalHistory{
			InstanceID: instance.ID,
			ActorID:    req.InitiatorID,
			ActorName:  req.InitiatorName,
			Action:     models.ActionCreate,
			Comment:    req.Comment,
		}); err != nil {
			return err
		}

		if firstNode != nil {
			cfg := effectiveConfig(firstNode, instance)
			if _, err := e.dispatcher.Materialize(tx, instance, firstNode, cfg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Started workflow instance",
		zap.String("instance_no", instance.InstanceNo),
		zap.String("workflow_code", req.WorkflowCode),
		zap.String("business_type", req.BusinessType),
		zap.String("business_id", req.BusinessID),
		zap.String("status", instance.Status))

	if models.IsTerminalInstanceStatus(instance.Status) {
		e.notifyCompleted(ctx, instance)
	}
	return instance, nil
}

// DecideRequest is one approver's decision on a task
type DecideRequest struct {
	TaskID    int64
	ActorID   string
	ActorName string
	Action    string // APPROVE or REJECT
	Comment   string
}

// DecideResult reports what the decision changed, so the caller can trigger
// side effects such as notifying the business object.
type DecideResult struct {
	NodeOutcome    NodeOutcome `json:"node_outcome"`
	InstanceStatus string      `json:"instance_status"`
	NodeAdvanced   bool        `json:"node_advanced"`
}

// Decide records a task decision and, in the same transaction, evaluates the
// node and advances or terminates the instance. Order of checks: unknown or
// foreign task, non-RUNNING instance (conflict), terminal task (already
// processed), superseded node (conflict).
func (e *Engine) Decide(ctx context.Context, req DecideRequest) (*DecideResult, error) {
	var taskStatus string
	var action string
	switch req.Action {
	case models.ActionApprove:
		taskStatus, action = models.TaskStatusApproved, models.ActionApprove
	case models.ActionReject:
		taskStatus, action = models.TaskStatusRejected, models.ActionReject
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, req.Action)
	}

	result := &DecideResult{NodeOutcome: NodeOutcomePending}
	var completed *models.WorkflowInstance

	err := e.db.WithTransaction(func(tx *sql.Tx) error {
		task, err := e.taskRepo.GetByID(tx, req.TaskID)
		if err != nil {
			return err
		}
		if task == nil || task.AssigneeID != req.ActorID {
			return fmt.Errorf("%w: task %d for actor %s", ErrTaskNotFound, req.TaskID, req.ActorID)
		}

		instance, err := e.instanceRepo.GetByID(tx, task.InstanceID)
		if err != nil {
			return err
		}
		if instance == nil {
			return fmt.Errorf("%w: id %d", ErrInstanceNotFound, task.InstanceID)
		}
		if instance.Status != models.InstanceStatusRunning {
			return fmt.Errorf("%w: instance %s is %s", ErrConflict, instance.InstanceNo, instance.Status)
		}
		if models.IsTerminalTaskStatus(task.Status) {
			return fmt.Errorf("%w: task %d is %s", ErrAlreadyProcessed, task.ID, task.Status)
		}
		if task.NodeID != instance.CurrentNodeID {
			return fmt.Errorf("%w: task %d belongs to a superseded node", ErrConflict, task.ID)
		}

		rows, err := e.taskRepo.MarkProcessed(tx, task.ID, taskStatus, req.Comment)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: task %d", ErrAlreadyProcessed, task.ID)
		}

		node, err := e.definitionRepo.GetNode(tx, task.NodeID)
		if err != nil {
			return err
		}
		if node == nil {
			return fmt.Errorf("workflow node %d not found", task.NodeID)
		}

		if err := e.recorder.Record(tx, &models.ApprovalHistory{
			InstanceID: instance.ID,
			TaskID:     &task.ID,
			NodeID:     &node.ID,
			NodeName:   node.Name,
			ActorID:    req.ActorID,
			ActorName:  req.ActorName,
			Action:     action,
			Comment:    req.Comment,
		}); err != nil {
			return err
		}

		cfg := effectiveConfig(node, instance)
		outcome, err := e.dispatcher.Evaluate(tx, instance.ID, node.ID, cfg)
		if err != nil {
			return err
		}
		result.NodeOutcome = outcome
		result.InstanceStatus = models.InstanceStatusRunning

		switch outcome {
		case NodeOutcomeRejected:
			if err := e.terminate(tx, instance, models.InstanceStatusRejected); err != nil {
				return err
			}
			result.InstanceStatus = models.InstanceStatusRejected
			completed = instance

		case NodeOutcomeApproved:
			// Siblings of an ANY-resolved node are moot; superseded tasks
			// are never reopened.
			if err := e.taskRepo.CancelPending(tx, instance.ID); err != nil {
				return err
			}

			nodes, err := e.definitionRepo.GetNodes(tx, instance.WorkflowID)
			if err != nil {
				return err
			}
			next := nextApprovalNode(nodes, node.SortOrder)
			if next == nil {
				if err := e.terminate(tx, instance, models.InstanceStatusApproved); err != nil {
					return err
				}
				result.InstanceStatus = models.InstanceStatusApproved
				completed = instance
				return nil
			}

			rows, err := e.instanceRepo.AdvanceNode(tx, instance.ID, next.ID)
			if err != nil {
				return err
			}
			if rows == 0 {
				return fmt.Errorf("%w: instance %s no longer running", ErrConflict, instance.InstanceNo)
			}
			instance.CurrentNodeID = next.ID
			if _, err := e.dispatcher.Materialize(tx, instance, next, effectiveConfig(next, instance)); err != nil {
				return err
			}
			result.NodeAdvanced = true

		case NodeOutcomePending:
			if cfg.Mode == models.ApprovalModeSequential && taskStatus == models.TaskStatusApproved {
				if _, err := e.dispatcher.MaterializeNext(tx, instance, node, cfg); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Task decided",
		zap.Int64("task_id", req.TaskID),
		zap.String("actor_id", req.ActorID),
		zap.String("action", action),
		zap.String("node_outcome", string(result.NodeOutcome)),
		zap.String("instance_status", result.InstanceStatus))

	if completed != nil {
		e.notifyCompleted(ctx, completed)
	}
	return result, nil
}

// TransferRequest reassigns a task to another approver
type TransferRequest struct {
	TaskID       int64
	ActorID      string
	ActorName    string
	TargetUserID string
	TargetName   string
	Reason       string
}

// Transfer reassigns a non-terminal task owned by the actor. Task status and
// node resolution state are untouched; only the assignee changes.
func (e *Engine) Transfer(ctx context.Context, req TransferRequest) error {
	err := e.db.WithTransaction(func(tx *sql.Tx) error {
		task, err := e.taskRepo.GetByID(tx, req.TaskID)
		if err != nil {
			return err
		}
		if task == nil || task.AssigneeID != req.ActorID {
			return fmt.Errorf("%w: task %d for actor %s", ErrTaskNotFound, req.TaskID, req.ActorID)
		}
		if models.IsTerminalTaskStatus(task.Status) {
			return fmt.Errorf("%w: task %d is %s", ErrAlreadyProcessed, task.ID, task.Status)
		}

		instance, err := e.instanceRepo.GetByID(tx, task.InstanceID)
		if err != nil {
			return err
		}
		if instance == nil || instance.Status != models.InstanceStatusRunning {
			return fmt.Errorf("%w: instance not running", ErrConflict)
		}

		rows, err := e.taskRepo.Reassign(tx, task.ID, req.ActorID, req.TargetUserID, req.TargetName, req.Reason)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: task %d not actionable", ErrConflict, task.ID)
		}

		node, err := e.definitionRepo.GetNode(tx, task.NodeID)
		if err != nil {
			return err
		}
		nodeName := ""
		if node != nil {
			nodeName = node.Name
		}

		return e.recorder.Record(tx, &models.ApprovalHistory{
			InstanceID: instance.ID,
			TaskID:     &task.ID,
			NodeID:     &task.NodeID,
			NodeName:   nodeName,
			ActorID:    req.ActorID,
			ActorName:  req.ActorName,
			Action:     models.ActionTransfer,
			Comment:    fmt.Sprintf("transferred to %s: %s", req.TargetUserID, req.Reason),
		})
	})
	if err != nil {
		return err
	}

	e.logger.Info("Task transferred",
		zap.Int64("task_id", req.TaskID),
		zap.String("from", req.ActorID),
		zap.String("to", req.TargetUserID))
	return nil
}

// Cancel administratively aborts a running instance: all pending tasks are
// cancelled and the instance becomes CANCELLED. Cancelling an already
// terminal instance is a conflict, not a crash.
func (e *Engine) Cancel(ctx context.Context, instanceID int64, actorID, actorName, reason string) error {
	var cancelled *models.WorkflowInstance

	err := e.db.WithTransaction(func(tx *sql.Tx) error {
		instance, err := e.instanceRepo.GetByID(tx, instanceID)
		if err != nil {
			return err
		}
		if instance == nil {
			return fmt.Errorf("%w: id %d", ErrInstanceNotFound, instanceID)
		}
		if models.IsTerminalInstanceStatus(instance.Status) {
			return fmt.Errorf("%w: instance %s is %s", ErrConflict, instance.InstanceNo, instance.Status)
		}

		if err := e.terminate(tx, instance, models.InstanceStatusCancelled); err != nil {
			return err
		}
		cancelled = instance

		return e.recorder.Record(tx, &models.ApprovalHistory{
			InstanceID: instance.ID,
			ActorID:    actorID,
			ActorName:  actorName,
			Action:     models.ActionCancel,
			Comment:    reason,
		})
	})
	if err != nil {
		return err
	}

	e.logger.Info("Instance cancelled",
		zap.Int64("instance_id", instanceID),
		zap.String("actor_id", actorID))

	e.notifyCompleted(ctx, cancelled)
	return nil
}

// terminate moves a RUNNING instance to a terminal status and cancels its
// still-pending tasks. The guarded update detects a racing transition.
func (e *Engine) terminate(tx *sql.Tx, instance *models.WorkflowInstance, status string) error {
	if err := e.taskRepo.CancelPending(tx, instance.ID); err != nil {
		return err
	}
	rows, err := e.instanceRepo.Complete(tx, instance.ID, status)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: instance %s no longer running", ErrConflict, instance.InstanceNo)
	}
	instance.Status = status
	now := time.Now()
	instance.CompletedAt = &now
	return nil
}

func (e *Engine) notifyCompleted(ctx context.Context, instance *models.WorkflowInstance) {
	if e.listener == nil || instance == nil {
		return
	}
	e.listener.OnWorkflowCompleted(ctx, instance)
}

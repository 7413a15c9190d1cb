package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/models"
	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/repository"
	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/workflow"
)

// Actor is the already-resolved identity performing an operation. Identity
// resolution (JWT, sessions, permissions) happens outside this module.
type Actor struct {
	ID   string
	Name string
}

// Limits caps request shapes at the boundary
type Limits struct {
	MaxApproversPerNode int
	PageSizeLimit       int
}

// WorkflowService is the boundary between external callers and the engine:
// it validates request shape, threads explicit actor identity through every
// call, and maps engine results to caller-facing outcomes. It holds no state
// and performs no business logic beyond input validation.
type WorkflowService struct {
	engine         *workflow.Engine
	definitionRepo *repository.DefinitionRepository
	instanceRepo   *repository.InstanceRepository
	taskRepo       *repository.TaskRepository
	historyRepo    *repository.HistoryRepository
	limits         Limits
	logger         *zap.Logger
}

// NewWorkflowService creates a new workflow service
func NewWorkflowService(
	engine *workflow.Engine,
	definitionRepo *repository.DefinitionRepository,
	instanceRepo *repository.InstanceRepository,
	taskRepo *repository.TaskRepository,
	historyRepo *repository.HistoryRepository,
	limits Limits,
	logger *zap.Logger,
) *WorkflowService {
	if limits.MaxApproversPerNode <= 0 {
		limits.MaxApproversPerNode = 50
	}
	if limits.PageSizeLimit <= 0 {
		limits.PageSizeLimit = 100
	}
	return &WorkflowService{
		engine:         engine,
		definitionRepo: definitionRepo,
		instanceRepo:   instanceRepo,
		taskRepo:       taskRepo,
		historyRepo:    historyRepo,
		limits:         limits,
		logger:         logger,
	}
}

// StartWorkflowInput is the boundary request for starting an approval run
type StartWorkflowInput struct {
	WorkflowCode  string   `json:"workflow_code"`
	BusinessType  string   `json:"business_type"`
	BusinessID    string   `json:"business_id"`
	BusinessTitle string   `json:"business_title"`
	ApprovalMode  string   `json:"approval_mode,omitempty"`
	ApproverIDs   []string `json:"approver_ids,omitempty"`
	Comment       string   `json:"comment,omitempty"`
}

func (s *WorkflowService) validateStart(in StartWorkflowInput) error {
	if in.WorkflowCode == "" {
		return fmt.Errorf("%w: workflow_code is required", workflow.ErrInvalidRequest)
	}
	if in.BusinessType == "" || in.BusinessID == "" {
		return fmt.Errorf("%w: business_type and business_id are required", workflow.ErrInvalidRequest)
	}
	if in.ApprovalMode != "" && !models.IsApprovalMode(in.ApprovalMode) {
		return fmt.Errorf("%w: unknown approval mode %q", workflow.ErrInvalidRequest, in.ApprovalMode)
	}
	if len(in.ApproverIDs) > s.limits.MaxApproversPerNode {
		return fmt.Errorf("%w: at most %d approvers per node", workflow.ErrInvalidRequest, s.limits.MaxApproversPerNode)
	}
	for _, id := range in.ApproverIDs {
		if id == "" {
			return fmt.Errorf("%w: approver ids must be non-empty", workflow.ErrInvalidRequest)
		}
	}
	return nil
}

// StartWorkflow starts an approval run for a business object
func (s *WorkflowService) StartWorkflow(ctx context.Context, actor Actor, in StartWorkflowInput) (*models.WorkflowInstance, error) {
	if err := s.validateStart(in); err != nil {
		return nil, err
	}

	return s.engine.Start(ctx, workflow.StartRequest{
		WorkflowCode:  in.WorkflowCode,
		BusinessType:  in.BusinessType,
		BusinessID:    in.BusinessID,
		BusinessTitle: in.BusinessTitle,
		InitiatorID:   actor.ID,
		InitiatorName: actor.Name,
		ApprovalMode:  in.ApprovalMode,
		ApproverIDs:   in.ApproverIDs,
		Comment:       in.Comment,
	})
}

// ApproveTask records an approval decision on a task
func (s *WorkflowService) ApproveTask(ctx context.Context, actor Actor, taskID int64, comment string) (*workflow.DecideResult, error) {
	return s.engine.Decide(ctx, workflow.DecideRequest{
		TaskID:    taskID,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Action:    models.ActionApprove,
		Comment:   comment,
	})
}

// RejectTask records a rejection on a task
func (s *WorkflowService) RejectTask(ctx context.Context, actor Actor, taskID int64, comment string) (*workflow.DecideResult, error) {
	return s.engine.Decide(ctx, workflow.DecideRequest{
		TaskID:    taskID,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Action:    models.ActionReject,
		Comment:   comment,
	})
}

// TransferTask reassigns a task to another user
func (s *WorkflowService) TransferTask(ctx context.Context, actor Actor, taskID int64, targetUserID, targetName, reason string) error {
	if targetUserID == "" {
		return fmt.Errorf("%w: target user id is required", workflow.ErrInvalidRequest)
	}
	if targetUserID == actor.ID {
		return fmt.Errorf("%w: cannot transfer a task to yourself", workflow.ErrInvalidRequest)
	}

	return s.engine.Transfer(ctx, workflow.TransferRequest{
		TaskID:       taskID,
		ActorID:      actor.ID,
		ActorName:    actor.Name,
		TargetUserID: targetUserID,
		TargetName:   targetName,
		Reason:       reason,
	})
}

// CancelInstance administratively aborts a running instance
func (s *WorkflowService) CancelInstance(ctx context.Context, actor Actor, instanceNo, reason string) error {
	instance, err := s.instanceRepo.GetByInstanceNo(nil, instanceNo)
	if err != nil {
		return err
	}
	if instance == nil {
		return fmt.Errorf("%w: %s", workflow.ErrInstanceNotFound, instanceNo)
	}
	return s.engine.Cancel(ctx, instance.ID, actor.ID, actor.Name, reason)
}

// TaskPage is one page of a user's task list
type TaskPage struct {
	Items []*models.WorkflowTask `json:"items"`
	Total int64                  `json:"total"`
	Page  int                    `json:"page"`
	Size  int                    `json:"size"`
}

func (s *WorkflowService) clampPaging(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > s.limits.PageSizeLimit {
		size = s.limits.PageSizeLimit
	}
	return page, size
}

// ListMyTasks returns a page of the actor's tasks, optionally filtered by
// status.
func (s *WorkflowService) ListMyTasks(actor Actor, status string, page, size int) (*TaskPage, error) {
	if status != "" {
		switch status {
		case models.TaskStatusPending, models.TaskStatusInProgress,
			models.TaskStatusApproved, models.TaskStatusRejected, models.TaskStatusCancelled:
		default:
			return nil, fmt.Errorf("%w: unknown task status %q", workflow.ErrInvalidRequest, status)
		}
	}
	page, size = s.clampPaging(page, size)

	items, err := s.taskRepo.ListByAssignee(actor.ID, status, size, (page-1)*size)
	if err != nil {
		return nil, err
	}
	total, err := s.taskRepo.CountByAssignee(actor.ID, status)
	if err != nil {
		return nil, err
	}

	return &TaskPage{Items: items, Total: total, Page: page, Size: size}, nil
}

// InstanceDetail combines an instance with its tasks
type InstanceDetail struct {
	Instance *models.WorkflowInstance `json:"instance"`
	Tasks    []*models.WorkflowTask   `json:"tasks"`
}

// GetInstance returns an instance with its tasks by instance number
func (s *WorkflowService) GetInstance(instanceNo string) (*InstanceDetail, error) {
	instance, err := s.instanceRepo.GetByInstanceNo(nil, instanceNo)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: %s", workflow.ErrInstanceNotFound, instanceNo)
	}

	tasks, err := s.taskRepo.ListByInstance(nil, instance.ID)
	if err != nil {
		return nil, err
	}

	return &InstanceDetail{Instance: instance, Tasks: tasks}, nil
}

// ListInstances returns a page of instances, newest first
func (s *WorkflowService) ListInstances(page, size int) ([]*models.WorkflowInstance, error) {
	page, size = s.clampPaging(page, size)
	return s.instanceRepo.List(size, (page-1)*size)
}

// GetHistory returns the audit trail of an instance in creation order
func (s *WorkflowService) GetHistory(instanceNo string) ([]*models.ApprovalHistory, error) {
	instance, err := s.instanceRepo.GetByInstanceNo(nil, instanceNo)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: %s", workflow.ErrInstanceNotFound, instanceNo)
	}
	return s.historyRepo.ListByInstance(instance.ID)
}

// GetBusinessStatus returns the latest instance for a business reference.
// Business modules poll this to learn the final approval outcome.
func (s *WorkflowService) GetBusinessStatus(businessType, businessID string) (*models.WorkflowInstance, error) {
	if businessType == "" || businessID == "" {
		return nil, fmt.Errorf("%w: business_type and business_id are required", workflow.ErrInvalidRequest)
	}
	instance, err := s.instanceRepo.GetLatestByBusiness(nil, businessType, businessID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: no instance for %s/%s", workflow.ErrInstanceNotFound, businessType, businessID)
	}
	return instance, nil
}

package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/models"
	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/workflow"
)

// NodeInput is one node of a definition being created
type NodeInput struct {
	Name                string   `json:"name"`
	Type                string   `json:"type"`
	ApproverMode        string   `json:"approver_mode,omitempty"`
	ApproverIDs         []string `json:"approver_ids,omitempty"`
	ApprovalMode        string   `json:"approval_mode,omitempty"`
	ConditionExpression string   `json:"condition_expression,omitempty"`
	SortOrder           int      `json:"sort_order"`
}

// DefinitionInput is the boundary request for creating a workflow definition
type DefinitionInput struct {
	TenantID string      `json:"tenant_id,omitempty"`
	Code     string      `json:"code"`
	Name     string      `json:"name"`
	Nodes    []NodeInput `json:"nodes"`
}

func validateDefinition(in DefinitionInput) error {
	if in.Code == "" || in.Name == "" {
		return fmt.Errorf("%w: code and name are required", workflow.ErrInvalidRequest)
	}
	if len(in.Nodes) < 2 {
		return fmt.Errorf("%w: a workflow needs at least START and END nodes", workflow.ErrInvalidRequest)
	}

	starts, ends := 0, 0
	sortOrders := make(map[int]bool, len(in.Nodes))
	for _, node := range in.Nodes {
		if sortOrders[node.SortOrder] {
			return fmt.Errorf("%w: duplicate sort order %d", workflow.ErrInvalidRequest, node.SortOrder)
		}
		sortOrders[node.SortOrder] = true

		switch node.Type {
		case models.NodeTypeStart:
			starts++
		case models.NodeTypeEnd:
			ends++
		case models.NodeTypeCondition:
			// Stored but never evaluated; traversal passes through.
		case models.NodeTypeApproval:
			if !models.IsApprovalMode(node.ApprovalMode) {
				return fmt.Errorf("%w: node %q has unknown approval mode %q",
					workflow.ErrInvalidRequest, node.Name, node.ApprovalMode)
			}
			switch node.ApproverMode {
			case models.ApproverModeByUser:
				if len(node.ApproverIDs) == 0 {
					return fmt.Errorf("%w: node %q needs at least one approver",
						workflow.ErrInvalidRequest, node.Name)
				}
			case models.ApproverModeByRole, models.ApproverModeCustom:
				// Approvers resolved externally and supplied at start time.
			default:
				return fmt.Errorf("%w: node %q has unknown approver mode %q",
					workflow.ErrInvalidRequest, node.Name, node.ApproverMode)
			}
		default:
			return fmt.Errorf("%w: unknown node type %q", workflow.ErrInvalidRequest, node.Type)
		}
	}

	if starts != 1 || ends != 1 {
		return fmt.Errorf("%w: a workflow needs exactly one START and one END node", workflow.ErrInvalidRequest)
	}
	return nil
}

// CreateDefinition creates a workflow definition in DRAFT status
func (s *WorkflowService) CreateDefinition(ctx context.Context, in DefinitionInput) (*models.WorkflowDefinition, error) {
	if err := validateDefinition(in); err != nil {
		return nil, err
	}

	existing, err := s.definitionRepo.GetByCode(nil, in.Code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: workflow code %q already exists", workflow.ErrConflict, in.Code)
	}

	def := &models.WorkflowDefinition{
		TenantID: in.TenantID,
		Code:     in.Code,
		Name:     in.Name,
		Status:   models.DefinitionStatusDraft,
	}
	for _, node := range in.Nodes {
		def.Nodes = append(def.Nodes, &models.WorkflowNode{
			Name:                node.Name,
			Type:                node.Type,
			ApproverMode:        node.ApproverMode,
			ApproverIDs:         node.ApproverIDs,
			ApprovalMode:        node.ApprovalMode,
			ConditionExpression: node.ConditionExpression,
			SortOrder:           node.SortOrder,
		})
	}

	if err := s.definitionRepo.Create(nil, def); err != nil {
		return nil, err
	}

	s.logger.Info("Created workflow definition",
		zap.String("code", def.Code),
		zap.Int("nodes", len(def.Nodes)))
	return def, nil
}

// PublishDefinition moves a definition to ACTIVE so instances can be started
func (s *WorkflowService) PublishDefinition(ctx context.Context, code string) error {
	def, err := s.definitionRepo.GetByCode(nil, code)
	if err != nil {
		return err
	}
	if def == nil {
		return fmt.Errorf("%w: %s", workflow.ErrWorkflowNotFound, code)
	}
	if def.Status == models.DefinitionStatusActive {
		return nil
	}
	return s.definitionRepo.UpdateStatus(nil, def.ID, models.DefinitionStatusActive)
}

// ListDefinitions returns a page of definitions with their nodes
func (s *WorkflowService) ListDefinitions(page, size int) ([]*models.WorkflowDefinition, error) {
	page, size = s.clampPaging(page, size)
	defs, err := s.definitionRepo.List(size, (page-1)*size)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		nodes, err := s.definitionRepo.GetNodes(nil, def.ID)
		if err != nil {
			return nil, err
		}
		def.Nodes = nodes
	}
	return defs, nil
}

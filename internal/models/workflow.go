package models

import "time"

// WorkflowDefinition is an immutable approval template. Once a definition is
// published (ACTIVE) its node list is treated as read-only; running instances
// keep referencing the nodes they started with.
type WorkflowDefinition struct {
	ID        int64     `json:"id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Status    string    `json:"status"` // DRAFT, ACTIVE, INACTIVE
	Deleted   bool      `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Nodes []*WorkflowNode `json:"nodes,omitempty"`
}

// WorkflowNode is one step of a workflow definition. Sort order is the
// traversal order: exactly one START, one END, and any number of APPROVAL /
// CONDITION nodes between them.
type WorkflowNode struct {
	ID                  int64    `json:"id"`
	WorkflowID          int64    `json:"workflow_id"`
	Name                string   `json:"name"`
	Type                string   `json:"type"`          // START, APPROVAL, CONDITION, END
	ApproverMode        string   `json:"approver_mode"` // BY_USER, BY_ROLE, CUSTOM
	ApproverIDs         []string `json:"approver_ids"`
	ApprovalMode        string   `json:"approval_mode"` // ANY, ALL, SEQUENTIAL
	ConditionExpression string   `json:"condition_expression,omitempty"`
	SortOrder           int      `json:"sort_order"`
}

// Definition status constants
const (
	DefinitionStatusDraft    = "DRAFT"
	DefinitionStatusActive   = "ACTIVE"
	DefinitionStatusInactive = "INACTIVE"
)

// Node type constants
const (
	NodeTypeStart     = "START"
	NodeTypeApproval  = "APPROVAL"
	NodeTypeCondition = "CONDITION"
	NodeTypeEnd       = "END"
)

// Approver selection mode constants
const (
	ApproverModeByUser = "BY_USER"
	ApproverModeByRole = "BY_ROLE"
	ApproverModeCustom = "CUSTOM"
)

// Node-level approval mode constants
const (
	ApprovalModeAny        = "ANY"
	ApprovalModeAll        = "ALL"
	ApprovalModeSequential = "SEQUENTIAL"
)

// IsApprovalMode reports whether s is a recognized node approval mode.
func IsApprovalMode(s string) bool {
	switch s {
	case ApprovalModeAny, ApprovalModeAll, ApprovalModeSequential:
		return true
	}
	return false
}

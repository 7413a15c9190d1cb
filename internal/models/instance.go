package models

import "time"

// WorkflowInstance is one runtime execution of a workflow definition against a
// specific business object. At most one RUNNING instance may exist per
// (business_type, business_id) pair; the partial unique index in the schema
// enforces this at the store level.
type WorkflowInstance struct {
	ID            int64      `json:"id"`
	InstanceNo    string     `json:"instance_no"`
	WorkflowID    int64      `json:"workflow_id"`
	BusinessType  string     `json:"business_type"`
	BusinessID    string     `json:"business_id"`
	BusinessTitle string     `json:"business_title"`
	Status        string     `json:"status"` // RUNNING, APPROVED, REJECTED, CANCELLED, ERROR
	CurrentNodeID int64      `json:"current_node_id,omitempty"`
	InitiatorID   string     `json:"initiator_id"`
	InitiatorName string     `json:"initiator_name"`
	ApprovalMode  string     `json:"approval_mode,omitempty"` // per-run override, empty = node config
	ApproverIDs   []string   `json:"approver_ids,omitempty"`  // per-run override, empty = node config
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Instance status constants
const (
	InstanceStatusRunning   = "RUNNING"
	InstanceStatusApproved  = "APPROVED"
	InstanceStatusRejected  = "REJECTED"
	InstanceStatusCancelled = "CANCELLED"
	InstanceStatusError     = "ERROR"
)

var terminalInstanceStatuses = map[string]bool{
	InstanceStatusApproved:  true,
	InstanceStatusRejected:  true,
	InstanceStatusCancelled: true,
	InstanceStatusError:     true,
}

// IsTerminalInstanceStatus reports whether status is final for an instance.
// Terminal instances never transition again.
func IsTerminalInstanceStatus(status string) bool {
	return terminalInstanceStatuses[status]
}

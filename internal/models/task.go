package models

import "time"

// WorkflowTask is one approver's unit of work within a node, scoped to an
// instance. A terminal task is immutable: deciding it again is an error.
type WorkflowTask struct {
	ID             int64      `json:"id"`
	InstanceID     int64      `json:"instance_id"`
	NodeID         int64      `json:"node_id"`
	AssigneeID     string     `json:"assignee_id"`
	AssigneeName   string     `json:"assignee_name"`
	Status         string     `json:"status"` // PENDING, IN_PROGRESS, APPROVED, REJECTED, CANCELLED
	Comment        string     `json:"comment,omitempty"`
	Sequence       int        `json:"sequence"` // position in the node's approver order
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	TransferredTo  string     `json:"transferred_to,omitempty"`
	TransferredAt  *time.Time `json:"transferred_at,omitempty"`
	TransferReason string     `json:"transfer_reason,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"` // advisory only, never enforced
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Task status constants
const (
	TaskStatusPending    = "PENDING"
	TaskStatusInProgress = "IN_PROGRESS"
	TaskStatusApproved   = "APPROVED"
	TaskStatusRejected   = "REJECTED"
	TaskStatusCancelled  = "CANCELLED"
)

var terminalTaskStatuses = map[string]bool{
	TaskStatusApproved:  true,
	TaskStatusRejected:  true,
	TaskStatusCancelled: true,
}

// IsTerminalTaskStatus reports whether status is final for a task.
func IsTerminalTaskStatus(status string) bool {
	return terminalTaskStatuses[status]
}

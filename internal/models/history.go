package models

import "time"

// ApprovalHistory is one row of the append-only audit trail. History rows are
// never updated or deleted; replaying them in creation order reconstructs the
// instance's final state.
type ApprovalHistory struct {
	ID          int64     `json:"id"`
	InstanceID  int64     `json:"instance_id"`
	TaskID      *int64    `json:"task_id,omitempty"` // nil for instance-level events
	NodeID      *int64    `json:"node_id,omitempty"`
	NodeName    string    `json:"node_name,omitempty"`
	ActorID     string    `json:"actor_id"`
	ActorName   string    `json:"actor_name"`
	Action      string    `json:"action"` // CREATE, APPROVE, REJECT, TRANSFER, CANCEL
	Comment     string    `json:"comment,omitempty"`
	Attachments string    `json:"attachments,omitempty"` // JSON blob
	CreatedAt   time.Time `json:"created_at"`
}

// History action constants
const (
	ActionCreate   = "CREATE"
	ActionApprove  = "APPROVE"
	ActionReject   = "REJECT"
	ActionTransfer = "TRANSFER"
	ActionCancel   = "CANCEL"
)

package workflow

import "github.com/javalianxisheng-shenglaogou/bs-sub001/internal/models"

// NodeOutcome is the aggregate result of a node's tasks under its approval
// mode.
type NodeOutcome string

const (
	NodeOutcomePending  NodeOutcome = "PENDING"
	NodeOutcomeApproved NodeOutcome = "APPROVED"
	NodeOutcomeRejected NodeOutcome = "REJECTED"
)

// approvalConfig is the effective approver configuration of a node for one
// instance: the start request's override when present, the node's own
// configuration otherwise.
type approvalConfig struct {
	Mode        string
	ApproverIDs []string
}

func effectiveConfig(node *models.WorkflowNode, instance *models.WorkflowInstance) approvalConfig {
	cfg := approvalConfig{
		Mode:        node.ApprovalMode,
		ApproverIDs: node.ApproverIDs,
	}
	if instance.ApprovalMode != "" {
		cfg.Mode = instance.ApprovalMode
	}
	if len(instance.ApproverIDs) > 0 {
		cfg.ApproverIDs = instance.ApproverIDs
	}
	return cfg
}

// evaluateOutcome aggregates task statuses into a node outcome. Pure function
// over the node's current tasks plus the effective approver count; the caller
// must run it inside the same transaction that recorded the deciding task's
// terminal status.
//
//   - ANY: one APPROVED resolves the node; REJECT only once every approver
//     has rejected.
//   - ALL: one REJECTED resolves the node (fail fast); APPROVE only once
//     every approver has approved.
//   - SEQUENTIAL: tasks exist one at a time in assignee order, so the rules
//     collapse to: first REJECTED rejects, last APPROVED approves.
func evaluateOutcome(mode string, approverCount int, tasks []*models.WorkflowTask) NodeOutcome {
	approved, rejected := 0, 0
	for _, task := range tasks {
		switch task.Status {
		case models.TaskStatusApproved:
			approved++
		case models.TaskStatusRejected:
			rejected++
		}
	}

	switch mode {
	case models.ApprovalModeAny:
		if approved > 0 {
			return NodeOutcomeApproved
		}
		if rejected >= approverCount {
			return NodeOutcomeRejected
		}
	case models.ApprovalModeAll, models.ApprovalModeSequential:
		if rejected > 0 {
			return NodeOutcomeRejected
		}
		if approved >= approverCount {
			return NodeOutcomeApproved
		}
	}

	return NodeOutcomePending
}

// nextApprovalNode walks nodes past the given sort position and returns the
// next APPROVAL node, or nil when the traversal reaches END. CONDITION nodes
// are stored but have no evaluator, so they pass through.
func nextApprovalNode(nodes []*models.WorkflowNode, afterSort int) *models.WorkflowNode {
	for _, node := range nodes {
		if node.SortOrder <= afterSort {
			continue
		}
		switch node.Type {
		case models.NodeTypeApproval:
			return node
		case models.NodeTypeEnd:
			return nil
		}
	}
	return nil
}

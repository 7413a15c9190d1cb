package workflow

import "errors"

var (
	// ErrWorkflowNotFound is returned when a workflow code does not resolve
	// to an ACTIVE definition.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrInstanceNotFound is returned when an instance does not exist
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrTaskNotFound is returned when a task does not exist or does not
	// belong to the acting user.
	ErrTaskNotFound = errors.New("task not found")

	// ErrConflict is returned on consistency violations: duplicate running
	// instance, decision against a non-RUNNING instance or superseded node,
	// cancel of an already-terminal instance.
	ErrConflict = errors.New("workflow state conflict")

	// ErrAlreadyProcessed is returned when a terminal task is decided again
	ErrAlreadyProcessed = errors.New("task already processed")

	// ErrInvalidRequest is returned on malformed input: unknown approval
	// mode, empty approver list, unknown action.
	ErrInvalidRequest = errors.New("invalid request")
)

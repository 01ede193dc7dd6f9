// Package persistence provides the data storage abstraction for workflows,
// runs, approvals, and SLAs.
package persistence

import "errors"

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRunNotFound indicates a workflow run was not found by the given identifier.
	ErrRunNotFound = errors.New("workflow run not found")

	// ErrActionRunNotFound indicates an action run was not found by the given identifier.
	ErrActionRunNotFound = errors.New("action run not found")

	// ErrApprovalNotFound indicates an approval was not found by the given identifier.
	ErrApprovalNotFound = errors.New("approval not found")

	// ErrSLANotFound indicates an SLA was not found by the given identifier.
	ErrSLANotFound = errors.New("sla not found")

	// ErrBreachNotFound indicates an SLA breach was not found by the given identifier.
	ErrBreachNotFound = errors.New("sla breach not found")

	// ErrApprovalResolved indicates an approve/deny hit an approval that
	// already left its resolvable states.
	ErrApprovalResolved = errors.New("approval already resolved")

	// ErrInvalidStatusTransition indicates a run status update tried to move
	// backward out of a terminal state.
	ErrInvalidStatusTransition = errors.New("invalid run status transition")
)

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsApprovalNotFound checks if an error indicates an approval was not found.
func IsApprovalNotFound(err error) bool {
	return errors.Is(err, ErrApprovalNotFound)
}

// IsApprovalResolved checks if an error indicates an approval was already resolved.
func IsApprovalResolved(err error) bool {
	return errors.Is(err, ErrApprovalResolved)
}

// IsInvalidStatusTransition checks if an error indicates a rejected run
// status transition.
func IsInvalidStatusTransition(err error) bool {
	return errors.Is(err, ErrInvalidStatusTransition)
}

// Package engine executes workflows: matching triggers to events, running
// actions in order, and driving the run state machine.
package engine

import "errors"

var (
	// ErrWorkflowNotExecutable indicates the workflow is inactive, a draft,
	// or archived, so no new runs may start.
	ErrWorkflowNotExecutable = errors.New("workflow is not executable")
)

// IsWorkflowNotExecutable checks if an error indicates a non-executable workflow.
func IsWorkflowNotExecutable(err error) bool {
	return errors.Is(err, ErrWorkflowNotExecutable)
}

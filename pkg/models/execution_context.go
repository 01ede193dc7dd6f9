package models

// ExecutionContext carries per-run state into action handlers. StepResults
// accumulates the result data of completed actions keyed by action ID so
// later steps can reference earlier outputs.
type ExecutionContext struct {
	RunID       string         `json:"run_id"`
	WorkflowID  string         `json:"workflow_id"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	StepResults map[string]any `json:"step_results,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ActorID     string         `json:"actor_id,omitempty"`
}

// ForStep returns a copy with its own metadata map so concurrently executing
// steps never share mutable state. StepResults stays shared; the engine only
// writes it between execution phases.
func (c ExecutionContext) ForStep() ExecutionContext {
	metadata := make(map[string]any, len(c.Metadata))
	for key, value := range c.Metadata {
		metadata[key] = value
	}

	c.Metadata = metadata

	return c
}

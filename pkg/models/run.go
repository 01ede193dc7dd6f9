package models

import "time"

// RunStatus is the state of one workflow execution. Transitions are strictly
// pending -> running -> {completed, failed, cancelled}; never backward.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// WorkflowRun is one triggered execution of a workflow. TriggerID is nil for
// manual runs. TriggerData is an immutable snapshot of the event payload.
type WorkflowRun struct {
	ID           string         `json:"id"`
	WorkflowID   string         `json:"workflow_id"`
	TriggerID    *string        `json:"trigger_id,omitempty"`
	TriggerData  map[string]any `json:"trigger_data,omitempty"`
	Status       RunStatus      `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	DurationMs   int64          `json:"duration_ms"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ErrorDetails map[string]any `json:"error_details,omitempty"`
	ActorID      string         `json:"actor_id,omitempty"`

	// CancelRequested is set by an external cancel request and honored
	// cooperatively by the owning worker before it starts the next action.
	CancelRequested bool `json:"cancel_requested,omitempty"`
}

// Finish stamps the terminal timestamp and derives DurationMs from the
// started/completed pair.
func (r *WorkflowRun) Finish(at time.Time) {
	r.CompletedAt = &at
	r.DurationMs = at.Sub(r.StartedAt).Milliseconds()
}

// ActionRunStatus is the state of one action within a run.
type ActionRunStatus string

const (
	ActionRunStatusPending   ActionRunStatus = "pending"
	ActionRunStatusRunning   ActionRunStatus = "running"
	ActionRunStatusCompleted ActionRunStatus = "completed"
	ActionRunStatusFailed    ActionRunStatus = "failed"
	ActionRunStatusSkipped   ActionRunStatus = "skipped"
)

// WorkflowActionRun records the execution of a single action within a run,
// ordered by the parent action's Ordering. RetryCount is informational; the
// engine performs no implicit retries.
type WorkflowActionRun struct {
	ID           string          `json:"id"`
	RunID        string          `json:"run_id"`
	ActionID     string          `json:"action_id"`
	ActionType   ActionType      `json:"action_type"`
	Ordering     int             `json:"ordering"`
	Status       ActionRunStatus `json:"status"`
	Success      bool            `json:"success"`
	ResultData   map[string]any  `json:"result_data,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	RetryCount   int             `json:"retry_count"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
}

// Finish stamps the terminal timestamp and derives DurationMs.
func (ar *WorkflowActionRun) Finish(at time.Time) {
	ar.CompletedAt = &at
	ar.DurationMs = at.Sub(ar.StartedAt).Milliseconds()
}

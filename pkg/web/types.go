// Package web provides the HTTP surface of the workflow engine.
package web

// EventRequest is an incoming domain event to match against triggers.
type EventRequest struct {
	EventType string         `json:"event_type" validate:"required"`
	Scope     string         `json:"scope"`
	Data      map[string]any `json:"data"`
}

// CreateWorkflowRequest is the request body for creating a workflow.
type CreateWorkflowRequest struct {
	Name        string `json:"name"        validate:"required,min=3"`
	Description string `json:"description"`
	Type        string `json:"type"        validate:"required,oneof=approval notification automation escalation custom"`
	Owner       string `json:"owner"       validate:"required"`
	Scope       string `json:"scope"`
}

// ExecuteWorkflowRequest is the request body for a manual run.
type ExecuteWorkflowRequest struct {
	TriggerData map[string]any `json:"trigger_data"`
	ActorID     string         `json:"actor_id"`
}

// EnqueueWorkflowResponse acknowledges an asynchronous execution request and
// reports where the task was routed.
type EnqueueWorkflowResponse struct {
	TaskID     string `json:"task_id"`
	Queue      string `json:"queue"`
	WorkflowID string `json:"workflow_id"`
}

// CancelRunRequest is the request body for a run cancel.
type CancelRunRequest struct {
	CancelledBy string `json:"cancelled_by"`
}

// ApproveRequest is the request body for resolving an approval positively.
type ApproveRequest struct {
	ActorID  string `json:"actor_id" validate:"required"`
	Comments string `json:"comments"`
}

// DenyRequest is the request body for resolving an approval negatively. A
// denial must carry a reason; comments are optional elaboration.
type DenyRequest struct {
	ActorID  string `json:"actor_id" validate:"required"`
	Reason   string `json:"reason"   validate:"required"`
	Comments string `json:"comments"`
}

// ApprovalMetrics summarizes approval activity over a window.
type ApprovalMetrics struct {
	TotalApprovals             int            `json:"total_approvals"`
	StatusBreakdown            map[string]int `json:"status_breakdown"`
	AverageResponseTimeSeconds float64        `json:"average_response_time_seconds"`
	EscalatedCount             int            `json:"escalated_count"`
	EscalationRatePercent      float64        `json:"escalation_rate_percent"`
	WindowDays                 int            `json:"window_days"`
}

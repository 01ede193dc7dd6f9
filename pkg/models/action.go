package models

import "time"

// ActionType is the closed set of side effects an action can perform.
// Custom handler types may be registered at process start; anything else is
// rejected by the action registry at execution time.
type ActionType string

const (
	ActionTypeSendEmail        ActionType = "send_email"
	ActionTypeAddNote          ActionType = "add_note"
	ActionTypeUpdateField      ActionType = "update_field"
	ActionTypeEnqueueExport    ActionType = "enqueue_export"
	ActionTypeCreateTask       ActionType = "create_task"
	ActionTypeSendNotification ActionType = "send_notification"
	ActionTypeCallWebhook      ActionType = "call_webhook"
)

// QueueHint is an optional explicit routing override on an action. When set
// it wins over keyword-based classification.
type QueueHint string

const (
	QueueHintIO  QueueHint = "io"
	QueueHintCPU QueueHint = "cpu"
)

// WorkflowAction is one ordered unit of work within a workflow. Ordering
// values define a total order for execution within one run; ties break by ID.
type WorkflowAction struct {
	ID           string         `json:"id"          validate:"required"`
	WorkflowID   string         `json:"workflow_id" validate:"required"`
	ActionType   ActionType     `json:"action_type" validate:"required"`
	Name         string         `json:"name"`
	Payload      map[string]any `json:"payload"` // Opaque per-type configuration
	Ordering     int            `json:"ordering"`
	AllowFailure bool           `json:"allow_failure"`
	IsActive     bool           `json:"is_active"`
	DependsOn    []int          `json:"depends_on,omitempty"` // Indices into the run's step list
	QueueHint    QueueHint      `json:"queue_hint,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ActionResult is the normalized outcome of executing one action. Handlers
// never raise; any failure is folded into Success=false plus Error.
type ActionResult struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Package events defines event types and structures for run lifecycle
// notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the single stream all engine events flow through.
const Topic = "conveyor.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run lifecycle events.
	RunStartedEvent   EventType = "run.started"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"
	RunCancelledEvent EventType = "run.cancelled"

	// Approval events.
	ApprovalRequestedEvent EventType = "approval.requested"
	ApprovalResolvedEvent  EventType = "approval.resolved"
	ApprovalEscalatedEvent EventType = "approval.escalated"

	// SLA events.
	SLABreachedEvent EventType = "sla.breached"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

type RunStarted struct {
	BaseEvent

	RunID       string         `json:"run_id"`
	TriggerID   string         `json:"trigger_id,omitempty"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	ActorID     string         `json:"actor_id,omitempty"`
}

func (r RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunCompleted struct {
	BaseEvent

	RunID           string `json:"run_id"`
	DurationMs      int64  `json:"duration_ms"`
	ActionsExecuted int    `json:"actions_executed"`
}

func (r RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	RunID           string         `json:"run_id"`
	DurationMs      int64          `json:"duration_ms"`
	Error           string         `json:"error"`
	ErrorDetails    map[string]any `json:"error_details,omitempty"`
	ActionsExecuted int            `json:"actions_executed"`
}

func (r RunFailed) GetType() EventType {
	return RunFailedEvent
}

type RunCancelled struct {
	BaseEvent

	RunID           string `json:"run_id"`
	DurationMs      int64  `json:"duration_ms"`
	CancelledBy     string `json:"cancelled_by,omitempty"`
	ActionsExecuted int    `json:"actions_executed"`
}

func (r RunCancelled) GetType() EventType {
	return RunCancelledEvent
}

type ApprovalRequested struct {
	BaseEvent

	ApprovalID   string    `json:"approval_id"`
	RunID        string    `json:"run_id"`
	ApproverRole string    `json:"approver_role"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (a ApprovalRequested) GetType() EventType {
	return ApprovalRequestedEvent
}

type ApprovalResolved struct {
	BaseEvent

	ApprovalID string `json:"approval_id"`
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	ActorID    string `json:"actor_id,omitempty"`
	Comments   string `json:"comments,omitempty"`
}

func (a ApprovalResolved) GetType() EventType {
	return ApprovalResolvedEvent
}

type ApprovalEscalated struct {
	BaseEvent

	ApprovalID    string    `json:"approval_id"`
	RunID         string    `json:"run_id"`
	EscalatedRole string    `json:"escalated_to_role"`
	ExpiredAt     time.Time `json:"expired_at"`
}

func (a ApprovalEscalated) GetType() EventType {
	return ApprovalEscalatedEvent
}

type SLABreached struct {
	BaseEvent

	BreachID              string   `json:"breach_id"`
	SLAID                 string   `json:"sla_id"`
	RunID                 string   `json:"run_id"`
	Severity              string   `json:"severity"`
	ActualDurationSeconds float64  `json:"actual_duration_seconds"`
	TargetDurationSeconds float64  `json:"target_duration_seconds"`
	BreachMarginSeconds   float64  `json:"breach_margin_seconds"`
	Recipients            []string `json:"recipients,omitempty"`
}

func (s SLABreached) GetType() EventType {
	return SLABreachedEvent
}

package models

import "time"

// WorkflowTrigger registers a workflow's interest in a domain event type.
// A workflow may carry several triggers; each one that matches an incoming
// event independently produces a run.
type WorkflowTrigger struct {
	ID         string     `json:"id"          validate:"required"`
	WorkflowID string     `json:"workflow_id" validate:"required"`
	EventType  string     `json:"event_type"  validate:"required"` // e.g. "lead.created", "deal.stage_changed"
	Conditions *Condition `json:"conditions,omitempty"`
	Priority   int        `json:"priority"` // Higher fires first among matches
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
}

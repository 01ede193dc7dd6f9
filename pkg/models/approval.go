package models

import "time"

// ApprovalStatus is the state of a human-in-the-loop approval gate. Once the
// status leaves pending it is terminal, except escalated, which still awaits
// human resolution but records the escalation event in metadata.
type ApprovalStatus string

const (
	ApprovalStatusPending   ApprovalStatus = "pending"
	ApprovalStatusApproved  ApprovalStatus = "approved"
	ApprovalStatusDenied    ApprovalStatus = "denied"
	ApprovalStatusEscalated ApprovalStatus = "escalated"
	ApprovalStatusExpired   ApprovalStatus = "expired"
)

// Metadata keys stamped by the escalation sweep.
const (
	ApprovalMetaEscalatedAt   = "escalated_at"
	ApprovalMetaEscalatedRole = "escalated_to_role"
)

// WorkflowApproval tracks a human approval gate tied to one action run within
// one workflow run.
type WorkflowApproval struct {
	ID           string         `json:"id"`
	RunID        string         `json:"run_id"        validate:"required"`
	ActionRunID  string         `json:"action_run_id" validate:"required"`
	Status       ApprovalStatus `json:"status"`
	ApproverRole string         `json:"approver_role"`
	EscalateRole string         `json:"escalate_role"`
	ExpiresAt    time.Time      `json:"expires_at"`
	ResolvedAt   *time.Time     `json:"resolved_at,omitempty"`
	ActorID      string         `json:"actor_id,omitempty"`
	Comments     string         `json:"comments,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Resolvable reports whether approve/deny may still act on the approval.
// Escalated approvals remain resolvable; they are pending at a higher role.
func (a *WorkflowApproval) Resolvable() bool {
	return a.Status == ApprovalStatusPending || a.Status == ApprovalStatusEscalated
}

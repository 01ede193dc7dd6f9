// Package models defines the core domain models for the workflow execution engine.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, not executable
	WorkflowStatusActive   WorkflowStatus = "active"   // Executable
	WorkflowStatusInactive WorkflowStatus = "inactive" // Paused, not executable
	WorkflowStatusArchived WorkflowStatus = "archived" // Soft-deleted, kept for run history
)

// WorkflowType categorizes what a workflow automates.
type WorkflowType string

const (
	WorkflowTypeApproval     WorkflowType = "approval"
	WorkflowTypeNotification WorkflowType = "notification"
	WorkflowTypeAutomation   WorkflowType = "automation"
	WorkflowTypeEscalation   WorkflowType = "escalation"
	WorkflowTypeCustom       WorkflowType = "custom"
)

// Workflow is the unit of automation: a set of triggers gating a set of
// ordered actions. Runs reference workflows, so workflows are never hard
// deleted, only archived.
type Workflow struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"        validate:"required,min=3"`
	Description    string         `json:"description"`
	Type           WorkflowType   `json:"type"        validate:"required"`
	Status         WorkflowStatus `json:"status"      validate:"required"`
	IsActive       bool           `json:"is_active"`
	Owner          string         `json:"owner"       validate:"required"`
	Scope          string         `json:"scope"` // Company-scoped owner entity key
	ExecutionCount int64          `json:"execution_count"`
	LastExecutedAt *time.Time     `json:"last_executed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
}

// Executable reports whether the workflow may produce new runs.
func (w *Workflow) Executable() bool {
	return w.IsActive && w.Status == WorkflowStatusActive && w.DeletedAt == nil
}

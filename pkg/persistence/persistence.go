package persistence

import (
	"context"
	"time"

	"github.com/tidewater/conveyor/pkg/models"
)

// Persistence is the storage contract the engine depends on. Implementations
// must serialize SLA counter updates per SLA row; everything else may assume
// the engine's single-owner-per-run discipline.
type Persistence interface {
	// Workflow catalog.
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	ArchiveWorkflow(ctx context.Context, id string) error
	// RecordExecution increments the workflow's execution counter and stamps
	// its last-executed time.
	RecordExecution(ctx context.Context, workflowID string, at time.Time) error

	// Triggers. ActiveTriggersByEvent returns active triggers for the event
	// type within the scope, ordered by descending priority.
	SaveTrigger(ctx context.Context, trigger *models.WorkflowTrigger) error
	ActiveTriggersByEvent(ctx context.Context, eventType, scope string) ([]*models.WorkflowTrigger, error)

	// Actions. ActiveActionsByWorkflow returns active actions ordered by
	// (ordering, id).
	SaveAction(ctx context.Context, action *models.WorkflowAction) error
	ActiveActionsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowAction, error)

	// Runs.
	CreateRun(ctx context.Context, run *models.WorkflowRun) error
	UpdateRun(ctx context.Context, run *models.WorkflowRun) error
	RunByID(ctx context.Context, id string) (*models.WorkflowRun, error)
	RunsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error)
	// RequestRunCancel flags a running run for cooperative cancellation.
	RequestRunCancel(ctx context.Context, runID string) error
	RunCancelRequested(ctx context.Context, runID string) (bool, error)

	// Action runs.
	CreateActionRun(ctx context.Context, actionRun *models.WorkflowActionRun) error
	UpdateActionRun(ctx context.Context, actionRun *models.WorkflowActionRun) error
	ActionRunsByRun(ctx context.Context, runID string) ([]*models.WorkflowActionRun, error)

	// Approvals.
	CreateApproval(ctx context.Context, approval *models.WorkflowApproval) error
	UpdateApproval(ctx context.Context, approval *models.WorkflowApproval) error
	ApprovalByID(ctx context.Context, id string) (*models.WorkflowApproval, error)
	// PendingApprovalsExpiredBy returns approvals still pending whose
	// expiry is at or before the given instant.
	PendingApprovalsExpiredBy(ctx context.Context, asOf time.Time) ([]*models.WorkflowApproval, error)
	ApprovalsCreatedSince(ctx context.Context, since time.Time) ([]*models.WorkflowApproval, error)

	// SLAs and breaches.
	SaveSLA(ctx context.Context, sla *models.WorkflowSLA) error
	ActiveSLAsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowSLA, error)
	UpdateSLACounters(ctx context.Context, sla *models.WorkflowSLA) error
	CreateBreach(ctx context.Context, breach *models.SLABreach) error
	MarkBreachAlertSent(ctx context.Context, breachID string, at time.Time) error
	AcknowledgeBreach(ctx context.Context, breachID, acknowledgedBy string, at time.Time) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

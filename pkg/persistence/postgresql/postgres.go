// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/persistence"
	"github.com/tidewater/conveyor/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	workflowRepo *WorkflowRepository
	runRepo      *RunRepository
	approvalRepo *ApprovalRepository
	slaRepo      *SLARepository
}

var _ persistence.Persistence = (*Persistence)(nil)

// NewPersistence creates a new PostgreSQL persistence layer and runs pending
// migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:           database,
		logger:       logger,
		workflowRepo: NewWorkflowRepository(database, logger),
		runRepo:      NewRunRepository(database, logger),
		approvalRepo: NewApprovalRepository(database, logger),
		slaRepo:      NewSLARepository(database, logger),
	}, nil
}

// Workflows returns all non-archived workflows.
func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	return p.workflowRepo.GetAll(ctx)
}

// WorkflowByID returns a workflow by its ID.
func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	return p.workflowRepo.GetByID(ctx, id)
}

// SaveWorkflow saves a workflow.
func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	return p.workflowRepo.Save(ctx, workflow)
}

// ArchiveWorkflow soft deletes a workflow.
func (p *Persistence) ArchiveWorkflow(ctx context.Context, id string) error {
	return p.workflowRepo.Archive(ctx, id)
}

// RecordExecution bumps the workflow's execution counter.
func (p *Persistence) RecordExecution(ctx context.Context, workflowID string, at time.Time) error {
	return p.workflowRepo.RecordExecution(ctx, workflowID, at)
}

// SaveTrigger saves a workflow trigger.
func (p *Persistence) SaveTrigger(ctx context.Context, trigger *models.WorkflowTrigger) error {
	return p.workflowRepo.SaveTrigger(ctx, trigger)
}

// ActiveTriggersByEvent returns matching active triggers, highest priority first.
func (p *Persistence) ActiveTriggersByEvent(ctx context.Context, eventType, scope string) ([]*models.WorkflowTrigger, error) {
	return p.workflowRepo.ActiveTriggersByEvent(ctx, eventType, scope)
}

// SaveAction saves a workflow action.
func (p *Persistence) SaveAction(ctx context.Context, action *models.WorkflowAction) error {
	return p.workflowRepo.SaveAction(ctx, action)
}

// ActiveActionsByWorkflow returns active actions in execution order.
func (p *Persistence) ActiveActionsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowAction, error) {
	return p.workflowRepo.ActiveActionsByWorkflow(ctx, workflowID)
}

// CreateRun inserts a new run.
func (p *Persistence) CreateRun(ctx context.Context, run *models.WorkflowRun) error {
	return p.runRepo.Create(ctx, run)
}

// UpdateRun persists run progress.
func (p *Persistence) UpdateRun(ctx context.Context, run *models.WorkflowRun) error {
	return p.runRepo.Update(ctx, run)
}

// RunByID returns a run by its ID.
func (p *Persistence) RunByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	return p.runRepo.GetByID(ctx, id)
}

// RunsByWorkflow returns a workflow's runs, newest first.
func (p *Persistence) RunsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	return p.runRepo.GetByWorkflow(ctx, workflowID)
}

// RequestRunCancel flags a run for cooperative cancellation.
func (p *Persistence) RequestRunCancel(ctx context.Context, runID string) error {
	return p.runRepo.RequestCancel(ctx, runID)
}

// RunCancelRequested reports whether a cancel has been requested.
func (p *Persistence) RunCancelRequested(ctx context.Context, runID string) (bool, error) {
	return p.runRepo.CancelRequested(ctx, runID)
}

// CreateActionRun inserts a new action run.
func (p *Persistence) CreateActionRun(ctx context.Context, actionRun *models.WorkflowActionRun) error {
	return p.runRepo.CreateActionRun(ctx, actionRun)
}

// UpdateActionRun persists action run progress.
func (p *Persistence) UpdateActionRun(ctx context.Context, actionRun *models.WorkflowActionRun) error {
	return p.runRepo.UpdateActionRun(ctx, actionRun)
}

// ActionRunsByRun returns a run's action runs in execution order.
func (p *Persistence) ActionRunsByRun(ctx context.Context, runID string) ([]*models.WorkflowActionRun, error) {
	return p.runRepo.ActionRunsByRun(ctx, runID)
}

// CreateApproval inserts a new approval.
func (p *Persistence) CreateApproval(ctx context.Context, approval *models.WorkflowApproval) error {
	return p.approvalRepo.Create(ctx, approval)
}

// UpdateApproval persists approval state.
func (p *Persistence) UpdateApproval(ctx context.Context, approval *models.WorkflowApproval) error {
	return p.approvalRepo.Update(ctx, approval)
}

// ApprovalByID returns an approval by its ID.
func (p *Persistence) ApprovalByID(ctx context.Context, id string) (*models.WorkflowApproval, error) {
	return p.approvalRepo.GetByID(ctx, id)
}

// PendingApprovalsExpiredBy returns pending approvals past their expiry.
func (p *Persistence) PendingApprovalsExpiredBy(ctx context.Context, asOf time.Time) ([]*models.WorkflowApproval, error) {
	return p.approvalRepo.PendingExpiredBy(ctx, asOf)
}

// ApprovalsCreatedSince returns approvals created at or after the instant.
func (p *Persistence) ApprovalsCreatedSince(ctx context.Context, since time.Time) ([]*models.WorkflowApproval, error) {
	return p.approvalRepo.CreatedSince(ctx, since)
}

// SaveSLA saves an SLA definition.
func (p *Persistence) SaveSLA(ctx context.Context, sla *models.WorkflowSLA) error {
	return p.slaRepo.Save(ctx, sla)
}

// ActiveSLAsByWorkflow returns a workflow's active SLAs.
func (p *Persistence) ActiveSLAsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowSLA, error) {
	return p.slaRepo.ActiveByWorkflow(ctx, workflowID)
}

// UpdateSLACounters persists the rolling SLO counters.
func (p *Persistence) UpdateSLACounters(ctx context.Context, sla *models.WorkflowSLA) error {
	return p.slaRepo.UpdateCounters(ctx, sla)
}

// CreateBreach inserts a new SLA breach.
func (p *Persistence) CreateBreach(ctx context.Context, breach *models.SLABreach) error {
	return p.slaRepo.CreateBreach(ctx, breach)
}

// MarkBreachAlertSent stamps the breach's alert delivery time.
func (p *Persistence) MarkBreachAlertSent(ctx context.Context, breachID string, at time.Time) error {
	return p.slaRepo.MarkBreachAlertSent(ctx, breachID, at)
}

// AcknowledgeBreach records a human acknowledgement.
func (p *Persistence) AcknowledgeBreach(ctx context.Context, breachID, acknowledgedBy string, at time.Time) error {
	return p.slaRepo.AcknowledgeBreach(ctx, breachID, acknowledgedBy, at)
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/persistence"
)

// RunRepository handles workflow run and action run database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

const runColumns = `
		id
	  , workflow_id
	  , trigger_id
	  , trigger_data
	  , status
	  , started_at
	  , completed_at
	  , duration_ms
	  , success
	  , error_message
	  , error_details
	  , actor_id
	  , cancel_requested
`

// Create inserts a new run record.
func (r *RunRepository) Create(ctx context.Context, run *models.WorkflowRun) error {
	if run.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate run ID: %w", err)
		}

		run.ID = id.String()
	}

	triggerDataJSON, err := json.Marshal(run.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	errorDetailsJSON, err := json.Marshal(run.ErrorDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal error details: %w", err)
	}

	query := `
		INSERT INTO workflow_runs (id, workflow_id, trigger_id, trigger_data, status,
			started_at, completed_at, duration_ms, success, error_message, error_details,
			actor_id, cancel_requested)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.WorkflowID,
		run.TriggerID,
		triggerDataJSON,
		run.Status,
		run.StartedAt,
		run.CompletedAt,
		run.DurationMs,
		run.Success,
		run.ErrorMessage,
		errorDetailsJSON,
		run.ActorID,
		run.CancelRequested,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// Update persists run progress. A run that already reached a terminal status
// only accepts updates that keep that status, so late workers cannot move a
// cancelled run back to running.
func (r *RunRepository) Update(ctx context.Context, run *models.WorkflowRun) error {
	errorDetailsJSON, err := json.Marshal(run.ErrorDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal error details: %w", err)
	}

	query := `
		UPDATE workflow_runs
		SET status = $2,
			completed_at = $3,
			duration_ms = $4,
			success = $5,
			error_message = $6,
			error_details = $7
		WHERE id = $1
		  AND (status NOT IN ('completed', 'failed', 'cancelled') OR status = $2)
	`

	result, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Status,
		run.CompletedAt,
		run.DurationMs,
		run.Success,
		run.ErrorMessage,
		errorDetailsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read run update result: %w", err)
	}

	if affected == 0 {
		existing, err := r.GetByID(ctx, run.ID)
		if err != nil {
			return err
		}

		if existing.Status.Terminal() {
			return persistence.ErrInvalidStatusTransition
		}

		return persistence.ErrRunNotFound
	}

	return nil
}

// GetByID returns a run by its ID.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	query := `
		SELECT` + runColumns + `
		FROM workflow_runs
		WHERE id = $1
	`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return run, nil
}

// GetByWorkflow returns runs for a workflow, newest first.
func (r *RunRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	query := `
		SELECT` + runColumns + `
		FROM workflow_runs
		WHERE workflow_id = $1
		ORDER BY started_at DESC, id
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer r.closeRows(ctx, rows)

	runs := make([]*models.WorkflowRun, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// RequestCancel flags a non-terminal run for cooperative cancellation.
func (r *RunRepository) RequestCancel(ctx context.Context, runID string) error {
	query := `
		UPDATE workflow_runs
		SET cancel_requested = TRUE
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')
	`

	result, err := r.db.ExecContext(ctx, query, runID)
	if err != nil {
		return fmt.Errorf("failed to request run cancel: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read cancel request result: %w", err)
	}

	if affected == 0 {
		existing, err := r.GetByID(ctx, runID)
		if err != nil {
			return err
		}

		if existing.Status.Terminal() {
			return persistence.ErrInvalidStatusTransition
		}
	}

	return nil
}

// CancelRequested reports whether a cancel has been requested for the run.
func (r *RunRepository) CancelRequested(ctx context.Context, runID string) (bool, error) {
	var requested bool

	err := r.db.QueryRowContext(ctx,
		"SELECT cancel_requested FROM workflow_runs WHERE id = $1", runID).Scan(&requested)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, persistence.ErrRunNotFound
		}

		return false, fmt.Errorf("failed to query cancel flag: %w", err)
	}

	return requested, nil
}

// CreateActionRun inserts a new action run record.
func (r *RunRepository) CreateActionRun(ctx context.Context, actionRun *models.WorkflowActionRun) error {
	if actionRun.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate action run ID: %w", err)
		}

		actionRun.ID = id.String()
	}

	resultDataJSON, err := json.Marshal(actionRun.ResultData)
	if err != nil {
		return fmt.Errorf("failed to marshal result data: %w", err)
	}

	query := `
		INSERT INTO workflow_action_runs (id, run_id, action_id, action_type, ordering,
			status, success, result_data, error_message, retry_count, started_at,
			completed_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.db.ExecContext(ctx, query,
		actionRun.ID,
		actionRun.RunID,
		actionRun.ActionID,
		actionRun.ActionType,
		actionRun.Ordering,
		actionRun.Status,
		actionRun.Success,
		resultDataJSON,
		actionRun.ErrorMessage,
		actionRun.RetryCount,
		actionRun.StartedAt,
		actionRun.CompletedAt,
		actionRun.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to create action run: %w", err)
	}

	return nil
}

// UpdateActionRun persists action run progress.
func (r *RunRepository) UpdateActionRun(ctx context.Context, actionRun *models.WorkflowActionRun) error {
	resultDataJSON, err := json.Marshal(actionRun.ResultData)
	if err != nil {
		return fmt.Errorf("failed to marshal result data: %w", err)
	}

	query := `
		UPDATE workflow_action_runs
		SET status = $2,
			success = $3,
			result_data = $4,
			error_message = $5,
			retry_count = $6,
			completed_at = $7,
			duration_ms = $8
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		actionRun.ID,
		actionRun.Status,
		actionRun.Success,
		resultDataJSON,
		actionRun.ErrorMessage,
		actionRun.RetryCount,
		actionRun.CompletedAt,
		actionRun.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to update action run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read action run update result: %w", err)
	}

	if affected == 0 {
		return persistence.ErrActionRunNotFound
	}

	return nil
}

// ActionRunsByRun returns the action runs of one run in execution order.
func (r *RunRepository) ActionRunsByRun(ctx context.Context, runID string) ([]*models.WorkflowActionRun, error) {
	query := `
		SELECT
			id
		  , run_id
		  , action_id
		  , action_type
		  , ordering
		  , status
		  , success
		  , result_data
		  , error_message
		  , retry_count
		  , started_at
		  , completed_at
		  , duration_ms
		FROM workflow_action_runs
		WHERE run_id = $1
		ORDER BY ordering, id
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query action runs: %w", err)
	}

	defer r.closeRows(ctx, rows)

	actionRuns := make([]*models.WorkflowActionRun, 0)

	for rows.Next() {
		var (
			actionRun      models.WorkflowActionRun
			resultDataJSON []byte
		)

		err := rows.Scan(
			&actionRun.ID,
			&actionRun.RunID,
			&actionRun.ActionID,
			&actionRun.ActionType,
			&actionRun.Ordering,
			&actionRun.Status,
			&actionRun.Success,
			&resultDataJSON,
			&actionRun.ErrorMessage,
			&actionRun.RetryCount,
			&actionRun.StartedAt,
			&actionRun.CompletedAt,
			&actionRun.DurationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action run: %w", err)
		}

		err = unmarshalJSON(resultDataJSON, &actionRun.ResultData)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal result data: %w", err)
		}

		actionRuns = append(actionRuns, &actionRun)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating action runs: %w", err)
	}

	return actionRuns, nil
}

func (r *RunRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

func scanRun(row rowScanner) (*models.WorkflowRun, error) {
	var (
		run              models.WorkflowRun
		triggerDataJSON  []byte
		errorDetailsJSON []byte
	)

	err := row.Scan(
		&run.ID,
		&run.WorkflowID,
		&run.TriggerID,
		&triggerDataJSON,
		&run.Status,
		&run.StartedAt,
		&run.CompletedAt,
		&run.DurationMs,
		&run.Success,
		&run.ErrorMessage,
		&errorDetailsJSON,
		&run.ActorID,
		&run.CancelRequested,
	)
	if err != nil {
		return nil, err
	}

	err = unmarshalJSON(triggerDataJSON, &run.TriggerData)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
	}

	err = unmarshalJSON(errorDetailsJSON, &run.ErrorDetails)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal error details: %w", err)
	}

	return &run, nil
}

package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/persistence"
)

// WorkflowRepository handles workflow, trigger, and action database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
		id
	  , name
	  , description
	  , type
	  , status
	  , is_active
	  , owner
	  , scope
	  , execution_count
	  , last_executed_at
	  , created_at
	  , updated_at
	  , deleted_at
`

// GetAll returns all non-archived workflows.
func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	query := `
		SELECT` + workflowColumns + `
		FROM workflows
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer r.closeRows(ctx, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// GetByID returns a workflow by its ID.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `
		SELECT` + workflowColumns + `
		FROM workflows
		WHERE id = $1 AND deleted_at IS NULL
	`

	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

// Save upserts a workflow, generating an ID when missing.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	query := `
		INSERT INTO workflows (id, name, description, type, status, is_active,
			owner, scope, execution_count, last_executed_at, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			type = EXCLUDED.type,
			status = EXCLUDED.status,
			is_active = EXCLUDED.is_active,
			owner = EXCLUDED.owner,
			scope = EXCLUDED.scope,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err := r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		workflow.Type,
		workflow.Status,
		workflow.IsActive,
		workflow.Owner,
		workflow.Scope,
		workflow.ExecutionCount,
		workflow.LastExecutedAt,
		workflow.CreatedAt,
		workflow.UpdatedAt,
		workflow.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}

// Archive soft deletes a workflow. Runs keep referencing it afterwards.
func (r *WorkflowRepository) Archive(ctx context.Context, id string) error {
	now := time.Now().UTC()

	query := `
		UPDATE workflows
		SET status = $2, is_active = FALSE, deleted_at = $3, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id, models.WorkflowStatusArchived, now)
	if err != nil {
		return fmt.Errorf("failed to archive workflow: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read archive result: %w", err)
	}

	if affected == 0 {
		return persistence.ErrWorkflowNotFound
	}

	return nil
}

// RecordExecution increments the execution counter and stamps the last
// execution time.
func (r *WorkflowRepository) RecordExecution(ctx context.Context, workflowID string, at time.Time) error {
	query := `
		UPDATE workflows
		SET execution_count = execution_count + 1, last_executed_at = $2, updated_at = $2
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, workflowID, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read execution record result: %w", err)
	}

	if affected == 0 {
		return persistence.ErrWorkflowNotFound
	}

	return nil
}

// SaveTrigger upserts a workflow trigger.
func (r *WorkflowRepository) SaveTrigger(ctx context.Context, trigger *models.WorkflowTrigger) error {
	if trigger.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate trigger ID: %w", err)
		}

		trigger.ID = id.String()
	}

	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = time.Now().UTC()
	}

	conditionsJSON, err := json.Marshal(trigger.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger conditions: %w", err)
	}

	query := `
		INSERT INTO workflow_triggers (id, workflow_id, event_type, conditions, priority, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			event_type = EXCLUDED.event_type,
			conditions = EXCLUDED.conditions,
			priority = EXCLUDED.priority,
			is_active = EXCLUDED.is_active
	`

	_, err = r.db.ExecContext(ctx, query,
		trigger.ID,
		trigger.WorkflowID,
		trigger.EventType,
		conditionsJSON,
		trigger.Priority,
		trigger.IsActive,
		trigger.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save trigger: %w", err)
	}

	return nil
}

// ActiveTriggersByEvent returns active triggers for the event type whose
// workflow is executable within the scope, highest priority first.
func (r *WorkflowRepository) ActiveTriggersByEvent(ctx context.Context, eventType, scope string) ([]*models.WorkflowTrigger, error) {
	query := `
		SELECT
			t.id
		  , t.workflow_id
		  , t.event_type
		  , t.conditions
		  , t.priority
		  , t.is_active
		  , t.created_at
		FROM workflow_triggers t
		JOIN workflows w ON w.id = t.workflow_id
		WHERE t.event_type = $1
		  AND t.is_active
		  AND w.deleted_at IS NULL
		  AND ($2 = '' OR w.scope = $2)
		ORDER BY t.priority DESC, t.id
	`

	rows, err := r.db.QueryContext(ctx, query, eventType, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}

	defer r.closeRows(ctx, rows)

	triggers := make([]*models.WorkflowTrigger, 0)

	for rows.Next() {
		var (
			trigger        models.WorkflowTrigger
			conditionsJSON []byte
		)

		err := rows.Scan(
			&trigger.ID,
			&trigger.WorkflowID,
			&trigger.EventType,
			&conditionsJSON,
			&trigger.Priority,
			&trigger.IsActive,
			&trigger.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}

		err = unmarshalJSON(conditionsJSON, &trigger.Conditions)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger conditions: %w", err)
		}

		triggers = append(triggers, &trigger)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating triggers: %w", err)
	}

	return triggers, nil
}

// SaveAction upserts a workflow action.
func (r *WorkflowRepository) SaveAction(ctx context.Context, action *models.WorkflowAction) error {
	if action.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate action ID: %w", err)
		}

		action.ID = id.String()
	}

	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}

	payloadJSON, err := json.Marshal(action.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal action payload: %w", err)
	}

	dependsOnJSON, err := json.Marshal(action.DependsOn)
	if err != nil {
		return fmt.Errorf("failed to marshal action dependencies: %w", err)
	}

	query := `
		INSERT INTO workflow_actions (id, workflow_id, action_type, name, payload,
			ordering, allow_failure, is_active, depends_on, queue_hint, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			action_type = EXCLUDED.action_type,
			name = EXCLUDED.name,
			payload = EXCLUDED.payload,
			ordering = EXCLUDED.ordering,
			allow_failure = EXCLUDED.allow_failure,
			is_active = EXCLUDED.is_active,
			depends_on = EXCLUDED.depends_on,
			queue_hint = EXCLUDED.queue_hint
	`

	_, err = r.db.ExecContext(ctx, query,
		action.ID,
		action.WorkflowID,
		action.ActionType,
		action.Name,
		payloadJSON,
		action.Ordering,
		action.AllowFailure,
		action.IsActive,
		dependsOnJSON,
		action.QueueHint,
		action.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save action: %w", err)
	}

	return nil
}

// ActiveActionsByWorkflow returns active actions ordered by (ordering, id).
func (r *WorkflowRepository) ActiveActionsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowAction, error) {
	query := `
		SELECT
			id
		  , workflow_id
		  , action_type
		  , name
		  , payload
		  , ordering
		  , allow_failure
		  , is_active
		  , depends_on
		  , queue_hint
		  , created_at
		FROM workflow_actions
		WHERE workflow_id = $1 AND is_active
		ORDER BY ordering, id
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}

	defer r.closeRows(ctx, rows)

	actions := make([]*models.WorkflowAction, 0)

	for rows.Next() {
		var (
			action        models.WorkflowAction
			payloadJSON   []byte
			dependsOnJSON []byte
		)

		err := rows.Scan(
			&action.ID,
			&action.WorkflowID,
			&action.ActionType,
			&action.Name,
			&payloadJSON,
			&action.Ordering,
			&action.AllowFailure,
			&action.IsActive,
			&dependsOnJSON,
			&action.QueueHint,
			&action.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}

		err = unmarshalJSON(payloadJSON, &action.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal action payload: %w", err)
		}

		err = unmarshalJSON(dependsOnJSON, &action.DependsOn)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal action dependencies: %w", err)
		}

		actions = append(actions, &action)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}

	return actions, nil
}

func (r *WorkflowRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var workflow models.Workflow

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.Type,
		&workflow.Status,
		&workflow.IsActive,
		&workflow.Owner,
		&workflow.Scope,
		&workflow.ExecutionCount,
		&workflow.LastExecutedAt,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&workflow.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	return &workflow, nil
}

// unmarshalJSON decodes a nullable JSONB column into dst, leaving dst zero
// when the column is NULL.
func unmarshalJSON(data []byte, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	return json.Unmarshal(data, dst)
}

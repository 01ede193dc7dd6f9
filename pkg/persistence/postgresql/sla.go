package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/persistence"
)

// SLARepository handles SLA and breach database operations.
type SLARepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSLARepository creates a new SLA repository.
func NewSLARepository(db *sql.DB, logger *slog.Logger) *SLARepository {
	return &SLARepository{db: db, logger: logger}
}

// Save upserts an SLA definition. Counters are left to UpdateCounters so a
// definition edit cannot clobber a concurrent counter bump.
func (r *SLARepository) Save(ctx context.Context, sla *models.WorkflowSLA) error {
	now := time.Now().UTC()

	if sla.CreatedAt.IsZero() {
		sla.CreatedAt = now
	}

	sla.UpdatedAt = now

	if sla.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate SLA ID: %w", err)
		}

		sla.ID = id.String()
	}

	query := `
		INSERT INTO workflow_slas (id, workflow_id, name, target_duration_seconds,
			warning_threshold_seconds, critical_threshold_seconds, sla_window_hours,
			slo_target_percentage, total_executions, breached_executions,
			current_slo_percentage, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			target_duration_seconds = EXCLUDED.target_duration_seconds,
			warning_threshold_seconds = EXCLUDED.warning_threshold_seconds,
			critical_threshold_seconds = EXCLUDED.critical_threshold_seconds,
			sla_window_hours = EXCLUDED.sla_window_hours,
			slo_target_percentage = EXCLUDED.slo_target_percentage,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		sla.ID,
		sla.WorkflowID,
		sla.Name,
		sla.TargetDurationSeconds,
		sla.WarningThresholdSeconds,
		sla.CriticalThresholdSeconds,
		sla.SLAWindowHours,
		sla.SLOTargetPercentage,
		sla.TotalExecutions,
		sla.BreachedExecutions,
		sla.CurrentSLOPercentage,
		sla.IsActive,
		sla.CreatedAt,
		sla.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save SLA: %w", err)
	}

	return nil
}

// ActiveByWorkflow returns the active SLAs attached to a workflow.
func (r *SLARepository) ActiveByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowSLA, error) {
	query := `
		SELECT
			id
		  , workflow_id
		  , name
		  , target_duration_seconds
		  , warning_threshold_seconds
		  , critical_threshold_seconds
		  , sla_window_hours
		  , slo_target_percentage
		  , total_executions
		  , breached_executions
		  , current_slo_percentage
		  , is_active
		  , created_at
		  , updated_at
		FROM workflow_slas
		WHERE workflow_id = $1 AND is_active
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query SLAs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	slas := make([]*models.WorkflowSLA, 0)

	for rows.Next() {
		var sla models.WorkflowSLA

		err := rows.Scan(
			&sla.ID,
			&sla.WorkflowID,
			&sla.Name,
			&sla.TargetDurationSeconds,
			&sla.WarningThresholdSeconds,
			&sla.CriticalThresholdSeconds,
			&sla.SLAWindowHours,
			&sla.SLOTargetPercentage,
			&sla.TotalExecutions,
			&sla.BreachedExecutions,
			&sla.CurrentSLOPercentage,
			&sla.IsActive,
			&sla.CreatedAt,
			&sla.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan SLA: %w", err)
		}

		slas = append(slas, &sla)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating SLAs: %w", err)
	}

	return slas, nil
}

// UpdateCounters persists the rolling counters and derived SLO percentage.
func (r *SLARepository) UpdateCounters(ctx context.Context, sla *models.WorkflowSLA) error {
	query := `
		UPDATE workflow_slas
		SET total_executions = $2,
			breached_executions = $3,
			current_slo_percentage = $4,
			updated_at = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		sla.ID,
		sla.TotalExecutions,
		sla.BreachedExecutions,
		sla.CurrentSLOPercentage,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update SLA counters: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read SLA counter update result: %w", err)
	}

	if affected == 0 {
		return persistence.ErrSLANotFound
	}

	return nil
}

// CreateBreach inserts a new breach record.
func (r *SLARepository) CreateBreach(ctx context.Context, breach *models.SLABreach) error {
	if breach.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate breach ID: %w", err)
		}

		breach.ID = id.String()
	}

	if breach.CreatedAt.IsZero() {
		breach.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sla_breaches (id, sla_id, run_id, workflow_id, severity,
			actual_duration_seconds, target_duration_seconds, breach_margin_seconds,
			alert_sent, alert_sent_at, acknowledged, acknowledged_by, acknowledged_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		breach.ID,
		breach.SLAID,
		breach.RunID,
		breach.WorkflowID,
		breach.Severity,
		breach.ActualDurationSeconds,
		breach.TargetDurationSeconds,
		breach.BreachMarginSeconds,
		breach.AlertSent,
		breach.AlertSentAt,
		breach.Acknowledged,
		breach.AcknowledgedBy,
		breach.AcknowledgedAt,
		breach.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create breach: %w", err)
	}

	return nil
}

// MarkBreachAlertSent stamps the breach's alert delivery time.
func (r *SLARepository) MarkBreachAlertSent(ctx context.Context, breachID string, at time.Time) error {
	query := `
		UPDATE sla_breaches
		SET alert_sent = TRUE, alert_sent_at = $2
		WHERE id = $1
	`

	return r.updateBreach(ctx, query, breachID, at.UTC())
}

// AcknowledgeBreach records a human acknowledgement.
func (r *SLARepository) AcknowledgeBreach(ctx context.Context, breachID, acknowledgedBy string, at time.Time) error {
	query := `
		UPDATE sla_breaches
		SET acknowledged = TRUE, acknowledged_by = $2, acknowledged_at = $3
		WHERE id = $1
	`

	return r.updateBreach(ctx, query, breachID, acknowledgedBy, at.UTC())
}

func (r *SLARepository) updateBreach(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update breach: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read breach update result: %w", err)
	}

	if affected == 0 {
		return persistence.ErrBreachNotFound
	}

	return nil
}

// BreachesBySLA returns the breaches recorded against an SLA, newest first.
func (r *SLARepository) BreachesBySLA(ctx context.Context, slaID string) ([]*models.SLABreach, error) {
	query := `
		SELECT
			id
		  , sla_id
		  , run_id
		  , workflow_id
		  , severity
		  , actual_duration_seconds
		  , target_duration_seconds
		  , breach_margin_seconds
		  , alert_sent
		  , alert_sent_at
		  , acknowledged
		  , acknowledged_by
		  , acknowledged_at
		  , created_at
		FROM sla_breaches
		WHERE sla_id = $1
		ORDER BY created_at DESC, id
	`

	rows, err := r.db.QueryContext(ctx, query, slaID)
	if err != nil {
		return nil, fmt.Errorf("failed to query breaches: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	breaches := make([]*models.SLABreach, 0)

	for rows.Next() {
		var breach models.SLABreach

		err := rows.Scan(
			&breach.ID,
			&breach.SLAID,
			&breach.RunID,
			&breach.WorkflowID,
			&breach.Severity,
			&breach.ActualDurationSeconds,
			&breach.TargetDurationSeconds,
			&breach.BreachMarginSeconds,
			&breach.AlertSent,
			&breach.AlertSentAt,
			&breach.Acknowledged,
			&breach.AcknowledgedBy,
			&breach.AcknowledgedAt,
			&breach.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan breach: %w", err)
		}

		breaches = append(breaches, &breach)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating breaches: %w", err)
	}

	return breaches, nil
}

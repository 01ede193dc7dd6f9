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

// ApprovalRepository handles approval database operations.
type ApprovalRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewApprovalRepository creates a new approval repository.
func NewApprovalRepository(db *sql.DB, logger *slog.Logger) *ApprovalRepository {
	return &ApprovalRepository{db: db, logger: logger}
}

const approvalColumns = `
		id
	  , run_id
	  , action_run_id
	  , status
	  , approver_role
	  , escalate_role
	  , expires_at
	  , resolved_at
	  , actor_id
	  , comments
	  , metadata
	  , created_at
`

// Create inserts a new approval record.
func (r *ApprovalRepository) Create(ctx context.Context, approval *models.WorkflowApproval) error {
	if approval.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate approval ID: %w", err)
		}

		approval.ID = id.String()
	}

	if approval.CreatedAt.IsZero() {
		approval.CreatedAt = time.Now().UTC()
	}

	metadataJSON, err := json.Marshal(approval.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal approval metadata: %w", err)
	}

	query := `
		INSERT INTO workflow_approvals (id, run_id, action_run_id, status, approver_role,
			escalate_role, expires_at, resolved_at, actor_id, comments, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.ExecContext(ctx, query,
		approval.ID,
		approval.RunID,
		approval.ActionRunID,
		approval.Status,
		approval.ApproverRole,
		approval.EscalateRole,
		approval.ExpiresAt,
		approval.ResolvedAt,
		approval.ActorID,
		approval.Comments,
		metadataJSON,
		approval.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create approval: %w", err)
	}

	return nil
}

// Update persists approval state. Approvals that already left their resolvable
// states reject further updates.
func (r *ApprovalRepository) Update(ctx context.Context, approval *models.WorkflowApproval) error {
	metadataJSON, err := json.Marshal(approval.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal approval metadata: %w", err)
	}

	query := `
		UPDATE workflow_approvals
		SET status = $2,
			resolved_at = $3,
			actor_id = $4,
			comments = $5,
			metadata = $6
		WHERE id = $1 AND status IN ('pending', 'escalated')
	`

	result, err := r.db.ExecContext(ctx, query,
		approval.ID,
		approval.Status,
		approval.ResolvedAt,
		approval.ActorID,
		approval.Comments,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update approval: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read approval update result: %w", err)
	}

	if affected == 0 {
		existing, err := r.GetByID(ctx, approval.ID)
		if err != nil {
			return err
		}

		if !existing.Resolvable() {
			return persistence.ErrApprovalResolved
		}

		return persistence.ErrApprovalNotFound
	}

	return nil
}

// GetByID returns an approval by its ID.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.WorkflowApproval, error) {
	query := `
		SELECT` + approvalColumns + `
		FROM workflow_approvals
		WHERE id = $1
	`

	approval, err := scanApproval(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrApprovalNotFound
		}

		return nil, fmt.Errorf("failed to scan approval: %w", err)
	}

	return approval, nil
}

// PendingExpiredBy returns pending approvals whose expiry is at or before the
// given instant, oldest expiry first.
func (r *ApprovalRepository) PendingExpiredBy(ctx context.Context, asOf time.Time) ([]*models.WorkflowApproval, error) {
	query := `
		SELECT` + approvalColumns + `
		FROM workflow_approvals
		WHERE status = 'pending' AND expires_at <= $1
		ORDER BY expires_at, id
	`

	return r.queryApprovals(ctx, query, asOf)
}

// CreatedSince returns approvals created at or after the given instant.
func (r *ApprovalRepository) CreatedSince(ctx context.Context, since time.Time) ([]*models.WorkflowApproval, error) {
	query := `
		SELECT` + approvalColumns + `
		FROM workflow_approvals
		WHERE created_at >= $1
		ORDER BY created_at, id
	`

	return r.queryApprovals(ctx, query, since)
}

func (r *ApprovalRepository) queryApprovals(ctx context.Context, query string, args ...any) ([]*models.WorkflowApproval, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	approvals := make([]*models.WorkflowApproval, 0)

	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}

		approvals = append(approvals, approval)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating approvals: %w", err)
	}

	return approvals, nil
}

func scanApproval(row rowScanner) (*models.WorkflowApproval, error) {
	var (
		approval     models.WorkflowApproval
		metadataJSON []byte
	)

	err := row.Scan(
		&approval.ID,
		&approval.RunID,
		&approval.ActionRunID,
		&approval.Status,
		&approval.ApproverRole,
		&approval.EscalateRole,
		&approval.ExpiresAt,
		&approval.ResolvedAt,
		&approval.ActorID,
		&approval.Comments,
		&metadataJSON,
		&approval.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = unmarshalJSON(metadataJSON, &approval.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal approval metadata: %w", err)
	}

	return &approval, nil
}

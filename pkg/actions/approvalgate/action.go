// Package approvalgate provides the request_approval action handler. It is a
// custom handler type registered at process start; the gate records a pending
// approval row that a human resolves through the API, with the escalation
// sweep as a backstop.
package approvalgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tidewater/conveyor/pkg/eventbus"
	"github.com/tidewater/conveyor/pkg/events"
	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/persistence"
)

// ActionTypeRequestApproval is the custom handler type this package registers.
const ActionTypeRequestApproval models.ActionType = "request_approval"

const defaultExpiryHours = 24

var ErrApproverRoleRequired = errors.New("request_approval requires an approver_role")

type Action struct {
	ApproverRole string
	EscalateRole string
	ExpiresIn    time.Duration

	persistence persistence.Persistence
	bus         eventbus.EventPublisher
}

func NewAction(payload map[string]any, p persistence.Persistence, bus eventbus.EventPublisher) (*Action, error) {
	approverRole, _ := payload["approver_role"].(string)
	if approverRole == "" {
		return nil, ErrApproverRoleRequired
	}

	escalateRole, _ := payload["escalate_role"].(string)

	expiresInHours := defaultExpiryHours
	if hours, ok := payload["expires_in_hours"].(float64); ok && hours > 0 {
		expiresInHours = int(hours)
	}

	return &Action{
		ApproverRole: approverRole,
		EscalateRole: escalateRole,
		ExpiresIn:    time.Duration(expiresInHours) * time.Hour,
		persistence:  p,
		bus:          bus,
	}, nil
}

// Execute records a pending approval for the current action run. The run
// itself proceeds; downstream actions that must wait on the decision belong
// in a separate workflow triggered by the approval's resolution event.
func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "request_approval_action", "approver_role", a.ApproverRole)

	now := time.Now().UTC()

	approval := &models.WorkflowApproval{
		ID:           uuid.New().String(),
		RunID:        executionCtx.RunID,
		ActionRunID:  actionRunID(executionCtx),
		Status:       models.ApprovalStatusPending,
		ApproverRole: a.ApproverRole,
		EscalateRole: a.EscalateRole,
		ExpiresAt:    now.Add(a.ExpiresIn),
		CreatedAt:    now,
	}

	err := a.persistence.CreateApproval(ctx, approval)
	if err != nil {
		return nil, fmt.Errorf("failed to create approval: %w", err)
	}

	logger.InfoContext(ctx, "Approval requested",
		"approval_id", approval.ID,
		"expires_at", approval.ExpiresAt,
	)

	a.publishRequested(ctx, logger, executionCtx.WorkflowID, approval)

	return map[string]any{
		"approval_id": approval.ID,
		"status":      string(approval.Status),
		"expires_at":  approval.ExpiresAt.Format(time.RFC3339),
	}, nil
}

func (a *Action) publishRequested(ctx context.Context, logger *slog.Logger, workflowID string, approval *models.WorkflowApproval) {
	if a.bus == nil {
		return
	}

	event := events.ApprovalRequested{
		BaseEvent:    events.NewBaseEvent(events.ApprovalRequestedEvent, workflowID),
		ApprovalID:   approval.ID,
		RunID:        approval.RunID,
		ApproverRole: approval.ApproverRole,
		ExpiresAt:    approval.ExpiresAt,
	}

	err := a.bus.Publish(ctx, approval.RunID, event)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to publish approval request event", "error", err)
	}
}

// actionRunID digs the current action run out of the execution metadata. The
// engine stamps it before the handler runs; an empty value is tolerated so
// the gate still works for directly constructed contexts.
func actionRunID(executionCtx models.ExecutionContext) string {
	if executionCtx.Metadata == nil {
		return ""
	}

	id, _ := executionCtx.Metadata["action_run_id"].(string)

	return id
}

// Package escalation sweeps expired pending approvals and escalates them to
// the configured fallback role.
package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tidewater/conveyor/pkg/eventbus"
	"github.com/tidewater/conveyor/pkg/events"
	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/persistence"
)

// SweepResult summarizes one escalation sweep.
type SweepResult struct {
	EscalatedCount int           `json:"escalated_count"`
	FailedCount    int           `json:"failed_count"`
	Details        []SweepDetail `json:"details"`
}

// SweepDetail records the outcome for one approval in a sweep.
type SweepDetail struct {
	ApprovalID    string `json:"approval_id"`
	RunID         string `json:"run_id"`
	EscalatedRole string `json:"escalated_to_role,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Scheduler runs the escalation sweep, either once on demand or periodically
// on a cron schedule.
type Scheduler struct {
	persistence persistence.Persistence
	bus         eventbus.EventPublisher
	logger      *slog.Logger
	cronExpr    string
	cron        *cron.Cron
}

// NewScheduler creates an escalation scheduler. The bus may be nil. cronExpr
// uses the standard five-field syntax.
func NewScheduler(logger *slog.Logger, p persistence.Persistence, bus eventbus.EventPublisher, cronExpr string) (*Scheduler, error) {
	if cronExpr == "" {
		cronExpr = "*/5 * * * *"
	}

	_, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid escalation cron expression: %w", err)
	}

	return &Scheduler{
		persistence: p,
		bus:         bus,
		logger:      logger.With("module", "escalation_scheduler"),
		cronExpr:    cronExpr,
	}, nil
}

// Start schedules periodic sweeps. Overlapping runs are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting escalation scheduler", "cron", s.cronExpr)

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc(s.cronExpr, func() {
		result, err := s.Sweep(ctx, time.Now().UTC())
		if err != nil {
			s.logger.ErrorContext(ctx, "Escalation sweep failed", "error", err)

			return
		}

		if result.EscalatedCount > 0 || result.FailedCount > 0 {
			s.logger.InfoContext(ctx, "Escalation sweep finished",
				"escalated", result.EscalatedCount,
				"failed", result.FailedCount,
			)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule escalation sweep: %w", err)
	}

	s.cron.Start()

	return nil
}

// Stop halts the periodic sweeps.
func (s *Scheduler) Stop(ctx context.Context) {
	s.logger.InfoContext(ctx, "Stopping escalation scheduler")

	if s.cron != nil {
		s.cron.Stop()
	}
}

// Sweep escalates every pending approval whose expiry is at or before asOf.
// Each row is handled independently; one failure never stops the sweep.
func (s *Scheduler) Sweep(ctx context.Context, asOf time.Time) (*SweepResult, error) {
	expired, err := s.persistence.PendingApprovalsExpiredBy(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to load expired approvals: %w", err)
	}

	result := &SweepResult{Details: make([]SweepDetail, 0, len(expired))}

	for _, approval := range expired {
		detail := SweepDetail{ApprovalID: approval.ID, RunID: approval.RunID}

		err := s.escalate(ctx, approval, asOf)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to escalate approval",
				"approval_id", approval.ID, "error", err)

			detail.Error = err.Error()
			result.FailedCount++
		} else {
			detail.EscalatedRole = approval.EscalateRole
			result.EscalatedCount++
		}

		result.Details = append(result.Details, detail)
	}

	return result, nil
}

func (s *Scheduler) escalate(ctx context.Context, approval *models.WorkflowApproval, asOf time.Time) error {
	approval.Status = models.ApprovalStatusEscalated

	if approval.Metadata == nil {
		approval.Metadata = make(map[string]any)
	}

	approval.Metadata[models.ApprovalMetaEscalatedAt] = asOf.Format(time.RFC3339)
	approval.Metadata[models.ApprovalMetaEscalatedRole] = approval.EscalateRole

	err := s.persistence.UpdateApproval(ctx, approval)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Approval escalated",
		"approval_id", approval.ID,
		"run_id", approval.RunID,
		"escalated_to_role", approval.EscalateRole,
	)

	s.publishEscalated(ctx, approval)

	return nil
}

func (s *Scheduler) publishEscalated(ctx context.Context, approval *models.WorkflowApproval) {
	if s.bus == nil {
		return
	}

	event := events.ApprovalEscalated{
		BaseEvent:     events.NewBaseEvent(events.ApprovalEscalatedEvent, ""),
		ApprovalID:    approval.ID,
		RunID:         approval.RunID,
		EscalatedRole: approval.EscalateRole,
		ExpiredAt:     approval.ExpiresAt,
	}

	err := s.bus.Publish(ctx, approval.RunID, event)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish escalation event",
			"approval_id", approval.ID, "error", err)
	}
}

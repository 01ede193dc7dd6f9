// Package sla evaluates finished runs against their workflow's service level
// agreements and raises breach alerts.
package sla

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/persistence"
)

// Alerter delivers one breach alert to the resolved recipients.
type Alerter interface {
	SendBreachAlert(ctx context.Context, breach *models.SLABreach, sla *models.WorkflowSLA, recipients []string) error
}

// AdminDirectory resolves the admin users of a company scope.
type AdminDirectory interface {
	ScopeAdmins(ctx context.Context, scope string) ([]string, error)
}

// Monitor checks completed runs against active SLAs, records breaches, keeps
// the rolling SLO counters current, and dispatches alerts.
type Monitor struct {
	persistence      persistence.Persistence
	alerter          Alerter
	admins           AdminDirectory
	staticRecipients []string
	logger           *slog.Logger
}

// NewMonitor creates an SLA monitor. The alerter and admin directory may be
// nil; alerting degrades to breach recording only.
func NewMonitor(logger *slog.Logger, p persistence.Persistence, alerter Alerter, admins AdminDirectory, staticRecipients []string) *Monitor {
	return &Monitor{
		persistence:      p,
		alerter:          alerter,
		admins:           admins,
		staticRecipients: staticRecipients,
		logger:           logger.With("module", "sla_monitor"),
	}
}

// CheckExecution evaluates one finished run against every active SLA of its
// workflow. Runs that did not complete are ignored; a failed or cancelled run
// says nothing about the workflow's latency. Returns the breaches recorded.
func (m *Monitor) CheckExecution(ctx context.Context, run *models.WorkflowRun) ([]*models.SLABreach, error) {
	if run.Status != models.RunStatusCompleted || run.CompletedAt == nil {
		return nil, nil
	}

	slas, err := m.persistence.ActiveSLAsByWorkflow(ctx, run.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load SLAs for workflow %s: %w", run.WorkflowID, err)
	}

	if len(slas) == 0 {
		return nil, nil
	}

	actualSeconds := float64(run.DurationMs) / 1000

	breaches := make([]*models.SLABreach, 0)

	for _, sla := range slas {
		breach := m.evaluate(sla, run, actualSeconds)

		sla.TotalExecutions++

		if breach != nil {
			sla.BreachedExecutions++

			err = m.persistence.CreateBreach(ctx, breach)
			if err != nil {
				return breaches, fmt.Errorf("failed to record breach for SLA %s: %w", sla.ID, err)
			}

			m.logger.WarnContext(ctx, "SLA breached",
				"sla_id", sla.ID,
				"run_id", run.ID,
				"severity", breach.Severity,
				"actual_seconds", breach.ActualDurationSeconds,
				"margin_seconds", breach.BreachMarginSeconds,
			)

			m.alert(ctx, breach, sla)

			breaches = append(breaches, breach)
		}

		sla.RecomputeSLO()

		err = m.persistence.UpdateSLACounters(ctx, sla)
		if err != nil {
			return breaches, fmt.Errorf("failed to update SLA counters for %s: %w", sla.ID, err)
		}
	}

	return breaches, nil
}

// evaluate returns a breach record when the run's duration exceeds the SLA's
// warning threshold, nil otherwise. Severity is critical past the critical
// threshold and warning below it. Margin is measured against the target
// duration, not the threshold that tripped.
func (m *Monitor) evaluate(sla *models.WorkflowSLA, run *models.WorkflowRun, actualSeconds float64) *models.SLABreach {
	if actualSeconds <= sla.WarningThresholdSeconds {
		return nil
	}

	severity := models.BreachSeverityWarning
	if actualSeconds > sla.CriticalThresholdSeconds {
		severity = models.BreachSeverityCritical
	}

	return &models.SLABreach{
		ID:                    uuid.New().String(),
		SLAID:                 sla.ID,
		RunID:                 run.ID,
		WorkflowID:            run.WorkflowID,
		Severity:              severity,
		ActualDurationSeconds: actualSeconds,
		TargetDurationSeconds: sla.TargetDurationSeconds,
		BreachMarginSeconds:   actualSeconds - sla.TargetDurationSeconds,
		CreatedAt:             time.Now().UTC(),
	}
}

// alert resolves recipients and dispatches the breach. Alert failures are
// logged, never fatal; the breach record is already durable.
func (m *Monitor) alert(ctx context.Context, breach *models.SLABreach, sla *models.WorkflowSLA) {
	if m.alerter == nil {
		return
	}

	recipients := m.resolveRecipients(ctx, breach.WorkflowID)

	err := m.alerter.SendBreachAlert(ctx, breach, sla, recipients)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to send breach alert",
			"breach_id", breach.ID, "error", err)

		return
	}

	now := time.Now().UTC()

	err = m.persistence.MarkBreachAlertSent(ctx, breach.ID, now)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to mark breach alert sent",
			"breach_id", breach.ID, "error", err)

		return
	}

	breach.AlertSent = true
	breach.AlertSentAt = &now
}

// resolveRecipients combines the workflow owner, the scope's admins, and the
// statically configured recipients, deduplicated in that order.
func (m *Monitor) resolveRecipients(ctx context.Context, workflowID string) []string {
	recipients := make([]string, 0, len(m.staticRecipients)+2)
	seen := make(map[string]bool)

	add := func(id string) {
		if id == "" || seen[id] {
			return
		}

		seen[id] = true
		recipients = append(recipients, id)
	}

	workflow, err := m.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to load workflow for alert recipients",
			"workflow_id", workflowID, "error", err)
	} else {
		add(workflow.Owner)

		if m.admins != nil && workflow.Scope != "" {
			adminIDs, err := m.admins.ScopeAdmins(ctx, workflow.Scope)
			if err != nil {
				m.logger.ErrorContext(ctx, "Failed to resolve scope admins",
					"scope", workflow.Scope, "error", err)
			} else {
				for _, id := range adminIDs {
					add(id)
				}
			}
		}
	}

	for _, id := range m.staticRecipients {
		add(id)
	}

	return recipients
}

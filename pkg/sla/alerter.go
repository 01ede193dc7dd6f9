package sla

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tidewater/conveyor/pkg/eventbus"
	"github.com/tidewater/conveyor/pkg/events"
	"github.com/tidewater/conveyor/pkg/gateway"
	"github.com/tidewater/conveyor/pkg/models"
)

// Notifier sends in-app notifications. Satisfied by gateway.Client.
type Notifier interface {
	SendNotification(ctx context.Context, notification gateway.Notification) error
}

// NotificationAlerter delivers breach alerts as in-app notifications and, when
// a bus is configured, also publishes an sla.breached event for downstream
// consumers.
type NotificationAlerter struct {
	notifier Notifier
	bus      eventbus.EventPublisher
	logger   *slog.Logger
}

var _ Alerter = (*NotificationAlerter)(nil)

// NewNotificationAlerter creates an alerter. The bus may be nil.
func NewNotificationAlerter(logger *slog.Logger, notifier Notifier, bus eventbus.EventPublisher) *NotificationAlerter {
	return &NotificationAlerter{
		notifier: notifier,
		bus:      bus,
		logger:   logger.With("module", "sla_alerter"),
	}
}

// SendBreachAlert notifies the recipients about one breach.
func (a *NotificationAlerter) SendBreachAlert(ctx context.Context, breach *models.SLABreach, sla *models.WorkflowSLA, recipients []string) error {
	a.publishEvent(ctx, breach, recipients)

	if len(recipients) == 0 {
		a.logger.WarnContext(ctx, "No recipients resolved for breach alert",
			"breach_id", breach.ID)

		return nil
	}

	notification := gateway.Notification{
		Recipients: recipients,
		Title:      fmt.Sprintf("SLA breach (%s): %s", breach.Severity, slaName(sla)),
		Message: fmt.Sprintf(
			"Run %s took %.1fs against a target of %.1fs (%.1fs over).",
			breach.RunID,
			breach.ActualDurationSeconds,
			breach.TargetDurationSeconds,
			breach.BreachMarginSeconds,
		),
		Level: notificationLevel(breach.Severity),
	}

	err := a.notifier.SendNotification(ctx, notification)
	if err != nil {
		return fmt.Errorf("failed to deliver breach notification: %w", err)
	}

	return nil
}

func (a *NotificationAlerter) publishEvent(ctx context.Context, breach *models.SLABreach, recipients []string) {
	if a.bus == nil {
		return
	}

	event := events.SLABreached{
		BaseEvent:             events.NewBaseEvent(events.SLABreachedEvent, breach.WorkflowID),
		BreachID:              breach.ID,
		SLAID:                 breach.SLAID,
		RunID:                 breach.RunID,
		Severity:              string(breach.Severity),
		ActualDurationSeconds: breach.ActualDurationSeconds,
		TargetDurationSeconds: breach.TargetDurationSeconds,
		BreachMarginSeconds:   breach.BreachMarginSeconds,
		Recipients:            recipients,
	}

	err := a.bus.Publish(ctx, breach.WorkflowID, event)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to publish breach event",
			"breach_id", breach.ID, "error", err)
	}
}

func slaName(sla *models.WorkflowSLA) string {
	if sla.Name != "" {
		return sla.Name
	}

	return sla.ID
}

func notificationLevel(severity models.BreachSeverity) string {
	if severity == models.BreachSeverityCritical {
		return "critical"
	}

	return "warning"
}

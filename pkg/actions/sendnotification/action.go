// Package sendnotification provides the send_notification action handler.
package sendnotification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tidewater/conveyor/pkg/gateway"
	"github.com/tidewater/conveyor/pkg/models"
)

var ErrRecipientsRequired = errors.New("send_notification requires at least one recipient")

// Notifier delivers in-app notifications. Satisfied by gateway.Client.
type Notifier interface {
	SendNotification(ctx context.Context, notification gateway.Notification) error
}

type Action struct {
	Recipients []string
	Title      string
	Message    string
	Level      string

	notifier Notifier
}

func NewAction(payload map[string]any, notifier Notifier) (*Action, error) {
	recipients := parseRecipients(payload["recipients"])
	if len(recipients) == 0 {
		return nil, ErrRecipientsRequired
	}

	title, _ := payload["title"].(string)
	message, _ := payload["message"].(string)

	level, _ := payload["level"].(string)
	if level == "" {
		level = "info"
	}

	return &Action{
		Recipients: recipients,
		Title:      title,
		Message:    message,
		Level:      level,
		notifier:   notifier,
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger.InfoContext(ctx, "Sending notification",
		"module", "send_notification_action",
		"recipients", len(a.Recipients),
		"level", a.Level)

	err := a.notifier.SendNotification(ctx, gateway.Notification{
		Recipients: a.Recipients,
		Title:      a.Title,
		Message:    a.Message,
		Level:      a.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send notification: %w", err)
	}

	return map[string]any{
		"recipients": a.Recipients,
		"level":      a.Level,
	}, nil
}

func parseRecipients(value any) []string {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}

		return []string{v}
	case []string:
		return v
	case []any:
		recipients := make([]string, 0, len(v))

		for _, entry := range v {
			if recipient, ok := entry.(string); ok && recipient != "" {
				recipients = append(recipients, recipient)
			}
		}

		return recipients
	default:
		return nil
	}
}

// Package sendemail provides the send_email action handler.
package sendemail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tidewater/conveyor/pkg/gateway"
	"github.com/tidewater/conveyor/pkg/models"
)

var ErrRecipientRequired = errors.New("send_email requires at least one recipient")

// Mailer delivers outbound email. Satisfied by gateway.Client.
type Mailer interface {
	SendEmail(ctx context.Context, message gateway.EmailMessage) error
}

type Action struct {
	To      []string
	Subject string
	Body    string

	mailer Mailer
}

func NewAction(payload map[string]any, mailer Mailer) (*Action, error) {
	recipients := parseRecipients(payload["to"])
	if len(recipients) == 0 {
		return nil, ErrRecipientRequired
	}

	subject, _ := payload["subject"].(string)
	body, _ := payload["body"].(string)

	return &Action{
		To:      recipients,
		Subject: subject,
		Body:    body,
		mailer:  mailer,
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "send_email_action", "recipients", len(a.To))
	logger.InfoContext(ctx, "Sending email")

	err := a.mailer.SendEmail(ctx, gateway.EmailMessage{
		To:      a.To,
		Subject: a.Subject,
		Body:    a.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	return map[string]any{
		"recipients": a.To,
		"subject":    a.Subject,
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
			if address, ok := entry.(string); ok && address != "" {
				recipients = append(recipients, address)
			}
		}

		return recipients
	default:
		return nil
	}
}

package sendemail

import (
	"context"

	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/protocol"
)

type Factory struct {
	mailer Mailer
}

func NewFactory(mailer Mailer) *Factory {
	return &Factory{mailer: mailer}
}

func (f *Factory) Create(_ context.Context, payload map[string]any) (protocol.Handler, error) {
	return NewAction(payload, f.mailer)
}

func (f *Factory) ID() string {
	return string(models.ActionTypeSendEmail)
}

func (f *Factory) Name() string {
	return "Send Email"
}

func (f *Factory) Description() string {
	return "Sends an email through the CRM's outbound email service."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"description": "Recipient address or list of addresses",
				"anyOf": []map[string]any{
					{"type": "string"},
					{"type": "array", "items": map[string]any{"type": "string"}},
				},
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Email subject line",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Plain-text email body",
			},
		},
		"required": []string{"to", "subject"},
	}
}

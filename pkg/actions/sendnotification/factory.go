package sendnotification

import (
	"context"

	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/protocol"
)

type Factory struct {
	notifier Notifier
}

func NewFactory(notifier Notifier) *Factory {
	return &Factory{notifier: notifier}
}

func (f *Factory) Create(_ context.Context, payload map[string]any) (protocol.Handler, error) {
	return NewAction(payload, f.notifier)
}

func (f *Factory) ID() string {
	return string(models.ActionTypeSendNotification)
}

func (f *Factory) Name() string {
	return "Send Notification"
}

func (f *Factory) Description() string {
	return "Delivers an in-app notification to one or more users."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"recipients": map[string]any{
				"description": "Recipient or list of recipients",
				"anyOf": []map[string]any{
					{"type": "string"},
					{"type": "array", "items": map[string]any{"type": "string"}},
				},
			},
			"title": map[string]any{
				"type":        "string",
				"description": "Notification title",
			},
			"message": map[string]any{
				"type":        "string",
				"description": "Notification body",
			},
			"level": map[string]any{
				"type":    "string",
				"default": "info",
				"enum":    []string{"info", "warning", "critical"},
			},
		},
		"required": []string{"recipients", "title"},
	}
}

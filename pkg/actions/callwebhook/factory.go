package callwebhook

import (
	"context"

	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/protocol"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Create(_ context.Context, payload map[string]any) (protocol.Handler, error) {
	return NewAction(payload)
}

func (f *Factory) ID() string {
	return string(models.ActionTypeCallWebhook)
}

func (f *Factory) Name() string {
	return "Call Webhook"
}

func (f *Factory) Description() string {
	return "Performs an HTTP request to an external endpoint with optional headers, body, and retries."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Endpoint to call",
			},
			"method": map[string]any{
				"type":    "string",
				"default": "POST",
				"enum":    []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"description":          "HTTP headers to include in the request",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body content",
			},
			"timeout_seconds": map[string]any{
				"type":    "integer",
				"minimum": 1,
				"maximum": 300,
			},
			"retry": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
					"delay":    map[string]any{"type": "integer", "minimum": 0, "maximum": 60},
				},
			},
		},
		"required": []string{"url"},
	}
}

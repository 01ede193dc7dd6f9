package enqueueexport

import (
	"context"

	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/protocol"
)

type Factory struct {
	exporter Exporter
}

func NewFactory(exporter Exporter) *Factory {
	return &Factory{exporter: exporter}
}

func (f *Factory) Create(_ context.Context, payload map[string]any) (protocol.Handler, error) {
	return NewAction(payload, f.exporter)
}

func (f *Factory) ID() string {
	return string(models.ActionTypeEnqueueExport)
}

func (f *Factory) Name() string {
	return "Enqueue Export"
}

func (f *Factory) Description() string {
	return "Queues a data export job in the CRM core."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"export_type": map[string]any{
				"type":        "string",
				"description": "What to export, e.g. leads, deals, activity",
			},
			"format": map[string]any{
				"type":        "string",
				"description": "Output format",
				"default":     "csv",
				"enum":        []string{"csv", "xlsx", "json"},
			},
			"filters": map[string]any{
				"type":        "object",
				"description": "Export filter criteria",
			},
		},
		"required": []string{"export_type"},
	}
}

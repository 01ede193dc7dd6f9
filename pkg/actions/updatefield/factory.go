package updatefield

import (
	"context"

	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/protocol"
)

type Factory struct {
	updater FieldUpdater
}

func NewFactory(updater FieldUpdater) *Factory {
	return &Factory{updater: updater}
}

func (f *Factory) Create(_ context.Context, payload map[string]any) (protocol.Handler, error) {
	return NewAction(payload, f.updater)
}

func (f *Factory) ID() string {
	return string(models.ActionTypeUpdateField)
}

func (f *Factory) Name() string {
	return "Update Field"
}

func (f *Factory) Description() string {
	return "Mutates a single field on a CRM record."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"entity_type": map[string]any{
				"type":        "string",
				"description": "CRM entity type, e.g. lead, deal, contact",
			},
			"record_id": map[string]any{
				"type":        "string",
				"description": "Target record; defaults to the triggering record",
			},
			"field": map[string]any{
				"type":        "string",
				"description": "Field to mutate",
			},
			"value": map[string]any{
				"description": "New value; any JSON type",
			},
		},
		"required": []string{"field"},
	}
}

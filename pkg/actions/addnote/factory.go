package addnote

import (
	"context"

	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/protocol"
)

type Factory struct {
	notes NoteCreator
}

func NewFactory(notes NoteCreator) *Factory {
	return &Factory{notes: notes}
}

func (f *Factory) Create(_ context.Context, payload map[string]any) (protocol.Handler, error) {
	return NewAction(payload, f.notes)
}

func (f *Factory) ID() string {
	return string(models.ActionTypeAddNote)
}

func (f *Factory) Name() string {
	return "Add Note"
}

func (f *Factory) Description() string {
	return "Attaches a note to the CRM record that triggered the workflow."
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
			"content": map[string]any{
				"type":        "string",
				"description": "Note body",
			},
		},
		"required": []string{"content"},
	}
}

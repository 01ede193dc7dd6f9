// Package addnote provides the add_note action handler.
package addnote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tidewater/conveyor/pkg/gateway"
	"github.com/tidewater/conveyor/pkg/models"
)

var (
	ErrContentRequired  = errors.New("add_note requires content")
	ErrRecordUnresolved = errors.New("add_note could not resolve a target record id")
)

// NoteCreator attaches notes to CRM records. Satisfied by gateway.Client.
type NoteCreator interface {
	AddNote(ctx context.Context, note gateway.Note) error
}

type Action struct {
	EntityType string
	RecordID   string // Optional; falls back to the triggering record
	Content    string

	notes NoteCreator
}

func NewAction(payload map[string]any, notes NoteCreator) (*Action, error) {
	content, _ := payload["content"].(string)
	if content == "" {
		return nil, ErrContentRequired
	}

	entityType, _ := payload["entity_type"].(string)
	recordID, _ := payload["record_id"].(string)

	return &Action{
		EntityType: entityType,
		RecordID:   recordID,
		Content:    content,
		notes:      notes,
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	recordID := a.RecordID
	if recordID == "" {
		recordID = triggeringRecordID(executionCtx)
	}

	if recordID == "" {
		return nil, ErrRecordUnresolved
	}

	logger.InfoContext(ctx, "Adding note to record",
		"module", "add_note_action",
		"entity_type", a.EntityType,
		"record_id", recordID)

	err := a.notes.AddNote(ctx, gateway.Note{
		EntityType: a.EntityType,
		RecordID:   recordID,
		Content:    a.Content,
		AuthorID:   executionCtx.ActorID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add note: %w", err)
	}

	return map[string]any{
		"entity_type": a.EntityType,
		"record_id":   recordID,
	}, nil
}

// triggeringRecordID pulls the record identifier out of the event snapshot.
func triggeringRecordID(executionCtx models.ExecutionContext) string {
	id, _ := executionCtx.TriggerData["id"].(string)

	return id
}

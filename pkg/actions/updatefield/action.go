// Package updatefield provides the update_field action handler.
package updatefield

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tidewater/conveyor/pkg/gateway"
	"github.com/tidewater/conveyor/pkg/models"
)

var (
	ErrFieldRequired    = errors.New("update_field requires a field name")
	ErrRecordUnresolved = errors.New("update_field could not resolve a target record id")
)

// FieldUpdater mutates a single field on a CRM record. Satisfied by
// gateway.Client.
type FieldUpdater interface {
	UpdateField(ctx context.Context, change gateway.FieldChange) error
}

type Action struct {
	EntityType string
	RecordID   string
	Field      string
	Value      any

	updater FieldUpdater
}

func NewAction(payload map[string]any, updater FieldUpdater) (*Action, error) {
	field, _ := payload["field"].(string)
	if field == "" {
		return nil, ErrFieldRequired
	}

	entityType, _ := payload["entity_type"].(string)
	recordID, _ := payload["record_id"].(string)

	return &Action{
		EntityType: entityType,
		RecordID:   recordID,
		Field:      field,
		Value:      payload["value"],
		updater:    updater,
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	recordID := a.RecordID
	if recordID == "" {
		recordID, _ = executionCtx.TriggerData["id"].(string)
	}

	if recordID == "" {
		return nil, ErrRecordUnresolved
	}

	logger.InfoContext(ctx, "Updating record field",
		"module", "update_field_action",
		"entity_type", a.EntityType,
		"record_id", recordID,
		"field", a.Field)

	err := a.updater.UpdateField(ctx, gateway.FieldChange{
		EntityType: a.EntityType,
		RecordID:   recordID,
		Field:      a.Field,
		Value:      a.Value,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update field %q: %w", a.Field, err)
	}

	return map[string]any{
		"entity_type": a.EntityType,
		"record_id":   recordID,
		"field":       a.Field,
		"value":       a.Value,
	}, nil
}

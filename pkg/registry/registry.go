// Package registry holds the closed set of action handler factories and
// validates action payloads against their declared schemas.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

type Registry struct {
	logger    *slog.Logger
	factories map[models.ActionType]protocol.HandlerFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "registry"),
		factories: make(map[models.ActionType]protocol.HandlerFactory),
	}
}

// RegisterHandler adds a handler factory under its declared action type.
// Registering the same type twice replaces the earlier factory; custom
// handler types extend the built-in set through the same path.
func (r *Registry) RegisterHandler(factory protocol.HandlerFactory) {
	actionType := models.ActionType(factory.ID())

	if _, exists := r.factories[actionType]; exists {
		r.logger.Warn("Replacing registered action handler", "action_type", actionType)
	}

	r.factories[actionType] = factory
}

// CreateHandler builds a handler for the action type after validating the
// payload against the factory's schema.
func (r *Registry) CreateHandler(ctx context.Context, actionType models.ActionType, payload map[string]any) (protocol.Handler, error) {
	factory, ok := r.factories[actionType]
	if !ok {
		return nil, fmt.Errorf("action type '%s' not registered", actionType)
	}

	err := r.validatePayload(factory, payload)
	if err != nil {
		return nil, err
	}

	return factory.Create(ctx, payload)
}

// IsRegistered reports whether the action type has a handler factory.
func (r *Registry) IsRegistered(actionType models.ActionType) bool {
	_, ok := r.factories[actionType]

	return ok
}

// ActionTypes lists the registered handler types.
func (r *Registry) ActionTypes() []models.ActionType {
	types := make([]models.ActionType, 0, len(r.factories))
	for actionType := range r.factories {
		types = append(types, actionType)
	}

	return types
}

func (r *Registry) validatePayload(factory protocol.HandlerFactory, payload map[string]any) error {
	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	payloadLoader := gojsonschema.NewGoLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, payloadLoader)
	if err != nil {
		return fmt.Errorf("failed to validate payload for action type '%s': %w", factory.ID(), err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, validationError := range result.Errors() {
			details = append(details, validationError.String())
		}

		return fmt.Errorf("invalid payload for action type '%s': %s", factory.ID(), strings.Join(details, "; "))
	}

	return nil
}

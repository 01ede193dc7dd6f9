// Package protocol defines the contracts between the engine and action
// handlers.
package protocol

import (
	"context"
	"log/slog"

	"github.com/tidewater/conveyor/pkg/models"
)

// Handler performs one side effect. Implementations must be idempotent-safe
// to retry at the caller's discretion and should surface failures as errors
// rather than panicking; the executor converts both into failed results.
type Handler interface {
	Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error)
}

// HandlerFactory creates handler instances from an action payload and
// describes the payload's JSON schema.
type HandlerFactory interface {
	Create(ctx context.Context, payload map[string]any) (Handler, error)
	ID() string
	Name() string
	Description() string
	Schema() map[string]any
}

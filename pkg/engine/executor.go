package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/registry"
)

// ActionExecutor runs single actions through the handler registry and folds
// every failure mode, including handler panics, into an ActionResult. It
// never returns an error; the run loop decides what a failure means.
type ActionExecutor struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// NewActionExecutor creates an action executor over the given registry.
func NewActionExecutor(logger *slog.Logger, reg *registry.Registry) *ActionExecutor {
	return &ActionExecutor{
		registry: reg,
		logger:   logger.With("module", "action_executor"),
	}
}

// ExecuteAction runs one action and normalizes its outcome.
func (e *ActionExecutor) ExecuteAction(ctx context.Context, executionCtx models.ExecutionContext, action *models.WorkflowAction) (result models.ActionResult) {
	logger := e.logger.With(
		"run_id", executionCtx.RunID,
		"action_id", action.ID,
		"action_type", action.ActionType,
	)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "Action handler panicked", "panic", r)

			result = models.ActionResult{
				Success: false,
				Error:   fmt.Sprintf("action handler panicked: %v", r),
			}
		}
	}()

	if !e.registry.IsRegistered(action.ActionType) {
		logger.WarnContext(ctx, "Unknown action type")

		return models.ActionResult{
			Success: false,
			Error:   fmt.Sprintf("Unknown action type: %s", action.ActionType),
		}
	}

	handler, err := e.registry.CreateHandler(ctx, action.ActionType, action.Payload)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to create action handler", "error", err)

		return models.ActionResult{Success: false, Error: err.Error()}
	}

	data, err := handler.Execute(ctx, executionCtx, logger)
	if err != nil {
		logger.WarnContext(ctx, "Action execution failed", "error", err)

		return models.ActionResult{Success: false, Error: err.Error()}
	}

	return models.ActionResult{Success: true, Result: data}
}

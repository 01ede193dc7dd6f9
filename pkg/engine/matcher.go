package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tidewater/conveyor/pkg/conditions"
	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/persistence"
)

// TriggerMatcher resolves which workflow triggers fire for an incoming domain
// event. Matching is read-only; starting runs is the caller's job.
type TriggerMatcher struct {
	persistence persistence.Persistence
	evaluator   *conditions.Evaluator
	logger      *slog.Logger
}

// NewTriggerMatcher creates a trigger matcher.
func NewTriggerMatcher(logger *slog.Logger, p persistence.Persistence, evaluator *conditions.Evaluator) *TriggerMatcher {
	return &TriggerMatcher{
		persistence: p,
		evaluator:   evaluator,
		logger:      logger.With("module", "trigger_matcher"),
	}
}

// Match returns the active triggers for the event type within the scope whose
// conditions hold against the event payload, highest priority first. A
// trigger with no conditions always matches.
func (m *TriggerMatcher) Match(ctx context.Context, eventType, scope string, eventData map[string]any) ([]*models.WorkflowTrigger, error) {
	triggers, err := m.persistence.ActiveTriggersByEvent(ctx, eventType, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load triggers for event %s: %w", eventType, err)
	}

	matched := make([]*models.WorkflowTrigger, 0, len(triggers))

	for _, trigger := range triggers {
		if !m.evaluator.Evaluate(trigger.Conditions, eventData) {
			m.logger.DebugContext(ctx, "Trigger conditions did not match",
				"trigger_id", trigger.ID,
				"workflow_id", trigger.WorkflowID,
				"event_type", eventType,
			)

			continue
		}

		matched = append(matched, trigger)
	}

	m.logger.InfoContext(ctx, "Matched triggers for event",
		"event_type", eventType,
		"candidates", len(triggers),
		"matched", len(matched),
	)

	return matched, nil
}

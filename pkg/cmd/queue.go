package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tidewater/conveyor/pkg/queue"
)

// NewTaskQueue creates a task queue backend from the queue URL scheme. An
// empty URL selects the in-memory queue, which does not survive restarts and
// is only suitable for local development.
func NewTaskQueue(ctx context.Context, logger *slog.Logger, queueURL string) (queue.TaskQueue, error) {
	switch {
	case queueURL == "" || strings.HasPrefix(queueURL, "memory://"):
		return queue.NewMemoryQueue(), nil
	default:
		return queue.NewRedisQueue(ctx, logger, queueURL)
	}
}

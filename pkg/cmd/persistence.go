package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tidewater/conveyor/pkg/persistence"
	"github.com/tidewater/conveyor/pkg/persistence/memory"
	"github.com/tidewater/conveyor/pkg/persistence/postgresql"
)

// NewPersistence creates a persistence backend from the database URL scheme.
// An empty URL or the memory:// scheme selects the in-memory store, which is
// only suitable for local development.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case databaseURL == "" || strings.HasPrefix(databaseURL, "memory://"):
		return memory.NewPersistence(), nil
	default:
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	}
}

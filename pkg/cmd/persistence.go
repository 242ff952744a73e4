package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/careloop/careloop/pkg/persistence"
	"github.com/careloop/careloop/pkg/persistence/file"
	"github.com/careloop/careloop/pkg/persistence/postgresql"
)

// NewPersistence selects a storage backend from the database URL scheme.
// postgres:// and postgresql:// URLs get the SQL backend; anything else is
// treated as a directory path for the file backend.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgresql persistence: %w", err)
		}

		return store, nil
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	}
}

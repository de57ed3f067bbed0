// Package store persists the executor's run snapshot: the program and whether
// it is running. Nothing else survives a restart.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// Store is a durable home for the run snapshot.
type Store interface {
	// Load returns the stored snapshot, or an empty one if nothing was saved yet.
	Load(ctx context.Context) (schemas.RunSnapshot, error)
	// Save replaces the stored snapshot.
	Save(ctx context.Context, snap schemas.RunSnapshot) error
	Close() error
}

// Open builds the backend selected by cfg.Store().
func Open(ctx context.Context, cfg config.Interface, logger *zap.Logger) (Store, error) {
	switch backend := cfg.Store().Backend; backend {
	case config.StoreBackendFile, "":
		return NewFileStore(cfg.Store().Path, logger)
	case config.StoreBackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.Database().URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		s, err := New(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

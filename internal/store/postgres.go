package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// DBPool abstracts *pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const (
	keyProgram   = "program"
	keyIsRunning = "isRunning"
)

const (
	sqlCreateTable = `
        CREATE TABLE IF NOT EXISTS webpilot_state (
            key        TEXT PRIMARY KEY,
            value      JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        );
    `
	sqlSelectState = `
        SELECT key, value FROM webpilot_state WHERE key = ANY($1);
    `
	sqlUpsertState = `
        INSERT INTO webpilot_state (key, value, updated_at)
        VALUES ($1, $2, now())
        ON CONFLICT (key) DO UPDATE SET
            value = EXCLUDED.value,
            updated_at = EXCLUDED.updated_at;
    `
)

// PostgresStore keeps the snapshot as two rows of a key/value table.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// New creates a PostgresStore and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the state table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateTable); err != nil {
		return fmt.Errorf("failed to create state table: %w", err)
	}
	return nil
}

// Load reads both rows. Missing rows leave the matching field at its zero value.
func (s *PostgresStore) Load(ctx context.Context) (schemas.RunSnapshot, error) {
	var snap schemas.RunSnapshot
	rows, err := s.pool.Query(ctx, sqlSelectState, []string{keyProgram, keyIsRunning})
	if err != nil {
		return snap, fmt.Errorf("failed to query run state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return snap, fmt.Errorf("failed to scan run state row: %w", err)
		}
		switch key {
		case keyProgram:
			program, err := schemas.Deserialize(value)
			if err != nil {
				return snap, fmt.Errorf("stored program is corrupt: %w", err)
			}
			snap.Program = program
		case keyIsRunning:
			if err := json.Unmarshal(value, &snap.IsRunning); err != nil {
				return snap, fmt.Errorf("stored running flag is corrupt: %w", err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("error during row iteration: %w", err)
	}
	return snap, nil
}

// Save upserts both rows in one transaction.
func (s *PostgresStore) Save(ctx context.Context, snap schemas.RunSnapshot) error {
	program, err := schemas.Serialize(snap.Program)
	if err != nil {
		return fmt.Errorf("failed to encode program: %w", err)
	}
	running, err := json.Marshal(snap.IsRunning)
	if err != nil {
		return fmt.Errorf("failed to encode running flag: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, sqlUpsertState, keyProgram, program); err != nil {
		return fmt.Errorf("failed to store program: %w", err)
	}
	if _, err := tx.Exec(ctx, sqlUpsertState, keyIsRunning, running); err != nil {
		return fmt.Errorf("failed to store running flag: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

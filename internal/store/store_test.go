package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func sampleProgram() schemas.Program {
	return schemas.Program{
		schemas.NewPage(),
		schemas.GotoURL("https://example.com"),
		schemas.WaitRandomMs(100, 200),
		schemas.ScrollByWheel(schemas.TargetBottom, &schemas.Range{Min: 50, Max: 100}, nil),
		schemas.ClosePage(),
	}
}

func newMockStore(t *testing.T, logger *zap.Logger) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateTable)).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_Save(t *testing.T) {
	ctx := context.Background()
	program := sampleProgram()
	encoded, err := schemas.Serialize(program)
	require.NoError(t, err)

	t.Run("upserts both keys in one transaction", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(observedZapCore))

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertState)).
			WithArgs(keyProgram, encoded).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertState)).
			WithArgs(keyIsRunning, []byte("true")).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		// The deferred rollback runs after commit and must not be logged.
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.Save(ctx, schemas.RunSnapshot{Program: program, IsRunning: true}))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Equal(t, 0, observedLogs.Len())
	})

	t.Run("rolls back when the second write fails", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		execErr := errors.New("disk full")

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertState)).
			WithArgs(keyProgram, encoded).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertState)).
			WithArgs(keyIsRunning, []byte("false")).
			WillReturnError(execErr)
		mockPool.ExpectRollback()

		err := s.Save(ctx, schemas.RunSnapshot{Program: program})
		require.Error(t, err)
		assert.ErrorIs(t, err, execErr)
		assert.Contains(t, err.Error(), "failed to store running flag")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectBegin().WillReturnError(errors.New("connection reset"))

		err := s.Save(ctx, schemas.RunSnapshot{Program: program})
		assert.ErrorContains(t, err, "failed to begin transaction")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresStore_Load(t *testing.T) {
	ctx := context.Background()
	program := sampleProgram()
	encoded, err := schemas.Serialize(program)
	require.NoError(t, err)

	t.Run("reads both keys", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		rows := pgxmock.NewRows([]string{"key", "value"}).
			AddRow(keyProgram, encoded).
			AddRow(keyIsRunning, []byte("true"))
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectState)).
			WithArgs([]string{keyProgram, keyIsRunning}).
			WillReturnRows(rows)

		snap, err := s.Load(ctx)
		require.NoError(t, err)
		assert.True(t, snap.IsRunning)
		assert.Equal(t, program, snap.Program)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("empty table", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectState)).
			WithArgs([]string{keyProgram, keyIsRunning}).
			WillReturnRows(pgxmock.NewRows([]string{"key", "value"}))

		snap, err := s.Load(ctx)
		require.NoError(t, err)
		assert.False(t, snap.IsRunning)
		assert.Empty(t, snap.Program)
	})

	t.Run("corrupt program", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		rows := pgxmock.NewRows([]string{"key", "value"}).
			AddRow(keyProgram, []byte(`[{"type":"teleport","config":{}}]`))
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectState)).
			WithArgs([]string{keyProgram, keyIsRunning}).
			WillReturnRows(rows)

		_, err := s.Load(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, schemas.ErrUnknownStepType)
	})

	t.Run("query failure", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectState)).
			WithArgs([]string{keyProgram, keyIsRunning}).
			WillReturnError(errors.New("relation does not exist"))

		_, err := s.Load(ctx)
		assert.ErrorContains(t, err, "failed to query run state")
	})
}

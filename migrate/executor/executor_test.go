package executor_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/semaphore"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/dialect/mysql"
	"github.com/satishbabariya/sqlforge/dialect/sqlite"
	"github.com/satishbabariya/sqlforge/migrate/executor"
)

var steps = []executor.Step{
	{Name: "one", SQL: "CREATE TABLE a (x INTEGER)"},
	{Name: "two", SQL: "INSERT INTO a (x) VALUES (?)", Args: []any{1}},
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func expectSteps(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta(steps[0].SQL)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(steps[1].SQL)).WithArgs(1).WillReturnResult(sqlmock.NewResult(1, 1))
}

func TestRunCommits(t *testing.T) {
	db, mock := newMock(t)
	gate := semaphore.NewWeighted(1)
	mock.ExpectBegin()
	expectSteps(mock)
	mock.ExpectExec("INSERT INTO history").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	var seen []string
	ex := executor.New(sqlite.MustNew(sqlite.Options{Version: "3.45.0"}),
		executor.WithGate(gate),
		executor.WithHook(func(_ context.Context, s executor.Step) error {
			seen = append(seen, s.Name)
			return nil
		}))
	err := ex.Run(context.Background(), db, steps, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO history DEFAULT VALUES")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, seen)
	assert.True(t, gate.TryAcquire(1), "gate released")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRollsBack(t *testing.T) {
	injected := errors.New("injected")
	tests := []struct {
		name   string
		setup  func(mock sqlmock.Sqlmock)
		hook   executor.Hook
		finish func(context.Context, *sql.Tx) error
		check  func(t *testing.T, err error)
	}{
		{
			name: "statement failure",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta(steps[0].SQL)).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(regexp.QuoteMeta(steps[1].SQL)).WithArgs(1).WillReturnError(injected)
			},
			check: func(t *testing.T, err error) {
				assert.True(t, dberr.IsExecution(err))
				var de *dberr.Error
				require.True(t, errors.As(err, &de))
				assert.Equal(t, "two", de.Op)
				assert.Equal(t, steps[1].SQL, de.SQL)
				assert.Equal(t, []any{1}, de.Args)
			},
		},
		{
			name: "hook abort",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta(steps[0].SQL)).WillReturnResult(sqlmock.NewResult(0, 0))
			},
			hook: func(_ context.Context, s executor.Step) error {
				if s.Name == "two" {
					return injected
				}
				return nil
			},
			check: func(t *testing.T, err error) {
				assert.True(t, dberr.IsMigration(err))
				assert.ErrorIs(t, err, injected)
				assert.Contains(t, err.Error(), "step 2 aborted")
			},
		},
		{
			name:   "finish failure",
			setup:  expectSteps,
			finish: func(context.Context, *sql.Tx) error { return injected },
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, injected)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			gate := semaphore.NewWeighted(1)
			mock.ExpectBegin()
			tt.setup(mock)
			mock.ExpectRollback()

			ex := executor.New(sqlite.MustNew(sqlite.Options{Version: "3.45.0"}), executor.WithGate(gate), executor.WithHook(tt.hook))
			err := ex.Run(context.Background(), db, steps, tt.finish)
			require.Error(t, err)
			tt.check(t, err)
			assert.True(t, gate.TryAcquire(1), "gate released")
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRunPanicRollsBack(t *testing.T) {
	db, mock := newMock(t)
	gate := semaphore.NewWeighted(1)
	mock.ExpectBegin()
	mock.ExpectRollback()

	ex := executor.New(sqlite.MustNew(sqlite.Options{Version: "3.45.0"}),
		executor.WithGate(gate),
		executor.WithHook(func(context.Context, executor.Step) error { panic("boom") }))
	assert.PanicsWithValue(t, "boom", func() {
		_ = ex.Run(context.Background(), db, steps, nil)
	})
	assert.True(t, gate.TryAcquire(1), "gate released")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunBeginFailure(t *testing.T) {
	db, mock := newMock(t)
	gate := semaphore.NewWeighted(1)
	mock.ExpectBegin().WillReturnError(errors.New("no connection"))

	err := executor.New(sqlite.MustNew(sqlite.Options{Version: "3.45.0"}), executor.WithGate(gate)).
		Run(context.Background(), db, steps, nil)
	assert.True(t, dberr.IsExecution(err))
	assert.True(t, gate.TryAcquire(1), "gate released")
}

func TestRunWarnsWithoutTransactionalDDL(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	core, logs := observer.New(zapcore.WarnLevel)
	err := executor.New(mysql.New(), executor.WithLogger(zap.New(core))).Run(context.Background(), db, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "mysql", logs.All()[0].ContextMap()["dialect"])
}

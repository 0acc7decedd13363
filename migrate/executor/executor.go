// Package executor runs a batch of schema statements inside one transaction.
package executor

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/dialect"
)

// Step is one statement of a batch. Name labels it for hooks and logs.
type Step struct {
	Name string
	SQL  string
	Args []any
}

// Hook is invoked before each step; a non-nil error aborts the batch.
type Hook func(ctx context.Context, s Step) error

// Executor runs batches for one dialect.
type Executor struct {
	d    dialect.Dialect
	gate dialect.Gate
	log  *zap.Logger
	hook Hook
}

// Option configures an Executor.
type Option func(*Executor)

// WithGate limits concurrent batches to the slots of g.
func WithGate(g dialect.Gate) Option {
	return func(e *Executor) { e.gate = g }
}

// WithLogger sets the logger statements are reported to at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// WithHook installs a step hook.
func WithHook(h Hook) Option {
	return func(e *Executor) { e.hook = h }
}

// New returns an executor for d.
func New(d dialect.Dialect, opts ...Option) *Executor {
	e := &Executor{d: d, log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes steps in order inside one transaction. finish, when non-nil, runs inside the
// same transaction after the last step. Any failure, or a panic, rolls the whole batch back.
func (e *Executor) Run(ctx context.Context, db dialect.Beginner, steps []Step, finish func(ctx context.Context, tx *sql.Tx) error) (err error) {
	if !e.d.Capabilities().TransactionalDDL {
		e.log.Warn("dialect commits DDL implicitly; a failed batch may be partially applied",
			zap.String("dialect", e.d.Name()))
	}

	tx, err := e.d.BeginTx(ctx, db, e.gate, nil)
	if err != nil {
		return dberr.Execution("begin", "", nil, err)
	}
	release := func() {
		if e.gate != nil {
			e.gate.Release(1)
		}
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			release()
			panic(p)
		}
	}()

	fail := func(cause error) error {
		if rbErr := tx.Rollback(); rbErr != nil {
			e.log.Error("rollback failed", zap.Error(rbErr))
		}
		release()
		return cause
	}

	for i, s := range steps {
		if e.hook != nil {
			if err := e.hook(ctx, s); err != nil {
				return fail(dberr.Migration(s.Name, fmt.Errorf("step %d aborted: %w", i+1, err)))
			}
		}
		e.log.Debug("schema statement", zap.Int("step", i+1), zap.String("name", s.Name), zap.String("sql", s.SQL))
		if _, err := tx.ExecContext(ctx, s.SQL, s.Args...); err != nil {
			return fail(dberr.Execution(s.Name, s.SQL, s.Args, e.d.ClassifyError(err)))
		}
	}

	if finish != nil {
		if err := finish(ctx, tx); err != nil {
			return fail(err)
		}
	}

	if err := tx.Commit(); err != nil {
		release()
		return dberr.Execution("commit", "", nil, err)
	}
	release()
	return nil
}

package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/satishbabariya/sqlforge/query/prepare"
)

// ErrReadOnly is returned by ReadOnlyMiddleware for statements that modify data.
var ErrReadOnly = errors.New("statement rejected on a read-only handle")

// Event describes one statement as it passes through the middleware chain. Duration and Err
// are filled once the statement has run.
type Event struct {
	SQL      string
	Args     []any
	Kind     prepare.Kind
	Start    time.Time
	Duration time.Duration
	Err      error
}

// Middleware intercepts statements. It must call next exactly once to run the statement,
// unless it rejects it by returning an error instead.
type Middleware func(ctx context.Context, ev *Event, next func() error) error

func (db *DB) chain(ctx context.Context, ev *Event, run func() error) error {
	index := 0
	var next func() error
	next = func() error {
		if index >= len(db.middlewares) {
			err := run()
			ev.Duration = time.Since(ev.Start)
			ev.Err = err
			return err
		}
		mw := db.middlewares[index]
		index++
		return mw(ctx, ev, next)
	}
	err := next()
	if ev.Duration == 0 {
		ev.Duration = time.Since(ev.Start)
	}
	return err
}

// TimingMiddleware reports the duration of every statement to onTiming.
func TimingMiddleware(onTiming func(ev *Event)) Middleware {
	return func(_ context.Context, ev *Event, next func() error) error {
		err := next()
		if onTiming != nil {
			onTiming(ev)
		}
		return err
	}
}

// ReadOnlyMiddleware rejects every statement that is not a query.
func ReadOnlyMiddleware() Middleware {
	return func(_ context.Context, ev *Event, next func() error) error {
		if ev.Kind != prepare.KindQuery {
			return ErrReadOnly
		}
		return next()
	}
}

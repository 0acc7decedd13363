// Package runtime executes prepared operations over database/sql.
//
// A DB wraps one *sql.DB for one dialect. Every operation exists in a blocking form and an
// async form returning a future; both bind and validate their arguments before anything is
// sent to the database. Calls outside a transaction take a dedicated connection for their
// duration and release it on every exit path. Transactions started through Begin pass the
// dialect's write gate first, so on SQLite at most one write transaction is open at a time.
package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/dialect"
	"github.com/satishbabariya/sqlforge/model"
	"github.com/satishbabariya/sqlforge/query/prepare"
)

const instrumentationName = "github.com/satishbabariya/sqlforge/runtime"

// DB executes operations against one database.
type DB struct {
	sql  *sql.DB
	d    dialect.Dialect
	reg  *model.Registry
	gate *semaphore.Weighted

	log         *zap.Logger
	metrics     *Metrics
	tracer      trace.Tracer
	middlewares []Middleware

	mappers sync.Map // reflect.Type -> *rowMapper

	mu      sync.Mutex
	cursors map[*Cursor]struct{}
	closed  bool
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger statements are reported to at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(db *DB) {
		if l != nil {
			db.log = l
		}
	}
}

// WithMetrics records statement counts and durations.
func WithMetrics(m *Metrics) Option {
	return func(db *DB) { db.metrics = m }
}

// WithTracer sets the tracer spans are started on. The default is the global provider's.
func WithTracer(t trace.Tracer) Option {
	return func(db *DB) {
		if t != nil {
			db.tracer = t
		}
	}
}

// WithMiddleware appends statement middlewares, run in the order given.
func WithMiddleware(mw ...Middleware) Option {
	return func(db *DB) { db.middlewares = append(db.middlewares, mw...) }
}

// Open wraps an open database handle. The registry describes the entity types Query scans into.
func Open(sqlDB *sql.DB, d dialect.Dialect, reg *model.Registry, opts ...Option) *DB {
	if reg == nil {
		reg = model.NewRegistry()
	}
	db := &DB{
		sql:     sqlDB,
		d:       d,
		reg:     reg,
		log:     zap.NewNop(),
		tracer:  otel.Tracer(instrumentationName),
		cursors: map[*Cursor]struct{}{},
	}
	if n := d.Capabilities().MaxWriters; n > 0 {
		db.gate = semaphore.NewWeighted(int64(n))
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// SQL returns the wrapped handle.
func (db *DB) SQL() *sql.DB { return db.sql }

// Dialect returns the dialect operations are executed for.
func (db *DB) Dialect() dialect.Dialect { return db.d }

// Registry returns the entity registry.
func (db *DB) Registry() *model.Registry { return db.reg }

// Logger returns the configured logger.
func (db *DB) Logger() *zap.Logger { return db.log }

// Gate returns the write gate, or nil when writers are unlimited. Share it with the migrator
// so schema updates queue behind write transactions.
func (db *DB) Gate() dialect.Gate {
	if db.gate == nil {
		return nil
	}
	return db.gate
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.sql.PingContext(ctx); err != nil {
		return dberr.Execution("ping", "", nil, err)
	}
	return nil
}

// Close closes every cursor still open, then the database. Cursors left open are a leak and
// are reported as an error wrapping dberr.ErrCursorLeak.
func (db *DB) Close() error {
	db.mu.Lock()
	db.closed = true
	leaked := make([]*Cursor, 0, len(db.cursors))
	for c := range db.cursors {
		leaked = append(leaked, c)
	}
	db.mu.Unlock()

	var errs []error
	for _, c := range leaked {
		db.log.Warn("closing leaked cursor", zap.String("sql", Truncate(c.sql, MaxLogLength)))
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(leaked) > 0 {
		errs = append(errs, dberr.Execution("close", "", nil, fmt.Errorf("%w: %d cursor(s) left open", dberr.ErrCursorLeak, len(leaked))))
	}
	if err := db.sql.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// OpenCursors reports how many cursors have not been closed.
func (db *DB) OpenCursors() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.cursors)
}

func (db *DB) track(c *Cursor) {
	db.mu.Lock()
	db.cursors[c] = struct{}{}
	db.mu.Unlock()
}

func (db *DB) untrack(c *Cursor) {
	db.mu.Lock()
	delete(db.cursors, c)
	db.mu.Unlock()
}

// Runner executes operations; *DB and *Tx implement it.
type Runner interface {
	prepare.Executor
	Stream(ctx context.Context, op *prepare.Operation, args ...any) (*Cursor, error)

	handle() *DB
	session(ctx context.Context) (dialect.Querier, func(), error)
}

var (
	_ Runner = (*DB)(nil)
	_ Runner = (*Tx)(nil)
)

func (db *DB) handle() *DB { return db }

// session returns the ambient transaction of ctx, or a dedicated connection for one call.
func (db *DB) session(ctx context.Context) (dialect.Querier, func(), error) {
	if tx := txFrom(ctx); tx != nil {
		return tx.session(ctx)
	}
	conn, err := db.sql.Conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	return conn, func() {
		if err := conn.Close(); err != nil {
			db.log.Warn("failed to release connection", zap.Error(err))
		}
	}, nil
}

// mapper returns the cached column setter table of t.
func (db *DB) mapper(t reflect.Type) (*rowMapper, error) {
	if m, ok := db.mappers.Load(t); ok {
		return m.(*rowMapper), nil
	}
	desc, err := db.reg.Describe(t)
	if err != nil {
		return nil, err
	}
	m, _ := db.mappers.LoadOrStore(t, newRowMapper(desc))
	return m.(*rowMapper), nil
}

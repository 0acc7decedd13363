// Package sqlforge is a typed relational access layer: entity descriptors registered once,
// predicates translated to parameterized SQL per dialect, schema updates that keep the data,
// and an execution layer with blocking and async forms.
//
// A Client wires the pieces for one database:
//
//	c, err := sqlforge.Open("sqlite3", "file:app.db")
//	if err != nil { ... }
//	defer c.Close()
//
//	if _, err := sqlforge.Migrate[User](ctx, c); err != nil { ... }
//	u := &User{Name: "ada"}
//	if err := sqlforge.Insert(ctx, c, u); err != nil { ... }
//	users, err := sqlforge.Find[User](ctx, c, expr.Eq(expr.Prop("Name"), "ada"))
package sqlforge

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/dialect"
	"github.com/satishbabariya/sqlforge/migrate"
	"github.com/satishbabariya/sqlforge/model"
	"github.com/satishbabariya/sqlforge/query/builder"
	"github.com/satishbabariya/sqlforge/query/expr"
	"github.com/satishbabariya/sqlforge/runtime"
)

// Client is the entry point for one database.
type Client struct {
	db  *runtime.DB
	b   *builder.Builder
	reg *model.Registry
	log *zap.Logger

	migrateOpts []migrate.Option
}

type config struct {
	log         *zap.Logger
	reg         *model.Registry
	metrics     *runtime.Metrics
	tracer      trace.Tracer
	middlewares []runtime.Middleware
	aside       migrate.AsidePolicy
	history     bool
	hook        migrate.StepHook
	arrayParams bool
}

// Option configures a Client.
type Option func(*config)

// WithLogger sets the logger shared by the runtime and the migrator.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithRegistry uses reg instead of a fresh registry.
func WithRegistry(reg *model.Registry) Option {
	return func(c *config) { c.reg = reg }
}

// WithMetrics records statement metrics.
func WithMetrics(m *runtime.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithTracer sets the tracer for statement spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *config) { c.tracer = t }
}

// WithMiddleware installs statement middlewares.
func WithMiddleware(mw ...runtime.Middleware) Option {
	return func(c *config) { c.middlewares = append(c.middlewares, mw...) }
}

// WithAsidePolicy sets how schema updates treat a leftover aside table.
func WithAsidePolicy(p migrate.AsidePolicy) Option {
	return func(c *config) { c.aside = p }
}

// WithHistory records applied schema updates.
func WithHistory() Option {
	return func(c *config) { c.history = true }
}

// WithStepHook observes, or aborts, each schema update statement.
func WithStepHook(h migrate.StepHook) Option {
	return func(c *config) { c.hook = h }
}

// WithArrayParams binds collections as one parameter where the dialect can. It only
// affects clients created by Open.
func WithArrayParams() Option {
	return func(c *config) { c.arrayParams = true }
}

func newConfig(opts []Option) *config {
	c := &config{log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.reg == nil {
		c.reg = model.NewRegistry(model.WithLogger(c.log))
	}
	return c
}

// Open opens a database by driver name and wraps it in a Client.
func Open(driver, dsn string, opts ...Option) (*Client, error) {
	cfg := newConfig(opts)
	d, driverName, err := DialectFor(driver, cfg.arrayParams)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	cfg.log.Debug("opened database", zap.String("driver", driverName), zap.String("dsn", runtime.SanitizeDSN(dsn)))
	return newClient(sqlDB, d, cfg), nil
}

// New wraps an open database handle.
func New(sqlDB *sql.DB, d dialect.Dialect, opts ...Option) *Client {
	return newClient(sqlDB, d, newConfig(opts))
}

func newClient(sqlDB *sql.DB, d dialect.Dialect, cfg *config) *Client {
	db := runtime.Open(sqlDB, d, cfg.reg,
		runtime.WithLogger(cfg.log),
		runtime.WithMetrics(cfg.metrics),
		runtime.WithTracer(cfg.tracer),
		runtime.WithMiddleware(cfg.middlewares...))
	c := &Client{
		db:  db,
		b:   builder.New(d, cfg.reg),
		reg: cfg.reg,
		log: cfg.log,
	}
	c.migrateOpts = []migrate.Option{
		migrate.WithLogger(cfg.log),
		migrate.WithAsidePolicy(cfg.aside),
		migrate.WithStepHook(cfg.hook),
		migrate.WithGate(db.Gate()),
	}
	if cfg.history {
		c.migrateOpts = append(c.migrateOpts, migrate.WithHistory())
	}
	return c
}

// DB returns the execution layer.
func (c *Client) DB() *runtime.DB { return c.db }

// Builder returns the statement builder.
func (c *Client) Builder() *builder.Builder { return c.b }

// Registry returns the entity registry.
func (c *Client) Registry() *model.Registry { return c.reg }

// Dialect returns the dialect.
func (c *Client) Dialect() dialect.Dialect { return c.db.Dialect() }

// Ping verifies the database is reachable.
func (c *Client) Ping(ctx context.Context) error { return c.db.Ping(ctx) }

// Close closes the database, reporting cursors left open.
func (c *Client) Close() error { return c.db.Close() }

// Migrator returns a migrator sharing the client's write gate.
func (c *Client) Migrator() (*migrate.Migrator, error) {
	return migrate.New(c.db.SQL(), c.Dialect(), c.reg, c.migrateOpts...)
}

// UpdateSchema brings the tables of the given entity values up to date, in order.
func (c *Client) UpdateSchema(ctx context.Context, entities ...any) ([]*migrate.Result, error) {
	descs := make([]*model.EntityDescriptor, len(entities))
	for i, e := range entities {
		desc, err := c.reg.DescribeValue(e)
		if err != nil {
			return nil, err
		}
		descs[i] = desc
	}
	m, err := c.Migrator()
	if err != nil {
		return nil, err
	}
	return m.UpdateAll(ctx, descs...)
}

// WithTx runs fn in a transaction. Calls made with the context handed to fn use it.
func (c *Client) WithTx(ctx context.Context, fn func(ctx context.Context, tx *runtime.Tx) error) error {
	return c.db.WithTx(ctx, fn)
}

// Migrate brings the table of T up to date.
func Migrate[T any](ctx context.Context, c *Client) (*migrate.Result, error) {
	desc, err := model.Of[T](c.reg)
	if err != nil {
		return nil, err
	}
	m, err := c.Migrator()
	if err != nil {
		return nil, err
	}
	return m.UpdateSchema(ctx, desc)
}

// Load starts a SELECT of every mapped column of T.
func Load[T any](c *Client) (*builder.SelectStmt, error) {
	return builder.Load[T](c.b)
}

// Find returns the rows of T matching where, or every row when where is nil, in primary
// key order when T has one.
func Find[T any](ctx context.Context, c *Client, where expr.Node) ([]T, error) {
	sel, err := Load[T](c)
	if err != nil {
		return nil, err
	}
	if where != nil {
		sel = sel.Where(where)
	}
	if pk := sel.Entity().PrimaryKey(); pk != nil {
		sel = sel.OrderBy(pk.Name)
	}
	op, err := sel.Prepare()
	if err != nil {
		return nil, err
	}
	return runtime.Query[T](ctx, c.db, op)
}

// Get returns the row of T whose primary key equals key.
func Get[T any](ctx context.Context, c *Client, key any) (*T, error) {
	sel, err := Load[T](c)
	if err != nil {
		return nil, err
	}
	pk := sel.Entity().PrimaryKey()
	if pk == nil {
		return nil, dberr.Compile("get", sel.Entity().Table(), dberr.ErrMissingPrimaryKey)
	}
	op, err := sel.Where(expr.Eq(expr.Prop(pk.Name), expr.Val(key))).Prepare()
	if err != nil {
		return nil, err
	}
	return runtime.First[*T](ctx, c.db, op)
}

// Insert writes v and, for an auto-increment primary key left at zero, stores the generated
// key back into v, read through RETURNING where the dialect has it.
func Insert[T any](ctx context.Context, c *Client, v *T) error {
	desc, err := model.Of[T](c.reg)
	if err != nil {
		return err
	}
	pk := desc.PrimaryKey()
	generated := false
	if pk != nil && pk.AutoIncrement {
		zero, err := pk.IsZero(v)
		if err != nil {
			return dberr.Compile("insert", desc.Table(), err)
		}
		generated = zero
	}

	ins := c.b.Insert(desc).Entity(v)
	if !generated {
		op, err := ins.Prepare()
		if err != nil {
			return err
		}
		_, err = c.db.Exec(ctx, op)
		return err
	}

	if c.Dialect().Capabilities().Returning {
		op, err := ins.Returning(pk.Name).Prepare()
		if err != nil {
			return err
		}
		key, err := runtime.Scalar[int64](ctx, c.db, op)
		if err != nil {
			return err
		}
		return pk.Set(v, key)
	}

	op, err := ins.Prepare()
	if err != nil {
		return err
	}
	res, err := c.db.ExecResult(ctx, op)
	if err != nil {
		return err
	}
	key, err := res.LastInsertId()
	if err != nil {
		return dberr.Execution("insert", op.SQL, nil, err)
	}
	return pk.Set(v, key)
}

// Update writes every non-key column of v to the row with v's primary key and returns the
// number of rows changed.
func Update[T any](ctx context.Context, c *Client, v *T) (int64, error) {
	desc, err := model.Of[T](c.reg)
	if err != nil {
		return 0, err
	}
	op, err := c.b.Update(desc).SetEntity(v).Prepare()
	if err != nil {
		return 0, err
	}
	return c.db.Exec(ctx, op)
}

// Delete removes the rows of T matching where. A nil where is rejected; use the builder
// with All to empty a table.
func Delete[T any](ctx context.Context, c *Client, where expr.Node) (int64, error) {
	desc, err := model.Of[T](c.reg)
	if err != nil {
		return 0, err
	}
	del := c.b.Delete(desc)
	if where != nil {
		del = del.Where(where)
	}
	op, err := del.Prepare()
	if err != nil {
		return 0, err
	}
	return c.db.Exec(ctx, op)
}

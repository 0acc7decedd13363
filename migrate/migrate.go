// Package migrate evolves live tables to match their entity descriptors.
//
// UpdateSchema introspects the table, diffs it against the descriptor and picks one of four
// strategies: create the missing table, do nothing, alter it in place, or recreate it and copy
// the rows forward. Every change runs inside one transaction, so a failure leaves the original
// table as it was. Views and objects that are not tables are rejected before any DDL.
package migrate

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/dialect"
	"github.com/satishbabariya/sqlforge/future"
	"github.com/satishbabariya/sqlforge/migrate/executor"
	"github.com/satishbabariya/sqlforge/migrate/history"
	"github.com/satishbabariya/sqlforge/model"
	"github.com/satishbabariya/sqlforge/query/builder"
)

// Step is one statement of a schema update.
type Step = executor.Step

// StepHook is invoked before each step; returning an error aborts and rolls back the update.
type StepHook = executor.Hook

// Step names.
const (
	StepArchiveAside = "archive aside"
	StepDropAside    = "drop stale aside"
	StepDropIndex    = "drop index"
	StepDropConstr   = "drop constraint"
	StepRenameAside  = "rename aside"
	StepCreateTable  = "create table"
	StepCreateIndex  = "create index"
	StepCopyRows     = "copy rows"
	StepAfterCopy    = "after copy"
	StepDropOld      = "drop aside"
	StepAddColumn    = "add column"
	StepAlterColumn  = "alter column"
	StepDropColumn   = "drop column"
	StepHistory      = "history"
)

// AsidePolicy decides what happens to a leftover aside table from an interrupted recreation.
type AsidePolicy int

const (
	// AsideArchive renames the leftover to <table>__aside_<id> and keeps it.
	AsideArchive AsidePolicy = iota
	// AsideDrop drops the leftover.
	AsideDrop
	// AsideFail aborts the update with ErrStaleAsideTable.
	AsideFail
)

// String returns the policy name used in configuration.
func (p AsidePolicy) String() string {
	switch p {
	case AsideArchive:
		return "archive"
	case AsideDrop:
		return "drop"
	case AsideFail:
		return "fail"
	default:
		return "unknown"
	}
}

// ParseAsidePolicy parses a policy name.
func ParseAsidePolicy(s string) (AsidePolicy, error) {
	switch s {
	case "", "archive":
		return AsideArchive, nil
	case "drop":
		return AsideDrop, nil
	case "fail":
		return AsideFail, nil
	}
	return 0, dberr.Compile("aside policy", s, dberr.ErrUnsupported)
}

// DB is what the migrator needs from a database handle; *sql.DB implements it.
type DB interface {
	dialect.Querier
	dialect.Beginner
}

// Migrator updates table schemas for one database.
type Migrator struct {
	db      DB
	d       dialect.Dialect
	b       *builder.Builder
	log     *zap.Logger
	aside   AsidePolicy
	hook    StepHook
	gate    dialect.Gate
	history *history.Manager
	wantHis bool
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Migrator) {
		if l != nil {
			m.log = l
		}
	}
}

// WithAsidePolicy sets the handling of leftover aside tables. The default is AsideArchive.
func WithAsidePolicy(p AsidePolicy) Option {
	return func(m *Migrator) { m.aside = p }
}

// WithStepHook installs a hook called before each statement.
func WithStepHook(h StepHook) Option {
	return func(m *Migrator) { m.hook = h }
}

// WithGate shares a write gate with the runtime, so schema updates queue behind writers.
func WithGate(g dialect.Gate) Option {
	return func(m *Migrator) { m.gate = g }
}

// WithHistory records every applied update in the history table.
func WithHistory() Option {
	return func(m *Migrator) { m.wantHis = true }
}

// New returns a migrator. reg is used to describe entity types passed by value.
func New(db DB, d dialect.Dialect, reg *model.Registry, opts ...Option) (*Migrator, error) {
	m := &Migrator{
		db:  db,
		d:   d,
		b:   builder.New(d, reg),
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.wantHis {
		h, err := history.NewManager(d)
		if err != nil {
			return nil, err
		}
		m.history = h
	}
	return m, nil
}

// Result reports an applied update.
type Result struct {
	Table      string
	Strategy   Strategy
	Statements []string
	Duration   time.Duration
	// Archived names the table a leftover aside table was renamed to.
	Archived string
}

// UpdateSchema brings the table of desc up to date.
func (m *Migrator) UpdateSchema(ctx context.Context, desc *model.EntityDescriptor) (*Result, error) {
	plan, err := m.Plan(ctx, desc)
	if err != nil {
		return nil, err
	}
	log := m.log.With(zap.String("table", plan.Table))
	if plan.Strategy == NoOp {
		log.Info("schema already up to date")
		return &Result{Table: plan.Table, Strategy: NoOp}, nil
	}
	log.Info("updating schema", zap.Stringer("strategy", plan.Strategy), zap.Strings("changes", plan.Changes()))
	if plan.Archived != "" {
		log.Warn("archiving stale aside table", zap.String("aside", asideName(plan.Table)), zap.String("archive", plan.Archived))
	}
	if plan.DroppedAside {
		log.Warn("dropping stale aside table", zap.String("aside", asideName(plan.Table)))
	}

	steps := plan.Steps
	if m.history != nil {
		init, err := m.history.Init()
		if err != nil {
			return nil, err
		}
		pre := make([]Step, 0, len(init)+len(steps))
		for _, op := range init {
			pre = append(pre, Step{Name: StepHistory, SQL: op.SQL})
		}
		steps = append(pre, steps...)
	}

	start := time.Now()
	var finish func(context.Context, *sql.Tx) error
	if m.history != nil {
		finish = func(ctx context.Context, tx *sql.Tx) error {
			return m.history.Write(ctx, tx, &history.Record{
				Target:     plan.Table,
				Strategy:   plan.Strategy.String(),
				Checksum:   history.Checksum(plan.Statements()),
				Statements: len(plan.Steps),
				DurationMS: time.Since(start).Milliseconds(),
				AppliedAt:  start.UTC(),
			})
		}
	}

	ex := executor.New(m.d,
		executor.WithGate(m.gate),
		executor.WithLogger(log),
		executor.WithHook(m.hook))
	if err := ex.Run(ctx, m.db, steps, finish); err != nil {
		return nil, err
	}
	res := &Result{
		Table:      plan.Table,
		Strategy:   plan.Strategy,
		Statements: plan.Statements(),
		Duration:   time.Since(start),
		Archived:   plan.Archived,
	}
	log.Info("schema updated", zap.Int("statements", len(res.Statements)), zap.Duration("duration", res.Duration))
	return res, nil
}

// UpdateSchemaAsync is the suspending form of UpdateSchema.
func (m *Migrator) UpdateSchemaAsync(ctx context.Context, desc *model.EntityDescriptor) *future.Future[*Result] {
	return future.Go(ctx, func(ctx context.Context) (*Result, error) {
		return m.UpdateSchema(ctx, desc)
	})
}

// UpdateAll updates every descriptor in order and stops at the first failure.
func (m *Migrator) UpdateAll(ctx context.Context, descs ...*model.EntityDescriptor) ([]*Result, error) {
	out := make([]*Result, 0, len(descs))
	for _, desc := range descs {
		res, err := m.UpdateSchema(ctx, desc)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// History lists the recorded updates of table. It requires WithHistory.
func (m *Migrator) History(ctx context.Context, table string) ([]history.Record, error) {
	if m.history == nil {
		return nil, dberr.Compile("history", "history is not enabled", dberr.ErrUnsupported)
	}
	exists, err := m.d.TableExists(ctx, m.db, history.Table)
	if err != nil || !exists {
		return nil, err
	}
	return m.history.List(ctx, m.db, table)
}

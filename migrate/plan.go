package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/dialect"
	"github.com/satishbabariya/sqlforge/migrate/diff"
	"github.com/satishbabariya/sqlforge/migrate/introspect"
	"github.com/satishbabariya/sqlforge/model"
)

// Strategy is how a table is brought up to date.
type Strategy int

const (
	// NoOp means the table already matches.
	NoOp Strategy = iota
	// Create means the table does not exist yet.
	Create
	// Alter means the change is applied in place.
	Alter
	// Recreate means the table is rebuilt and its rows copied forward.
	Recreate
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case NoOp:
		return "noop"
	case Create:
		return "create"
	case Alter:
		return "alter"
	case Recreate:
		return "recreate"
	default:
		return "unknown"
	}
}

// Plan is a decided but not yet applied schema update.
type Plan struct {
	Table    string
	Strategy Strategy
	// Diff is nil when the table is created.
	Diff  *diff.TableDiff
	Steps []Step
	// Archived names the archive of a leftover aside table, when one is renamed.
	Archived string
	// DroppedAside is set when a leftover aside table is dropped.
	DroppedAside bool
}

// Statements returns the SQL of every step.
func (p *Plan) Statements() []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.SQL
	}
	return out
}

// Changes describes the diff, one line each.
func (p *Plan) Changes() []string {
	if p.Diff == nil {
		if p.Strategy == Create {
			return []string{"create table " + p.Table}
		}
		return nil
	}
	return p.Diff.Changes()
}

// Plan introspects the table of desc and decides the update without applying it.
func (m *Migrator) Plan(ctx context.Context, desc *model.EntityDescriptor) (*Plan, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	table := desc.Table()

	obj, err := m.d.Introspector(m.db).Object(ctx, table)
	if err != nil {
		return nil, dberr.Execution("introspect", "", nil, err)
	}

	var live *introspect.TableSchema
	switch o := obj.(type) {
	case nil:
		steps, err := m.createSteps(desc)
		if err != nil {
			return nil, err
		}
		return &Plan{Table: table, Strategy: Create, Steps: steps}, nil
	case *introspect.TableSchema:
		live = o
	case *introspect.ViewSchema:
		return nil, dberr.Migration("update schema", fmt.Errorf("%w: %s is a view", dberr.ErrUnsupportedObject, table))
	default:
		return nil, dberr.Migration("update schema", fmt.Errorf("%w: %s is not a table", dberr.ErrUnsupportedObject, table))
	}

	td := diff.Compute(live, desc, m.d)
	plan := &Plan{Table: table, Diff: td, Strategy: decide(td, m.d.Capabilities())}
	switch plan.Strategy {
	case Alter:
		plan.Steps, err = m.alterSteps(desc, td)
	case Recreate:
		err = m.recreateSteps(ctx, plan, live, desc)
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// decide picks the strategy for a computed diff.
func decide(td *diff.TableDiff, caps dialect.Capabilities) Strategy {
	if td.Empty() {
		return NoOp
	}
	for _, c := range td.Missing {
		if c.PrimaryKey || c.Unique || c.AutoIncrement {
			return Recreate
		}
	}
	if len(td.Obsolete) > 0 && !caps.AlterInPlace {
		return Recreate
	}
	for _, c := range td.Altered {
		if !caps.AlterInPlace || !c.OnlyInPlace() {
			return Recreate
		}
	}
	if !caps.AlterInPlace {
		for _, u := range td.ObsoleteUniques {
			if u.Constraint {
				return Recreate
			}
		}
		for _, c := range td.AlteredUniques {
			if c.Live.Constraint {
				return Recreate
			}
		}
	}
	return Alter
}

// dropIndexStep drops a live index. An index backing a table constraint is dropped through
// its constraint; ok is false when the dialect cannot do that in place.
func dropIndexStep(d dialect.Dialect, table string, ix introspect.IndexSchema) (step Step, ok bool) {
	if !ix.Constraint {
		return Step{Name: StepDropIndex, SQL: d.DropIndex(table, ix.Name)}, true
	}
	if !d.Capabilities().AlterInPlace {
		return Step{}, false
	}
	return Step{Name: StepDropConstr, SQL: d.DropConstraint(table, ix.Name)}, true
}

func (m *Migrator) createSteps(desc *model.EntityDescriptor) ([]Step, error) {
	ops, err := m.b.CreateTable(desc).PrepareAll()
	if err != nil {
		return nil, err
	}
	steps := make([]Step, len(ops))
	for i, op := range ops {
		name := StepCreateIndex
		if i == 0 {
			name = StepCreateTable
		}
		steps[i] = Step{Name: name, SQL: op.SQL}
	}
	return steps, nil
}

// alterSteps drops changed and obsolete indices, adds and alters columns, drops obsolete
// columns, then creates the missing and changed indices.
func (m *Migrator) alterSteps(desc *model.EntityDescriptor, td *diff.TableDiff) ([]Step, error) {
	d := m.d
	table := desc.Table()
	var steps []Step
	var drop []introspect.IndexSchema
	for _, c := range td.AlteredIndices {
		drop = append(drop, c.Live)
	}
	for _, c := range td.AlteredUniques {
		drop = append(drop, c.Live)
	}
	drop = append(drop, td.ObsoleteIndices...)
	drop = append(drop, td.ObsoleteUniques...)
	for _, ix := range drop {
		step, ok := dropIndexStep(d, table, ix)
		if !ok {
			return nil, dberr.Migration("alter table", fmt.Errorf("%w: %s backs a constraint of %s", dberr.ErrUnsupported, ix.Name, table))
		}
		steps = append(steps, step)
	}

	for _, col := range td.Missing {
		stmt, err := d.AddColumn(table, col)
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{Name: StepAddColumn, SQL: stmt})
	}
	for _, c := range td.Altered {
		stmts, err := d.AlterColumn(table, c.Live, c.Target)
		if err != nil {
			return nil, err
		}
		for _, s := range stmts {
			steps = append(steps, Step{Name: StepAlterColumn, SQL: s})
		}
	}
	for _, c := range td.Obsolete {
		steps = append(steps, Step{Name: StepDropColumn, SQL: d.DropColumn(table, c.Name)})
	}

	for _, ix := range td.MissingIndices {
		steps = append(steps, Step{Name: StepCreateIndex, SQL: d.CreateIndex(table, ix.Name, ix.Columns, ix.Kind, false)})
	}
	for _, c := range td.AlteredIndices {
		steps = append(steps, Step{Name: StepCreateIndex, SQL: d.CreateIndex(table, c.Target.Name, c.Target.Columns, c.Target.Kind, false)})
	}
	for _, u := range td.MissingUniques {
		steps = append(steps, Step{Name: StepCreateIndex, SQL: d.CreateIndex(table, u.Name, u.Columns, "", true)})
	}
	for _, c := range td.AlteredUniques {
		steps = append(steps, Step{Name: StepCreateIndex, SQL: d.CreateIndex(table, c.Target.Name, c.Target.Columns, "", true)})
	}
	return steps, nil
}

func asideName(table string) string { return table + "__aside" }

// recreateSteps fills plan with the rebuild: handle a leftover aside table, drop the live
// indices, rename the table aside, create the new table, copy the rows, drop the aside table.
// Constraint indices the dialect cannot drop in place move with the renamed table.
func (m *Migrator) recreateSteps(ctx context.Context, plan *Plan, live *introspect.TableSchema, desc *model.EntityDescriptor) error {
	d := m.d
	table := desc.Table()
	aside := asideName(table)

	stale, err := d.TableExists(ctx, m.db, aside)
	if err != nil {
		return dberr.Execution("introspect", "", nil, err)
	}
	if stale {
		switch m.aside {
		case AsideFail:
			return dberr.Migration("update schema", fmt.Errorf("%w: %s", dberr.ErrStaleAsideTable, aside))
		case AsideDrop:
			plan.DroppedAside = true
			plan.Steps = append(plan.Steps, Step{Name: StepDropAside, SQL: d.DropTable(aside)})
		default:
			plan.Archived = aside + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
			plan.Steps = append(plan.Steps, Step{Name: StepArchiveAside, SQL: d.RenameTable(aside, plan.Archived)})
		}
	}

	for _, ix := range live.AllIndices() {
		if step, ok := dropIndexStep(d, table, ix); ok {
			plan.Steps = append(plan.Steps, step)
		}
	}
	plan.Steps = append(plan.Steps, Step{Name: StepRenameAside, SQL: d.RenameTable(table, aside)})

	create, err := m.createSteps(desc)
	if err != nil {
		return err
	}
	plan.Steps = append(plan.Steps, create...)

	copyRows, err := copyStatement(d, live, desc, aside)
	if err != nil {
		return err
	}
	if copyRows != "" {
		plan.Steps = append(plan.Steps, Step{Name: StepCopyRows, SQL: copyRows})
		for _, s := range d.AfterCopy(table, desc) {
			plan.Steps = append(plan.Steps, Step{Name: StepAfterCopy, SQL: s})
		}
	}
	plan.Steps = append(plan.Steps, Step{Name: StepDropOld, SQL: d.DropTable(aside)})
	return nil
}

// copyStatement renders INSERT INTO table SELECT over the columns both shapes share. New NOT
// NULL columns take their declared default or the dialect zero value; columns becoming NOT
// NULL coalesce existing NULLs to the same fill value. It returns "" when nothing is copied.
func copyStatement(d dialect.Dialect, live *introspect.TableSchema, desc *model.EntityDescriptor, aside string) (string, error) {
	var cols, exprs []string
	shared := false
	for _, col := range desc.Columns() {
		notNull := col.NotNull || col.PrimaryKey
		lc := live.Column(col.Name)
		if lc == nil && (!notNull || col.AutoIncrement) {
			continue
		}
		var e string
		switch {
		case lc == nil:
			lit, err := fillLiteral(d, col)
			if err != nil {
				return "", err
			}
			e = lit
		case notNull && !lc.NotNull:
			lit, err := fillLiteral(d, col)
			if err != nil {
				return "", err
			}
			e = "COALESCE(" + d.QuoteIdent(lc.Name) + ", " + lit + ")"
			shared = true
		default:
			e = d.QuoteIdent(lc.Name)
			shared = true
		}
		cols = append(cols, d.QuoteIdent(col.Name))
		exprs = append(exprs, e)
	}
	if !shared {
		return "", nil
	}
	return "INSERT INTO " + d.QuoteIdent(desc.Table()) + " (" + strings.Join(cols, ", ") + ") SELECT " +
		strings.Join(exprs, ", ") + " FROM " + d.QuoteIdent(aside), nil
}

func fillLiteral(d dialect.Dialect, col *model.ColumnDescriptor) (string, error) {
	v := col.Default
	if v == nil {
		v = d.ZeroValue(col.Type)
	}
	lit, err := d.Literal(v)
	if err != nil {
		return "", dberr.Compilef("copy rows", err, "%s fill value", col.Name)
	}
	return lit, nil
}

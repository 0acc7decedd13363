package builder

import (
	"sort"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/model"
	"github.com/satishbabariya/sqlforge/query/ast"
	"github.com/satishbabariya/sqlforge/query/prepare"
)

// InsertStmt is an INSERT statement with one or more rows.
type InsertStmt struct {
	b         *Builder
	desc      *model.EntityDescriptor
	cols      []string
	rows      [][]prepare.Token
	returning []string
	err       error
}

var _ prepare.Statement = (*InsertStmt)(nil)

// Insert starts an INSERT into desc.
func (b *Builder) Insert(desc *model.EntityDescriptor) *InsertStmt {
	return &InsertStmt{b: b, desc: desc}
}

func (s *InsertStmt) fail(err error) *InsertStmt {
	if s.err == nil {
		s.err = err
	}
	return s
}

// Columns fixes the target column list for subsequent Row and ParamRow calls.
func (s *InsertStmt) Columns(cols ...string) *InsertStmt {
	for _, c := range cols {
		if s.desc.Property(c) == nil {
			return s.fail(dberr.Compilef("insert", dberr.ErrUnknownProperty, "%s has no column %s", s.desc.Table(), c))
		}
	}
	s.cols = make([]string, len(cols))
	for i, c := range cols {
		s.cols[i] = s.desc.Property(c).Name
	}
	return s
}

// Row appends one row of literal values matching Columns.
func (s *InsertStmt) Row(values ...any) *InsertStmt {
	if len(values) != len(s.cols) {
		return s.fail(dberr.Compilef("insert", dberr.ErrMismatchedValues, "%d columns, %d values", len(s.cols), len(values)))
	}
	row := make([]prepare.Token, len(values))
	for i, v := range values {
		row[i] = valueToken(v)
	}
	s.rows = append(s.rows, row)
	return s
}

// ParamRow appends a row of indexed parameters $0..$n-1, one per column, so a single
// prepared operation can be executed for many rows.
func (s *InsertStmt) ParamRow() *InsertStmt {
	row := make([]prepare.Token, len(s.cols))
	for i := range s.cols {
		row[i] = ast.Param{Index: i}
	}
	s.rows = append(s.rows, row)
	return s
}

// Values appends a row given as column to value. Without a fixed column list the map keys,
// sorted, become the columns.
func (s *InsertStmt) Values(values map[string]any) *InsertStmt {
	if s.cols == nil {
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if s.Columns(keys...); s.err != nil {
			return s
		}
	}
	if len(values) != len(s.cols) {
		return s.fail(dberr.Compilef("insert", dberr.ErrMismatchedValues, "%d columns, %d values", len(s.cols), len(values)))
	}
	row := make([]any, len(s.cols))
	for i, c := range s.cols {
		v, ok := lookup(s.desc, values, c)
		if !ok {
			return s.fail(dberr.Compilef("insert", dberr.ErrMismatchedValues, "no value for column %s", c))
		}
		row[i] = v
	}
	return s.Row(row...)
}

// lookup finds the value for column c keyed by either its column or its field name.
func lookup(desc *model.EntityDescriptor, values map[string]any, c string) (any, bool) {
	if v, ok := values[c]; ok {
		return v, true
	}
	for k, v := range values {
		if col := desc.Property(k); col != nil && col.Name == c {
			return v, true
		}
	}
	return nil, false
}

// Entity appends a row read from an entity through the column accessors. A zero-valued
// auto-increment primary key is left to the database.
func (s *InsertStmt) Entity(v any) *InsertStmt {
	ptr, err := entityValue(s.desc, v)
	if err != nil {
		return s.fail(err)
	}
	var cols []string
	var vals []any
	for _, c := range s.desc.Columns() {
		val, err := c.Get(ptr)
		if err != nil {
			return s.fail(dberr.Compile("insert", s.desc.Table(), err))
		}
		if c.AutoIncrement {
			if zero, _ := c.IsZero(ptr); zero {
				continue
			}
		}
		cols = append(cols, c.Name)
		vals = append(vals, val)
	}
	if s.cols == nil {
		s.cols = cols
	} else if !sameOrder(s.cols, cols) {
		return s.fail(dberr.Compilef("insert", dberr.ErrMismatchedValues, "entity row columns %v differ from %v", cols, s.cols))
	}
	return s.Row(vals...)
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Returning asks for the given columns of the inserted rows. Dialects without RETURNING
// reject the statement at Prepare.
func (s *InsertStmt) Returning(cols ...string) *InsertStmt {
	for _, c := range cols {
		col := s.desc.Property(c)
		if col == nil {
			return s.fail(dberr.Compilef("insert", dberr.ErrUnknownProperty, "%s has no column %s", s.desc.Table(), c))
		}
		s.returning = append(s.returning, col.Name)
	}
	return s
}

// Build implements prepare.Statement.
func (s *InsertStmt) Build(p *prepare.Preparator) error {
	if s.err != nil {
		return s.err
	}
	if len(s.rows) == 0 {
		return dberr.Compile("insert", s.desc.Table(), dberr.ErrMismatchedValues)
	}
	if len(s.returning) > 0 && !p.Dialect().Capabilities().Returning {
		return dberr.Compilef("insert", dberr.ErrUnsupported, "RETURNING on %s", p.Dialect().Name())
	}
	p.WriteString("INSERT INTO ")
	p.WriteIdent(s.desc.Table())
	if len(s.cols) == 0 {
		p.WriteString(" DEFAULT VALUES")
	} else {
		p.WriteString(" (")
		for i, c := range s.cols {
			if i > 0 {
				p.WriteString(", ")
			}
			p.WriteIdent(c)
		}
		p.WriteString(") VALUES ")
		for i, row := range s.rows {
			if i > 0 {
				p.WriteString(", ")
			}
			if err := ast.Tuple(row).Render(p, ""); err != nil {
				return err
			}
		}
	}
	if len(s.returning) > 0 {
		p.WriteString(" RETURNING ")
		for i, c := range s.returning {
			if i > 0 {
				p.WriteString(", ")
			}
			p.WriteIdent(c)
		}
	}
	return nil
}

// Prepare renders the statement. With RETURNING the operation is a query.
func (s *InsertStmt) Prepare() (*prepare.Operation, error) {
	if len(s.returning) > 0 {
		return s.b.prepare(prepare.KindQuery, s, s.returning)
	}
	return s.b.prepare(prepare.KindExec, s, nil)
}

// valueToken binds v as a literal, passing tokens through.
func valueToken(v any) prepare.Token {
	if t, ok := v.(prepare.Token); ok {
		return t
	}
	return ast.Const{Value: v}
}

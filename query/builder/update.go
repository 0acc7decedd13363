package builder

import (
	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/model"
	"github.com/satishbabariya/sqlforge/query/expr"
	"github.com/satishbabariya/sqlforge/query/prepare"
	"github.com/satishbabariya/sqlforge/query/translate"
)

type assignment struct {
	col   string
	value any
}

// UpdateStmt is an UPDATE statement.
type UpdateStmt struct {
	b     *Builder
	desc  *model.EntityDescriptor
	sets  []assignment
	where where
	all   bool
	err   error
}

var _ prepare.Statement = (*UpdateStmt)(nil)

// Update starts an UPDATE of desc.
func (b *Builder) Update(desc *model.EntityDescriptor) *UpdateStmt {
	return &UpdateStmt{b: b, desc: desc}
}

// Set assigns value to the column or property col. value may be a host value, a token or an
// expression node evaluated against the current row.
func (s *UpdateStmt) Set(col string, value any) *UpdateStmt {
	c := s.desc.Property(col)
	if c == nil {
		if s.err == nil {
			s.err = dberr.Compilef("update", dberr.ErrUnknownProperty, "%s has no column %s", s.desc.Table(), col)
		}
		return s
	}
	s.sets = append(s.sets, assignment{col: c.Name, value: value})
	return s
}

// SetEntity assigns every non-key column from the entity and restricts the update to its
// primary key.
func (s *UpdateStmt) SetEntity(v any) *UpdateStmt {
	pk := s.desc.PrimaryKey()
	if pk == nil {
		if s.err == nil {
			s.err = dberr.Compile("update", s.desc.Table(), dberr.ErrMissingPrimaryKey)
		}
		return s
	}
	ptr, err := entityValue(s.desc, v)
	if err == nil {
		var key any
		if key, err = pk.Get(ptr); err == nil {
			for _, c := range s.desc.Columns() {
				if c == pk {
					continue
				}
				var val any
				if val, err = c.Get(ptr); err != nil {
					break
				}
				s.sets = append(s.sets, assignment{col: c.Name, value: val})
			}
			s.Where(expr.Eq(expr.Prop(pk.Name), expr.Val(key)))
		}
	}
	if err != nil && s.err == nil {
		s.err = dberr.Compile("update", s.desc.Table(), err)
	}
	return s
}

// Where adds a predicate, combined with earlier ones by AND.
func (s *UpdateStmt) Where(n expr.Node) *UpdateStmt {
	s.where.and(n)
	return s
}

// OrWhere adds a predicate, combined with earlier ones by OR.
func (s *UpdateStmt) OrWhere(n expr.Node) *UpdateStmt {
	s.where.or(n)
	return s
}

// WhereExpr parses src and adds it as a predicate combined by AND.
func (s *UpdateStmt) WhereExpr(src string, binds expr.Bindings) *UpdateStmt {
	if n, ok := s.where.parse(src, binds); ok {
		s.where.and(n)
	}
	return s
}

// All allows the update to touch every row.
func (s *UpdateStmt) All() *UpdateStmt {
	s.all = true
	return s
}

// Build implements prepare.Statement.
func (s *UpdateStmt) Build(p *prepare.Preparator) error {
	switch {
	case s.err != nil:
		return s.err
	case s.where.err != nil:
		return s.where.err
	case len(s.sets) == 0:
		return dberr.Compilef("update", dberr.ErrMismatchedValues, "%s: no assignments", s.desc.Table())
	case s.where.node == nil && !s.all:
		return dberr.Compile("update", s.desc.Table(), dberr.ErrUnboundedStatement)
	}
	scope := translate.NewScope(s.desc, "").Within(translate.Enclosing(p))
	defer p.EnterScope(p.EnterScope(scope))
	p.WriteString("UPDATE ")
	p.WriteIdent(s.desc.Table())
	p.WriteString(" SET ")
	for i, a := range s.sets {
		if i > 0 {
			p.WriteString(", ")
		}
		p.WriteIdent(a.col)
		p.WriteString(" = ")
		if n, ok := a.value.(expr.Node); ok {
			if err := translate.New(p, scope).Translate(n); err != nil {
				return err
			}
			continue
		}
		if err := valueToken(a.value).Render(p, ""); err != nil {
			return err
		}
	}
	return s.where.build(p, scope)
}

// Prepare renders the statement.
func (s *UpdateStmt) Prepare() (*prepare.Operation, error) {
	return s.b.prepare(prepare.KindExec, s, nil)
}

// DeleteStmt is a DELETE statement.
type DeleteStmt struct {
	b     *Builder
	desc  *model.EntityDescriptor
	where where
	all   bool
}

var _ prepare.Statement = (*DeleteStmt)(nil)

// Delete starts a DELETE from desc.
func (b *Builder) Delete(desc *model.EntityDescriptor) *DeleteStmt {
	return &DeleteStmt{b: b, desc: desc}
}

// Where adds a predicate, combined with earlier ones by AND.
func (s *DeleteStmt) Where(n expr.Node) *DeleteStmt {
	s.where.and(n)
	return s
}

// OrWhere adds a predicate, combined with earlier ones by OR.
func (s *DeleteStmt) OrWhere(n expr.Node) *DeleteStmt {
	s.where.or(n)
	return s
}

// WhereExpr parses src and adds it as a predicate combined by AND.
func (s *DeleteStmt) WhereExpr(src string, binds expr.Bindings) *DeleteStmt {
	if n, ok := s.where.parse(src, binds); ok {
		s.where.and(n)
	}
	return s
}

// All allows the delete to remove every row.
func (s *DeleteStmt) All() *DeleteStmt {
	s.all = true
	return s
}

// Build implements prepare.Statement.
func (s *DeleteStmt) Build(p *prepare.Preparator) error {
	if s.where.err != nil {
		return s.where.err
	}
	if s.where.node == nil && !s.all {
		return dberr.Compile("delete", s.desc.Table(), dberr.ErrUnboundedStatement)
	}
	scope := translate.NewScope(s.desc, "").Within(translate.Enclosing(p))
	defer p.EnterScope(p.EnterScope(scope))
	p.WriteString("DELETE FROM ")
	p.WriteIdent(s.desc.Table())
	return s.where.build(p, scope)
}

// Prepare renders the statement.
func (s *DeleteStmt) Prepare() (*prepare.Operation, error) {
	return s.b.prepare(prepare.KindExec, s, nil)
}

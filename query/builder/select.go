package builder

import (
	"slices"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/model"
	"github.com/satishbabariya/sqlforge/query/ast"
	"github.com/satishbabariya/sqlforge/query/expr"
	"github.com/satishbabariya/sqlforge/query/prepare"
	"github.com/satishbabariya/sqlforge/query/translate"
)

type joinKind string

const (
	innerJoin joinKind = "JOIN"
	leftJoin  joinKind = "LEFT JOIN"
)

type join struct {
	kind  joinKind
	desc  *model.EntityDescriptor
	alias string
	on    expr.Node
}

// SelectStmt is a SELECT statement. It also serves as a subquery: pass it to expr.In,
// expr.Val or ast.SubQuery.
type SelectStmt struct {
	b        *Builder
	desc     *model.EntityDescriptor
	alias    string
	distinct bool
	proj     []any
	joins    []join
	where    where
	groupBy  []any
	having   where
	orderBy  []orderItem
	limit    *int64
	offset   *int64
}

type orderItem struct {
	item any
	desc bool
}

var _ prepare.Statement = (*SelectStmt)(nil)

// Select starts a SELECT over desc, projecting every column by default.
func (b *Builder) Select(desc *model.EntityDescriptor) *SelectStmt {
	return &SelectStmt{b: b, desc: desc}
}

// Load starts a SELECT over the entity type T.
func Load[T any](b *Builder) (*SelectStmt, error) {
	d, err := model.Of[T](b.reg)
	if err != nil {
		return nil, err
	}
	return b.Select(d), nil
}

// Entity returns the root descriptor.
func (s *SelectStmt) Entity() *model.EntityDescriptor { return s.desc }

// Alias qualifies the root table and its columns with alias.
func (s *SelectStmt) Alias(alias string) *SelectStmt {
	s.alias = alias
	return s
}

// Columns projects the named properties or columns of the root entity.
func (s *SelectStmt) Columns(names ...string) *SelectStmt {
	for _, n := range names {
		s.proj = append(s.proj, n)
	}
	return s
}

// Project appends projection items: tokens, expression nodes or property names.
func (s *SelectStmt) Project(items ...any) *SelectStmt {
	s.proj = append(s.proj, items...)
	return s
}

// Distinct makes the projection SELECT DISTINCT.
func (s *SelectStmt) Distinct() *SelectStmt {
	s.distinct = true
	return s
}

// Join adds an inner join of desc as alias.
func (s *SelectStmt) Join(desc *model.EntityDescriptor, alias string, on expr.Node) *SelectStmt {
	s.joins = append(s.joins, join{kind: innerJoin, desc: desc, alias: alias, on: on})
	return s
}

// LeftJoin adds a left outer join of desc as alias.
func (s *SelectStmt) LeftJoin(desc *model.EntityDescriptor, alias string, on expr.Node) *SelectStmt {
	s.joins = append(s.joins, join{kind: leftJoin, desc: desc, alias: alias, on: on})
	return s
}

// Where adds a predicate, combined with earlier ones by AND.
func (s *SelectStmt) Where(n expr.Node) *SelectStmt {
	s.where.and(n)
	return s
}

// OrWhere adds a predicate, combined with earlier ones by OR.
func (s *SelectStmt) OrWhere(n expr.Node) *SelectStmt {
	s.where.or(n)
	return s
}

// WhereExpr parses src and adds it as a predicate combined by AND. Parse errors surface from
// Prepare.
func (s *SelectStmt) WhereExpr(src string, binds expr.Bindings) *SelectStmt {
	if n, ok := s.where.parse(src, binds); ok {
		s.where.and(n)
	}
	return s
}

// GroupBy appends grouping items.
func (s *SelectStmt) GroupBy(items ...any) *SelectStmt {
	s.groupBy = append(s.groupBy, items...)
	return s
}

// Having adds a group predicate, combined with earlier ones by AND.
func (s *SelectStmt) Having(n expr.Node) *SelectStmt {
	s.having.and(n)
	return s
}

// OrderBy appends ascending ordering items.
func (s *SelectStmt) OrderBy(items ...any) *SelectStmt {
	for _, it := range items {
		s.orderBy = append(s.orderBy, orderItem{item: it})
	}
	return s
}

// OrderByDesc appends descending ordering items.
func (s *SelectStmt) OrderByDesc(items ...any) *SelectStmt {
	for _, it := range items {
		s.orderBy = append(s.orderBy, orderItem{item: it, desc: true})
	}
	return s
}

// Limit bounds the number of rows.
func (s *SelectStmt) Limit(n int64) *SelectStmt {
	s.limit = &n
	return s
}

// Offset skips rows.
func (s *SelectStmt) Offset(n int64) *SelectStmt {
	s.offset = &n
	return s
}

// Count returns a statement counting the rows s would return, ignoring order and window.
func (s *SelectStmt) Count() *SelectStmt {
	c := *s
	c.joins = slices.Clone(s.joins)
	c.groupBy = slices.Clone(s.groupBy)
	c.proj = []any{prepare.Token(ast.Count)}
	c.distinct = false
	c.orderBy = nil
	c.limit, c.offset = nil, nil
	return &c
}

// Scope returns the alias scope predicates of s are translated in.
func (s *SelectStmt) Scope() *translate.Scope {
	scope := translate.NewScope(s.desc, s.rootAlias())
	for _, j := range s.joins {
		scope.Join(j.alias, j.desc)
	}
	return scope
}

// rootAlias qualifies the root table with its own name once joins make columns ambiguous.
func (s *SelectStmt) rootAlias() string {
	if s.alias == "" && len(s.joins) > 0 {
		return s.desc.Table()
	}
	return s.alias
}

// Build implements prepare.Statement.
func (s *SelectStmt) Build(p *prepare.Preparator) error {
	if s.where.err != nil {
		return s.where.err
	}
	if s.desc == nil {
		return dberr.Compile("select", "no entity", dberr.ErrInvalidModel)
	}
	scope := s.Scope().Within(translate.Enclosing(p))
	defer p.EnterScope(p.EnterScope(scope))
	alias := s.rootAlias()

	p.WriteString("SELECT ")
	if s.distinct {
		p.WriteString("DISTINCT ")
	}
	proj, _, err := s.projection(scope, alias)
	if err != nil {
		return err
	}
	if err := p.WriteTokens(proj, ", ", ""); err != nil {
		return err
	}

	p.WriteString(" FROM ")
	p.WriteIdent(s.desc.Table())
	if s.alias != "" {
		p.WriteString(" AS ")
		p.WriteIdent(s.alias)
	}

	for _, j := range s.joins {
		p.WriteString(" " + string(j.kind) + " ")
		p.WriteIdent(j.desc.Table())
		p.WriteString(" AS ")
		p.WriteIdent(j.alias)
		if j.on == nil {
			return dberr.Compilef("select", dberr.ErrUnsupported, "join %s without ON predicate", j.alias)
		}
		p.WriteString(" ON ")
		if err := translate.New(p, scope).Translate(j.on); err != nil {
			return err
		}
	}

	if err := s.where.build(p, scope); err != nil {
		return err
	}

	if len(s.groupBy) > 0 {
		p.WriteString(" GROUP BY ")
		for i, it := range s.groupBy {
			if i > 0 {
				p.WriteString(", ")
			}
			t, _, err := token(scope, it)
			if err != nil {
				return err
			}
			if err := t.Render(p, ""); err != nil {
				return err
			}
		}
	}
	if s.having.err != nil {
		return s.having.err
	}
	if s.having.node != nil {
		p.WriteString(" HAVING ")
		if err := translate.New(p, scope).Translate(s.having.node); err != nil {
			return err
		}
	}

	if len(s.orderBy) > 0 {
		p.WriteString(" ORDER BY ")
		for i, o := range s.orderBy {
			if i > 0 {
				p.WriteString(", ")
			}
			t, _, err := token(scope, o.item)
			if err != nil {
				return err
			}
			if err := (ast.Order{Expr: t, Desc: o.desc}).Render(p, ""); err != nil {
				return err
			}
		}
	}

	if s.limit != nil || s.offset != nil {
		p.WriteString(" ")
		if err := (ast.LimitOffset{Limit: s.limit, Offset: s.offset}).Render(p, ""); err != nil {
			return err
		}
	}
	return nil
}

func (s *SelectStmt) projection(scope *translate.Scope, alias string) ([]prepare.Token, []string, error) {
	if len(s.proj) == 0 {
		return ast.Columns(s.desc, alias), s.desc.ColumnNames(), nil
	}
	toks := make([]prepare.Token, len(s.proj))
	names := make([]string, len(s.proj))
	for i, it := range s.proj {
		t, name, err := token(scope, it)
		if err != nil {
			return nil, nil, err
		}
		toks[i], names[i] = t, name
	}
	return toks, names, nil
}

// Prepare renders the statement.
func (s *SelectStmt) Prepare() (*prepare.Operation, error) {
	_, names, err := s.projection(s.Scope(), s.rootAlias())
	if err != nil {
		return nil, err
	}
	return s.b.prepare(prepare.KindQuery, s, names)
}

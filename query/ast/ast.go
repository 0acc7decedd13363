// Package ast defines the SQL token tree statements are composed of.
//
// Every token renders itself into a prepare.Preparator. Tokens are immutable once built and
// are owned by the statement that composed them, except SubQuery and Exists which reference
// another statement. Products that spell a construct differently (membership against an array,
// case folding, pattern matching, concatenation, casts, limit/offset) are handled by the
// dialect hooks the matching tokens call; no token renders product-specific SQL itself.
package ast

import (
	"reflect"
	"strings"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/dialect"
	"github.com/satishbabariya/sqlforge/model"
	"github.com/satishbabariya/sqlforge/query/prepare"
)

// Token is re-exported from prepare so statement code only needs this package.
type Token = prepare.Token

// fn adapts a token to a dialect render callback.
func fn(p *prepare.Preparator, alias string, t Token) dialect.RenderFunc {
	return func() error { return t.Render(p, alias) }
}

func fns(p *prepare.Preparator, alias string, ts []Token) []dialect.RenderFunc {
	out := make([]dialect.RenderFunc, len(ts))
	for i, t := range ts {
		out[i] = fn(p, alias, t)
	}
	return out
}

// Const is a literal value bound as a parameter. A nil value renders NULL.
type Const struct {
	Value any
}

// Render implements Token.
func (c Const) Render(p *prepare.Preparator, _ string) error {
	if c.Value == nil {
		p.WriteString("NULL")
		return nil
	}
	p.AddParam(c.Value)
	return nil
}

// Raw is trusted SQL text such as a keyword or "*".
type Raw string

// Render implements Token.
func (r Raw) Render(p *prepare.Preparator, _ string) error {
	p.WriteString(string(r))
	return nil
}

// Star is SELECT *.
const Star = Raw("*")

// Column references a column by name. Alias, when set, overrides the render alias.
type Column struct {
	Name  string
	Alias string
}

// Render implements Token.
func (c Column) Render(p *prepare.Preparator, alias string) error {
	if c.Alias != "" {
		alias = c.Alias
	}
	p.WriteColumn(alias, c.Name)
	return nil
}

// Columns returns one Column per descriptor column, in projection order.
func Columns(d *model.EntityDescriptor, alias string) []Token {
	out := make([]Token, 0, len(d.Columns()))
	for _, c := range d.Columns() {
		out = append(out, Column{Name: c.Name, Alias: alias})
	}
	return out
}

// Property references a column through its Go field name. Entity may be left nil when Type
// is set; the descriptor is then resolved through the preparator's registry.
type Property struct {
	Entity *model.EntityDescriptor
	Type   reflect.Type
	Field  string
	Alias  string
}

// Render implements Token.
func (pr Property) Render(p *prepare.Preparator, alias string) error {
	col, err := pr.Resolve(p.Registry())
	if err != nil {
		return err
	}
	return Column{Name: col.Name, Alias: pr.Alias}.Render(p, alias)
}

// Resolve finds the referenced column.
func (pr Property) Resolve(reg *model.Registry) (*model.ColumnDescriptor, error) {
	d := pr.Entity
	if d == nil {
		if pr.Type == nil || reg == nil {
			return nil, dberr.Compile("render", "property "+pr.Field, dberr.ErrUnknownProperty)
		}
		var err error
		if d, err = reg.Describe(pr.Type); err != nil {
			return nil, err
		}
	}
	col := d.Property(pr.Field)
	if col == nil {
		return nil, dberr.Compilef("render", dberr.ErrUnknownProperty, "%s.%s", d.Table(), pr.Field)
	}
	return col, nil
}

// Param is an indexed placeholder resolved from the execution arguments.
type Param struct {
	Index   int
	Convert func(any) (any, error)
}

// Render implements Token.
func (pa Param) Render(p *prepare.Preparator, _ string) error {
	p.AddIndexedParam(pa.Index, pa.Convert)
	return nil
}

// Func is a scalar or aggregate function call. LOWER and UPPER go through the dialect's
// case-fold hook.
type Func struct {
	Name     string
	Args     []Token
	Distinct bool
}

// Count is COUNT(*).
var Count = Func{Name: "COUNT", Args: []Token{Star}}

// Render implements Token.
func (f Func) Render(p *prepare.Preparator, alias string) error {
	name := strings.ToUpper(f.Name)
	if (name == "LOWER" || name == "UPPER") && len(f.Args) == 1 && !f.Distinct {
		return p.Dialect().RenderFold(p, name, fn(p, alias, f.Args[0]))
	}
	p.WriteString(name + "(")
	if f.Distinct {
		p.WriteString("DISTINCT ")
	}
	if err := p.WriteTokens(f.Args, ", ", alias); err != nil {
		return err
	}
	p.WriteString(")")
	return nil
}

// Cast converts Arg to a semantic type through the dialect.
type Cast struct {
	Arg  Token
	Type model.Type
}

// Render implements Token.
func (c Cast) Render(p *prepare.Preparator, alias string) error {
	return p.Dialect().RenderCast(p, fn(p, alias, c.Arg), c.Type)
}

// operatorOf returns the operator a token binds with as an operand.
func operatorOf(t Token) (Operator, bool) {
	switch x := t.(type) {
	case Binary:
		return x.Op, true
	case *Binary:
		return x.Op, true
	case Unary:
		return x.Op, true
	case *Unary:
		return x.Op, true
	case Like, In:
		return OpEq, true
	}
	return 0, false
}

// Operand renders t as an operand of parent, adding parentheses only when required.
func Operand(p *prepare.Preparator, alias string, parent Operator, t Token, right bool) error {
	if op, ok := operatorOf(t); ok && NeedsParens(parent, op, right) {
		p.WriteString("(")
		if err := t.Render(p, alias); err != nil {
			return err
		}
		p.WriteString(")")
		return nil
	}
	return t.Render(p, alias)
}

// Binary is a binary operator application.
type Binary struct {
	Op          Operator
	Left, Right Token
}

// Render implements Token.
func (b Binary) Render(p *prepare.Preparator, alias string) error {
	if err := Operand(p, alias, b.Op, b.Left, false); err != nil {
		return err
	}
	p.WriteString(" " + b.Op.SQL() + " ")
	return Operand(p, alias, b.Op, b.Right, true)
}

// And joins predicates with AND, skipping nil entries. It returns nil for no predicates.
func And(ts ...Token) Token { return chain(OpAnd, ts) }

// Or joins predicates with OR, skipping nil entries.
func Or(ts ...Token) Token { return chain(OpOr, ts) }

func chain(op Operator, ts []Token) Token {
	var out Token
	for _, t := range ts {
		if t == nil {
			continue
		}
		if out == nil {
			out = t
			continue
		}
		out = Binary{Op: op, Left: out, Right: t}
	}
	return out
}

// Unary is NOT or arithmetic negation.
type Unary struct {
	Op      Operator
	Operand Token
}

// Render implements Token.
func (u Unary) Render(p *prepare.Preparator, alias string) error {
	if u.Op == OpNot {
		p.WriteString("NOT ")
	} else {
		p.WriteString(u.Op.SQL())
	}
	return Operand(p, alias, u.Op, u.Operand, true)
}

// When is one branch of a Case.
type When struct {
	Cond, Then Token
}

// Case is CASE WHEN ... THEN ... ELSE ... END.
type Case struct {
	Whens []When
	Else  Token
}

// Render implements Token.
func (c Case) Render(p *prepare.Preparator, alias string) error {
	if len(c.Whens) == 0 {
		return dberr.Compile("render", "CASE without WHEN", dberr.ErrUnsupported)
	}
	p.WriteString("CASE")
	for _, w := range c.Whens {
		p.WriteString(" WHEN ")
		if err := w.Cond.Render(p, alias); err != nil {
			return err
		}
		p.WriteString(" THEN ")
		if err := w.Then.Render(p, alias); err != nil {
			return err
		}
	}
	if c.Else != nil {
		p.WriteString(" ELSE ")
		if err := c.Else.Render(p, alias); err != nil {
			return err
		}
	}
	p.WriteString(" END")
	return nil
}

// Over is a window function application.
type Over struct {
	Func        Token
	PartitionBy []Token
	OrderBy     []Token
}

// Render implements Token.
func (o Over) Render(p *prepare.Preparator, alias string) error {
	if err := o.Func.Render(p, alias); err != nil {
		return err
	}
	p.WriteString(" OVER (")
	if len(o.PartitionBy) > 0 {
		p.WriteString("PARTITION BY ")
		if err := p.WriteTokens(o.PartitionBy, ", ", alias); err != nil {
			return err
		}
	}
	if len(o.OrderBy) > 0 {
		if len(o.PartitionBy) > 0 {
			p.WriteString(" ")
		}
		p.WriteString("ORDER BY ")
		if err := p.WriteTokens(o.OrderBy, ", ", alias); err != nil {
			return err
		}
	}
	p.WriteString(")")
	return nil
}

// LimitOffset renders the row window through the dialect. Nil fields are omitted.
type LimitOffset struct {
	Limit, Offset *int64
}

// Render implements Token.
func (l LimitOffset) Render(p *prepare.Preparator, _ string) error {
	if l.Limit == nil && l.Offset == nil {
		return nil
	}
	return p.Dialect().RenderLimit(p, l.Limit, l.Offset)
}

// Tuple is a parenthesized comma-separated list.
type Tuple []Token

// Render implements Token.
func (t Tuple) Render(p *prepare.Preparator, alias string) error {
	p.WriteString("(")
	if err := p.WriteTokens(t, ", ", alias); err != nil {
		return err
	}
	p.WriteString(")")
	return nil
}

// List is an unparenthesized comma-separated list.
type List []Token

// Render implements Token.
func (l List) Render(p *prepare.Preparator, alias string) error {
	return p.WriteTokens(l, ", ", alias)
}

// Block parenthesizes a single token.
type Block struct {
	Inner Token
}

// Render implements Token.
func (b Block) Render(p *prepare.Preparator, alias string) error {
	p.WriteString("(")
	if err := b.Inner.Render(p, alias); err != nil {
		return err
	}
	p.WriteString(")")
	return nil
}

// Alias names an expression in a projection.
type Alias struct {
	Expr Token
	Name string
}

// Render implements Token.
func (a Alias) Render(p *prepare.Preparator, alias string) error {
	if err := a.Expr.Render(p, alias); err != nil {
		return err
	}
	p.WriteString(" AS ")
	p.WriteIdent(a.Name)
	return nil
}

// Order is an ORDER BY term.
type Order struct {
	Expr Token
	Desc bool
}

// Render implements Token.
func (o Order) Render(p *prepare.Preparator, alias string) error {
	if err := o.Expr.Render(p, alias); err != nil {
		return err
	}
	if o.Desc {
		p.WriteString(" DESC")
	} else {
		p.WriteString(" ASC")
	}
	return nil
}

// In is a membership test. Exactly one of Items, Array and Query is used: a literal list,
// one array-valued parameter, or a subquery.
type In struct {
	Left  Token
	Items []Token
	Array Token
	Query prepare.Statement
	Not   bool
}

// Render implements Token.
func (in In) Render(p *prepare.Preparator, alias string) error {
	d := p.Dialect()
	left := func() error { return Operand(p, alias, OpEq, in.Left, false) }
	switch {
	case in.Query != nil:
		if err := left(); err != nil {
			return err
		}
		if in.Not {
			p.WriteString(" NOT")
		}
		p.WriteString(" IN ")
		return SubQuery{Stmt: in.Query}.Render(p, alias)
	case in.Array != nil:
		if !d.Capabilities().ArrayParams {
			return dberr.Compilef("render", dberr.ErrUnsupported, "%s has no array parameters", d.Name())
		}
		return d.RenderInArray(p, left, fn(p, alias, in.Array), in.Not)
	default:
		return d.RenderIn(p, left, fns(p, alias, in.Items), in.Not)
	}
}

// Like is a pattern match through the dialect.
type Like struct {
	Left, Pattern   Token
	CaseInsensitive bool
	Not             bool
}

// Render implements Token.
func (l Like) Render(p *prepare.Preparator, alias string) error {
	left := func() error { return Operand(p, alias, OpEq, l.Left, false) }
	pattern := func() error { return Operand(p, alias, OpEq, l.Pattern, true) }
	return p.Dialect().RenderLike(p, left, pattern, l.CaseInsensitive, l.Not)
}

// Concat is string concatenation through the dialect.
type Concat []Token

// Render implements Token.
func (c Concat) Render(p *prepare.Preparator, alias string) error {
	return p.Dialect().RenderConcat(p, fns(p, alias, c))
}

// Exists is EXISTS (subquery).
type Exists struct {
	Query prepare.Statement
	Not   bool
}

// Render implements Token.
func (e Exists) Render(p *prepare.Preparator, alias string) error {
	if e.Not {
		p.WriteString("NOT ")
	}
	p.WriteString("EXISTS ")
	return SubQuery{Stmt: e.Query}.Render(p, alias)
}

// SubQuery renders another statement in parentheses. The statement is referenced, not
// copied, and shares the enclosing parameter numbering.
type SubQuery struct {
	Stmt prepare.Statement
}

// Render implements Token.
func (s SubQuery) Render(p *prepare.Preparator, _ string) error {
	if s.Stmt == nil {
		return dberr.Compile("render", "empty subquery", dberr.ErrUnsupported)
	}
	p.WriteString("(")
	if err := s.Stmt.Build(p); err != nil {
		return err
	}
	p.WriteString(")")
	return nil
}

// Package translate compiles expression trees into SQL.
//
// A Translator walks an expr.Node and streams text and parameters into a prepare.Preparator
// in one pass. Equality against NULL is rewritten to IS [NOT] NULL once the right operand is
// known, parentheses are written only where precedence requires them, execution arguments
// become indexed slots, and subtrees that only involve host values are evaluated up front and
// bound as a single parameter.
package translate

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/model"
	"github.com/satishbabariya/sqlforge/query/ast"
	"github.com/satishbabariya/sqlforge/query/expr"
	"github.com/satishbabariya/sqlforge/query/prepare"
)

// Translator compiles expressions into one preparator.
type Translator struct {
	p       *prepare.Preparator
	scope   *Scope
	pending *expr.Op
}

// New returns a translator writing into p with property references resolved in scope.
func New(p *prepare.Preparator, scope *Scope) *Translator {
	return &Translator{p: p, scope: scope}
}

// Translate compiles n.
func (t *Translator) Translate(n expr.Node) error {
	if n == nil {
		return dberr.Compile("translate", "nil expression", dberr.ErrUnsupported)
	}
	return t.emit(n, 0, false)
}

// Expr wraps n as a token compiled when the statement renders.
func Expr(scope *Scope, n expr.Node) prepare.Token {
	return exprToken{scope: scope, n: n}
}

type exprToken struct {
	scope *Scope
	n     expr.Node
}

func (e exprToken) Render(p *prepare.Preparator, _ string) error {
	return New(p, e.scope).Translate(e.n)
}

// operand adapts a subtree to a token rendered at a given operand position.
type operand struct {
	t      *Translator
	n      expr.Node
	parent ast.Operator
	right  bool
}

func (o operand) Render(*prepare.Preparator, string) error {
	return o.t.emit(o.n, o.parent, o.right)
}

func (t *Translator) arg(n expr.Node) prepare.Token { return operand{t: t, n: n} }

func (t *Translator) side(n expr.Node, right bool) prepare.Token {
	return operand{t: t, n: n, parent: ast.OpEq, right: right}
}

var binaryOps = map[expr.Op]ast.Operator{
	expr.OpOr:  ast.OpOr,
	expr.OpAnd: ast.OpAnd,
	expr.OpEq:  ast.OpEq,
	expr.OpNe:  ast.OpNe,
	expr.OpLt:  ast.OpLt,
	expr.OpLe:  ast.OpLe,
	expr.OpGt:  ast.OpGt,
	expr.OpGe:  ast.OpGe,
	expr.OpAdd: ast.OpAdd,
	expr.OpSub: ast.OpSub,
	expr.OpMul: ast.OpMul,
	expr.OpDiv: ast.OpDiv,
	expr.OpMod: ast.OpMod,
}

// host evaluates n when it is a host-only subtree.
func host(n expr.Node) (any, bool, error) {
	if _, ok := n.(expr.ArrayLiteral); ok {
		return nil, false, nil
	}
	return expr.EvalHost(n)
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map:
		return rv.IsNil()
	}
	return false
}

func (t *Translator) emit(n expr.Node, parent ast.Operator, right bool) error {
	v, isHost, err := host(n)
	if err != nil {
		return err
	}
	if t.pending != nil {
		t.commit(isHost && isNull(v))
	}
	if isHost {
		return t.value(v)
	}

	switch x := n.(type) {
	case expr.PropertyRef:
		b, col, err := t.scope.Column(x.Alias, x.Name)
		if err != nil {
			return err
		}
		t.p.WriteColumn(b.Alias, col.Name)
		return nil
	case expr.ParameterRef:
		t.p.AddIndexedParam(x.Index, nil)
		return nil
	case expr.BinaryOp:
		return t.binary(x, parent, right)
	case expr.UnaryOp:
		return t.unary(x, parent, right)
	case expr.Call:
		return t.call(x, parent, right)
	case expr.Subquery:
		return ast.SubQuery{Stmt: x.Stmt}.Render(t.p, "")
	case expr.ArrayLiteral:
		return dberr.Compile("translate", x.String(), fmt.Errorf("%w: collection outside a membership test", dberr.ErrUnsupported))
	}
	return dberr.Compile("translate", n.String(), dberr.ErrUnsupported)
}

// commit writes the pending equality operator now that the right operand is known.
func (t *Translator) commit(null bool) {
	op := *t.pending
	t.pending = nil
	switch {
	case op == expr.OpEq && null:
		t.p.WriteString(" IS ")
	case op == expr.OpEq:
		t.p.WriteString(" = ")
	case null:
		t.p.WriteString(" IS NOT ")
	default:
		t.p.WriteString(" <> ")
	}
}

func (t *Translator) value(v any) error {
	if isNull(v) {
		t.p.WriteString("NULL")
		return nil
	}
	if isCollection(v) {
		return dberr.Compilef("translate", dberr.ErrUnsupported, "collection %T outside a membership test", v)
	}
	t.p.AddParam(v)
	return nil
}

func isCollection(v any) bool {
	switch v.(type) {
	case []byte, string:
		return false
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func (t *Translator) open(parent, op ast.Operator, right bool) func() {
	if parent == 0 || !ast.NeedsParens(parent, op, right) {
		return func() {}
	}
	t.p.WriteString("(")
	return func() { t.p.WriteString(")") }
}

func (t *Translator) binary(x expr.BinaryOp, parent ast.Operator, right bool) error {
	op, ok := binaryOps[x.Op]
	if !ok {
		return dberr.Compilef("translate", dberr.ErrUnsupported, "operator %s", x.Op)
	}
	closer := t.open(parent, op, right)
	if x.Op == expr.OpEq || x.Op == expr.OpNe {
		if err := t.equality(x, op); err != nil {
			return err
		}
	} else {
		if err := t.emit(x.Left, op, false); err != nil {
			return err
		}
		t.p.WriteString(" " + op.SQL() + " ")
		if err := t.emit(x.Right, op, true); err != nil {
			return err
		}
	}
	closer()
	return nil
}

// equality defers the operator until the right operand is rendered. A null left operand is
// moved to the right so the NULL test reads column IS NULL.
func (t *Translator) equality(x expr.BinaryOp, op ast.Operator) error {
	l, r := x.Left, x.Right
	lv, lHost, err := host(l)
	if err != nil {
		return err
	}
	if lHost && isNull(lv) {
		l, r = r, l
	}
	if err := t.emit(l, op, false); err != nil {
		return err
	}
	pending := x.Op
	t.pending = &pending
	return t.emit(r, op, true)
}

func (t *Translator) unary(x expr.UnaryOp, parent ast.Operator, right bool) error {
	switch x.Op {
	case expr.OpNot:
		if c, ok := x.Operand.(expr.Call); ok {
			switch c.Kind {
			case expr.CallIn, expr.CallLike, expr.CallILike, expr.CallContains, expr.CallStartsWith, expr.CallEndsWith:
				closer := t.open(parent, ast.OpEq, right)
				if err := t.predicateCall(c, true); err != nil {
					return err
				}
				closer()
				return nil
			}
		}
		closer := t.open(parent, ast.OpNot, right)
		t.p.WriteString("NOT ")
		if err := t.emit(x.Operand, ast.OpNot, true); err != nil {
			return err
		}
		closer()
		return nil
	case expr.OpNeg:
		closer := t.open(parent, ast.OpNeg, right)
		t.p.WriteString("-")
		if err := t.emit(x.Operand, ast.OpNeg, true); err != nil {
			return err
		}
		closer()
		return nil
	}
	return dberr.Compilef("translate", dberr.ErrUnsupported, "unary %s", x.Op)
}

func arity(c expr.Call, n int) error {
	if len(c.Args) != n {
		return dberr.Compilef("translate", dberr.ErrUnsupported, "%s takes %d argument(s), got %d", c.Kind, n, len(c.Args))
	}
	return nil
}

func (t *Translator) call(c expr.Call, parent ast.Operator, right bool) error {
	switch c.Kind {
	case expr.CallIn, expr.CallLike, expr.CallILike, expr.CallContains, expr.CallStartsWith, expr.CallEndsWith:
		closer := t.open(parent, ast.OpEq, right)
		if err := t.predicateCall(c, false); err != nil {
			return err
		}
		closer()
		return nil
	case expr.CallLower, expr.CallUpper, expr.CallMin, expr.CallMax, expr.CallSum, expr.CallAvg, expr.CallLength, expr.CallAbs:
		if err := arity(c, 1); err != nil {
			return err
		}
		name := strings.ToUpper(c.Kind.String())
		return ast.Func{Name: name, Args: []prepare.Token{t.arg(c.Args[0])}}.Render(t.p, "")
	case expr.CallCount:
		switch len(c.Args) {
		case 0:
			return ast.Count.Render(t.p, "")
		case 1:
			return ast.Func{Name: "COUNT", Args: []prepare.Token{t.arg(c.Args[0])}}.Render(t.p, "")
		}
		return arity(c, 1)
	case expr.CallCoalesce:
		if len(c.Args) < 2 {
			return dberr.Compilef("translate", dberr.ErrUnsupported, "coalesce takes at least 2 arguments, got %d", len(c.Args))
		}
		return ast.Func{Name: "COALESCE", Args: t.args(c.Args)}.Render(t.p, "")
	case expr.CallConcat:
		if len(c.Args) == 0 {
			return arity(c, 1)
		}
		return ast.Concat(t.args(c.Args)).Render(t.p, "")
	case expr.CallCast:
		if err := arity(c, 2); err != nil {
			return err
		}
		name, ok, err := host(c.Args[1])
		if err != nil {
			return err
		}
		s, isString := name.(string)
		if !ok || !isString {
			return dberr.Compile("translate", c.String(), fmt.Errorf("%w: cast target must be a constant type name", dberr.ErrUnsupported))
		}
		typ, err := model.ParseType(s)
		if err != nil {
			return dberr.Compile("translate", c.String(), fmt.Errorf("%w: %v", dberr.ErrUnsupported, err))
		}
		return ast.Cast{Arg: t.arg(c.Args[0]), Type: typ}.Render(t.p, "")
	case expr.CallParam:
		if err := arity(c, 1); err != nil {
			return err
		}
		v, ok, err := host(c.Args[0])
		if err != nil {
			return err
		}
		i, isInt := toIndex(v)
		if !ok || !isInt {
			return dberr.Compile("translate", c.String(), fmt.Errorf("%w: param index must be a constant integer", dberr.ErrUnsupported))
		}
		t.p.AddIndexedParam(i, nil)
		return nil
	}
	return dberr.Compile("translate", c.String(), dberr.ErrUnsupported)
}

func toIndex(v any) (int, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), rv.Int() >= 0
	}
	return 0, false
}

func (t *Translator) args(ns []expr.Node) []prepare.Token {
	out := make([]prepare.Token, len(ns))
	for i, n := range ns {
		out[i] = t.arg(n)
	}
	return out
}

// predicateCall renders the comparison-level helpers: membership and pattern matching.
func (t *Translator) predicateCall(c expr.Call, not bool) error {
	if err := arity(c, 2); err != nil {
		return err
	}
	switch c.Kind {
	case expr.CallIn:
		return t.in(c.Args[0], c.Args[1], not)
	case expr.CallLike, expr.CallILike:
		return ast.Like{
			Left:            t.side(c.Args[0], false),
			Pattern:         t.side(c.Args[1], true),
			CaseInsensitive: c.Kind == expr.CallILike,
			Not:             not,
		}.Render(t.p, "")
	}
	pattern, err := t.pattern(c.Kind, c.Args[1])
	if err != nil {
		return err
	}
	return ast.Like{Left: t.side(c.Args[0], false), Pattern: pattern, Not: not}.Render(t.p, "")
}

// in renders membership against an inline list, a host collection, an array-valued
// execution argument or a subquery.
func (t *Translator) in(lhs, set expr.Node, not bool) error {
	d := t.p.Dialect()
	left := t.side(lhs, false)
	switch x := set.(type) {
	case expr.ArrayLiteral:
		items := make([]prepare.Token, len(x.Items))
		for i, it := range x.Items {
			items[i] = t.arg(it)
		}
		return ast.In{Left: left, Items: items, Not: not}.Render(t.p, "")
	case expr.Subquery:
		return ast.In{Left: left, Query: x.Stmt, Not: not}.Render(t.p, "")
	case expr.ParameterRef:
		if !d.Capabilities().ArrayParams {
			return dberr.Compilef("translate", dberr.ErrUnsupported,
				"membership in argument $%d needs array parameters, which %s does not enable", x.Index, d.Name())
		}
		return ast.In{Left: left, Array: ast.Param{Index: x.Index, Convert: d.ArrayValue}, Not: not}.Render(t.p, "")
	}

	v, ok, err := host(set)
	if err != nil {
		return err
	}
	if !ok || !isCollection(v) {
		return dberr.Compile("translate", set.String(), fmt.Errorf("%w: membership needs a collection", dberr.ErrUnsupported))
	}
	if d.Capabilities().ArrayParams {
		arr, err := d.ArrayValue(v)
		if err != nil {
			return err
		}
		return ast.In{Left: left, Array: ast.Const{Value: arr}, Not: not}.Render(t.p, "")
	}
	rv := reflect.ValueOf(v)
	items := make([]prepare.Token, rv.Len())
	for i := range items {
		items[i] = ast.Const{Value: rv.Index(i).Interface()}
	}
	return ast.In{Left: left, Items: items, Not: not}.Render(t.p, "")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes the pattern metacharacters of s.
func EscapeLike(s string) string { return likeEscaper.Replace(s) }

func wrapPattern(kind expr.CallKind, s string) string {
	s = EscapeLike(s)
	switch kind {
	case expr.CallStartsWith:
		return s + "%"
	case expr.CallEndsWith:
		return "%" + s
	default:
		return "%" + s + "%"
	}
}

// pattern builds the LIKE pattern of contains, startsWith and endsWith: on the host for
// constants, at bind time for execution arguments, and in SQL for column values.
func (t *Translator) pattern(kind expr.CallKind, n expr.Node) (prepare.Token, error) {
	if p, ok := n.(expr.ParameterRef); ok {
		return ast.Param{Index: p.Index, Convert: func(v any) (any, error) {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%s pattern must be a string, got %T", kind, v)
			}
			return wrapPattern(kind, s), nil
		}}, nil
	}
	v, ok, err := host(n)
	if err != nil {
		return nil, err
	}
	if ok {
		s, isString := v.(string)
		if !isString {
			return nil, dberr.Compilef("translate", dberr.ErrUnsupported, "%s pattern must be a string, got %T", kind, v)
		}
		return ast.Const{Value: wrapPattern(kind, s)}, nil
	}
	parts := []prepare.Token{t.arg(n)}
	if kind != expr.CallStartsWith {
		parts = append([]prepare.Token{ast.Const{Value: "%"}}, parts...)
	}
	if kind != expr.CallEndsWith {
		parts = append(parts, ast.Const{Value: "%"})
	}
	return ast.Concat(parts), nil
}

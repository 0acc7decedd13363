package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/satishbabariya/sqlforge/dberr"
)

// Bindings supplies the host values referenced as :name in expression text.
type Bindings map[string]any

// exprLexer tokenizes expression text.
var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "Number", Pattern: `\d+(?:\.\d+)?(?:[eE][-+]?\d+)?`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"|'(?:\\.|[^'\\])*'`},
	{Name: "Param", Pattern: `\$\d+`},
	{Name: "Bind", Pattern: `:[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Operator", Pattern: `\|\||&&|==|!=|<=|>=|[-+*/%<>!]`},
	{Name: "Punct", Pattern: `[(),.\[\]]`},
})

type orAST struct {
	Left *andAST   `@@`
	Rest []*andAST `( "||" @@ )*`
}

type andAST struct {
	Left *cmpAST   `@@`
	Rest []*cmpAST `( "&&" @@ )*`
}

type cmpAST struct {
	Left  *addAST `@@`
	Op    string  `( @( "==" | "!=" | "<=" | ">=" | "<" | ">" )`
	Right *addAST `  @@ )?`
}

type addAST struct {
	Left *mulAST  `@@`
	Rest []*addOp `@@*`
}

type addOp struct {
	Op    string  `@( "+" | "-" )`
	Right *mulAST `@@`
}

type mulAST struct {
	Left *unaryAST `@@`
	Rest []*mulOp  `@@*`
}

type mulOp struct {
	Op    string    `@( "*" | "/" | "%" )`
	Right *unaryAST `@@`
}

type unaryAST struct {
	Op      string      `  ( @( "!" | "-" )`
	Operand *unaryAST   `    @@ )`
	Primary *primaryAST `| @@`
}

type primaryAST struct {
	Pos lexer.Position

	Null   bool      `  @( "null" | "nil" )`
	True   bool      `| @"true"`
	False  bool      `| @"false"`
	Number *string   `| @Number`
	String *string   `| @String`
	Param  *string   `| @Param`
	Bind   *bindAST  `| @@`
	Call   *callAST  `| @@`
	Array  *arrayAST `| @@`
	Path   []string  `| @Ident ( "." @Ident )*`
	Group  *orAST    `| "(" @@ ")"`
}

type bindAST struct {
	Name    string   `@Bind`
	Members []string `( "." @Ident )*`
}

type callAST struct {
	Pos  lexer.Position
	Name string   `@Ident "("`
	Args []*orAST `( @@ ( "," @@ )* )? ")"`
}

type arrayAST struct {
	Items []*orAST `"[" ( @@ ( "," @@ )* )? "]"`
}

var exprParser = participle.MustBuild[orAST](
	participle.Lexer(exprLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(3),
)

// Parse compiles expression text into a Node.
//
// The language has || && ! == != < <= > >= + - * / %, numbers, "strings" and 'strings',
// true, false, null (or nil), property paths (Name or x.Name), execution arguments ($0),
// bound host values with member chains (:cfg.Limits.Max), array literals ([1, 2]) and calls
// to the whitelisted helpers (in, lower, contains, count ...).
func Parse(src string, binds Bindings) (Node, error) {
	tree, err := exprParser.ParseString("", src)
	if err != nil {
		var perr participle.Error
		if errors.As(err, &perr) {
			return nil, dberr.Compilef("parse", dberr.ErrSyntax, "%s at %s", perr.Message(), perr.Position())
		}
		return nil, dberr.Compile("parse", src, fmt.Errorf("%w: %v", dberr.ErrSyntax, err))
	}
	c := converter{binds: binds}
	return c.or(tree)
}

// MustParse is Parse for expressions known to be valid.
func MustParse(src string, binds Bindings) Node {
	n, err := Parse(src, binds)
	if err != nil {
		panic(err)
	}
	return n
}

type converter struct {
	binds Bindings
}

func (c converter) or(a *orAST) (Node, error) {
	out, err := c.and(a.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range a.Rest {
		rhs, err := c.and(r)
		if err != nil {
			return nil, err
		}
		out = BinaryOp{Op: OpOr, Left: out, Right: rhs}
	}
	return out, nil
}

func (c converter) and(a *andAST) (Node, error) {
	out, err := c.cmp(a.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range a.Rest {
		rhs, err := c.cmp(r)
		if err != nil {
			return nil, err
		}
		out = BinaryOp{Op: OpAnd, Left: out, Right: rhs}
	}
	return out, nil
}

var comparisons = map[string]Op{
	"==": OpEq,
	"!=": OpNe,
	"<":  OpLt,
	"<=": OpLe,
	">":  OpGt,
	">=": OpGe,
}

func (c converter) cmp(a *cmpAST) (Node, error) {
	left, err := c.add(a.Left)
	if err != nil || a.Right == nil {
		return left, err
	}
	right, err := c.add(a.Right)
	if err != nil {
		return nil, err
	}
	return BinaryOp{Op: comparisons[a.Op], Left: left, Right: right}, nil
}

func (c converter) add(a *addAST) (Node, error) {
	out, err := c.mul(a.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range a.Rest {
		rhs, err := c.mul(r.Right)
		if err != nil {
			return nil, err
		}
		op := OpAdd
		if r.Op == "-" {
			op = OpSub
		}
		out = BinaryOp{Op: op, Left: out, Right: rhs}
	}
	return out, nil
}

func (c converter) mul(a *mulAST) (Node, error) {
	out, err := c.unary(a.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range a.Rest {
		rhs, err := c.unary(r.Right)
		if err != nil {
			return nil, err
		}
		op := map[string]Op{"*": OpMul, "/": OpDiv, "%": OpMod}[r.Op]
		out = BinaryOp{Op: op, Left: out, Right: rhs}
	}
	return out, nil
}

func (c converter) unary(a *unaryAST) (Node, error) {
	if a.Primary != nil {
		return c.primary(a.Primary)
	}
	operand, err := c.unary(a.Operand)
	if err != nil {
		return nil, err
	}
	if a.Op == "!" {
		return UnaryOp{Op: OpNot, Operand: operand}, nil
	}
	// Fold negative literals so -1 stays a constant.
	if k, ok := operand.(Constant); ok {
		switch v := k.Value.(type) {
		case int64:
			return Constant{Value: -v}, nil
		case float64:
			return Constant{Value: -v}, nil
		}
	}
	return UnaryOp{Op: OpNeg, Operand: operand}, nil
}

func (c converter) primary(a *primaryAST) (Node, error) {
	switch {
	case a.Null:
		return Null, nil
	case a.True:
		return Constant{Value: true}, nil
	case a.False:
		return Constant{Value: false}, nil
	case a.Number != nil:
		return parseNumber(*a.Number, a.Pos)
	case a.String != nil:
		s, err := unquote(*a.String)
		if err != nil {
			return nil, dberr.Compilef("parse", dberr.ErrSyntax, "%s at %s", err, a.Pos)
		}
		return Constant{Value: s}, nil
	case a.Param != nil:
		i, err := strconv.Atoi(strings.TrimPrefix(*a.Param, "$"))
		if err != nil {
			return nil, dberr.Compilef("parse", dberr.ErrSyntax, "parameter %s at %s", *a.Param, a.Pos)
		}
		return ParameterRef{Index: i}, nil
	case a.Bind != nil:
		return c.bind(a.Bind, a.Pos)
	case a.Call != nil:
		return c.call(a.Call)
	case a.Array != nil:
		items := make([]Node, len(a.Array.Items))
		for i, it := range a.Array.Items {
			n, err := c.or(it)
			if err != nil {
				return nil, err
			}
			items[i] = n
		}
		return ArrayLiteral{Items: items}, nil
	case a.Group != nil:
		return c.or(a.Group)
	}
	switch len(a.Path) {
	case 1:
		return PropertyRef{Name: a.Path[0]}, nil
	case 2:
		return PropertyRef{Alias: a.Path[0], Name: a.Path[1]}, nil
	}
	return nil, dberr.Compilef("parse", dberr.ErrUnsupported, "nested property path %s at %s", strings.Join(a.Path, "."), a.Pos)
}

func parseNumber(s string, pos lexer.Position) (Node, error) {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Constant{Value: i}, nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, dberr.Compilef("parse", dberr.ErrSyntax, "number %s at %s", s, pos)
	}
	return Constant{Value: f}, nil
}

func unquote(s string) (string, error) {
	quote := s[0]
	body := s[1 : len(s)-1]
	var b strings.Builder
	for body != "" {
		r, _, tail, err := strconv.UnquoteChar(body, quote)
		if err != nil {
			return "", fmt.Errorf("string %s: %w", s, err)
		}
		b.WriteRune(r)
		body = tail
	}
	return b.String(), nil
}

func (c converter) bind(a *bindAST, pos lexer.Position) (Node, error) {
	name := strings.TrimPrefix(a.Name, ":")
	v, ok := c.binds[name]
	if !ok {
		return nil, dberr.Compilef("parse", dberr.ErrUnknownProperty, "unbound value :%s at %s", name, pos)
	}
	var out Node = Captured{Name: name, Value: v}
	for _, m := range a.Members {
		out = Member{Base: out, Name: m}
	}
	return out, nil
}

func (c converter) call(a *callAST) (Node, error) {
	kind, ok := LookupCall(a.Name)
	if !ok {
		return nil, dberr.Compilef("parse", dberr.ErrUnsupported, "unknown function %s at %s", a.Name, a.Pos)
	}
	args := make([]Node, len(a.Args))
	for i, arg := range a.Args {
		n, err := c.or(arg)
		if err != nil {
			return nil, err
		}
		args[i] = n
	}
	return Call{Kind: kind, Args: args}, nil
}

// Package expr is the predicate and value expression front end.
//
// Expressions are a closed set of node kinds. They are built either with the Go constructors
// in this package (Prop, Val, P, Eq, In ...) or by parsing a small host-side expression
// language with Parse. The translate package compiles them to SQL; EvalHost evaluates the
// subtrees that only involve host values.
package expr

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/sqlforge/query/prepare"
)

// Node is an expression node. The set of implementations is closed.
type Node interface {
	node()
	String() string
}

// Op is an expression operator.
type Op int

const (
	OpOr Op = iota + 1
	OpAnd
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNot
	OpNeg
)

var opText = map[Op]string{
	OpOr:  "||",
	OpAnd: "&&",
	OpEq:  "==",
	OpNe:  "!=",
	OpLt:  "<",
	OpLe:  "<=",
	OpGt:  ">",
	OpGe:  ">=",
	OpAdd: "+",
	OpSub: "-",
	OpMul: "*",
	OpDiv: "/",
	OpMod: "%",
	OpNot: "!",
	OpNeg: "-",
}

func (o Op) String() string { return opText[o] }

// CallKind is a whitelisted helper function.
type CallKind int

const (
	CallIn CallKind = iota + 1
	CallLower
	CallUpper
	CallLike
	CallILike
	CallContains
	CallStartsWith
	CallEndsWith
	CallMin
	CallMax
	CallSum
	CallAvg
	CallCount
	CallCast
	CallCoalesce
	CallLength
	CallAbs
	CallConcat
	CallParam
)

var callNames = map[CallKind]string{
	CallIn:         "in",
	CallLower:      "lower",
	CallUpper:      "upper",
	CallLike:       "like",
	CallILike:      "ilike",
	CallContains:   "contains",
	CallStartsWith: "startsWith",
	CallEndsWith:   "endsWith",
	CallMin:        "min",
	CallMax:        "max",
	CallSum:        "sum",
	CallAvg:        "avg",
	CallCount:      "count",
	CallCast:       "cast",
	CallCoalesce:   "coalesce",
	CallLength:     "length",
	CallAbs:        "abs",
	CallConcat:     "concat",
	CallParam:      "param",
}

func (k CallKind) String() string {
	if n, ok := callNames[k]; ok {
		return n
	}
	return fmt.Sprintf("CallKind(%d)", int(k))
}

// LookupCall resolves a helper name, case-insensitively.
func LookupCall(name string) (CallKind, bool) {
	for k, n := range callNames {
		if strings.EqualFold(n, name) {
			return k, true
		}
	}
	return 0, false
}

// PropertyRef references an entity property by Go field or column name. Alias selects the
// root entity ("" or its lambda name) or a joined entity.
type PropertyRef struct {
	Alias string
	Name  string
}

// Constant is a literal host value.
type Constant struct {
	Value any
}

// Captured is a named host value bound from outside the expression.
type Captured struct {
	Name  string
	Value any
}

// Member selects a field, zero-argument method or map key of a host value.
type Member struct {
	Base Node
	Name string
}

// BinaryOp applies a binary operator.
type BinaryOp struct {
	Op          Op
	Left, Right Node
}

// UnaryOp applies ! or unary minus.
type UnaryOp struct {
	Op      Op
	Operand Node
}

// Call applies a whitelisted helper.
type Call struct {
	Kind CallKind
	Args []Node
}

// ArrayLiteral is an inline collection.
type ArrayLiteral struct {
	Items []Node
}

// ParameterRef is an execution argument, resolved each time the operation runs.
type ParameterRef struct {
	Index int
}

// Subquery embeds a statement, for membership and existence tests.
type Subquery struct {
	Stmt prepare.Statement
}

func (PropertyRef) node()  {}
func (Constant) node()     {}
func (Captured) node()     {}
func (Member) node()       {}
func (BinaryOp) node()     {}
func (UnaryOp) node()      {}
func (Call) node()         {}
func (ArrayLiteral) node() {}
func (ParameterRef) node() {}
func (Subquery) node()     {}

func (n PropertyRef) String() string {
	if n.Alias == "" {
		return n.Name
	}
	return n.Alias + "." + n.Name
}

func (n Constant) String() string {
	switch v := n.Value.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprint(v)
	}
}

func (n Captured) String() string { return ":" + n.Name }
func (n Member) String() string   { return n.Base.String() + "." + n.Name }

func (n BinaryOp) String() string {
	return "(" + n.Left.String() + " " + n.Op.String() + " " + n.Right.String() + ")"
}

func (n UnaryOp) String() string { return n.Op.String() + n.Operand.String() }

func (n Call) String() string {
	return n.Kind.String() + "(" + join(n.Args) + ")"
}

func (n ArrayLiteral) String() string { return "[" + join(n.Items) + "]" }
func (n ParameterRef) String() string { return fmt.Sprintf("$%d", n.Index) }
func (Subquery) String() string       { return "(subquery)" }

func join(ns []Node) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = n.String()
	}
	return strings.Join(parts, ", ")
}

// Prop references a property of the root entity.
func Prop(name string) PropertyRef { return PropertyRef{Name: name} }

// PropOf references a property of the entity bound to alias.
func PropOf(alias, name string) PropertyRef { return PropertyRef{Alias: alias, Name: name} }

// Val wraps a host value. Node values are returned unchanged, statements become subqueries.
func Val(v any) Node {
	switch x := v.(type) {
	case Node:
		return x
	case prepare.Statement:
		return Subquery{Stmt: x}
	}
	return Constant{Value: v}
}

// Null is the null constant.
var Null = Constant{}

// Bind is a named host value.
func Bind(name string, v any) Captured { return Captured{Name: name, Value: v} }

// P is the index-th execution argument.
func P(index int) ParameterRef { return ParameterRef{Index: index} }

// Array builds an inline collection.
func Array(items ...any) ArrayLiteral {
	out := make([]Node, len(items))
	for i, it := range items {
		out[i] = Val(it)
	}
	return ArrayLiteral{Items: out}
}

func bin(op Op, l, r any) BinaryOp { return BinaryOp{Op: op, Left: Val(l), Right: Val(r)} }

func Eq(l, r any) BinaryOp  { return bin(OpEq, l, r) }
func Ne(l, r any) BinaryOp  { return bin(OpNe, l, r) }
func Lt(l, r any) BinaryOp  { return bin(OpLt, l, r) }
func Le(l, r any) BinaryOp  { return bin(OpLe, l, r) }
func Gt(l, r any) BinaryOp  { return bin(OpGt, l, r) }
func Ge(l, r any) BinaryOp  { return bin(OpGe, l, r) }
func Add(l, r any) BinaryOp { return bin(OpAdd, l, r) }
func Sub(l, r any) BinaryOp { return bin(OpSub, l, r) }
func Mul(l, r any) BinaryOp { return bin(OpMul, l, r) }
func Div(l, r any) BinaryOp { return bin(OpDiv, l, r) }
func Mod(l, r any) BinaryOp { return bin(OpMod, l, r) }

// And joins nodes with &&. Nil nodes are skipped; And() is nil.
func And(ns ...Node) Node { return fold(OpAnd, ns) }

// Or joins nodes with ||. Nil nodes are skipped; Or() is nil.
func Or(ns ...Node) Node { return fold(OpOr, ns) }

func fold(op Op, ns []Node) Node {
	var out Node
	for _, n := range ns {
		if n == nil {
			continue
		}
		if out == nil {
			out = n
			continue
		}
		out = BinaryOp{Op: op, Left: out, Right: n}
	}
	return out
}

// Not negates a predicate.
func Not(n Node) UnaryOp { return UnaryOp{Op: OpNot, Operand: n} }

// Neg negates a number.
func Neg(n any) UnaryOp { return UnaryOp{Op: OpNeg, Operand: Val(n)} }

func call(k CallKind, args ...any) Call {
	out := make([]Node, len(args))
	for i, a := range args {
		out[i] = Val(a)
	}
	return Call{Kind: k, Args: out}
}

// In tests membership of v in set: an ArrayLiteral, a host slice, a ParameterRef bound to a
// slice, or a statement.
func In(v, set any) Call { return call(CallIn, v, set) }

// NotIn is the negated membership test.
func NotIn(v, set any) UnaryOp { return Not(In(v, set)) }

func Lower(v any) Call                 { return call(CallLower, v) }
func Upper(v any) Call                 { return call(CallUpper, v) }
func Like(v, pattern any) Call         { return call(CallLike, v, pattern) }
func ILike(v, pattern any) Call        { return call(CallILike, v, pattern) }
func Contains(v, s any) Call           { return call(CallContains, v, s) }
func StartsWith(v, s any) Call         { return call(CallStartsWith, v, s) }
func EndsWith(v, s any) Call           { return call(CallEndsWith, v, s) }
func Min(v any) Call                   { return call(CallMin, v) }
func Max(v any) Call                   { return call(CallMax, v) }
func Sum(v any) Call                   { return call(CallSum, v) }
func Avg(v any) Call                   { return call(CallAvg, v) }
func Length(v any) Call                { return call(CallLength, v) }
func Abs(v any) Call                   { return call(CallAbs, v) }
func Coalesce(vs ...any) Call          { return call(CallCoalesce, vs...) }
func Concat(vs ...any) Call            { return call(CallConcat, vs...) }
func Cast(v any, typeName string) Call { return call(CallCast, v, typeName) }

// Count counts rows, or non-null values of v when given.
func Count(v ...any) Call { return call(CallCount, v...) }

// IsNull is v == null.
func IsNull(v any) BinaryOp { return Eq(v, nil) }

// NotNull is v != null.
func NotNull(v any) BinaryOp { return Ne(v, nil) }

package ast

// Operator is a SQL operator with a fixed precedence.
type Operator int

const (
	OpOr Operator = iota + 1
	OpAnd
	OpNot
	OpEq
	OpNe
	OpIs
	OpIsNot
	OpLt
	OpLe
	OpGt
	OpGe
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
)

var operatorSQL = map[Operator]string{
	OpOr:    "OR",
	OpAnd:   "AND",
	OpNot:   "NOT",
	OpEq:    "=",
	OpNe:    "<>",
	OpIs:    "IS",
	OpIsNot: "IS NOT",
	OpLt:    "<",
	OpLe:    "<=",
	OpGt:    ">",
	OpGe:    ">=",
	OpAdd:   "+",
	OpSub:   "-",
	OpMul:   "*",
	OpDiv:   "/",
	OpMod:   "%",
	OpNeg:   "-",
}

// SQL returns the operator's SQL spelling.
func (o Operator) SQL() string { return operatorSQL[o] }

// String implements fmt.Stringer.
func (o Operator) String() string { return o.SQL() }

// Precedence levels, loosest first.
const (
	PrecLowest = iota
	PrecOr
	PrecAnd
	PrecNot
	PrecCompare
	PrecAdditive
	PrecMultiplicative
	PrecUnary
	PrecAtom
)

// Precedence returns how tightly o binds; higher binds tighter.
func Precedence(o Operator) int {
	switch o {
	case OpOr:
		return PrecOr
	case OpAnd:
		return PrecAnd
	case OpNot:
		return PrecNot
	case OpEq, OpNe, OpIs, OpIsNot, OpLt, OpLe, OpGt, OpGe:
		return PrecCompare
	case OpAdd, OpSub:
		return PrecAdditive
	case OpMul, OpDiv, OpMod:
		return PrecMultiplicative
	case OpNeg:
		return PrecUnary
	default:
		return PrecLowest
	}
}

// Associative reports whether (a o b) o c equals a o (b o c), so that a right operand with
// the same operator needs no parentheses.
func Associative(o Operator) bool {
	switch o {
	case OpOr, OpAnd, OpAdd, OpMul:
		return true
	default:
		return false
	}
}

// NeedsParens reports whether child must be parenthesized as the left (right=false) or right
// operand of parent. A tighter-binding child never needs them; a looser one always does. At
// equal precedence only a right operand of a different or non-associative operator does, and
// comparisons never chain.
func NeedsParens(parent, child Operator, right bool) bool {
	p, c := Precedence(parent), Precedence(child)
	switch {
	case c > p:
		return false
	case c < p:
		return true
	case p == PrecCompare:
		return true
	default:
		return right && (child != parent || !Associative(parent))
	}
}

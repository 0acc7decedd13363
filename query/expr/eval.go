package expr

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/satishbabariya/sqlforge/dberr"
)

// HostOnly reports whether n can be evaluated on the host: it references no entity property,
// execution argument or statement.
func HostOnly(n Node) bool {
	switch x := n.(type) {
	case Constant, Captured:
		return true
	case Member:
		return HostOnly(x.Base)
	case BinaryOp:
		return HostOnly(x.Left) && HostOnly(x.Right)
	case UnaryOp:
		return HostOnly(x.Operand)
	case ArrayLiteral:
		for _, it := range x.Items {
			if !HostOnly(it) {
				return false
			}
		}
		return true
	case Call:
		switch x.Kind {
		case CallLower, CallUpper, CallLength, CallAbs, CallConcat, CallCoalesce:
		default:
			return false
		}
		for _, a := range x.Args {
			if !HostOnly(a) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// EvalHost evaluates n on the host. ok is false when n is not host-only.
func EvalHost(n Node) (v any, ok bool, err error) {
	if !HostOnly(n) {
		return nil, false, nil
	}
	v, err = eval(n)
	return v, err == nil, err
}

func eval(n Node) (any, error) {
	switch x := n.(type) {
	case Constant:
		return x.Value, nil
	case Captured:
		return x.Value, nil
	case Member:
		base, err := eval(x.Base)
		if err != nil {
			return nil, err
		}
		return member(base, x.Name)
	case ArrayLiteral:
		out := make([]any, len(x.Items))
		for i, it := range x.Items {
			v, err := eval(it)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case UnaryOp:
		v, err := eval(x.Operand)
		if err != nil {
			return nil, err
		}
		return unary(x.Op, v)
	case BinaryOp:
		l, err := eval(x.Left)
		if err != nil {
			return nil, err
		}
		r, err := eval(x.Right)
		if err != nil {
			return nil, err
		}
		return binary(x.Op, l, r)
	case Call:
		args := make([]any, len(x.Args))
		for i, a := range x.Args {
			v, err := eval(a)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return callHost(x.Kind, args)
	}
	return nil, dberr.Compile("evaluate", n.String(), dberr.ErrUnsupported)
}

// member resolves name on v: a struct field, a zero-argument method returning one value (or a
// value and an error), or a map key.
func member(v any, name string) (any, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, dberr.Compilef("evaluate", dberr.ErrUnsupported, "member %s of nil", name)
	}
	if m := rv.MethodByName(name); m.IsValid() && m.Type().NumIn() == 0 {
		return callMethod(m, name)
	}
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, dberr.Compilef("evaluate", dberr.ErrUnsupported, "member %s of nil", name)
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		if f := rv.FieldByName(name); f.IsValid() && f.CanInterface() {
			return f.Interface(), nil
		}
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			key := reflect.ValueOf(name).Convert(rv.Type().Key())
			if e := rv.MapIndex(key); e.IsValid() {
				return e.Interface(), nil
			}
			return nil, nil
		}
	}
	if m := rv.MethodByName(name); m.IsValid() && m.Type().NumIn() == 0 {
		return callMethod(m, name)
	}
	return nil, dberr.Compilef("evaluate", dberr.ErrUnsupported, "%s has no member %s", rv.Type(), name)
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func callMethod(m reflect.Value, name string) (any, error) {
	t := m.Type()
	switch {
	case t.NumOut() == 1:
		return m.Call(nil)[0].Interface(), nil
	case t.NumOut() == 2 && t.Out(1) == errorType:
		out := m.Call(nil)
		if err, _ := out[1].Interface().(error); err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", name, err)
		}
		return out[0].Interface(), nil
	}
	return nil, dberr.Compilef("evaluate", dberr.ErrUnsupported, "method %s has %d results", name, t.NumOut())
}

// number reports v as int64 or float64.
func number(v any) (i int64, f float64, isFloat, ok bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), 0, false, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), 0, false, true
	case reflect.Float32, reflect.Float64:
		return 0, rv.Float(), true, true
	}
	return 0, 0, false, false
}

func asFloat(v any) (float64, bool) {
	i, f, isFloat, ok := number(v)
	if !ok {
		return 0, false
	}
	if isFloat {
		return f, true
	}
	return float64(i), true
}

func unary(op Op, v any) (any, error) {
	switch op {
	case OpNot:
		b, ok := v.(bool)
		if !ok {
			return nil, dberr.Compilef("evaluate", dberr.ErrUnsupported, "!%T", v)
		}
		return !b, nil
	case OpNeg:
		i, f, isFloat, ok := number(v)
		if !ok {
			return nil, dberr.Compilef("evaluate", dberr.ErrUnsupported, "-%T", v)
		}
		if isFloat {
			return -f, nil
		}
		return -i, nil
	}
	return nil, dberr.Compilef("evaluate", dberr.ErrUnsupported, "unary %s", op)
}

func binary(op Op, l, r any) (any, error) {
	switch op {
	case OpAnd, OpOr:
		lb, lok := l.(bool)
		rb, rok := r.(bool)
		if !lok || !rok {
			return nil, dberr.Compilef("evaluate", dberr.ErrUnsupported, "%T %s %T", l, op, r)
		}
		if op == OpAnd {
			return lb && rb, nil
		}
		return lb || rb, nil
	case OpEq:
		return equal(l, r), nil
	case OpNe:
		return !equal(l, r), nil
	case OpLt, OpLe, OpGt, OpGe:
		c, err := compare(l, r)
		if err != nil {
			return nil, err
		}
		switch op {
		case OpLt:
			return c < 0, nil
		case OpLe:
			return c <= 0, nil
		case OpGt:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	}
	return arith(op, l, r)
}

func equal(l, r any) bool {
	if l == nil || r == nil {
		return isNil(l) && isNil(r)
	}
	if lf, ok := asFloat(l); ok {
		if rf, ok := asFloat(r); ok {
			return lf == rf
		}
	}
	return reflect.DeepEqual(l, r)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func compare(l, r any) (int, error) {
	if lf, ok := asFloat(l); ok {
		if rf, ok := asFloat(r); ok {
			switch {
			case lf < rf:
				return -1, nil
			case lf > rf:
				return 1, nil
			}
			return 0, nil
		}
	}
	if ls, ok := l.(string); ok {
		if rs, ok := r.(string); ok {
			return strings.Compare(ls, rs), nil
		}
	}
	if lt, ok := l.(time.Time); ok {
		if rt, ok := r.(time.Time); ok {
			return lt.Compare(rt), nil
		}
	}
	return 0, dberr.Compilef("evaluate", dberr.ErrUnsupported, "compare %T with %T", l, r)
}

func arith(op Op, l, r any) (any, error) {
	if op == OpAdd {
		if ls, ok := l.(string); ok {
			if rs, ok := r.(string); ok {
				return ls + rs, nil
			}
		}
	}
	li, lf, lFloat, lok := number(l)
	ri, rf, rFloat, rok := number(r)
	if !lok || !rok {
		return nil, dberr.Compilef("evaluate", dberr.ErrUnsupported, "%T %s %T", l, op, r)
	}
	if lFloat || rFloat {
		if !lFloat {
			lf = float64(li)
		}
		if !rFloat {
			rf = float64(ri)
		}
		switch op {
		case OpAdd:
			return lf + rf, nil
		case OpSub:
			return lf - rf, nil
		case OpMul:
			return lf * rf, nil
		case OpDiv:
			return lf / rf, nil
		case OpMod:
			return math.Mod(lf, rf), nil
		}
	} else {
		switch op {
		case OpAdd:
			return li + ri, nil
		case OpSub:
			return li - ri, nil
		case OpMul:
			return li * ri, nil
		case OpDiv, OpMod:
			if ri == 0 {
				return nil, dberr.Compile("evaluate", "division by zero", dberr.ErrUnsupported)
			}
			if op == OpDiv {
				return li / ri, nil
			}
			return li % ri, nil
		}
	}
	return nil, dberr.Compilef("evaluate", dberr.ErrUnsupported, "operator %s", op)
}

func callHost(k CallKind, args []any) (any, error) {
	one := func() (any, error) {
		if len(args) != 1 {
			return nil, dberr.Compilef("evaluate", dberr.ErrUnsupported, "%s takes 1 argument, got %d", k, len(args))
		}
		return args[0], nil
	}
	switch k {
	case CallLower, CallUpper:
		v, err := one()
		if err != nil {
			return nil, err
		}
		s, ok := v.(string)
		if !ok {
			return nil, dberr.Compilef("evaluate", dberr.ErrUnsupported, "%s(%T)", k, v)
		}
		if k == CallLower {
			return strings.ToLower(s), nil
		}
		return strings.ToUpper(s), nil
	case CallLength:
		v, err := one()
		if err != nil {
			return nil, err
		}
		if s, ok := v.(string); ok {
			return int64(len([]rune(s))), nil
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			return int64(rv.Len()), nil
		}
		return nil, dberr.Compilef("evaluate", dberr.ErrUnsupported, "length(%T)", v)
	case CallAbs:
		v, err := one()
		if err != nil {
			return nil, err
		}
		i, f, isFloat, ok := number(v)
		if !ok {
			return nil, dberr.Compilef("evaluate", dberr.ErrUnsupported, "abs(%T)", v)
		}
		if isFloat {
			return math.Abs(f), nil
		}
		if i < 0 {
			return -i, nil
		}
		return i, nil
	case CallConcat:
		var b strings.Builder
		for _, a := range args {
			if a != nil {
				fmt.Fprint(&b, a)
			}
		}
		return b.String(), nil
	case CallCoalesce:
		for _, a := range args {
			if !isNil(a) {
				return a, nil
			}
		}
		return nil, nil
	}
	return nil, dberr.Compilef("evaluate", dberr.ErrUnsupported, "%s on host values", k)
}

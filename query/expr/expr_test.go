package expr_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/query/expr"
)

type limits struct {
	Max int
}

type config struct {
	Limits *limits
	Name   string
}

func (c config) Upper() string { return "UP:" + c.Name }

func (config) Broken() (string, error) { return "", errors.New("boom") }

func TestParse(t *testing.T) {
	cfg := config{Limits: &limits{Max: 9}, Name: "n"}

	tests := []struct {
		src   string
		binds expr.Bindings
		want  expr.Node
	}{
		{`Age > 18 && Name == "bob"`, nil, expr.And(expr.Gt(expr.Prop("Age"), int64(18)), expr.Eq(expr.Prop("Name"), "bob"))},
		{`a || b && c`, nil, expr.Or(expr.Prop("a"), expr.And(expr.Prop("b"), expr.Prop("c")))},
		{`1 + 2 * 3`, nil, expr.Add(int64(1), expr.Mul(int64(2), int64(3)))},
		{`(1 + 2) * 3`, nil, expr.Mul(expr.Add(int64(1), int64(2)), int64(3))},
		{`10 - 4 - 3`, nil, expr.Sub(expr.Sub(int64(10), int64(4)), int64(3))},
		{`-1.5`, nil, expr.Val(-1.5)},
		{`-Age`, nil, expr.Neg(expr.Prop("Age"))},
		{`!Active`, nil, expr.Not(expr.Prop("Active"))},
		{`x.Age <= $2`, nil, expr.Le(expr.PropOf("x", "Age"), expr.P(2))},
		{`Age != null`, nil, expr.Ne(expr.Prop("Age"), expr.Null)},
		{`Age == nil`, nil, expr.Eq(expr.Prop("Age"), expr.Null)},
		{`Done == true || Done == false`, nil, expr.Or(expr.Eq(expr.Prop("Done"), true), expr.Eq(expr.Prop("Done"), false))},
		{`Age < :cfg.Limits.Max`, expr.Bindings{"cfg": cfg}, expr.Lt(expr.Prop("Age"), expr.Member{Base: expr.Member{Base: expr.Bind("cfg", cfg), Name: "Limits"}, Name: "Max"})},
		{`in(u.Id, [1, 2])`, nil, expr.In(expr.PropOf("u", "Id"), expr.Array(int64(1), int64(2)))},
		{`!in(Id, [])`, nil, expr.NotIn(expr.Prop("Id"), expr.ArrayLiteral{Items: []expr.Node{}})},
		{`CONTAINS(Name, 'a\'b')`, nil, expr.Contains(expr.Prop("Name"), "a'b")},
		{`startsWith(Name, "x\ty")`, nil, expr.StartsWith(expr.Prop("Name"), "x\ty")},
		{`count()`, nil, expr.Count()},
		{`cast(Age, "text")`, nil, expr.Cast(expr.Prop("Age"), "text")},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := expr.Parse(tt.src, tt.binds)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src  string
		want error
	}{
		{`Age >`, dberr.ErrSyntax},
		{`1 2`, dberr.ErrSyntax},
		{`"open`, dberr.ErrSyntax},
		{`frobnicate(Age)`, dberr.ErrUnsupported},
		{`a.b.c == 1`, dberr.ErrUnsupported},
		{`Age == :missing`, dberr.ErrUnknownProperty},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := expr.Parse(tt.src, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, dberr.IsCompile(err))
		})
	}
	assert.Panics(t, func() { expr.MustParse(`(`, nil) })
}

func TestEvalHost(t *testing.T) {
	cfg := &config{Limits: &limits{Max: 9}, Name: "n"}
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		n    expr.Node
		want any
	}{
		{"constant", expr.Val(3), 3},
		{"captured arithmetic", expr.Add(expr.Bind("n", 2), 1), int64(3)},
		{"float promotion", expr.Mul(expr.Bind("f", 1.5), 2), 3.0},
		{"string concatenation", expr.Add("a", "b"), "ab"},
		{"member chain", expr.Member{Base: expr.Member{Base: expr.Bind("cfg", cfg), Name: "Limits"}, Name: "Max"}, 9},
		{"method", expr.Member{Base: expr.Bind("cfg", cfg), Name: "Upper"}, "UP:n"},
		{"map key", expr.Member{Base: expr.Bind("m", map[string]int{"k": 4}), Name: "k"}, 4},
		{"lower", expr.Lower(expr.Bind("s", "ABC")), "abc"},
		{"length runes", expr.Length("héllo"), int64(5)},
		{"abs", expr.Abs(-4), int64(4)},
		{"coalesce", expr.Coalesce(nil, 3), 3},
		{"concat", expr.Concat("a", 1, nil), "a1"},
		{"comparison", expr.Lt(expr.Bind("a", t0), expr.Bind("b", t0.Add(time.Hour))), true},
		{"mixed numeric equality", expr.Eq(int32(2), 2.0), true},
		{"logic", expr.And(expr.Val(true), expr.Not(expr.Val(false))), true},
		{"array literal", expr.Array(1, "x"), []any{1, "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := expr.EvalHost(tt.n)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalHostNotHostOnly(t *testing.T) {
	for _, n := range []expr.Node{
		expr.Prop("Age"),
		expr.P(0),
		expr.Add(expr.Prop("Age"), 1),
		expr.Sum(1),
		expr.In(1, expr.Array(1)),
	} {
		t.Run(n.String(), func(t *testing.T) {
			assert.False(t, expr.HostOnly(n))
			_, ok, err := expr.EvalHost(n)
			assert.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestEvalHostErrors(t *testing.T) {
	tests := []struct {
		name string
		n    expr.Node
	}{
		{"division by zero", expr.Div(1, 0)},
		{"bad member", expr.Member{Base: expr.Bind("v", 1), Name: "Nope"}},
		{"nil member", expr.Member{Base: expr.Bind("v", (*config)(nil)), Name: "Name"}},
		{"method error", expr.Member{Base: expr.Bind("cfg", config{}), Name: "Broken"}},
		{"incomparable", expr.Lt("a", 1)},
		{"not a bool", expr.Not(expr.Val(1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, err := expr.EvalHost(tt.n)
			assert.Error(t, err)
			assert.False(t, ok)
		})
	}
}

func TestString(t *testing.T) {
	n := expr.And(expr.Eq(expr.PropOf("u", "Name"), "x"), expr.In(expr.Prop("Id"), expr.Array(1, 2)))
	assert.Equal(t, `((u.Name == "x") && in(Id, [1, 2]))`, n.String())
	assert.Equal(t, "$3", expr.P(3).String())
	assert.Equal(t, "null", expr.Null.String())
}

func TestLookupCall(t *testing.T) {
	k, ok := expr.LookupCall("STARTSWITH")
	require.True(t, ok)
	assert.Equal(t, expr.CallStartsWith, k)
	_, ok = expr.LookupCall("nope")
	assert.False(t, ok)
}

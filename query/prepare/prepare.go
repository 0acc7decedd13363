// Package prepare accumulates SQL text and parameters into executable operations.
//
// A Preparator is the single sink every token and translator writes into. Placeholders are
// numbered by slot position, so the Nth placeholder in the command text always refers to the
// Nth parameter slot, whatever the statement shape.
package prepare

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/dialect"
	"github.com/satishbabariya/sqlforge/model"
)

// Token is a self-rendering SQL fragment. alias qualifies unaliased column references.
type Token interface {
	Render(p *Preparator, alias string) error
}

// Statement is a complete statement that can render itself into a preparator, either as the
// top-level command or nested as a subquery.
type Statement interface {
	Build(p *Preparator) error
}

// Kind tells the runtime how an operation is executed.
type Kind int

const (
	// KindQuery returns rows.
	KindQuery Kind = iota
	// KindExec modifies rows and reports the affected count.
	KindExec
	// KindDDL changes the schema.
	KindDDL
)

// String returns the kind name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindExec:
		return "exec"
	case KindDDL:
		return "ddl"
	default:
		return "unknown"
	}
}

// Slot is one parameter of an operation.
type Slot struct {
	// Value is the literal value of a literal slot.
	Value any
	// Index is the execution argument an indexed slot resolves to.
	Index int
	// Convert, if set, transforms an indexed argument at bind time.
	Convert func(any) (any, error)

	indexed bool
}

// Indexed reports whether the slot is resolved from execution arguments.
func (s Slot) Indexed() bool { return s.indexed }

// Preparator accumulates command text and parameter slots.
type Preparator struct {
	d     dialect.Dialect
	reg   *model.Registry
	sb    strings.Builder
	slots []Slot
	kind  Kind
	cols  []string
	// scope is the alias scope of the statement being built, for nested statements.
	scope any
}

var _ dialect.Writer = (*Preparator)(nil)

// New returns an empty preparator for d. reg resolves property tokens that name a Go type.
func New(d dialect.Dialect, reg *model.Registry) *Preparator {
	return &Preparator{d: d, reg: reg}
}

// Dialect returns the target dialect.
func (p *Preparator) Dialect() dialect.Dialect { return p.d }

// Registry returns the model registry.
func (p *Preparator) Registry() *model.Registry { return p.reg }

// Scope returns the alias scope entered by the enclosing statement, or nil at the top level.
func (p *Preparator) Scope() any { return p.scope }

// EnterScope sets the scope nested statements resolve outer aliases in and returns the
// previous one, to be restored when the statement is done.
func (p *Preparator) EnterScope(scope any) (prev any) {
	prev, p.scope = p.scope, scope
	return prev
}

// SetKind sets the kind of the finished operation.
func (p *Preparator) SetKind(k Kind) { p.kind = k }

// SetColumns records the result column names in projection order.
func (p *Preparator) SetColumns(cols []string) { p.cols = cols }

// WriteString appends raw text.
func (p *Preparator) WriteString(s string) { p.sb.WriteString(s) }

// WriteIdent appends a quoted identifier.
func (p *Preparator) WriteIdent(name string) { p.sb.WriteString(p.d.QuoteIdent(name)) }

// WriteColumn appends a column reference, qualified with alias when it is non-empty.
func (p *Preparator) WriteColumn(alias, column string) {
	if alias != "" {
		p.WriteIdent(alias)
		p.sb.WriteByte('.')
	}
	p.WriteIdent(column)
}

// AddParam appends a literal slot and writes its placeholder.
func (p *Preparator) AddParam(v any) {
	p.slots = append(p.slots, Slot{Value: v})
	p.sb.WriteString(p.d.Placeholder(len(p.slots)))
}

// AddIndexedParam appends a slot bound to the index-th execution argument and writes its
// placeholder.
func (p *Preparator) AddIndexedParam(index int, convert func(any) (any, error)) {
	p.slots = append(p.slots, Slot{Index: index, Convert: convert, indexed: true})
	p.sb.WriteString(p.d.Placeholder(len(p.slots)))
}

// WriteToken renders t with alias.
func (p *Preparator) WriteToken(t Token, alias string) error {
	return t.Render(p, alias)
}

// WriteTokens renders ts separated by sep.
func (p *Preparator) WriteTokens(ts []Token, sep, alias string) error {
	for i, t := range ts {
		if i > 0 {
			p.sb.WriteString(sep)
		}
		if err := t.Render(p, alias); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of parameter slots so far.
func (p *Preparator) Len() int { return len(p.slots) }

// String returns the command text so far.
func (p *Preparator) String() string { return p.sb.String() }

// Finish returns the prepared operation. The preparator must not be used afterwards.
func (p *Preparator) Finish() *Operation {
	return &Operation{
		SQL:     p.sb.String(),
		Slots:   p.slots,
		Kind:    p.kind,
		Columns: p.cols,
		Dialect: p.d.Name(),
	}
}

// Prepare builds stmt into a fresh preparator and finishes it.
func Prepare(d dialect.Dialect, reg *model.Registry, stmt Statement) (*Operation, error) {
	p := New(d, reg)
	if err := stmt.Build(p); err != nil {
		return nil, err
	}
	return p.Finish(), nil
}

// Operation is a finished, parameterized command. It is safe to execute concurrently and
// repeatedly; each execution binds its own arguments.
type Operation struct {
	SQL   string
	Slots []Slot
	Kind  Kind
	// Columns are the result column names in projection order, when known.
	Columns []string
	// Dialect is the name of the dialect the text was rendered for.
	Dialect string

	exclusive bool
	mu        sync.Mutex
}

// Bind resolves every slot against args and returns the driver parameters in placeholder order.
func (o *Operation) Bind(args ...any) ([]any, error) {
	out := make([]any, len(o.Slots))
	for i, s := range o.Slots {
		if !s.indexed {
			out[i] = s.Value
			continue
		}
		if s.Index < 0 || s.Index >= len(args) {
			return nil, dberr.Compilef("bind", dberr.ErrParameterIndex,
				"placeholder %d refers to argument %d of %d", i+1, s.Index, len(args))
		}
		v := args[s.Index]
		if s.Convert != nil {
			var err error
			if v, err = s.Convert(v); err != nil {
				return nil, dberr.Compilef("bind", err, "argument %d", s.Index)
			}
		}
		out[i] = v
	}
	return out, nil
}

// Arity is the number of execution arguments the operation expects.
func (o *Operation) Arity() int {
	n := 0
	for _, s := range o.Slots {
		if s.indexed && s.Index+1 > n {
			n = s.Index + 1
		}
	}
	return n
}

// Exclusive makes concurrent executions of o run one at a time.
func (o *Operation) Exclusive() *Operation {
	o.exclusive = true
	return o
}

// Lock takes the exclusivity lock when the operation is exclusive and returns its release.
func (o *Operation) Lock() (unlock func()) {
	if !o.exclusive {
		return func() {}
	}
	o.mu.Lock()
	return o.mu.Unlock
}

// String returns the command text.
func (o *Operation) String() string { return o.SQL }

// GoString includes the literal parameters, for debugging.
func (o *Operation) GoString() string {
	vals := make([]string, len(o.Slots))
	for i, s := range o.Slots {
		if s.indexed {
			vals[i] = fmt.Sprintf("$arg%d", s.Index)
		} else {
			vals[i] = fmt.Sprintf("%#v", s.Value)
		}
	}
	return fmt.Sprintf("%s [%s]", o.SQL, strings.Join(vals, ", "))
}

// Executor runs operations. The runtime package implements it.
type Executor interface {
	Exec(ctx context.Context, op *Operation, args ...any) (int64, error)
	ExecResult(ctx context.Context, op *Operation, args ...any) (sql.Result, error)
	QueryRows(ctx context.Context, op *Operation, args ...any) ([]map[string]any, error)
}

// Exec runs o through e and returns the affected row count.
func (o *Operation) Exec(ctx context.Context, e Executor, args ...any) (int64, error) {
	return e.Exec(ctx, o, args...)
}

// Query runs o through e and returns the rows keyed by column name.
func (o *Operation) Query(ctx context.Context, e Executor, args ...any) ([]map[string]any, error) {
	return e.QueryRows(ctx, o, args...)
}

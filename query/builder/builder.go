// Package builder assembles complete statements from descriptors, tokens and expressions.
//
// Builders are fluent, stateful accumulators. They never execute anything: Prepare renders
// the statement into a prepare.Operation for the runtime. A builder must not be used from
// several goroutines at once; independent builders need no coordination.
package builder

import (
	"fmt"
	"reflect"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/dialect"
	"github.com/satishbabariya/sqlforge/model"
	"github.com/satishbabariya/sqlforge/query/ast"
	"github.com/satishbabariya/sqlforge/query/expr"
	"github.com/satishbabariya/sqlforge/query/prepare"
	"github.com/satishbabariya/sqlforge/query/translate"
)

// Builder creates statements for one dialect and registry.
type Builder struct {
	d   dialect.Dialect
	reg *model.Registry
}

// New returns a statement factory.
func New(d dialect.Dialect, reg *model.Registry) *Builder {
	return &Builder{d: d, reg: reg}
}

// Dialect returns the target dialect.
func (b *Builder) Dialect() dialect.Dialect { return b.d }

// Registry returns the model registry.
func (b *Builder) Registry() *model.Registry { return b.reg }

// Describe resolves T through the builder's registry.
func Describe[T any](b *Builder) (*model.EntityDescriptor, error) {
	return model.Of[T](b.reg)
}

func (b *Builder) prepare(kind prepare.Kind, stmt prepare.Statement, cols []string) (*prepare.Operation, error) {
	p := prepare.New(b.d, b.reg)
	if err := stmt.Build(p); err != nil {
		return nil, err
	}
	p.SetKind(kind)
	p.SetColumns(cols)
	return p.Finish(), nil
}

// token converts a projection, grouping or ordering item into a token: tokens pass through,
// expression nodes are translated, and strings name a property or column of the root entity.
func token(scope *translate.Scope, item any) (prepare.Token, string, error) {
	switch x := item.(type) {
	case prepare.Token:
		return x, tokenName(x), nil
	case expr.Node:
		if ref, ok := x.(expr.PropertyRef); ok {
			b, col, err := scope.Column(ref.Alias, ref.Name)
			if err != nil {
				return nil, "", err
			}
			return ast.Column{Name: col.Name, Alias: b.Alias}, col.Name, nil
		}
		return translate.Expr(scope, x), "", nil
	case string:
		b, col, err := scope.Column("", x)
		if err != nil {
			return nil, "", err
		}
		return ast.Column{Name: col.Name, Alias: b.Alias}, col.Name, nil
	}
	return nil, "", dberr.Compilef("build", dberr.ErrUnsupported, "item of type %T", item)
}

func tokenName(t prepare.Token) string {
	switch x := t.(type) {
	case ast.Column:
		return x.Name
	case ast.Alias:
		return x.Name
	}
	return ""
}

// where merges predicates with AND or OR.
type where struct {
	node expr.Node
	err  error
}

func (w *where) and(n expr.Node) {
	w.node = expr.And(w.node, n)
}

func (w *where) or(n expr.Node) {
	w.node = expr.Or(w.node, n)
}

func (w *where) parse(src string, binds expr.Bindings) (expr.Node, bool) {
	n, err := expr.Parse(src, binds)
	if err != nil {
		if w.err == nil {
			w.err = err
		}
		return nil, false
	}
	return n, true
}

func (w *where) build(p *prepare.Preparator, scope *translate.Scope) error {
	if w.node == nil {
		return nil
	}
	p.WriteString(" WHERE ")
	return translate.New(p, scope).Translate(w.node)
}

// entityValue returns the pointer to the entity struct v, which may be a struct or a pointer.
func entityValue(desc *model.EntityDescriptor, v any) (any, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, dberr.Compile("build", desc.Table(), fmt.Errorf("%w: nil entity", dberr.ErrInvalidModel))
	}
	if rv.Kind() != reflect.Pointer {
		ptr := reflect.New(rv.Type())
		ptr.Elem().Set(rv)
		rv = ptr
	}
	if rv.IsNil() {
		return nil, dberr.Compile("build", desc.Table(), fmt.Errorf("%w: nil entity", dberr.ErrInvalidModel))
	}
	if gt := desc.GoType(); gt != nil && rv.Elem().Type() != gt {
		return nil, dberr.Compilef("build", dberr.ErrInvalidModel, "%s maps %s, got %s", desc.Table(), gt, rv.Elem().Type())
	}
	return rv.Interface(), nil
}

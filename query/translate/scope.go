package translate

import (
	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/model"
	"github.com/satishbabariya/sqlforge/query/prepare"
)

// Binding ties an expression alias to an entity and the SQL alias its columns are qualified
// with. An empty SQL alias renders unqualified column names.
type Binding struct {
	Entity *model.EntityDescriptor
	Alias  string
}

// Scope resolves the aliases of property references. A scope nested in the scope of an
// enclosing statement also resolves the aliases declared there.
type Scope struct {
	root     Binding
	bindings map[string]Binding
	parent   *Scope
}

// NewScope returns a scope whose root entity is qualified with alias.
func NewScope(root *model.EntityDescriptor, alias string) *Scope {
	s := &Scope{
		root:     Binding{Entity: root, Alias: alias},
		bindings: map[string]Binding{},
	}
	if alias != "" {
		s.bindings[alias] = s.root
	}
	return s
}

// Join adds an entity reachable as alias, both in expressions and in SQL.
func (s *Scope) Join(alias string, e *model.EntityDescriptor) *Scope {
	s.bindings[alias] = Binding{Entity: e, Alias: alias}
	return s
}

// Within nests s in parent. A nil parent leaves s a top-level scope.
func (s *Scope) Within(parent *Scope) *Scope {
	s.parent = parent
	return s
}

// Enclosing returns the scope entered on p by the statement being built, if any.
func Enclosing(p *prepare.Preparator) *Scope {
	s, _ := p.Scope().(*Scope)
	return s
}

// Root returns the root binding.
func (s *Scope) Root() Binding { return s.root }

// Resolve returns the binding for alias. The empty alias is the root. Declared aliases are
// looked up from the innermost scope outwards. In a top-level scope with nothing joined, any
// other alias names the root, so a predicate may call its entity x, u or anything else.
func (s *Scope) Resolve(alias string) (Binding, error) {
	if alias == "" {
		return s.root, nil
	}
	for sc := s; sc != nil; sc = sc.parent {
		if b, ok := sc.bindings[alias]; ok {
			return b, nil
		}
	}
	if s.parent == nil && (len(s.bindings) == 0 || (len(s.bindings) == 1 && s.root.Alias != "")) {
		return s.root, nil
	}
	return Binding{}, dberr.Compilef("translate", dberr.ErrUnknownProperty, "unknown alias %q", alias)
}

// Column resolves a property reference to its binding and column.
func (s *Scope) Column(alias, name string) (Binding, *model.ColumnDescriptor, error) {
	b, err := s.Resolve(alias)
	if err != nil {
		return Binding{}, nil, err
	}
	col := b.Entity.Property(name)
	if col == nil {
		return Binding{}, nil, dberr.Compilef("translate", dberr.ErrUnknownProperty, "%s has no property %s", b.Entity.Table(), name)
	}
	return b, col, nil
}

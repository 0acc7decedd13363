// Package model resolves entity types into table descriptors.
//
// A Registry reflects over each struct type once, resolves its `db` struct tags into an
// EntityDescriptor and caches the result for the registry's lifetime. Registries are plain
// values handed to the builders, the runtime and the migrator; there is no package-level cache.
package model

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/satishbabariya/sqlforge/dberr"
)

// TableNamer lets an entity type choose its table name.
type TableNamer interface {
	TableName() string
}

var tableNamerType = reflect.TypeOf((*TableNamer)(nil)).Elem()

// Registry caches entity descriptors keyed by Go type.
type Registry struct {
	mu      sync.RWMutex
	byType  map[reflect.Type]*EntityDescriptor
	dynamic []*EntityDescriptor
	naming  Naming
	log     *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithNaming replaces the default snake_case, pluralized naming.
func WithNaming(n Naming) Option {
	return func(r *Registry) { r.naming = n }
}

// WithLogger sets the logger used to report descriptor builds.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byType: make(map[reflect.Type]*EntityDescriptor),
		naming: SnakeNaming{},
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Of returns the descriptor for T, building it on first use.
func Of[T any](r *Registry) (*EntityDescriptor, error) {
	return r.Describe(reflect.TypeOf((*T)(nil)).Elem())
}

// MustOf is like Of but panics on invalid metadata. It is meant for package initialisation.
func MustOf[T any](r *Registry) *EntityDescriptor {
	d, err := Of[T](r)
	if err != nil {
		panic(err)
	}
	return d
}

// DescribeValue returns the descriptor for the dynamic type of v (a struct or pointer to one).
func (r *Registry) DescribeValue(v any) (*EntityDescriptor, error) {
	if v == nil {
		return nil, dberr.Compile("describe", "nil", dberr.ErrInvalidModel)
	}
	return r.Describe(reflect.TypeOf(v))
}

// Describe returns the descriptor for t, building and caching it on first use.
func (r *Registry) Describe(t reflect.Type) (*EntityDescriptor, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	r.mu.RLock()
	d, ok := r.byType[t]
	r.mu.RUnlock()
	if ok {
		return d, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.byType[t]; ok {
		return d, nil
	}

	d, err := r.build(t)
	if err != nil {
		return nil, err
	}
	r.byType[t] = d
	r.log.Debug("entity described",
		zap.String("type", t.String()),
		zap.String("table", d.Table()),
		zap.Int("columns", len(d.columns)))
	return d, nil
}

// Register adds a dynamic descriptor so Lookup can find it by table name.
func (r *Registry) Register(d *EntityDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.dynamic {
		if existing.Table() == d.Table() {
			r.dynamic[i] = d
			return nil
		}
	}
	r.dynamic = append(r.dynamic, d)
	return nil
}

// Lookup finds a described or registered entity by its current table name.
func (r *Registry) Lookup(table string) (*EntityDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.dynamic {
		if d.Table() == table {
			return d, true
		}
	}
	for _, d := range r.byType {
		if d.Table() == table {
			return d, true
		}
	}
	return nil, false
}

// Entities returns every dynamic descriptor in registration order.
func (r *Registry) Entities() []*EntityDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*EntityDescriptor, len(r.dynamic))
	copy(out, r.dynamic)
	return out
}

func (r *Registry) build(t reflect.Type) (*EntityDescriptor, error) {
	if t.Kind() != reflect.Struct {
		return nil, dberr.Compilef("describe", dberr.ErrInvalidModel, "%s is not a struct", t)
	}

	d := NewEntity(r.naming.TableName(t.Name()))
	d.goType = t
	if t.Implements(tableNamerType) {
		d.table = reflect.Zero(t).Interface().(TableNamer).TableName()
	} else if reflect.PointerTo(t).Implements(tableNamerType) {
		d.table = reflect.New(t).Interface().(TableNamer).TableName()
	}

	indexGroups := map[string][]string{}
	var indexOrder []string
	indexKinds := map[string]string{}
	uniqueGroups := map[string][]string{}
	var uniqueOrder []string

	var walk func(t reflect.Type, prefix []int) error
	walk = func(t reflect.Type, prefix []int) error {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			index := append(append([]int(nil), prefix...), i)
			tag, hasTag := f.Tag.Lookup(TagName)

			if f.Anonymous && f.Type.Kind() == reflect.Struct && !hasTag {
				if err := walk(f.Type, index); err != nil {
					return err
				}
				continue
			}
			if !f.IsExported() {
				continue
			}

			ft, err := parseTag(tag)
			if err != nil {
				return dberr.Compilef("describe", dberr.ErrInvalidModel, "%s.%s: %v", t.Name(), f.Name, err)
			}
			if ft.skip {
				continue
			}

			col, err := r.column(f, ft)
			if err != nil {
				return dberr.Compilef("describe", dberr.ErrInvalidModel, "%s.%s: %v", t.Name(), f.Name, err)
			}
			col.index = index
			if err := d.AddColumn(col); err != nil {
				return err
			}

			for _, g := range ft.indices {
				if g == "" {
					g = defaultConstraintName("ix", d.table, []string{col.Name})
				}
				if _, seen := indexGroups[g]; !seen {
					indexOrder = append(indexOrder, g)
				}
				indexGroups[g] = append(indexGroups[g], col.Name)
				if ft.kind != "" {
					indexKinds[g] = ft.kind
				}
			}
			for _, g := range ft.uniqueGroups {
				if _, seen := uniqueGroups[g]; !seen {
					uniqueOrder = append(uniqueOrder, g)
				}
				uniqueGroups[g] = append(uniqueGroups[g], col.Name)
			}
		}
		return nil
	}
	if err := walk(t, nil); err != nil {
		return nil, err
	}

	for _, g := range indexOrder {
		d.AddIndex(g, indexKinds[g], indexGroups[g]...)
	}
	for _, g := range uniqueOrder {
		d.AddUnique(g, uniqueGroups[g]...)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *Registry) column(f reflect.StructField, ft fieldTag) (*ColumnDescriptor, error) {
	name := ft.name
	if name == "" {
		name = r.naming.ColumnName(f.Name)
	}

	typ, nullable, err := InferType(f.Type)
	if ft.typ != TypeUnknown {
		typ, err = ft.typ, nil
	}
	if err != nil {
		return nil, err
	}

	col := &ColumnDescriptor{
		Name:          name,
		Field:         f.Name,
		Type:          typ,
		Size:          ft.size,
		PrimaryKey:    ft.primaryKey,
		AutoIncrement: ft.autoIncrement,
		NotNull:       (!nullable && !ft.nullable) || ft.notNull || ft.primaryKey,
		Unique:        ft.unique,
		goType:        f.Type,
	}
	if ft.def != nil {
		v, err := ParseDefault(typ, *ft.def)
		if err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
		col.Default = v
	}
	return col, nil
}

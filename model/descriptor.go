package model

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/satishbabariya/sqlforge/dberr"
)

// ColumnDescriptor describes one mapped column.
type ColumnDescriptor struct {
	Name string
	// Field is the Go field name backing the column; empty for dynamic descriptors.
	Field string
	Type  Type
	// Size bounds String columns on dialects with sized character types; 0 means default.
	Size          int
	PrimaryKey    bool
	AutoIncrement bool
	NotNull       bool
	Unique        bool
	// Default is a host value rendered as a DDL literal; nil means no default.
	Default any

	index  []int
	goType reflect.Type
}

// HasDefault reports whether the column declares a default value.
func (c *ColumnDescriptor) HasDefault() bool { return c.Default != nil }

// HasAccessor reports whether the column is backed by a struct field.
func (c *ColumnDescriptor) HasAccessor() bool { return c.index != nil }

// GoType returns the field type, or nil for dynamic columns.
func (c *ColumnDescriptor) GoType() reflect.Type { return c.goType }

func (c *ColumnDescriptor) field(entity any) (reflect.Value, error) {
	if c.index == nil {
		return reflect.Value{}, fmt.Errorf("column %q has no field accessor", c.Name)
	}
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return reflect.Value{}, fmt.Errorf("column %q: entity must be a non-nil pointer, got %T", c.Name, entity)
	}
	return v.Elem().FieldByIndex(c.index), nil
}

// Get returns the column's field value from entity, a pointer to the mapped struct.
func (c *ColumnDescriptor) Get(entity any) (any, error) {
	f, err := c.field(entity)
	if err != nil {
		return nil, err
	}
	return f.Interface(), nil
}

// Set assigns v to the column's field on entity, converting where the types allow.
func (c *ColumnDescriptor) Set(entity any, v any) error {
	f, err := c.field(entity)
	if err != nil {
		return err
	}
	if err := Assign(f, v); err != nil {
		return fmt.Errorf("column %q: %w", c.Name, err)
	}
	return nil
}

// IsZero reports whether the column's field on entity holds its zero value.
func (c *ColumnDescriptor) IsZero(entity any) (bool, error) {
	f, err := c.field(entity)
	if err != nil {
		return false, err
	}
	return f.IsZero(), nil
}

// IndexDescriptor describes a secondary index.
type IndexDescriptor struct {
	Name    string
	Columns []string
	// Kind is a dialect-specific access method such as "btree" or "gin".
	Kind string
}

// Equal compares two indices structurally; column order is ignored.
func (ix *IndexDescriptor) Equal(other *IndexDescriptor) bool {
	return other != nil && strings.EqualFold(ix.Kind, other.Kind) && SameColumns(ix.Columns, other.Columns)
}

// UniqueDescriptor describes a unique constraint over one or more columns.
type UniqueDescriptor struct {
	Name    string
	Columns []string
}

// Equal compares two unique constraints structurally; column order is ignored.
func (u *UniqueDescriptor) Equal(other *UniqueDescriptor) bool {
	return other != nil && SameColumns(u.Columns, other.Columns)
}

// SameColumns reports whether a and b hold the same column set, ignoring order and case.
func SameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := normalized(a)
	y := normalized(b)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func normalized(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = strings.ToLower(c)
	}
	sort.Strings(out)
	return out
}

// EntityDescriptor is the resolved mapping of one entity type to a table.
//
// Descriptors may be adjusted through SetTable, AddIndex and AddUnique before the first
// migration or statement that uses them. Changing a descriptor after it has been used against
// a live database is a caller error.
type EntityDescriptor struct {
	table   string
	goType  reflect.Type
	columns []*ColumnDescriptor
	byName  map[string]*ColumnDescriptor
	byField map[string]*ColumnDescriptor
	pk      *ColumnDescriptor
	indices []*IndexDescriptor
	uniques []*UniqueDescriptor
}

// NewEntity starts a dynamic descriptor for table with no Go type behind it.
func NewEntity(table string) *EntityDescriptor {
	return &EntityDescriptor{
		table:   table,
		byName:  make(map[string]*ColumnDescriptor),
		byField: make(map[string]*ColumnDescriptor),
	}
}

// Table returns the mapped table name.
func (d *EntityDescriptor) Table() string { return d.table }

// GoType returns the mapped struct type, or nil for dynamic descriptors.
func (d *EntityDescriptor) GoType() reflect.Type { return d.goType }

// SetTable remaps the descriptor to another table name.
func (d *EntityDescriptor) SetTable(name string) *EntityDescriptor {
	d.table = name
	return d
}

// Columns returns the columns in declaration order, which is the default projection order.
func (d *EntityDescriptor) Columns() []*ColumnDescriptor { return d.columns }

// ColumnNames returns the column names in declaration order.
func (d *EntityDescriptor) ColumnNames() []string {
	names := make([]string, len(d.columns))
	for i, c := range d.columns {
		names[i] = c.Name
	}
	return names
}

// Column finds a column by its column name.
func (d *EntityDescriptor) Column(name string) *ColumnDescriptor {
	return d.byName[strings.ToLower(name)]
}

// Property finds a column by Go field name, falling back to the column name.
func (d *EntityDescriptor) Property(name string) *ColumnDescriptor {
	if c, ok := d.byField[name]; ok {
		return c
	}
	return d.Column(name)
}

// PrimaryKey returns the primary key column, or nil.
func (d *EntityDescriptor) PrimaryKey() *ColumnDescriptor { return d.pk }

// Indices returns the declared secondary indices.
func (d *EntityDescriptor) Indices() []*IndexDescriptor { return d.indices }

// Uniques returns the declared multi-column unique constraints.
func (d *EntityDescriptor) Uniques() []*UniqueDescriptor { return d.uniques }

// AddColumn appends a column. It fails on duplicate names or a second primary key.
func (d *EntityDescriptor) AddColumn(c *ColumnDescriptor) error {
	key := strings.ToLower(c.Name)
	if c.Name == "" {
		return dberr.Compile("describe", d.table, fmt.Errorf("%w: empty column name", dberr.ErrInvalidModel))
	}
	if _, dup := d.byName[key]; dup {
		return dberr.Compilef("describe", dberr.ErrInvalidModel, "%s.%s: duplicate column", d.table, c.Name)
	}
	if c.PrimaryKey {
		if d.pk != nil {
			return dberr.Compilef("describe", dberr.ErrInvalidModel, "%s: primary keys %s and %s", d.table, d.pk.Name, c.Name)
		}
		c.NotNull = true
		d.pk = c
	}
	if c.AutoIncrement && !c.PrimaryKey {
		return dberr.Compilef("describe", dberr.ErrInvalidModel, "%s.%s: auto-increment on a non primary key column", d.table, c.Name)
	}
	d.columns = append(d.columns, c)
	d.byName[key] = c
	if c.Field != "" {
		d.byField[c.Field] = c
	}
	return nil
}

// AddIndex declares an index. An empty name derives ix_<table>_<cols>.
func (d *EntityDescriptor) AddIndex(name, kind string, cols ...string) *EntityDescriptor {
	if name == "" {
		name = defaultConstraintName("ix", d.table, cols)
	}
	for i, ix := range d.indices {
		if ix.Name == name {
			d.indices[i] = &IndexDescriptor{Name: name, Columns: cols, Kind: kind}
			return d
		}
	}
	d.indices = append(d.indices, &IndexDescriptor{Name: name, Columns: cols, Kind: kind})
	return d
}

// AddUnique declares a unique constraint. An unnamed constraint over a single column sets
// that column's unique flag instead.
func (d *EntityDescriptor) AddUnique(name string, cols ...string) *EntityDescriptor {
	if name == "" && len(cols) == 1 {
		if c := d.Column(cols[0]); c != nil {
			c.Unique = true
			return d
		}
	}
	if name == "" {
		name = defaultConstraintName("uq", d.table, cols)
	}
	for i, u := range d.uniques {
		if u.Name == name {
			d.uniques[i] = &UniqueDescriptor{Name: name, Columns: cols}
			return d
		}
	}
	d.uniques = append(d.uniques, &UniqueDescriptor{Name: name, Columns: cols})
	return d
}

// Validate checks the descriptor invariants.
func (d *EntityDescriptor) Validate() error {
	if d.table == "" {
		return dberr.Compile("describe", "", fmt.Errorf("%w: empty table name", dberr.ErrInvalidModel))
	}
	if len(d.columns) == 0 {
		return dberr.Compilef("describe", dberr.ErrInvalidModel, "%s: no columns", d.table)
	}
	check := func(kind, name string, cols []string) error {
		if len(cols) == 0 {
			return dberr.Compilef("describe", dberr.ErrInvalidModel, "%s: %s %s has no columns", d.table, kind, name)
		}
		for _, c := range cols {
			if d.Column(c) == nil {
				return dberr.Compilef("describe", dberr.ErrInvalidModel, "%s: %s %s references unknown column %s", d.table, kind, name, c)
			}
		}
		return nil
	}
	for _, ix := range d.indices {
		if err := check("index", ix.Name, ix.Columns); err != nil {
			return err
		}
	}
	for _, u := range d.uniques {
		if err := check("unique", u.Name, u.Columns); err != nil {
			return err
		}
	}
	return nil
}

func defaultConstraintName(prefix, table string, cols []string) string {
	parts := append([]string{prefix, table}, cols...)
	return strings.ToLower(strings.Join(parts, "_"))
}

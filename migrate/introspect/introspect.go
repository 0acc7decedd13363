// Package introspect reads the live shape of tables and views.
//
// Snapshots are built fresh for every check and never cached: they always describe the
// database as it is at the time of the call. Column types carry the dialect's own type names.
package introspect

import (
	"context"
	"database/sql"
	"sort"
	"strings"
)

// Querier is the subset of *sql.DB, *sql.Conn and *sql.Tx used for introspection.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Introspector reads objects for one dialect.
type Introspector interface {
	// Object returns the named table or view, or nil when nothing has that name.
	Object(ctx context.Context, name string) (Object, error)
	// Tables lists base tables, sorted by name.
	Tables(ctx context.Context) ([]string, error)
}

// Object is the closed set of schema objects: *TableSchema, *ViewSchema and *UnknownObject.
type Object interface {
	ObjectName() string
	object()
}

// TableSchema is the introspected shape of a base table.
type TableSchema struct {
	Name    string
	Columns []ColumnSchema
	// Indices are the non-unique secondary indices.
	Indices []IndexSchema
	// Uniques are named unique indices or constraints not expressed as a column flag.
	Uniques []IndexSchema
}

// ColumnSchema is one introspected column.
type ColumnSchema struct {
	Name          string
	Type          string
	NotNull       bool
	PrimaryKey    bool
	AutoIncrement bool
	// Unique is set for single-column unique constraints declared on the column.
	Unique  bool
	Default *string
}

// IndexSchema is an introspected index or unique constraint.
type IndexSchema struct {
	Name    string
	Columns []string
	// Kind is empty for the dialect's default access method.
	Kind   string
	Unique bool
	// Constraint is set when the index backs a table constraint and cannot be dropped alone.
	Constraint bool
}

// ViewSchema is an introspected view; only its definition is kept.
type ViewSchema struct {
	Name       string
	Definition string
}

// UnknownObject is a named object that is neither a table nor a view.
type UnknownObject struct {
	Name string
	Kind string
}

func (t *TableSchema) ObjectName() string   { return t.Name }
func (v *ViewSchema) ObjectName() string    { return v.Name }
func (u *UnknownObject) ObjectName() string { return u.Name }

func (*TableSchema) object()   {}
func (*ViewSchema) object()    {}
func (*UnknownObject) object() {}

// Column finds a column by name, case-insensitively.
func (t *TableSchema) Column(name string) *ColumnSchema {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnNames returns the column names in table order.
func (t *TableSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// IndexNames returns the names of every index and unique index, sorted.
func (t *TableSchema) IndexNames() []string {
	var names []string
	for _, ix := range t.AllIndices() {
		names = append(names, ix.Name)
	}
	return names
}

// AllIndices returns the secondary and unique indices, sorted by name.
func (t *TableSchema) AllIndices() []IndexSchema {
	all := make([]IndexSchema, 0, len(t.Indices)+len(t.Uniques))
	all = append(all, t.Indices...)
	all = append(all, t.Uniques...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// collect drains rows with scan and closes them, so callers can issue follow-up queries on a
// single connection.
func collect(rows *sql.Rows, scan func(*sql.Rows) error) error {
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func splitColumns(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(strings.Trim(s, "{}"), ",")
	for i := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(parts[i]), `"`)
	}
	return parts
}

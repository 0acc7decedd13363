package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// SQLiteIntrospector implements introspection for SQLite.
type SQLiteIntrospector struct {
	q Querier
}

// NewSQLite returns an introspector reading through q.
func NewSQLite(q Querier) *SQLiteIntrospector {
	return &SQLiteIntrospector{q: q}
}

var autoincrementRe = regexp.MustCompile(`(?i)\bAUTOINCREMENT\b`)

// Object reads the object registered under name in sqlite_master.
func (i *SQLiteIntrospector) Object(ctx context.Context, name string) (Object, error) {
	rows, err := i.q.QueryContext(ctx,
		`SELECT type, COALESCE(sql, '') FROM sqlite_master WHERE name = ? AND name NOT LIKE 'sqlite_%'`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query sqlite_master: %w", err)
	}
	var kind, def string
	found := false
	if err := collect(rows, func(r *sql.Rows) error {
		found = true
		return r.Scan(&kind, &def)
	}); err != nil {
		return nil, fmt.Errorf("failed to scan sqlite_master: %w", err)
	}
	if !found {
		return nil, nil
	}

	switch kind {
	case "table":
		return i.table(ctx, name, def)
	case "view":
		return &ViewSchema{Name: name, Definition: def}, nil
	default:
		return &UnknownObject{Name: name, Kind: kind}, nil
	}
}

// Tables lists user tables.
func (i *SQLiteIntrospector) Tables(ctx context.Context) ([]string, error) {
	rows, err := i.q.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	var names []string
	err = collect(rows, func(r *sql.Rows) error {
		var n string
		if err := r.Scan(&n); err != nil {
			return err
		}
		names = append(names, n)
		return nil
	})
	return names, err
}

func (i *SQLiteIntrospector) table(ctx context.Context, name, createSQL string) (*TableSchema, error) {
	t := &TableSchema{Name: name}

	rows, err := i.q.QueryContext(ctx,
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	autoinc := autoincrementRe.MatchString(createSQL)
	err = collect(rows, func(r *sql.Rows) error {
		var col ColumnSchema
		var notNull, pk int
		var dflt sql.NullString
		if err := r.Scan(&col.Name, &col.Type, &notNull, &dflt, &pk); err != nil {
			return err
		}
		col.NotNull = notNull == 1
		col.PrimaryKey = pk > 0
		if dflt.Valid {
			col.Default = &dflt.String
		}
		// AUTOINCREMENT is only legal on an INTEGER PRIMARY KEY column.
		col.AutoIncrement = autoinc && col.PrimaryKey && strings.EqualFold(col.Type, "INTEGER")
		t.Columns = append(t.Columns, col)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan column: %w", err)
	}

	type indexRow struct {
		name   string
		unique bool
		origin string
	}
	rows, err = i.q.QueryContext(ctx, `SELECT name, "unique", origin FROM pragma_index_list(?) ORDER BY name`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	var list []indexRow
	err = collect(rows, func(r *sql.Rows) error {
		var ir indexRow
		var unique int
		if err := r.Scan(&ir.name, &unique, &ir.origin); err != nil {
			return err
		}
		ir.unique = unique == 1
		list = append(list, ir)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan index: %w", err)
	}

	for _, ir := range list {
		if ir.origin == "pk" {
			continue
		}
		cols, err := i.indexColumns(ctx, ir.name)
		if err != nil {
			return nil, err
		}
		ix := IndexSchema{Name: ir.name, Columns: cols, Unique: ir.unique, Constraint: ir.origin == "u"}
		switch {
		case ir.origin == "u" && len(cols) == 1:
			if c := t.Column(cols[0]); c != nil {
				c.Unique = true
			}
		case ir.unique:
			t.Uniques = append(t.Uniques, ix)
		default:
			t.Indices = append(t.Indices, ix)
		}
	}
	return t, nil
}

func (i *SQLiteIntrospector) indexColumns(ctx context.Context, index string) ([]string, error) {
	rows, err := i.q.QueryContext(ctx, `SELECT name FROM pragma_index_info(?) ORDER BY seqno`, index)
	if err != nil {
		return nil, fmt.Errorf("failed to query index columns for %s: %w", index, err)
	}
	var cols []string
	err = collect(rows, func(r *sql.Rows) error {
		var n sql.NullString
		if err := r.Scan(&n); err != nil {
			return err
		}
		if n.Valid {
			cols = append(cols, n.String)
		}
		return nil
	})
	return cols, err
}

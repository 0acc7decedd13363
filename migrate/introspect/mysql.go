package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// MySQLIntrospector implements introspection for MySQL, scoped to DATABASE().
type MySQLIntrospector struct {
	q Querier
}

// NewMySQL returns an introspector reading through q.
func NewMySQL(q Querier) *MySQLIntrospector {
	return &MySQLIntrospector{q: q}
}

// Object reads the named table or view.
func (i *MySQLIntrospector) Object(ctx context.Context, name string) (Object, error) {
	rows, err := i.q.QueryContext(ctx, `
		SELECT table_type
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		  AND table_name = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	var kind string
	found := false
	if err := collect(rows, func(r *sql.Rows) error {
		found = true
		return r.Scan(&kind)
	}); err != nil {
		return nil, fmt.Errorf("failed to scan table: %w", err)
	}
	if !found {
		return nil, nil
	}

	switch kind {
	case "BASE TABLE":
		return i.table(ctx, name)
	case "VIEW":
		rows, err := i.q.QueryContext(ctx, `
			SELECT view_definition
			FROM information_schema.views
			WHERE table_schema = DATABASE()
			  AND table_name = ?`, name)
		if err != nil {
			return nil, fmt.Errorf("failed to query views: %w", err)
		}
		v := &ViewSchema{Name: name}
		err = collect(rows, func(r *sql.Rows) error { return r.Scan(&v.Definition) })
		return v, err
	default:
		return &UnknownObject{Name: name, Kind: strings.ToLower(kind)}, nil
	}
}

// Tables lists base tables in the current database.
func (i *MySQLIntrospector) Tables(ctx context.Context) ([]string, error) {
	rows, err := i.q.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
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

func (i *MySQLIntrospector) table(ctx context.Context, name string) (*TableSchema, error) {
	t := &TableSchema{Name: name}

	rows, err := i.q.QueryContext(ctx, `
		SELECT
			column_name,
			column_type,
			is_nullable,
			column_default,
			column_key,
			extra
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		  AND table_name = ?
		ORDER BY ordinal_position`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	err = collect(rows, func(r *sql.Rows) error {
		var col ColumnSchema
		var nullable, key, extra string
		var dflt sql.NullString
		if err := r.Scan(&col.Name, &col.Type, &nullable, &dflt, &key, &extra); err != nil {
			return err
		}
		col.NotNull = nullable == "NO"
		col.PrimaryKey = key == "PRI"
		col.AutoIncrement = strings.Contains(strings.ToLower(extra), "auto_increment")
		if dflt.Valid {
			col.Default = &dflt.String
		}
		t.Columns = append(t.Columns, col)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan column: %w", err)
	}

	rows, err = i.q.QueryContext(ctx, `
		SELECT
			index_name,
			GROUP_CONCAT(column_name ORDER BY seq_in_index),
			MAX(non_unique),
			MAX(index_type)
		FROM information_schema.statistics
		WHERE table_schema = DATABASE()
		  AND table_name = ?
		  AND index_name != 'PRIMARY'
		GROUP BY index_name
		ORDER BY index_name`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	err = collect(rows, func(r *sql.Rows) error {
		var ix IndexSchema
		var cols, method string
		var nonUnique int
		if err := r.Scan(&ix.Name, &cols, &nonUnique, &method); err != nil {
			return err
		}
		ix.Columns = splitColumns(cols)
		ix.Unique = nonUnique == 0
		if !strings.EqualFold(method, "BTREE") {
			ix.Kind = strings.ToLower(method)
		}
		// An inline UNIQUE column constraint produces an index named after the column.
		switch {
		case ix.Unique && len(ix.Columns) == 1 && strings.EqualFold(ix.Name, ix.Columns[0]):
			if c := t.Column(ix.Columns[0]); c != nil {
				c.Unique = true
			}
		case ix.Unique:
			t.Uniques = append(t.Uniques, ix)
		default:
			t.Indices = append(t.Indices, ix)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan index: %w", err)
	}
	return t, nil
}

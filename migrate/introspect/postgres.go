package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PostgresIntrospector implements introspection for PostgreSQL, scoped to current_schema().
type PostgresIntrospector struct {
	q Querier
}

// NewPostgres returns an introspector reading through q.
func NewPostgres(q Querier) *PostgresIntrospector {
	return &PostgresIntrospector{q: q}
}

// Object reads the named table or view.
func (i *PostgresIntrospector) Object(ctx context.Context, name string) (Object, error) {
	rows, err := i.q.QueryContext(ctx, `
		SELECT table_type
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		  AND table_name = $1`, name)
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
		return i.view(ctx, name)
	default:
		return &UnknownObject{Name: name, Kind: strings.ToLower(kind)}, nil
	}
}

// Tables lists base tables in the current schema.
func (i *PostgresIntrospector) Tables(ctx context.Context) ([]string, error) {
	rows, err := i.q.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema()
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

func (i *PostgresIntrospector) view(ctx context.Context, name string) (*ViewSchema, error) {
	rows, err := i.q.QueryContext(ctx, `
		SELECT COALESCE(view_definition, '')
		FROM information_schema.views
		WHERE table_schema = current_schema()
		  AND table_name = $1`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query views: %w", err)
	}
	v := &ViewSchema{Name: name}
	err = collect(rows, func(r *sql.Rows) error { return r.Scan(&v.Definition) })
	return v, err
}

func (i *PostgresIntrospector) table(ctx context.Context, name string) (*TableSchema, error) {
	t := &TableSchema{Name: name}

	rows, err := i.q.QueryContext(ctx, `
		SELECT
			column_name,
			data_type,
			is_nullable,
			column_default,
			character_maximum_length,
			is_identity
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		  AND table_name = $1
		ORDER BY ordinal_position`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	err = collect(rows, func(r *sql.Rows) error {
		var col ColumnSchema
		var dataType, nullable, identity string
		var dflt sql.NullString
		var maxLen sql.NullInt64
		if err := r.Scan(&col.Name, &dataType, &nullable, &dflt, &maxLen, &identity); err != nil {
			return err
		}
		col.Type = dataType
		if maxLen.Valid && dataType == "character varying" {
			col.Type = fmt.Sprintf("character varying(%d)", maxLen.Int64)
		}
		col.NotNull = nullable == "NO"
		col.AutoIncrement = identity == "YES" || strings.HasPrefix(dflt.String, "nextval(")
		if dflt.Valid && !col.AutoIncrement {
			col.Default = &dflt.String
		}
		t.Columns = append(t.Columns, col)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan column: %w", err)
	}

	rows, err = i.q.QueryContext(ctx, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = current_schema()
		  AND tc.table_name = $1`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query primary key: %w", err)
	}
	var pk []string
	err = collect(rows, func(r *sql.Rows) error {
		var c string
		if err := r.Scan(&c); err != nil {
			return err
		}
		pk = append(pk, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan primary key: %w", err)
	}
	for _, c := range pk {
		if col := t.Column(c); col != nil {
			col.PrimaryKey = true
		}
	}

	rows, err = i.q.QueryContext(ctx, `
		SELECT
			i.relname,
			array_to_string(array_agg(a.attname ORDER BY array_position(ix.indkey, a.attnum)), ','),
			ix.indisunique,
			am.amname,
			EXISTS (
				SELECT 1 FROM pg_constraint c
				WHERE c.conindid = ix.indexrelid AND c.contype = 'u'
			)
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_am am ON am.oid = i.relam
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE n.nspname = current_schema()
		  AND t.relname = $1
		  AND NOT ix.indisprimary
		GROUP BY i.relname, ix.indisunique, am.amname, ix.indexrelid
		ORDER BY i.relname`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	err = collect(rows, func(r *sql.Rows) error {
		var ix IndexSchema
		var cols, method string
		var constraint bool
		if err := r.Scan(&ix.Name, &cols, &ix.Unique, &method, &constraint); err != nil {
			return err
		}
		ix.Columns = splitColumns(cols)
		ix.Constraint = constraint
		if method != "btree" {
			ix.Kind = method
		}
		switch {
		case ix.Unique && constraint && len(ix.Columns) == 1:
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

// Package sqlite is the SQLite dialect, backed by github.com/mattn/go-sqlite3.
//
// SQLite allows a single writer, so MaxWriters is 1 and the runtime serializes write
// transactions. Collections can be bound as one JSON-encoded parameter expanded with json_each
// when ArrayParams is enabled; otherwise membership renders as a literal list.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/mattn/go-sqlite3"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/dialect"
	"github.com/satishbabariya/sqlforge/migrate/introspect"
	"github.com/satishbabariya/sqlforge/model"
)

// Name is the dialect name and the database/sql driver name.
const Name = "sqlite3"

// returningVersion is the first release accepting INSERT ... RETURNING.
var returningVersion = version.Must(version.NewVersion("3.35.0"))

// Options configures the dialect.
type Options struct {
	// ArrayParams binds collections as a single JSON parameter.
	ArrayParams bool
	// Version overrides the library version used for feature gating.
	Version string
}

// Dialect implements dialect.Dialect for SQLite.
type Dialect struct {
	dialect.Standard
	version *version.Version
}

var _ dialect.Dialect = (*Dialect)(nil)

// New returns a SQLite dialect.
func New(opts Options) (*Dialect, error) {
	v := opts.Version
	if v == "" {
		v, _, _ = sqlite3.Version()
	}
	ver, err := version.NewVersion(v)
	if err != nil {
		return nil, fmt.Errorf("sqlite: parse version %q: %w", v, err)
	}
	return &Dialect{
		Standard: dialect.Standard{
			QuoteChar:   '"',
			OffsetLimit: "-1",
			CastTypes: map[model.Type]string{
				model.Float:   "REAL",
				model.Decimal: "NUMERIC",
				model.Bool:    "INTEGER",
				model.String:  "TEXT",
				model.UUID:    "TEXT",
				model.Time:    "DATETIME",
			},
			Caps: dialect.Capabilities{
				ArrayParams:      opts.ArrayParams,
				Returning:        ver.GreaterThanOrEqual(returningVersion),
				TransactionalDDL: true,
				MaxWriters:       1,
			},
		},
		version: ver,
	}, nil
}

// MustNew is New for a known-good configuration.
func MustNew(opts Options) *Dialect {
	d, err := New(opts)
	if err != nil {
		panic(err)
	}
	return d
}

// Name implements dialect.Dialect.
func (*Dialect) Name() string { return Name }

// Version is the SQLite library version used for feature gating.
func (d *Dialect) Version() *version.Version { return d.version }

var typeNames = map[model.Type]string{
	model.Integer: "INTEGER",
	model.BigInt:  "INTEGER",
	model.Float:   "REAL",
	model.Decimal: "NUMERIC",
	model.Bool:    "BOOLEAN",
	model.String:  "TEXT",
	model.Text:    "TEXT",
	model.Bytes:   "BLOB",
	model.Time:    "DATETIME",
	model.UUID:    "TEXT",
	model.JSON:    "TEXT",
}

// TypeName implements dialect.Dialect.
func (*Dialect) TypeName(col *model.ColumnDescriptor) string {
	if n, ok := typeNames[col.Type]; ok {
		return n
	}
	return "BLOB"
}

// ColumnDDL implements dialect.Dialect. An auto-increment key must be exactly
// INTEGER PRIMARY KEY to alias the rowid.
func (d *Dialect) ColumnDDL(col *model.ColumnDescriptor) (string, error) {
	pk := "PRIMARY KEY"
	if col.AutoIncrement {
		pk += " AUTOINCREMENT"
	}
	return dialect.BuildColumn(d, col, d.TypeName(col), pk)
}

// AddColumn implements dialect.Dialect.
func (d *Dialect) AddColumn(table string, col *model.ColumnDescriptor) (string, error) {
	return dialect.AddColumnDDL(d, table, col)
}

// Literal implements dialect.Dialect; booleans are stored as integers.
func (d *Dialect) Literal(v any) (string, error) {
	if b, ok := v.(bool); ok {
		if b {
			return "1", nil
		}
		return "0", nil
	}
	return d.Standard.Literal(v)
}

// ZeroValue implements dialect.Dialect.
func (*Dialect) ZeroValue(t model.Type) any {
	switch t {
	case model.Integer, model.BigInt:
		return int64(0)
	case model.Float, model.Decimal:
		return float64(0)
	case model.Bool:
		return int64(0)
	case model.Bytes:
		return []byte{}
	case model.Time:
		return "1970-01-01 00:00:00"
	case model.UUID:
		return "00000000-0000-0000-0000-000000000000"
	case model.JSON:
		return "{}"
	default:
		return ""
	}
}

// ArrayValue implements dialect.Dialect by JSON-encoding the collection.
func (d *Dialect) ArrayValue(values any) (any, error) {
	if !d.Caps.ArrayParams {
		return d.Standard.ArrayValue(values)
	}
	rv := reflect.ValueOf(values)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, dberr.Compilef("bind", dberr.ErrUnsupported, "array parameter of type %T", values)
	}
	b, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode array parameter: %w", err)
	}
	return string(b), nil
}

// RenderInArray implements dialect.Dialect with json_each over a JSON parameter.
func (d *Dialect) RenderInArray(w dialect.Writer, lhs, array dialect.RenderFunc, not bool) error {
	if !d.Caps.ArrayParams {
		return d.Standard.RenderInArray(w, lhs, array, not)
	}
	if err := lhs(); err != nil {
		return err
	}
	if not {
		w.WriteString(" NOT IN (SELECT value FROM json_each(")
	} else {
		w.WriteString(" IN (SELECT value FROM json_each(")
	}
	if err := array(); err != nil {
		return err
	}
	w.WriteString("))")
	return nil
}

// DropIndex implements dialect.Dialect.
func (d *Dialect) DropIndex(_, name string) string {
	return "DROP INDEX IF EXISTS " + d.QuoteIdent(name)
}

// Introspector implements dialect.Dialect.
func (*Dialect) Introspector(q introspect.Querier) introspect.Introspector {
	return introspect.NewSQLite(q)
}

// TableExists implements dialect.Dialect.
func (*Dialect) TableExists(ctx context.Context, q dialect.Querier, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	return n > 0, err
}

// ColumnExists implements dialect.Dialect.
func (*Dialect) ColumnExists(ctx context.Context, q dialect.Querier, table, column string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	return n > 0, err
}

// ClassifyError implements dialect.Dialect.
func (*Dialect) ClassifyError(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return dberr.Classify(dberr.ErrUniqueViolation, err)
	case sqlite3.ErrConstraintNotNull:
		return dberr.Classify(dberr.ErrNotNullViolation, err)
	case sqlite3.ErrConstraintForeignKey:
		return dberr.Classify(dberr.ErrForeignKeyViolation, err)
	case sqlite3.ErrConstraintCheck:
		return dberr.Classify(dberr.ErrCheckViolation, err)
	}
	if se.Code == sqlite3.ErrConstraint && strings.Contains(se.Error(), "UNIQUE") {
		return dberr.Classify(dberr.ErrUniqueViolation, err)
	}
	return err
}

// Package postgres is the PostgreSQL dialect, backed by github.com/lib/pq.
package postgres

import (
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/dialect"
	"github.com/satishbabariya/sqlforge/migrate/introspect"
	"github.com/satishbabariya/sqlforge/model"
)

// Name is the dialect name and the database/sql driver name.
const Name = "postgres"

// SQLSTATE codes for integrity constraint violations.
const (
	codeNotNull    = "23502"
	codeForeignKey = "23503"
	codeUnique     = "23505"
	codeCheck      = "23514"
)

// Dialect implements dialect.Dialect for PostgreSQL.
type Dialect struct {
	dialect.Standard
}

var _ dialect.Dialect = (*Dialect)(nil)

// New returns a PostgreSQL dialect. Collections are always bound as native arrays.
func New() *Dialect {
	return &Dialect{Standard: dialect.Standard{
		QuoteChar:  '"',
		Numbered:   true,
		SchemaFunc: "current_schema()",
		CastTypes: map[model.Type]string{
			model.String: "TEXT",
			model.Bytes:  "BYTEA",
			model.Time:   "TIMESTAMPTZ",
			model.UUID:   "UUID",
			model.JSON:   "JSONB",
		},
		Caps: dialect.Capabilities{
			ArrayParams:      true,
			AlterInPlace:     true,
			Returning:        true,
			TransactionalDDL: true,
			IndexKinds:       true,
		},
	}}
}

// Name implements dialect.Dialect.
func (*Dialect) Name() string { return Name }

// TypeName implements dialect.Dialect using the names information_schema reports.
func (*Dialect) TypeName(col *model.ColumnDescriptor) string {
	switch col.Type {
	case model.Integer:
		return "integer"
	case model.BigInt:
		return "bigint"
	case model.Float:
		return "double precision"
	case model.Decimal:
		return "numeric"
	case model.Bool:
		return "boolean"
	case model.String:
		if col.Size > 0 {
			return "character varying(" + strconv.Itoa(col.Size) + ")"
		}
		return "text"
	case model.Bytes:
		return "bytea"
	case model.Time:
		return "timestamp with time zone"
	case model.UUID:
		return "uuid"
	case model.JSON:
		return "jsonb"
	default:
		return "text"
	}
}

// ColumnDDL implements dialect.Dialect. Auto-increment keys use the serial pseudo-types.
func (d *Dialect) ColumnDDL(col *model.ColumnDescriptor) (string, error) {
	typ := d.TypeName(col)
	if col.AutoIncrement {
		if col.Type == model.Integer {
			typ = "SERIAL"
		} else {
			typ = "BIGSERIAL"
		}
	}
	return dialect.BuildColumn(d, col, typ, "PRIMARY KEY")
}

// AddColumn implements dialect.Dialect.
func (d *Dialect) AddColumn(table string, col *model.ColumnDescriptor) (string, error) {
	return dialect.AddColumnDDL(d, table, col)
}

// Literal implements dialect.Dialect; byte strings use the bytea hex format.
func (d *Dialect) Literal(v any) (string, error) {
	if b, ok := v.([]byte); ok {
		return `'\x` + hex.EncodeToString(b) + `'::bytea`, nil
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
		return false
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

// ArrayValue implements dialect.Dialect with pq.Array.
func (*Dialect) ArrayValue(values any) (any, error) {
	rv := reflect.ValueOf(values)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, dberr.Compilef("bind", dberr.ErrUnsupported, "array parameter of type %T", values)
	}
	return pq.Array(values), nil
}

// RenderInArray implements dialect.Dialect as = ANY($n) or <> ALL($n).
func (*Dialect) RenderInArray(w dialect.Writer, lhs, array dialect.RenderFunc, not bool) error {
	if err := lhs(); err != nil {
		return err
	}
	if not {
		w.WriteString(" <> ALL(")
	} else {
		w.WriteString(" = ANY(")
	}
	if err := array(); err != nil {
		return err
	}
	w.WriteString(")")
	return nil
}

// RenderLike implements dialect.Dialect; case-insensitive matches use ILIKE.
func (d *Dialect) RenderLike(w dialect.Writer, lhs, pattern dialect.RenderFunc, caseInsensitive, not bool) error {
	if !caseInsensitive {
		return d.Standard.RenderLike(w, lhs, pattern, false, not)
	}
	if err := lhs(); err != nil {
		return err
	}
	if not {
		w.WriteString(" NOT ILIKE ")
	} else {
		w.WriteString(" ILIKE ")
	}
	if err := pattern(); err != nil {
		return err
	}
	w.WriteString(` ESCAPE '\'`)
	return nil
}

// DropIndex implements dialect.Dialect.
func (d *Dialect) DropIndex(_, name string) string {
	return "DROP INDEX IF EXISTS " + d.QuoteIdent(name)
}

// AlterColumn implements dialect.Dialect with ALTER COLUMN TYPE and SET/DROP NOT NULL.
// Existing NULLs are replaced by the zero value before NOT NULL is set.
func (d *Dialect) AlterColumn(table string, live introspect.ColumnSchema, target *model.ColumnDescriptor) ([]string, error) {
	t := d.QuoteIdent(table)
	c := d.QuoteIdent(target.Name)
	var stmts []string
	if typ := d.TypeName(target); !d.SameType(live.Type, typ) {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s", t, c, typ, c, typ))
	}
	if target.HasDefault() {
		lit, err := d.Literal(target.Default)
		if err != nil {
			return nil, dberr.Compilef("alter column", err, "%s default", target.Name)
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", t, c, lit))
	} else if live.Default != nil {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", t, c))
	}
	switch {
	case target.NotNull && !live.NotNull:
		zero, err := d.Literal(d.ZeroValue(target.Type))
		if err != nil {
			return nil, err
		}
		stmts = append(stmts,
			fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s IS NULL", t, c, zero, c),
			fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", t, c))
	case !target.NotNull && live.NotNull:
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", t, c))
	}
	return stmts, nil
}

// AfterCopy implements dialect.Dialect: serial sequences are advanced past the copied keys.
func (d *Dialect) AfterCopy(table string, desc *model.EntityDescriptor) []string {
	pk := desc.PrimaryKey()
	if pk == nil || !pk.AutoIncrement {
		return nil
	}
	t := d.QuoteIdent(table)
	c := d.QuoteIdent(pk.Name)
	return []string{fmt.Sprintf(
		"SELECT setval(pg_get_serial_sequence(%s, %s), COALESCE((SELECT MAX(%s) FROM %s), 0) + 1, false)",
		dialect.QuoteString(t), dialect.QuoteString(pk.Name), c, t)}
}

// Introspector implements dialect.Dialect.
func (*Dialect) Introspector(q introspect.Querier) introspect.Introspector {
	return introspect.NewPostgres(q)
}

// ClassifyError implements dialect.Dialect.
func (*Dialect) ClassifyError(err error) error {
	var pe *pq.Error
	if !errors.As(err, &pe) {
		return err
	}
	switch string(pe.Code) {
	case codeUnique:
		return dberr.Classify(dberr.ErrUniqueViolation, err)
	case codeNotNull:
		return dberr.Classify(dberr.ErrNotNullViolation, err)
	case codeForeignKey:
		return dberr.Classify(dberr.ErrForeignKeyViolation, err)
	case codeCheck:
		return dberr.Classify(dberr.ErrCheckViolation, err)
	}
	return err
}

// SameType implements dialect.Dialect, treating the serial pseudo-types as their base types.
func (*Dialect) SameType(live, target string) bool {
	return canonicalType(live) == canonicalType(target)
}

var typeAliases = map[string]string{
	"serial":      "integer",
	"bigserial":   "bigint",
	"int":         "integer",
	"int4":        "integer",
	"int8":        "bigint",
	"float8":      "double precision",
	"bool":        "boolean",
	"timestamptz": "timestamp with time zone",
	"varchar":     "character varying",
}

func canonicalType(s string) string {
	s = dialect.NormalizeType(s)
	if a, ok := typeAliases[s]; ok {
		return a
	}
	if rest, ok := strings.CutPrefix(s, "varchar("); ok {
		return "character varying(" + rest
	}
	return s
}

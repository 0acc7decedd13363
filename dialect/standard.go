package dialect

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/future"
	"github.com/satishbabariya/sqlforge/migrate/introspect"
	"github.com/satishbabariya/sqlforge/model"
)

// Standard implements the ANSI parts of Dialect. Concrete dialects embed it, set its fields
// and override what differs.
type Standard struct {
	// QuoteChar quotes identifiers: '"' or '`'.
	QuoteChar byte
	// Numbered selects $1, $2 placeholders instead of ?.
	Numbered bool
	// SchemaFunc is the SQL expression naming the current schema in information_schema lookups.
	SchemaFunc string
	// LikeEscape is the ESCAPE literal body for pattern matches.
	LikeEscape string
	// OffsetLimit is written as LIMIT when an OFFSET is requested without a limit.
	OffsetLimit string
	// CastTypes overrides the CAST target names.
	CastTypes map[model.Type]string
	Caps      Capabilities
}

var defaultCastTypes = map[model.Type]string{
	model.Integer: "INTEGER",
	model.BigInt:  "BIGINT",
	model.Float:   "DOUBLE PRECISION",
	model.Decimal: "DECIMAL",
	model.Bool:    "BOOLEAN",
	model.String:  "VARCHAR",
	model.Text:    "TEXT",
	model.Bytes:   "BLOB",
	model.Time:    "TIMESTAMP",
	model.UUID:    "VARCHAR",
	model.JSON:    "TEXT",
}

// Capabilities implements Dialect.
func (s Standard) Capabilities() Capabilities { return s.Caps }

// QuoteIdent implements Dialect.
func (s Standard) QuoteIdent(name string) string {
	q := string(s.QuoteChar)
	if q == "\x00" {
		q = `"`
	}
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// Placeholder implements Dialect.
func (s Standard) Placeholder(position int) string {
	if s.Numbered {
		return "$" + strconv.Itoa(position)
	}
	return "?"
}

// Literal implements Dialect.
func (s Standard) Literal(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case string:
		return QuoteString(x), nil
	case []byte:
		return "X'" + hex.EncodeToString(x) + "'", nil
	case time.Time:
		return QuoteString(x.UTC().Format("2006-01-02 15:04:05")), nil
	case uuid.UUID:
		return QuoteString(x.String()), nil
	case decimal.Decimal:
		return x.String(), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.String:
		return QuoteString(rv.String()), nil
	}
	if str, ok := v.(fmt.Stringer); ok {
		return QuoteString(str.String()), nil
	}
	return "", fmt.Errorf("no literal form for %T", v)
}

// QuoteString renders s as a single-quoted SQL string.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// SameType implements Dialect with a case- and space-insensitive comparison.
func (Standard) SameType(live, target string) bool {
	return NormalizeType(live) == NormalizeType(target)
}

// NormalizeType lowercases a type name and collapses whitespace.
func NormalizeType(t string) string {
	return strings.Join(strings.Fields(strings.ToLower(t)), " ")
}

// ArrayValue implements Dialect for products without array parameters.
func (Standard) ArrayValue(any) (any, error) {
	return nil, dberr.Compile("bind", "array parameter", dberr.ErrUnsupported)
}

// RenderIn implements Dialect. An empty list is constant false (true when negated).
func (Standard) RenderIn(w Writer, lhs RenderFunc, items []RenderFunc, not bool) error {
	if len(items) == 0 {
		if not {
			w.WriteString("1 = 1")
		} else {
			w.WriteString("1 = 0")
		}
		return nil
	}
	if err := lhs(); err != nil {
		return err
	}
	if not {
		w.WriteString(" NOT IN (")
	} else {
		w.WriteString(" IN (")
	}
	if err := Join(w, ", ", items); err != nil {
		return err
	}
	w.WriteString(")")
	return nil
}

// RenderInArray implements Dialect for products without array parameters.
func (Standard) RenderInArray(Writer, RenderFunc, RenderFunc, bool) error {
	return dberr.Compile("translate", "membership against an array parameter", dberr.ErrUnsupported)
}

// RenderFold implements Dialect.
func (Standard) RenderFold(w Writer, fn string, arg RenderFunc) error {
	w.WriteString(fn + "(")
	if err := arg(); err != nil {
		return err
	}
	w.WriteString(")")
	return nil
}

// RenderLike implements Dialect. Case-insensitive matches fold both sides.
func (s Standard) RenderLike(w Writer, lhs, pattern RenderFunc, caseInsensitive, not bool) error {
	side := func(f RenderFunc) error {
		if caseInsensitive {
			return s.RenderFold(w, "LOWER", f)
		}
		return f()
	}
	if err := side(lhs); err != nil {
		return err
	}
	if not {
		w.WriteString(" NOT LIKE ")
	} else {
		w.WriteString(" LIKE ")
	}
	if err := side(pattern); err != nil {
		return err
	}
	esc := s.LikeEscape
	if esc == "" {
		esc = `\`
	}
	w.WriteString(" ESCAPE '" + esc + "'")
	return nil
}

// RenderConcat implements Dialect with the || operator.
func (Standard) RenderConcat(w Writer, parts []RenderFunc) error {
	w.WriteString("(")
	if err := Join(w, " || ", parts); err != nil {
		return err
	}
	w.WriteString(")")
	return nil
}

// RenderCast implements Dialect.
func (s Standard) RenderCast(w Writer, arg RenderFunc, t model.Type) error {
	name, ok := s.CastTypes[t]
	if !ok {
		name, ok = defaultCastTypes[t]
	}
	if !ok {
		return dberr.Compilef("translate", dberr.ErrUnsupported, "cast to %s", t)
	}
	w.WriteString("CAST(")
	if err := arg(); err != nil {
		return err
	}
	w.WriteString(" AS " + name + ")")
	return nil
}

// RenderLimit implements Dialect.
func (s Standard) RenderLimit(w Writer, limit, offset *int64) error {
	switch {
	case limit != nil:
		w.WriteString("LIMIT " + strconv.FormatInt(*limit, 10))
	case offset != nil && s.OffsetLimit != "":
		w.WriteString("LIMIT " + s.OffsetLimit)
	}
	if offset != nil {
		if limit != nil || s.OffsetLimit != "" {
			w.WriteString(" ")
		}
		w.WriteString("OFFSET " + strconv.FormatInt(*offset, 10))
	}
	return nil
}

// RenameTable implements Dialect.
func (s Standard) RenameTable(from, to string) string {
	return "ALTER TABLE " + s.QuoteIdent(from) + " RENAME TO " + s.QuoteIdent(to)
}

// DropTable implements Dialect.
func (s Standard) DropTable(name string) string {
	return "DROP TABLE " + s.QuoteIdent(name)
}

// CreateIndex implements Dialect.
func (s Standard) CreateIndex(table, name string, cols []string, kind string, unique bool) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX " + s.QuoteIdent(name) + " ON " + s.QuoteIdent(table))
	if kind != "" && s.Caps.IndexKinds {
		b.WriteString(" USING " + kind)
	}
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.QuoteIdent(c))
	}
	b.WriteString(")")
	return b.String()
}

// DropIndex implements Dialect.
func (s Standard) DropIndex(_, name string) string {
	return "DROP INDEX " + s.QuoteIdent(name)
}

// DropConstraint implements Dialect.
func (s Standard) DropConstraint(table, name string) string {
	return "ALTER TABLE " + s.QuoteIdent(table) + " DROP CONSTRAINT " + s.QuoteIdent(name)
}

// DropColumn implements Dialect.
func (s Standard) DropColumn(table, column string) string {
	return "ALTER TABLE " + s.QuoteIdent(table) + " DROP COLUMN " + s.QuoteIdent(column)
}

// AlterColumn implements Dialect for products that rebuild instead.
func (Standard) AlterColumn(table string, live introspect.ColumnSchema, _ *model.ColumnDescriptor) ([]string, error) {
	return nil, dberr.Migration("alter column", fmt.Errorf("%w: %s.%s cannot be altered in place", dberr.ErrUnsupported, table, live.Name))
}

// AfterCopy implements Dialect.
func (Standard) AfterCopy(string, *model.EntityDescriptor) []string { return nil }

// TableExists implements Dialect through information_schema.
func (s Standard) TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var n int
	query := "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = " + s.SchemaFunc +
		" AND table_name = " + s.Placeholder(1)
	if err := q.QueryRowContext(ctx, query, table).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ColumnExists implements Dialect through information_schema.
func (s Standard) ColumnExists(ctx context.Context, q Querier, table, column string) (bool, error) {
	var n int
	query := "SELECT COUNT(*) FROM information_schema.columns WHERE table_schema = " + s.SchemaFunc +
		" AND table_name = " + s.Placeholder(1) + " AND column_name = " + s.Placeholder(2)
	if err := q.QueryRowContext(ctx, query, table, column).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// BeginTx implements Dialect.
func (Standard) BeginTx(ctx context.Context, db Beginner, gate Gate, opts *sql.TxOptions) (*sql.Tx, error) {
	return BeginTx(ctx, db, gate, opts)
}

// BeginTx takes a slot from gate (when non-nil) and starts a transaction. The slot is returned
// if the transaction cannot be started; otherwise releasing it is the caller's job.
func BeginTx(ctx context.Context, db Beginner, gate Gate, opts *sql.TxOptions) (*sql.Tx, error) {
	if gate != nil {
		if err := gate.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	tx, err := db.BeginTx(ctx, opts)
	if err != nil && gate != nil {
		gate.Release(1)
	}
	return tx, err
}

// Join renders parts separated by sep.
func Join(w Writer, sep string, parts []RenderFunc) error {
	for i, p := range parts {
		if i > 0 {
			w.WriteString(sep)
		}
		if err := p(); err != nil {
			return err
		}
	}
	return nil
}

// BuildColumn assembles a column definition: name, type, NOT NULL, the dialect's primary key
// clause, UNIQUE and DEFAULT.
func BuildColumn(d Dialect, col *model.ColumnDescriptor, typ, pkClause string) (string, error) {
	var b strings.Builder
	b.WriteString(d.QuoteIdent(col.Name) + " " + typ)
	if col.NotNull || col.PrimaryKey {
		b.WriteString(" NOT NULL")
	}
	if col.PrimaryKey {
		b.WriteString(" " + pkClause)
	}
	if col.Unique && !col.PrimaryKey {
		b.WriteString(" UNIQUE")
	}
	if col.HasDefault() {
		lit, err := d.Literal(col.Default)
		if err != nil {
			return "", dberr.Compilef("column ddl", err, "%s default", col.Name)
		}
		b.WriteString(" DEFAULT " + lit)
	}
	return b.String(), nil
}

// AddColumnDDL renders ALTER TABLE ... ADD COLUMN. A NOT NULL column without a default gets
// the dialect zero value as default so existing rows satisfy the constraint.
func AddColumnDDL(d Dialect, table string, col *model.ColumnDescriptor) (string, error) {
	c := *col
	if c.NotNull && !c.HasDefault() {
		c.Default = d.ZeroValue(c.Type)
	}
	def, err := d.ColumnDDL(&c)
	if err != nil {
		return "", err
	}
	return "ALTER TABLE " + d.QuoteIdent(table) + " ADD COLUMN " + def, nil
}

// TableExistsAsync is the suspending form of Dialect.TableExists.
func TableExistsAsync(ctx context.Context, d Dialect, q Querier, table string) *future.Future[bool] {
	return future.Go(ctx, func(ctx context.Context) (bool, error) {
		return d.TableExists(ctx, q, table)
	})
}

// ColumnExistsAsync is the suspending form of Dialect.ColumnExists.
func ColumnExistsAsync(ctx context.Context, d Dialect, q Querier, table, column string) *future.Future[bool] {
	return future.Go(ctx, func(ctx context.Context) (bool, error) {
		return d.ColumnExists(ctx, q, table, column)
	})
}

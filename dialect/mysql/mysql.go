// Package mysql is the MySQL dialect, backed by github.com/go-sql-driver/mysql.
//
// MySQL commits implicitly around DDL, so a failed multi-statement migration cannot be rolled
// back completely; TransactionalDDL is false and the migrator logs that before it starts.
package mysql

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/dialect"
	"github.com/satishbabariya/sqlforge/migrate/introspect"
	"github.com/satishbabariya/sqlforge/model"
)

// Name is the dialect name and the database/sql driver name.
const Name = "mysql"

// Server error numbers for integrity constraint violations.
const (
	errDupEntry   = 1062
	errBadNull    = 1048
	errNoRefRow   = 1452
	errRowIsRef   = 1451
	errCheckFails = 3819
)

// Dialect implements dialect.Dialect for MySQL 8.
type Dialect struct {
	dialect.Standard
}

var _ dialect.Dialect = (*Dialect)(nil)

// New returns a MySQL dialect.
func New() *Dialect {
	return &Dialect{Standard: dialect.Standard{
		QuoteChar:   '`',
		SchemaFunc:  "DATABASE()",
		LikeEscape:  `\\`,
		OffsetLimit: "18446744073709551615",
		CastTypes: map[model.Type]string{
			model.Integer: "SIGNED",
			model.BigInt:  "SIGNED",
			model.Float:   "DOUBLE",
			model.Decimal: "DECIMAL(65,30)",
			model.Bool:    "UNSIGNED",
			model.String:  "CHAR",
			model.Text:    "CHAR",
			model.Bytes:   "BINARY",
			model.Time:    "DATETIME",
			model.UUID:    "CHAR(36)",
			model.JSON:    "JSON",
		},
		Caps: dialect.Capabilities{
			AlterInPlace: true,
		},
	}}
}

// Name implements dialect.Dialect.
func (*Dialect) Name() string { return Name }

// TypeName implements dialect.Dialect using the names information_schema.columns.column_type
// reports.
func (*Dialect) TypeName(col *model.ColumnDescriptor) string {
	switch col.Type {
	case model.Integer:
		return "int"
	case model.BigInt:
		return "bigint"
	case model.Float:
		return "double"
	case model.Decimal:
		return "decimal(65,30)"
	case model.Bool:
		return "tinyint(1)"
	case model.String:
		size := col.Size
		if size == 0 {
			size = 255
		}
		return "varchar(" + strconv.Itoa(size) + ")"
	case model.Text:
		return "longtext"
	case model.Bytes:
		return "longblob"
	case model.Time:
		return "datetime(6)"
	case model.UUID:
		return "char(36)"
	case model.JSON:
		return "json"
	default:
		return "longtext"
	}
}

var displayWidth = regexp.MustCompile(`^(int|bigint|smallint|mediumint)\(\d+\)`)

// SameType implements dialect.Dialect, ignoring integer display widths.
func (*Dialect) SameType(live, target string) bool {
	norm := func(s string) string {
		return displayWidth.ReplaceAllString(dialect.NormalizeType(s), "$1")
	}
	return norm(live) == norm(target)
}

// ColumnDDL implements dialect.Dialect.
func (d *Dialect) ColumnDDL(col *model.ColumnDescriptor) (string, error) {
	pk := "PRIMARY KEY"
	if col.AutoIncrement {
		pk = "AUTO_INCREMENT PRIMARY KEY"
	}
	c := *col
	if c.HasDefault() && (c.Type == model.Text || c.Type == model.Bytes || c.Type == model.JSON) {
		// BLOB, TEXT and JSON columns only accept expression defaults.
		lit, err := d.Literal(c.Default)
		if err != nil {
			return "", dberr.Compilef("column ddl", err, "%s default", c.Name)
		}
		c.Default = nil
		def, err := dialect.BuildColumn(d, &c, d.TypeName(&c), pk)
		if err != nil {
			return "", err
		}
		return def + " DEFAULT (" + lit + ")", nil
	}
	return dialect.BuildColumn(d, &c, d.TypeName(&c), pk)
}

// AddColumn implements dialect.Dialect.
func (d *Dialect) AddColumn(table string, col *model.ColumnDescriptor) (string, error) {
	return dialect.AddColumnDDL(d, table, col)
}

// QuoteString escapes backslashes as well as quotes, as MySQL's default sql_mode requires.
func QuoteString(s string) string {
	return dialect.QuoteString(strings.ReplaceAll(s, `\`, `\\`))
}

// Literal implements dialect.Dialect.
func (d *Dialect) Literal(v any) (string, error) {
	switch x := v.(type) {
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case string:
		return QuoteString(x), nil
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

// RenderConcat implements dialect.Dialect with CONCAT(); || is logical OR in MySQL.
func (*Dialect) RenderConcat(w dialect.Writer, parts []dialect.RenderFunc) error {
	w.WriteString("CONCAT(")
	if err := dialect.Join(w, ", ", parts); err != nil {
		return err
	}
	w.WriteString(")")
	return nil
}

// RenameTable implements dialect.Dialect.
func (d *Dialect) RenameTable(from, to string) string {
	return "RENAME TABLE " + d.QuoteIdent(from) + " TO " + d.QuoteIdent(to)
}

// CreateIndex implements dialect.Dialect; the index kind follows the column list.
func (d *Dialect) CreateIndex(table, name string, cols []string, kind string, unique bool) string {
	stmt := d.Standard.CreateIndex(table, name, cols, "", unique)
	if k := strings.ToUpper(kind); k == "BTREE" || k == "HASH" {
		stmt += " USING " + k
	}
	return stmt
}

// DropIndex implements dialect.Dialect.
func (d *Dialect) DropIndex(table, name string) string {
	return "DROP INDEX " + d.QuoteIdent(name) + " ON " + d.QuoteIdent(table)
}

// AlterColumn implements dialect.Dialect with MODIFY COLUMN.
func (d *Dialect) AlterColumn(table string, live introspect.ColumnSchema, target *model.ColumnDescriptor) ([]string, error) {
	t := d.QuoteIdent(table)
	c := *target
	var stmts []string
	if c.NotNull && !live.NotNull {
		zero, err := d.Literal(d.ZeroValue(c.Type))
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s IS NULL", t, d.QuoteIdent(c.Name), zero, d.QuoteIdent(c.Name)))
	}
	c.PrimaryKey, c.Unique = false, false
	def, err := d.ColumnDDL(&c)
	if err != nil {
		return nil, err
	}
	return append(stmts, "ALTER TABLE "+t+" MODIFY COLUMN "+def), nil
}

// Introspector implements dialect.Dialect.
func (*Dialect) Introspector(q introspect.Querier) introspect.Introspector {
	return introspect.NewMySQL(q)
}

// ClassifyError implements dialect.Dialect.
func (*Dialect) ClassifyError(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	switch me.Number {
	case errDupEntry:
		return dberr.Classify(dberr.ErrUniqueViolation, err)
	case errBadNull:
		return dberr.Classify(dberr.ErrNotNullViolation, err)
	case errNoRefRow, errRowIsRef:
		return dberr.Classify(dberr.ErrForeignKeyViolation, err)
	case errCheckFails:
		return dberr.Classify(dberr.ErrCheckViolation, err)
	}
	return err
}

// Package dialect defines the adapter each database product implements.
//
// A Dialect covers identifier quoting, placeholder syntax, type names, DDL fragments,
// introspection, driver error classification and the rendering of the helper calls whose SQL
// differs between products (membership against an array, case folding, pattern matching,
// concatenation, casts, limit/offset). Concrete dialects embed Standard for the ANSI defaults.
package dialect

import (
	"context"
	"database/sql"

	"github.com/satishbabariya/sqlforge/migrate/introspect"
	"github.com/satishbabariya/sqlforge/model"
)

// Writer is the text and parameter sink tokens render into.
type Writer interface {
	WriteString(s string)
	// WriteIdent writes a quoted identifier.
	WriteIdent(name string)
	// AddParam appends a literal parameter and writes its placeholder.
	AddParam(v any)
	// AddIndexedParam appends a parameter resolved from the index-th execution argument.
	// convert, if non-nil, is applied to the argument at bind time.
	AddIndexedParam(index int, convert func(any) (any, error))
}

// RenderFunc renders one operand into the Writer it was created for.
type RenderFunc func() error

// Querier is the subset of *sql.DB, *sql.Conn and *sql.Tx the dialects need.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Beginner starts transactions; *sql.DB and *sql.Conn implement it.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Gate is a counting lock limiting concurrent write transactions.
// *semaphore.Weighted implements it.
type Gate interface {
	Acquire(ctx context.Context, n int64) error
	Release(n int64)
}

// Capabilities describes what a database can do without a table rebuild.
type Capabilities struct {
	// ArrayParams enables binding a whole collection as one parameter.
	ArrayParams bool
	// AlterInPlace allows dropping columns and changing type or nullability with ALTER TABLE.
	AlterInPlace bool
	// Returning allows INSERT ... RETURNING.
	Returning bool
	// TransactionalDDL reports whether DDL statements honour the enclosing transaction.
	TransactionalDDL bool
	// IndexKinds allows CREATE INDEX ... USING <kind>.
	IndexKinds bool
	// MaxWriters bounds concurrent write transactions; 0 means unlimited.
	MaxWriters int
}

// Dialect is the per-database adapter.
type Dialect interface {
	Name() string
	Capabilities() Capabilities

	QuoteIdent(name string) string
	// Placeholder returns the parameter marker for the 1-based position.
	Placeholder(position int) string
	// Literal renders v as an SQL literal for DDL, where parameters are not accepted.
	Literal(v any) (string, error)

	// TypeName is the native type of col as introspection reports it.
	TypeName(col *model.ColumnDescriptor) string
	// SameType compares an introspected type name with a TypeName result.
	SameType(live, target string) bool
	// ColumnDDL renders the column definition used in CREATE TABLE and ADD COLUMN.
	ColumnDDL(col *model.ColumnDescriptor) (string, error)
	// ZeroValue is the fill value for a new NOT NULL column that declares no default.
	ZeroValue(t model.Type) any
	// ArrayValue converts a host slice into a driver value bound as one array parameter.
	ArrayValue(values any) (any, error)

	RenderIn(w Writer, lhs RenderFunc, items []RenderFunc, not bool) error
	RenderInArray(w Writer, lhs, array RenderFunc, not bool) error
	RenderFold(w Writer, fn string, arg RenderFunc) error
	RenderLike(w Writer, lhs, pattern RenderFunc, caseInsensitive, not bool) error
	RenderConcat(w Writer, parts []RenderFunc) error
	RenderCast(w Writer, arg RenderFunc, t model.Type) error
	RenderLimit(w Writer, limit, offset *int64) error

	RenameTable(from, to string) string
	DropTable(name string) string
	CreateIndex(table, name string, cols []string, kind string, unique bool) string
	DropIndex(table, name string) string
	// DropConstraint drops a named table constraint together with the index backing it.
	// It is only called when Capabilities().AlterInPlace is set.
	DropConstraint(table, name string) string
	AddColumn(table string, col *model.ColumnDescriptor) (string, error)
	DropColumn(table, column string) string
	// AlterColumn returns the in-place statements turning live into target.
	// It is only called when Capabilities().AlterInPlace is set.
	AlterColumn(table string, live introspect.ColumnSchema, target *model.ColumnDescriptor) ([]string, error)
	// AfterCopy returns statements run after rows were copied into a recreated table.
	AfterCopy(table string, desc *model.EntityDescriptor) []string

	Introspector(q introspect.Querier) introspect.Introspector
	TableExists(ctx context.Context, q Querier, table string) (bool, error)
	ColumnExists(ctx context.Context, q Querier, table, column string) (bool, error)

	// ClassifyError attaches a dberr class to a driver error it recognises.
	ClassifyError(err error) error
	// BeginTx starts a transaction, first taking a slot from gate when gate is non-nil.
	BeginTx(ctx context.Context, db Beginner, gate Gate, opts *sql.TxOptions) (*sql.Tx, error)
}

// Package dberr defines the closed error taxonomy shared by every sqlforge package.
//
// Three kinds exist. Compile errors mean the calling code asked for something that cannot be
// expressed (an unsupported predicate construct, a missing primary key, mismatched values).
// Migration errors mean the live schema cannot be evolved as requested. Execution errors wrap a
// failure reported by the database together with the exact command text and parameters.
package dberr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an Error.
type Kind int

const (
	// KindCompile marks a statement or model that cannot be built.
	KindCompile Kind = iota + 1
	// KindMigration marks a schema change that cannot be decided or applied.
	KindMigration
	// KindExecution marks a failure reported by the database.
	KindExecution
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCompile:
		return "compile"
	case KindMigration:
		return "migration"
	case KindExecution:
		return "execution"
	default:
		return "unknown"
	}
}

// Compile-time failures.
var (
	// ErrUnsupported is returned for an expression construct or helper call with no SQL form.
	ErrUnsupported = errors.New("unsupported construct")

	// ErrInvalidModel is returned when mapping metadata is ambiguous or inconsistent.
	ErrInvalidModel = errors.New("invalid model metadata")

	// ErrMissingPrimaryKey is returned when an operation needs a primary key the model lacks.
	ErrMissingPrimaryKey = errors.New("missing primary key")

	// ErrMismatchedValues is returned when column and value counts differ.
	ErrMismatchedValues = errors.New("mismatched column and value counts")

	// ErrUnknownProperty is returned when a property or column name does not resolve.
	ErrUnknownProperty = errors.New("unknown property")

	// ErrUnboundedStatement is returned for an UPDATE or DELETE without a predicate.
	ErrUnboundedStatement = errors.New("statement has no predicate")

	// ErrSyntax is returned when expression text cannot be parsed.
	ErrSyntax = errors.New("invalid expression syntax")

	// ErrParameterIndex is returned when an indexed parameter has no matching argument.
	ErrParameterIndex = errors.New("parameter index out of range")
)

// Migration-decision failures.
var (
	// ErrUnsupportedObject is returned when the live object is a view or cannot be classified.
	ErrUnsupportedObject = errors.New("unsupported schema object")

	// ErrStaleAsideTable is returned when a leftover aside table blocks a recreation.
	ErrStaleAsideTable = errors.New("stale aside table")
)

// Classes of execution failures, attached by the dialect that recognised the driver error.
var (
	ErrUniqueViolation     = errors.New("unique constraint violation")
	ErrNotNullViolation    = errors.New("not null constraint violation")
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")
	ErrCheckViolation      = errors.New("check constraint violation")
	ErrNotFound            = errors.New("record not found")
	ErrCursorLeak          = errors.New("cursor not closed")
)

// Error is the single error type raised by sqlforge.
type Error struct {
	Kind Kind
	// Op names the failing operation, e.g. "translate", "update schema", "exec".
	Op string
	// Construct describes the offending construct of a compile error.
	Construct string
	// SQL and Args hold the failing command of an execution error.
	SQL  string
	Args []any
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Construct != "" {
		b.WriteString(" ")
		b.WriteString(e.Construct)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.SQL != "" {
		fmt.Fprintf(&b, " [sql: %s", e.SQL)
		if len(e.Args) > 0 {
			fmt.Fprintf(&b, " args: %v", e.Args)
		}
		b.WriteString("]")
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Compile builds a compile-kind error for the given construct.
func Compile(op, construct string, err error) *Error {
	return &Error{Kind: KindCompile, Op: op, Construct: construct, Err: err}
}

// Compilef builds a compile-kind error with a formatted construct description.
func Compilef(op string, err error, format string, args ...any) *Error {
	return Compile(op, fmt.Sprintf(format, args...), err)
}

// Migration builds a migration-kind error.
func Migration(op string, err error) *Error {
	return &Error{Kind: KindMigration, Op: op, Err: err}
}

// Execution wraps a database failure with the command that produced it.
func Execution(op, sql string, args []any, err error) *Error {
	return &Error{Kind: KindExecution, Op: op, SQL: sql, Args: args, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsCompile reports whether err is a compile-kind error.
func IsCompile(err error) bool { return KindOf(err) == KindCompile }

// IsMigration reports whether err is a migration-kind error.
func IsMigration(err error) bool { return KindOf(err) == KindMigration }

// IsExecution reports whether err is an execution-kind error.
func IsExecution(err error) bool { return KindOf(err) == KindExecution }

// classified pairs a driver error with the class a dialect recognised it as.
type classified struct {
	class error
	cause error
}

func (c *classified) Error() string   { return c.cause.Error() }
func (c *classified) Unwrap() []error { return []error{c.class, c.cause} }

// Classify attaches class to cause so both match errors.Is.
// A nil class returns cause unchanged.
func Classify(class, cause error) error {
	if class == nil || cause == nil {
		return cause
	}
	return &classified{class: class, cause: cause}
}

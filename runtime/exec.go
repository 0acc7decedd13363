package runtime

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/future"
	"github.com/satishbabariya/sqlforge/model"
	"github.com/satishbabariya/sqlforge/query/prepare"
)

// Exec runs op and returns the number of affected rows.
func (db *DB) Exec(ctx context.Context, op *prepare.Operation, args ...any) (int64, error) {
	return exec(ctx, db, op, args)
}

// ExecResult runs op and returns the driver result.
func (db *DB) ExecResult(ctx context.Context, op *prepare.Operation, args ...any) (sql.Result, error) {
	return execResult(ctx, db, op, args)
}

// QueryRows runs op and returns each row keyed by column name.
func (db *DB) QueryRows(ctx context.Context, op *prepare.Operation, args ...any) ([]map[string]any, error) {
	return queryRows(ctx, db, op, args)
}

// ExecAsync is the suspending form of Exec.
func (db *DB) ExecAsync(ctx context.Context, op *prepare.Operation, args ...any) *future.Future[int64] {
	return ExecAsync(ctx, db, op, args...)
}

// ExecAsync is the suspending form of Runner.Exec.
func ExecAsync(ctx context.Context, r Runner, op *prepare.Operation, args ...any) *future.Future[int64] {
	if _, err := op.Bind(args...); err != nil {
		return future.Ready[int64](0, err)
	}
	return future.Go(ctx, func(ctx context.Context) (int64, error) {
		return r.Exec(ctx, op, args...)
	})
}

// Query runs op and scans every row into a T. A struct T is filled through its entity
// descriptor, matching result columns to mapped columns by name; any other T receives the
// first column of each row.
func Query[T any](ctx context.Context, r Runner, op *prepare.Operation, args ...any) ([]T, error) {
	var out []T
	err := query(ctx, r, op, args, func(rows *sql.Rows) error {
		sc, err := newScanner[T](r.handle(), rows)
		if err != nil {
			return err
		}
		for rows.Next() {
			var v T
			if err := sc.scan(rows, &v); err != nil {
				return err
			}
			out = append(out, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// QueryAsync is the suspending form of Query.
func QueryAsync[T any](ctx context.Context, r Runner, op *prepare.Operation, args ...any) *future.Future[[]T] {
	if _, err := op.Bind(args...); err != nil {
		return future.Ready[[]T](nil, err)
	}
	return future.Go(ctx, func(ctx context.Context) ([]T, error) {
		return Query[T](ctx, r, op, args...)
	})
}

// First runs op and returns the first row, or an error wrapping dberr.ErrNotFound.
func First[T any](ctx context.Context, r Runner, op *prepare.Operation, args ...any) (T, error) {
	var out T
	err := query(ctx, r, op, args, func(rows *sql.Rows) error {
		sc, err := newScanner[T](r.handle(), rows)
		if err != nil {
			return err
		}
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return err
			}
			return dberr.ErrNotFound
		}
		return sc.scan(rows, &out)
	})
	return out, err
}

// Scalar runs op and returns the first column of the first row. NULL yields the zero value;
// no row at all is an error wrapping dberr.ErrNotFound.
func Scalar[T any](ctx context.Context, r Runner, op *prepare.Operation, args ...any) (T, error) {
	var out T
	err := query(ctx, r, op, args, func(rows *sql.Rows) error {
		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return err
			}
			return dberr.ErrNotFound
		}
		vals, ptrs := scanBuffers(len(cols))
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		return model.Assign(reflect.ValueOf(&out).Elem(), vals[0])
	})
	return out, err
}

// ScalarAsync is the suspending form of Scalar.
func ScalarAsync[T any](ctx context.Context, r Runner, op *prepare.Operation, args ...any) *future.Future[T] {
	if _, err := op.Bind(args...); err != nil {
		var zero T
		return future.Ready(zero, err)
	}
	return future.Go(ctx, func(ctx context.Context) (T, error) {
		return Scalar[T](ctx, r, op, args...)
	})
}

func exec(ctx context.Context, r Runner, op *prepare.Operation, args []any) (int64, error) {
	res, err := execResult(ctx, r, op, args)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dberr.Execution(op.Kind.String(), op.SQL, args, err)
	}
	return n, nil
}

func execResult(ctx context.Context, r Runner, op *prepare.Operation, args []any) (sql.Result, error) {
	bound, err := op.Bind(args...)
	if err != nil {
		return nil, err
	}
	var res sql.Result
	err = r.handle().instrument(ctx, op, bound, func(ctx context.Context) error {
		q, release, err := r.session(ctx)
		if err != nil {
			return err
		}
		defer release()
		res, err = q.ExecContext(ctx, op.SQL, bound...)
		return err
	})
	return res, err
}

// query runs op and hands the open rows to fn; rows and session are released afterwards.
func query(ctx context.Context, r Runner, op *prepare.Operation, args []any, fn func(*sql.Rows) error) error {
	bound, err := op.Bind(args...)
	if err != nil {
		return err
	}
	return r.handle().instrument(ctx, op, bound, func(ctx context.Context) error {
		q, release, err := r.session(ctx)
		if err != nil {
			return err
		}
		defer release()
		rows, err := q.QueryContext(ctx, op.SQL, bound...)
		if err != nil {
			return err
		}
		defer rows.Close()
		return fn(rows)
	})
}

func queryRows(ctx context.Context, r Runner, op *prepare.Operation, args []any) ([]map[string]any, error) {
	var out []map[string]any
	err := query(ctx, r, op, args, func(rows *sql.Rows) error {
		types, err := rows.ColumnTypes()
		if err != nil {
			return err
		}
		for rows.Next() {
			m, err := scanMap(rows, types)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scanMap reads the current row; character columns a driver returns as bytes become strings.
func scanMap(rows *sql.Rows, types []*sql.ColumnType) (map[string]any, error) {
	vals, ptrs := scanBuffers(len(types))
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	m := make(map[string]any, len(types))
	for i, t := range types {
		v := vals[i]
		if b, ok := v.([]byte); ok {
			if textual(t.DatabaseTypeName()) {
				v = string(b)
			} else {
				v = append([]byte(nil), b...)
			}
		}
		m[t.Name()] = v
	}
	return m, nil
}

func textual(typeName string) bool {
	t := strings.ToUpper(typeName)
	return strings.Contains(t, "CHAR") || strings.Contains(t, "TEXT") || t == "ENUM" || t == "JSON"
}

func scanBuffers(n int) ([]any, []any) {
	vals := make([]any, n)
	ptrs := make([]any, n)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	return vals, ptrs
}

// instrument runs fn under the exclusivity lock of op, inside a span and the middleware
// chain, and records the outcome. Failures become execution errors carrying the command.
func (db *DB) instrument(ctx context.Context, op *prepare.Operation, args []any, fn func(ctx context.Context) error) error {
	unlock := op.Lock()
	defer unlock()

	kind := op.Kind.String()
	ctx, span := db.tracer.Start(ctx, "sqlforge."+kind,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", db.d.Name()),
			attribute.String("db.statement", op.SQL),
		))
	defer span.End()

	ev := &Event{SQL: op.SQL, Args: args, Kind: op.Kind, Start: time.Now()}
	err := db.chain(ctx, ev, func() error { return fn(ctx) })
	if err != nil {
		err = db.wrap(kind, op.SQL, args, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	db.metrics.observe(db.d.Name(), kind, err, ev.Duration)

	if ce := db.log.Check(zap.DebugLevel, "statement"); ce != nil {
		ce.Write(
			zap.String("kind", kind),
			zap.String("sql", Truncate(op.SQL, MaxLogLength)),
			zap.Int("args", len(args)),
			zap.Duration("duration", ev.Duration),
			zap.Error(err))
	}
	return err
}

// wrap classifies a driver failure; errors already carrying a kind pass through.
func (db *DB) wrap(op, sqlText string, args []any, err error) error {
	var de *dberr.Error
	if errors.As(err, &de) {
		return err
	}
	return dberr.Execution(op, sqlText, args, db.d.ClassifyError(err))
}

package runtime

import (
	"context"
	"database/sql"
	"reflect"
	"sync"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/future"
	"github.com/satishbabariya/sqlforge/model"
	"github.com/satishbabariya/sqlforge/query/prepare"
)

// Cursor streams the rows of one query. It holds its connection until Close; a cursor that is
// never closed keeps the connection checked out and is reported by DB.Close.
type Cursor struct {
	db      *DB
	rows    *sql.Rows
	cols    []string
	types   []*sql.ColumnType
	release func()
	sql     string
	args    []any

	once     sync.Once
	closeErr error
	mappers  map[reflect.Type][]*model.ColumnDescriptor
}

// Stream runs op and returns a cursor over its rows. The caller must Close the cursor.
func (db *DB) Stream(ctx context.Context, op *prepare.Operation, args ...any) (*Cursor, error) {
	return stream(ctx, db, op, args)
}

// StreamAsync is the suspending form of Stream.
func (db *DB) StreamAsync(ctx context.Context, op *prepare.Operation, args ...any) *future.Future[*Cursor] {
	return StreamAsync(ctx, db, op, args...)
}

// StreamAsync is the suspending form of Runner.Stream.
func StreamAsync(ctx context.Context, r Runner, op *prepare.Operation, args ...any) *future.Future[*Cursor] {
	if _, err := op.Bind(args...); err != nil {
		return future.Ready[*Cursor](nil, err)
	}
	return future.Go(ctx, func(ctx context.Context) (*Cursor, error) {
		return r.Stream(ctx, op, args...)
	})
}

func stream(ctx context.Context, r Runner, op *prepare.Operation, args []any) (*Cursor, error) {
	bound, err := op.Bind(args...)
	if err != nil {
		return nil, err
	}
	db := r.handle()
	var c *Cursor
	err = db.instrument(ctx, op, bound, func(ctx context.Context) error {
		q, release, err := r.session(ctx)
		if err != nil {
			return err
		}
		rows, err := q.QueryContext(ctx, op.SQL, bound...)
		if err != nil {
			release()
			return err
		}
		types, err := rows.ColumnTypes()
		if err != nil {
			rows.Close()
			release()
			return err
		}
		cols := make([]string, len(types))
		for i, t := range types {
			cols[i] = t.Name()
		}
		c = &Cursor{db: db, rows: rows, cols: cols, types: types, release: release, sql: op.SQL, args: bound}
		return nil
	})
	if err != nil {
		return nil, err
	}
	db.track(c)
	return c, nil
}

// Columns returns the result column names in projection order.
func (c *Cursor) Columns() []string { return c.cols }

// Next advances to the next row. It returns false at the end or on error; check Err.
func (c *Cursor) Next() bool { return c.rows.Next() }

// Scan reads the current row into dst. A pointer to a mapped struct is filled through its
// descriptor; a *map[string]any receives every column; any other pointer receives the first
// column.
func (c *Cursor) Scan(dst any) error {
	if err := c.scan(dst); err != nil {
		return c.db.wrap("scan", c.sql, c.args, err)
	}
	return nil
}

func (c *Cursor) scan(dst any) error {
	if m, ok := dst.(*map[string]any); ok {
		row, err := scanMap(c.rows, c.types)
		if err != nil {
			return err
		}
		*m = row
		return nil
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return dberr.Compilef("scan", dberr.ErrInvalidModel, "destination must be a non-nil pointer, got %T", dst)
	}
	vals, ptrs := scanBuffers(len(c.cols))
	if err := c.rows.Scan(ptrs...); err != nil {
		return err
	}
	et := v.Type().Elem()
	if !isEntity(et) {
		return model.Assign(v.Elem(), vals[0])
	}
	cols, ok := c.mappers[et]
	if !ok {
		m, err := c.db.mapper(et)
		if err != nil {
			return err
		}
		cols = m.bind(c.cols)
		if c.mappers == nil {
			c.mappers = map[reflect.Type][]*model.ColumnDescriptor{}
		}
		c.mappers[et] = cols
	}
	return assignRow(dst, cols, vals)
}

// Err returns the error, if any, met during iteration.
func (c *Cursor) Err() error {
	if err := c.rows.Err(); err != nil {
		return c.db.wrap("stream", c.sql, c.args, err)
	}
	return nil
}

// Close releases the rows and the connection. It is safe to call more than once.
func (c *Cursor) Close() error {
	c.once.Do(func() {
		c.closeErr = c.rows.Close()
		c.release()
		c.db.untrack(c)
	})
	return c.closeErr
}

// Each streams op and calls fn with every row scanned into a T. The cursor is closed on
// every exit path; a non-nil error from fn stops the iteration and is returned.
func Each[T any](ctx context.Context, r Runner, op *prepare.Operation, fn func(T) error, args ...any) (err error) {
	c, err := r.Stream(ctx, op, args...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); err == nil && cerr != nil {
			err = c.db.wrap("stream", c.sql, c.args, cerr)
		}
	}()
	for c.Next() {
		var v T
		if err := c.Scan(&v); err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return c.Err()
}

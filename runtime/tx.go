package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/dialect"
	"github.com/satishbabariya/sqlforge/future"
	"github.com/satishbabariya/sqlforge/query/prepare"
)

// IsolationLevel represents transaction isolation levels.
type IsolationLevel int

const (
	// ReadCommitted prevents dirty reads.
	ReadCommitted IsolationLevel = iota
	// ReadUncommitted allows dirty reads.
	ReadUncommitted
	// RepeatableRead prevents dirty and non-repeatable reads.
	RepeatableRead
	// Serializable prevents phantom reads as well.
	Serializable
)

// sqlLevel converts the level to its database/sql form.
func (l IsolationLevel) sqlLevel() sql.IsolationLevel {
	switch l {
	case ReadUncommitted:
		return sql.LevelReadUncommitted
	case RepeatableRead:
		return sql.LevelRepeatableRead
	case Serializable:
		return sql.LevelSerializable
	default:
		return sql.LevelReadCommitted
	}
}

// TxOptions builds transaction options from an isolation level.
func TxOptions(level IsolationLevel, readOnly bool) *sql.TxOptions {
	return &sql.TxOptions{Isolation: level.sqlLevel(), ReadOnly: readOnly}
}

// Tx is an explicit transaction. It owns one connection and, on dialects with a bounded
// number of writers, one slot of the write gate until Commit or Rollback.
type Tx struct {
	db    *DB
	tx    *sql.Tx
	once  sync.Once
	depth int
}

var _ prepare.Executor = (*Tx)(nil)

type txKey struct{}

// InTx returns a context carrying tx. Operations run through the DB with that context use
// the transaction instead of an ad hoc connection.
func InTx(ctx context.Context, tx *Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func txFrom(ctx context.Context) *Tx {
	tx, _ := ctx.Value(txKey{}).(*Tx)
	return tx
}

// Begin starts a transaction, waiting for a write slot first.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	return db.BeginTx(ctx, nil)
}

// BeginTx starts a transaction with opts, waiting for a write slot first.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.d.BeginTx(ctx, db.sql, db.Gate(), opts)
	if err != nil {
		return nil, dberr.Execution("begin", "", nil, err)
	}
	return &Tx{db: db, tx: tx}, nil
}

// BeginAsync is the suspending form of Begin.
func (db *DB) BeginAsync(ctx context.Context) *future.Future[*Tx] {
	return future.Go(ctx, db.Begin)
}

// WithTx runs fn inside a transaction. It commits when fn returns nil and rolls back when fn
// fails or panics. The context handed to fn carries the transaction.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	return db.WithTxOptions(ctx, nil, fn)
}

// WithTxOptions is WithTx with explicit transaction options.
func (db *DB) WithTxOptions(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx *Tx) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(InTx(ctx, tx), tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func (tx *Tx) release() {
	tx.once.Do(func() {
		if g := tx.db.Gate(); g != nil {
			g.Release(1)
		}
	})
}

// Commit commits the transaction and frees its write slot.
func (tx *Tx) Commit() error {
	defer tx.release()
	if err := tx.tx.Commit(); err != nil {
		return dberr.Execution("commit", "", nil, err)
	}
	return nil
}

// Rollback aborts the transaction and frees its write slot.
func (tx *Tx) Rollback() error {
	defer tx.release()
	if err := tx.tx.Rollback(); err != nil {
		return dberr.Execution("rollback", "", nil, err)
	}
	return nil
}

// SQL returns the wrapped transaction.
func (tx *Tx) SQL() *sql.Tx { return tx.tx }

// Nested runs fn inside a savepoint. An error or panic from fn rolls back to the savepoint
// and leaves the enclosing transaction usable.
func (tx *Tx) Nested(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	tx.depth++
	defer func() { tx.depth-- }()
	name := tx.db.d.QuoteIdent(fmt.Sprintf("sp_%d", tx.depth))

	if _, err := tx.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return dberr.Execution("savepoint", "SAVEPOINT "+name, nil, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_, _ = tx.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
			panic(p)
		}
	}()

	if err := fn(InTx(ctx, tx), tx); err != nil {
		if _, rbErr := tx.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("nested transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}
	if _, err := tx.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return dberr.Execution("savepoint", "RELEASE SAVEPOINT "+name, nil, err)
	}
	return nil
}

func (tx *Tx) handle() *DB { return tx.db }

func (tx *Tx) session(context.Context) (dialect.Querier, func(), error) {
	return tx.tx, func() {}, nil
}

// Exec runs op inside the transaction and returns the affected row count.
func (tx *Tx) Exec(ctx context.Context, op *prepare.Operation, args ...any) (int64, error) {
	return exec(ctx, tx, op, args)
}

// ExecResult runs op inside the transaction and returns the driver result.
func (tx *Tx) ExecResult(ctx context.Context, op *prepare.Operation, args ...any) (sql.Result, error) {
	return execResult(ctx, tx, op, args)
}

// QueryRows runs op inside the transaction and returns each row keyed by column name.
func (tx *Tx) QueryRows(ctx context.Context, op *prepare.Operation, args ...any) ([]map[string]any, error) {
	return queryRows(ctx, tx, op, args)
}

// Stream runs op inside the transaction and returns a cursor over its rows.
func (tx *Tx) Stream(ctx context.Context, op *prepare.Operation, args ...any) (*Cursor, error) {
	return stream(ctx, tx, op, args)
}

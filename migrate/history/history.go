// Package history records applied schema updates in the sqlforge_schema_history table.
package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/satishbabariya/sqlforge/dialect"
	"github.com/satishbabariya/sqlforge/model"
	"github.com/satishbabariya/sqlforge/query/builder"
	"github.com/satishbabariya/sqlforge/query/expr"
	"github.com/satishbabariya/sqlforge/query/prepare"
)

// Table is the history table name.
const Table = "sqlforge_schema_history"

// Record is one applied schema update.
type Record struct {
	ID         int64     `db:"id,pk,autoincrement"`
	Target     string    `db:"table_name,size=255"`
	Strategy   string    `db:"strategy,size=16"`
	Checksum   string    `db:"checksum,size=64"`
	Statements int       `db:"statements"`
	DurationMS int64     `db:"duration_ms"`
	AppliedAt  time.Time `db:"applied_at"`
}

// TableName implements model.TableNamer.
func (Record) TableName() string { return Table }

// Manager builds the statements reading and writing the history table.
type Manager struct {
	b    *builder.Builder
	desc *model.EntityDescriptor
}

// NewManager returns a manager for d. The history entity lives in its own registry.
func NewManager(d dialect.Dialect) (*Manager, error) {
	b := builder.New(d, model.NewRegistry())
	desc, err := builder.Describe[Record](b)
	if err != nil {
		return nil, err
	}
	return &Manager{b: b, desc: desc}, nil
}

// Init returns the statements creating the history table when absent.
func (m *Manager) Init() ([]*prepare.Operation, error) {
	return m.b.CreateTable(m.desc).IfNotExists().PrepareAll()
}

// Insert returns the operation recording rec.
func (m *Manager) Insert(rec *Record) (*prepare.Operation, error) {
	return m.b.Insert(m.desc).Entity(rec).Prepare()
}

// List returns the records of table, oldest first. An empty table name lists every record.
func (m *Manager) List(ctx context.Context, q dialect.Querier, table string) ([]Record, error) {
	sel := m.b.Select(m.desc).OrderBy("id")
	if table != "" {
		sel = sel.Where(expr.Eq(expr.Prop("Target"), expr.Val(table)))
	}
	op, err := sel.Prepare()
	if err != nil {
		return nil, err
	}
	args, err := op.Bind()
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, op.SQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Target, &r.Strategy, &r.Checksum, &r.Statements, &r.DurationMS, &r.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan schema history: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Write records rec through tx.
func (m *Manager) Write(ctx context.Context, tx *sql.Tx, rec *Record) error {
	op, err := m.Insert(rec)
	if err != nil {
		return err
	}
	args, err := op.Bind()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, op.SQL, args...); err != nil {
		return fmt.Errorf("failed to record schema history: %w", err)
	}
	return nil
}

// Checksum is the hex sha256 of the statements, newline separated.
func Checksum(statements []string) string {
	h := sha256.New()
	for _, s := range statements {
		h.Write([]byte(s))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/dialect/sqlite"
	"github.com/satishbabariya/sqlforge/migrate/introspect"
	"github.com/satishbabariya/sqlforge/model"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open(sqlite.Name, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT NOT NULL UNIQUE)`)
	require.NoError(t, err)
	return db
}

func TestVersionGating(t *testing.T) {
	old := sqlite.MustNew(sqlite.Options{Version: "3.31.0"})
	assert.False(t, old.Capabilities().Returning)
	assert.Equal(t, "3.31.0", old.Version().String())

	cur := sqlite.MustNew(sqlite.Options{Version: "3.35.0", ArrayParams: true})
	caps := cur.Capabilities()
	assert.True(t, caps.Returning)
	assert.True(t, caps.ArrayParams)
	assert.Equal(t, 1, caps.MaxWriters)
	assert.False(t, caps.AlterInPlace)

	_, err := sqlite.New(sqlite.Options{Version: "not a version"})
	assert.Error(t, err)

	linked, err := sqlite.New(sqlite.Options{})
	require.NoError(t, err)
	assert.NotNil(t, linked.Version())
}

func TestColumnDDL(t *testing.T) {
	d := sqlite.MustNew(sqlite.Options{Version: "3.45.0"})
	got, err := d.ColumnDDL(&model.ColumnDescriptor{Name: "id", Type: model.BigInt, PrimaryKey: true, AutoIncrement: true})
	require.NoError(t, err)
	assert.Equal(t, `"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT`, got)

	got, err = d.AddColumn("t", &model.ColumnDescriptor{Name: "flag", Type: model.Bool, NotNull: true})
	require.NoError(t, err)
	assert.Equal(t, `ALTER TABLE "t" ADD COLUMN "flag" BOOLEAN NOT NULL DEFAULT 0`, got)

	assert.Equal(t, `DROP INDEX IF EXISTS "ix"`, d.DropIndex("t", "ix"))
}

func TestZeroValues(t *testing.T) {
	d := sqlite.MustNew(sqlite.Options{Version: "3.45.0"})
	tests := []struct {
		typ  model.Type
		want any
	}{
		{model.Integer, int64(0)},
		{model.Decimal, float64(0)},
		{model.Bool, int64(0)},
		{model.Bytes, []byte{}},
		{model.Time, "1970-01-01 00:00:00"},
		{model.UUID, "00000000-0000-0000-0000-000000000000"},
		{model.JSON, "{}"},
		{model.String, ""},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, d.ZeroValue(tt.typ))
		})
	}
}

func TestArrayValue(t *testing.T) {
	on := sqlite.MustNew(sqlite.Options{Version: "3.45.0", ArrayParams: true})
	v, err := on.ArrayValue([]int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, "[1,2]", v)

	_, err = on.ArrayValue("x")
	assert.ErrorIs(t, err, dberr.ErrUnsupported)

	off := sqlite.MustNew(sqlite.Options{Version: "3.45.0"})
	_, err = off.ArrayValue([]int{1})
	assert.ErrorIs(t, err, dberr.ErrUnsupported)
}

func TestAlterColumnUnsupported(t *testing.T) {
	d := sqlite.MustNew(sqlite.Options{Version: "3.45.0"})
	_, err := d.AlterColumn("t", introspect.ColumnSchema{Name: "a"}, &model.ColumnDescriptor{Name: "a"})
	assert.ErrorIs(t, err, dberr.ErrUnsupported)
	assert.True(t, dberr.IsMigration(err))
}

func TestExistence(t *testing.T) {
	db := openDB(t)
	d := sqlite.MustNew(sqlite.Options{})
	ctx := context.Background()

	ok, err := d.TableExists(ctx, db, "person")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.TableExists(ctx, db, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = d.ColumnExists(ctx, db, "person", "name")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.ColumnExists(ctx, db, "person", "age")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClassifyError(t *testing.T) {
	db := openDB(t)
	d := sqlite.MustNew(sqlite.Options{})

	_, err := db.Exec(`INSERT INTO person (id, name) VALUES (1, 'a')`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO person (id, name) VALUES (2, 'a')`)
	require.Error(t, err)
	assert.ErrorIs(t, d.ClassifyError(err), dberr.ErrUniqueViolation)

	_, err = db.Exec(`INSERT INTO person (id, name) VALUES (1, 'b')`)
	require.Error(t, err)
	assert.ErrorIs(t, d.ClassifyError(err), dberr.ErrUniqueViolation)

	_, err = db.Exec(`INSERT INTO person (id, name) VALUES (3, NULL)`)
	require.Error(t, err)
	assert.ErrorIs(t, d.ClassifyError(err), dberr.ErrNotNullViolation)

	_, err = db.Exec(`SELECT * FROM nobody`)
	require.Error(t, err)
	classified := d.ClassifyError(err)
	assert.Equal(t, err, classified)
}

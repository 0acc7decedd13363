package postgres_test

import (
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/dialect/postgres"
	"github.com/satishbabariya/sqlforge/migrate/introspect"
	"github.com/satishbabariya/sqlforge/model"
)

func TestTypes(t *testing.T) {
	d := postgres.New()
	assert.Equal(t, "character varying(40)", d.TypeName(&model.ColumnDescriptor{Type: model.String, Size: 40}))
	assert.Equal(t, "text", d.TypeName(&model.ColumnDescriptor{Type: model.String}))
	assert.Equal(t, "timestamp with time zone", d.TypeName(&model.ColumnDescriptor{Type: model.Time}))

	tests := []struct {
		live, target string
		same         bool
	}{
		{"int4", "integer", true},
		{"serial", "integer", true},
		{"BIGSERIAL", "bigint", true},
		{"varchar(40)", "character varying(40)", true},
		{"timestamptz", "timestamp with time zone", true},
		{"text", "integer", false},
		{"varchar(40)", "character varying(80)", false},
	}
	for _, tt := range tests {
		t.Run(tt.live+"/"+tt.target, func(t *testing.T) {
			assert.Equal(t, tt.same, d.SameType(tt.live, tt.target))
		})
	}
}

func TestColumnDDL(t *testing.T) {
	d := postgres.New()
	tests := []struct {
		name string
		col  model.ColumnDescriptor
		want string
	}{
		{"serial", model.ColumnDescriptor{Name: "id", Type: model.Integer, PrimaryKey: true, AutoIncrement: true}, `"id" SERIAL NOT NULL PRIMARY KEY`},
		{"bigserial", model.ColumnDescriptor{Name: "id", Type: model.BigInt, PrimaryKey: true, AutoIncrement: true}, `"id" BIGSERIAL NOT NULL PRIMARY KEY`},
		{"bytea default", model.ColumnDescriptor{Name: "b", Type: model.Bytes, NotNull: true, Default: []byte{1, 0xab}}, `"b" bytea NOT NULL DEFAULT '\x01ab'::bytea`},
		{"bool default", model.ColumnDescriptor{Name: "ok", Type: model.Bool, Default: false}, `"ok" boolean DEFAULT FALSE`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.ColumnDDL(&tt.col)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAlterColumn(t *testing.T) {
	d := postgres.New()
	five := "5"
	tests := []struct {
		name   string
		live   introspect.ColumnSchema
		target model.ColumnDescriptor
		want   []string
	}{
		{
			"type and not null",
			introspect.ColumnSchema{Name: "age", Type: "text"},
			model.ColumnDescriptor{Name: "age", Type: model.Integer, NotNull: true},
			[]string{
				`ALTER TABLE "t" ALTER COLUMN "age" TYPE integer USING "age"::integer`,
				`UPDATE "t" SET "age" = 0 WHERE "age" IS NULL`,
				`ALTER TABLE "t" ALTER COLUMN "age" SET NOT NULL`,
			},
		},
		{
			"drop default and not null",
			introspect.ColumnSchema{Name: "age", Type: "int4", NotNull: true, Default: &five},
			model.ColumnDescriptor{Name: "age", Type: model.Integer},
			[]string{
				`ALTER TABLE "t" ALTER COLUMN "age" DROP DEFAULT`,
				`ALTER TABLE "t" ALTER COLUMN "age" DROP NOT NULL`,
			},
		},
		{
			"set default",
			introspect.ColumnSchema{Name: "name", Type: "text", NotNull: true},
			model.ColumnDescriptor{Name: "name", Type: model.String, NotNull: true, Default: "anon"},
			[]string{`ALTER TABLE "t" ALTER COLUMN "name" SET DEFAULT 'anon'`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.AlterColumn("t", tt.live, &tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAfterCopy(t *testing.T) {
	d := postgres.New()
	desc := model.NewEntity("t")
	require.NoError(t, desc.AddColumn(&model.ColumnDescriptor{Name: "id", Type: model.Integer, PrimaryKey: true, AutoIncrement: true}))
	assert.Equal(t, []string{
		`SELECT setval(pg_get_serial_sequence('"t"', 'id'), COALESCE((SELECT MAX("id") FROM "t"), 0) + 1, false)`,
	}, d.AfterCopy("t", desc))

	plain := model.NewEntity("u")
	require.NoError(t, plain.AddColumn(&model.ColumnDescriptor{Name: "code", Type: model.String, PrimaryKey: true}))
	assert.Empty(t, d.AfterCopy("u", plain))
}

func TestArrayValue(t *testing.T) {
	d := postgres.New()
	v, err := d.ArrayValue([]int64{1, 2})
	require.NoError(t, err)
	valuer, ok := v.(driver.Valuer)
	require.True(t, ok)
	got, err := valuer.Value()
	require.NoError(t, err)
	assert.Equal(t, "{1,2}", got)

	_, err = d.ArrayValue(1)
	assert.ErrorIs(t, err, dberr.ErrUnsupported)
}

func TestClassifyError(t *testing.T) {
	d := postgres.New()
	tests := []struct {
		code pq.ErrorCode
		want error
	}{
		{"23505", dberr.ErrUniqueViolation},
		{"23502", dberr.ErrNotNullViolation},
		{"23503", dberr.ErrForeignKeyViolation},
		{"23514", dberr.ErrCheckViolation},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := d.ClassifyError(&pq.Error{Code: tt.code, Message: "violation"})
			assert.ErrorIs(t, err, tt.want)
			var pe *pq.Error
			assert.True(t, errors.As(err, &pe))
		})
	}

	other := &pq.Error{Code: "42P01"}
	assert.Same(t, other, d.ClassifyError(other))
	plain := errors.New("boom")
	assert.Equal(t, plain, d.ClassifyError(plain))
}

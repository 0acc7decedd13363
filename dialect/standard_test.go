package dialect_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/dialect"
	"github.com/satishbabariya/sqlforge/migrate/introspect"
	"github.com/satishbabariya/sqlforge/model"
)

type sink struct {
	b      strings.Builder
	std    dialect.Standard
	params []any
}

func (s *sink) WriteString(str string) { s.b.WriteString(str) }

func (s *sink) String() string { return s.b.String() }

func (s *sink) WriteIdent(name string) { s.WriteString(s.std.QuoteIdent(name)) }

func (s *sink) AddParam(v any) {
	s.params = append(s.params, v)
	s.WriteString(s.std.Placeholder(len(s.params)))
}

func (s *sink) AddIndexedParam(int, func(any) (any, error)) {
	s.params = append(s.params, nil)
	s.WriteString(s.std.Placeholder(len(s.params)))
}

func raw(w dialect.Writer, s string) dialect.RenderFunc {
	return func() error {
		w.WriteString(s)
		return nil
	}
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"a""b"`, dialect.Standard{}.QuoteIdent(`a"b`))
	assert.Equal(t, "`a``b`", dialect.Standard{QuoteChar: '`'}.QuoteIdent("a`b"))
	assert.Equal(t, "?", dialect.Standard{}.Placeholder(3))
	assert.Equal(t, "$3", dialect.Standard{Numbered: true}.Placeholder(3))
}

func TestLiteral(t *testing.T) {
	id := uuid.MustParse("8d3f0a2e-6a4b-4c1e-9f00-1b2c3d4e5f60")
	tests := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{true, "TRUE"},
		{"it's", "'it''s'"},
		{[]byte{0xca, 0xfe}, "X'cafe'"},
		{time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), "'2024-03-01 12:30:00'"},
		{id, "'8d3f0a2e-6a4b-4c1e-9f00-1b2c3d4e5f60'"},
		{decimal.RequireFromString("12.50"), "12.5"},
		{1.25, "1.25"},
		{int16(-7), "-7"},
		{uint8(7), "7"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := dialect.Standard{}.Literal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := dialect.Standard{}.Literal(struct{}{})
	assert.Error(t, err)
}

func TestRenderLimit(t *testing.T) {
	five, ten := int64(5), int64(10)
	tests := []struct {
		name          string
		std           dialect.Standard
		limit, offset *int64
		want          string
	}{
		{"both", dialect.Standard{}, &five, &ten, "LIMIT 5 OFFSET 10"},
		{"limit", dialect.Standard{}, &five, nil, "LIMIT 5"},
		{"offset", dialect.Standard{}, nil, &ten, "OFFSET 10"},
		{"offset needs limit", dialect.Standard{OffsetLimit: "-1"}, nil, &ten, "LIMIT -1 OFFSET 10"},
		{"none", dialect.Standard{}, nil, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &sink{std: tt.std}
			require.NoError(t, tt.std.RenderLimit(w, tt.limit, tt.offset))
			assert.Equal(t, tt.want, w.String())
		})
	}
}

func TestRenderIn(t *testing.T) {
	std := dialect.Standard{}
	w := &sink{}
	require.NoError(t, std.RenderIn(w, raw(w, "a"), []dialect.RenderFunc{raw(w, "1"), raw(w, "2")}, true))
	assert.Equal(t, "a NOT IN (1, 2)", w.String())

	w = &sink{}
	require.NoError(t, std.RenderIn(w, raw(w, "a"), nil, false))
	assert.Equal(t, "1 = 0", w.String())

	w = &sink{}
	err := std.RenderInArray(w, raw(w, "a"), raw(w, "?"), false)
	assert.ErrorIs(t, err, dberr.ErrUnsupported)
	assert.True(t, dberr.IsCompile(err))
}

func TestRenderLikeAndCast(t *testing.T) {
	std := dialect.Standard{}
	w := &sink{}
	require.NoError(t, std.RenderLike(w, raw(w, "a"), raw(w, "?"), true, true))
	assert.Equal(t, `LOWER(a) NOT LIKE LOWER(?) ESCAPE '\'`, w.String())

	w = &sink{}
	require.NoError(t, std.RenderCast(w, raw(w, "a"), model.Float))
	assert.Equal(t, "CAST(a AS DOUBLE PRECISION)", w.String())

	err := std.RenderCast(&sink{}, raw(w, "a"), model.TypeUnknown)
	assert.ErrorIs(t, err, dberr.ErrUnsupported)
}

type fakeDialect struct {
	dialect.Standard
}

func (fakeDialect) Name() string { return "fake" }

func (fakeDialect) TypeName(*model.ColumnDescriptor) string { return "T" }

func (d fakeDialect) AddColumn(table string, col *model.ColumnDescriptor) (string, error) {
	return dialect.AddColumnDDL(d, table, col)
}

func (fakeDialect) Introspector(q introspect.Querier) introspect.Introspector {
	return introspect.NewSQLite(q)
}

func (fakeDialect) ClassifyError(err error) error { return err }

func (d fakeDialect) ColumnDDL(col *model.ColumnDescriptor) (string, error) {
	return dialect.BuildColumn(d, col, "T", "PRIMARY KEY")
}

func (fakeDialect) ZeroValue(model.Type) any { return int64(0) }

func TestBuildColumn(t *testing.T) {
	d := fakeDialect{}
	tests := []struct {
		name string
		col  model.ColumnDescriptor
		want string
	}{
		{"nullable", model.ColumnDescriptor{Name: "a"}, `"a" T`},
		{"primary key", model.ColumnDescriptor{Name: "id", PrimaryKey: true}, `"id" T NOT NULL PRIMARY KEY`},
		{"unique default", model.ColumnDescriptor{Name: "a", NotNull: true, Unique: true, Default: "x"}, `"a" T NOT NULL UNIQUE DEFAULT 'x'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.ColumnDDL(&tt.col)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := d.ColumnDDL(&model.ColumnDescriptor{Name: "a", Default: struct{}{}})
	assert.True(t, dberr.IsCompile(err))
}

func TestAddColumnDDLFillsZero(t *testing.T) {
	col := &model.ColumnDescriptor{Name: "n", NotNull: true}
	got, err := dialect.AddColumnDDL(fakeDialect{}, "t", col)
	require.NoError(t, err)
	assert.Equal(t, `ALTER TABLE "t" ADD COLUMN "n" T NOT NULL DEFAULT 0`, got)
	assert.Nil(t, col.Default)
}

func TestBeginTxGate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	gate := semaphore.NewWeighted(1)
	ctx := context.Background()

	mock.ExpectBegin()
	tx, err := dialect.BeginTx(ctx, db, gate, nil)
	require.NoError(t, err)
	assert.False(t, gate.TryAcquire(1))

	mock.ExpectRollback()
	require.NoError(t, tx.Rollback())
	gate.Release(1)

	mock.ExpectBegin().WillReturnError(errors.New("no connection"))
	_, err = dialect.BeginTx(ctx, db, gate, nil)
	require.Error(t, err)
	assert.True(t, gate.TryAcquire(1), "a failed begin returns its slot")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExistenceChecks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	std := dialect.Standard{Numbered: true, SchemaFunc: "current_schema()"}
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM information_schema.tables WHERE table_schema = current_schema\(\) AND table_name = \$1`).
		WithArgs("person").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM information_schema.columns .* AND column_name = \$2`).
		WithArgs("person", "nope").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))

	ctx := context.Background()
	ok, err := std.TableExists(ctx, db, "person")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = std.ColumnExists(ctx, db, "person", "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

package runtime_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/dialect/postgres"
	"github.com/satishbabariya/sqlforge/dialect/sqlite"
	"github.com/satishbabariya/sqlforge/future"
	"github.com/satishbabariya/sqlforge/model"
	"github.com/satishbabariya/sqlforge/query/builder"
	"github.com/satishbabariya/sqlforge/query/expr"
	"github.com/satishbabariya/sqlforge/query/prepare"
	"github.com/satishbabariya/sqlforge/runtime"
)

type Person struct {
	ID     int64     `db:"id,pk,autoincrement"`
	Name   string    `db:"name,unique"`
	Age    int       `db:"age"`
	Email  *string   `db:"email"`
	Active bool      `db:"active"`
	Joined time.Time `db:"joined"`
}

func (Person) TableName() string { return "person" }

var joined = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

type fixture struct {
	db      *runtime.DB
	b       *builder.Builder
	persons *model.EntityDescriptor
	insert  *prepare.Operation
}

func newFixture(t *testing.T, opts sqlite.Options, ropts ...runtime.Option) fixture {
	t.Helper()
	sqlDB, err := sql.Open(sqlite.Name, filepath.Join(t.TempDir(), "runtime.db"))
	require.NoError(t, err)
	d := sqlite.MustNew(opts)
	reg := model.NewRegistry()
	ropts = append([]runtime.Option{runtime.WithLogger(zaptest.NewLogger(t))}, ropts...)
	db := runtime.Open(sqlDB, d, reg, ropts...)

	b := builder.New(d, reg)
	persons, err := builder.Describe[Person](b)
	require.NoError(t, err)
	ctx := context.Background()
	ddl, err := b.CreateTable(persons).PrepareAll()
	require.NoError(t, err)
	for _, op := range ddl {
		_, err := db.Exec(ctx, op)
		require.NoError(t, err)
	}
	insert, err := b.Insert(persons).Columns("Name", "Age", "Email", "Active", "Joined").ParamRow().Prepare()
	require.NoError(t, err)
	return fixture{db: db, b: b, persons: persons, insert: insert}
}

// seed inserts five people aged 10 through 50.
func (f fixture) seed(t *testing.T) {
	t.Helper()
	mail := "c@example.com"
	for i, name := range []string{"a", "b", "c", "d", "e"} {
		var email *string
		if name == "c" {
			email = &mail
		}
		n, err := f.db.Exec(context.Background(), f.insert, name, (i+1)*10, email, i%2 == 0, joined)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
	}
}

func (f fixture) selectAll(t *testing.T) *prepare.Operation {
	t.Helper()
	op, err := f.b.Select(f.persons).OrderBy("ID").Prepare()
	require.NoError(t, err)
	return op
}

func (f fixture) count(t *testing.T, ctx context.Context, r runtime.Runner) int64 {
	t.Helper()
	op, err := f.b.Select(f.persons).Count().Prepare()
	require.NoError(t, err)
	n, err := runtime.Scalar[int64](ctx, r, op)
	require.NoError(t, err)
	return n
}

func TestQueryScansEntities(t *testing.T) {
	f := newFixture(t, sqlite.Options{})
	f.seed(t)
	ctx := context.Background()

	people, err := runtime.Query[Person](ctx, f.db, f.selectAll(t))
	require.NoError(t, err)
	require.Len(t, people, 5)

	assert.Equal(t, int64(1), people[0].ID)
	assert.Equal(t, "a", people[0].Name)
	assert.Equal(t, 10, people[0].Age)
	assert.Nil(t, people[0].Email)
	assert.True(t, people[0].Active)
	assert.False(t, people[1].Active)
	assert.True(t, joined.Equal(people[0].Joined))
	require.NotNil(t, people[2].Email)
	assert.Equal(t, "c@example.com", *people[2].Email)

	ptrs, err := runtime.Query[*Person](ctx, f.db, f.selectAll(t))
	require.NoError(t, err)
	assert.Equal(t, "e", ptrs[4].Name)

	names, err := f.b.Select(f.persons).Columns("Name").OrderByDesc("Age").Prepare()
	require.NoError(t, err)
	got, err := runtime.Query[string](ctx, f.db, names)
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "d", "c", "b", "a"}, got)

	first, err := runtime.First[Person](ctx, f.db, f.selectAll(t))
	require.NoError(t, err)
	assert.Equal(t, "a", first.Name)
}

func TestMembership(t *testing.T) {
	for _, tt := range []struct {
		name string
		opts sqlite.Options
	}{
		{"literal list", sqlite.Options{}},
		{"array parameter", sqlite.Options{ArrayParams: true}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.opts)
			f.seed(t)
			op, err := f.b.Select(f.persons).Where(expr.In(expr.Prop("Age"), []int{20, 40, 99})).OrderBy("ID").Prepare()
			require.NoError(t, err)

			people, err := runtime.Query[Person](context.Background(), f.db, op)
			require.NoError(t, err)
			require.Len(t, people, 2)
			assert.Equal(t, "b", people[0].Name)
			assert.Equal(t, "d", people[1].Name)
		})
	}
}

func TestScalar(t *testing.T) {
	f := newFixture(t, sqlite.Options{})
	f.seed(t)
	ctx := context.Background()

	assert.Equal(t, int64(5), f.count(t, ctx, f.db))

	byID, err := f.b.Select(f.persons).Columns("Name").Where(expr.Eq(expr.Prop("ID"), expr.P(0))).Prepare()
	require.NoError(t, err)
	name, err := runtime.Scalar[string](ctx, f.db, byID, int64(3))
	require.NoError(t, err)
	assert.Equal(t, "c", name)

	_, err = runtime.Scalar[string](ctx, f.db, byID, int64(99))
	assert.ErrorIs(t, err, dberr.ErrNotFound)
	assert.True(t, dberr.IsExecution(err))

	_, err = runtime.First[Person](ctx, f.db, byID, int64(99))
	assert.ErrorIs(t, err, dberr.ErrNotFound)

	email, err := f.b.Select(f.persons).Columns("Email").Where(expr.Eq(expr.Prop("ID"), expr.P(0))).Prepare()
	require.NoError(t, err)
	none, err := runtime.Scalar[string](ctx, f.db, email, int64(1))
	require.NoError(t, err)
	assert.Empty(t, none, "NULL scans to the zero value")
}

func TestQueryRows(t *testing.T) {
	f := newFixture(t, sqlite.Options{})
	f.seed(t)

	op, err := f.b.Select(f.persons).Columns("Name", "Age", "Email").OrderBy("ID").Limit(2).Prepare()
	require.NoError(t, err)
	rows, err := op.Query(context.Background(), f.db)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0]["name"])
	assert.Equal(t, int64(10), rows[0]["age"])
	assert.Nil(t, rows[0]["email"])
}

func TestStream(t *testing.T) {
	f := newFixture(t, sqlite.Options{})
	f.seed(t)
	ctx := context.Background()

	c, err := f.db.Stream(ctx, f.selectAll(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "age", "email", "active", "joined"}, c.Columns())
	assert.Equal(t, 1, f.db.OpenCursors())

	var names []string
	for c.Next() {
		var p Person
		require.NoError(t, c.Scan(&p))
		names = append(names, p.Name)
	}
	require.NoError(t, c.Err())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, names)
	assert.Equal(t, 0, f.db.OpenCursors())

	c, err = f.db.Stream(ctx, f.selectAll(t))
	require.NoError(t, err)
	require.True(t, c.Next())
	var row map[string]any
	require.NoError(t, c.Scan(&row))
	assert.Equal(t, "a", row["name"])
	require.NoError(t, c.Close())
}

func TestEach(t *testing.T) {
	f := newFixture(t, sqlite.Options{})
	f.seed(t)
	ctx := context.Background()

	var total int
	err := runtime.Each(ctx, f.db, f.selectAll(t), func(p Person) error {
		total += p.Age
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 150, total)

	stop := errors.New("stop")
	seen := 0
	err = runtime.Each(ctx, f.db, f.selectAll(t), func(Person) error {
		seen++
		if seen == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, seen)
	assert.Equal(t, 0, f.db.OpenCursors())
}

func TestCloseReportsLeakedCursors(t *testing.T) {
	f := newFixture(t, sqlite.Options{})
	f.seed(t)

	_, err := f.db.Stream(context.Background(), f.selectAll(t))
	require.NoError(t, err)

	err = f.db.Close()
	assert.ErrorIs(t, err, dberr.ErrCursorLeak)
	assert.True(t, dberr.IsExecution(err))
	assert.Equal(t, 0, f.db.OpenCursors())
}

func TestWithTx(t *testing.T) {
	f := newFixture(t, sqlite.Options{})
	ctx := context.Background()

	err := f.db.WithTx(ctx, func(ctx context.Context, tx *runtime.Tx) error {
		if _, err := tx.Exec(ctx, f.insert, "a", 1, nil, true, joined); err != nil {
			return err
		}
		// The context carries the transaction, so the DB runs inside it too.
		_, err := f.db.Exec(ctx, f.insert, "b", 2, nil, true, joined)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.count(t, ctx, f.db))

	boom := errors.New("boom")
	err = f.db.WithTx(ctx, func(ctx context.Context, tx *runtime.Tx) error {
		if _, err := f.db.Exec(ctx, f.insert, "c", 3, nil, true, joined); err != nil {
			return err
		}
		assert.Equal(t, int64(3), f.count(t, ctx, tx))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(2), f.count(t, ctx, f.db))

	assert.Panics(t, func() {
		_ = f.db.WithTx(ctx, func(ctx context.Context, tx *runtime.Tx) error {
			_, _ = tx.Exec(ctx, f.insert, "d", 4, nil, true, joined)
			panic("boom")
		})
	})
	assert.Equal(t, int64(2), f.count(t, ctx, f.db))
}

func TestNested(t *testing.T) {
	f := newFixture(t, sqlite.Options{})
	ctx := context.Background()
	inner := errors.New("inner")

	err := f.db.WithTx(ctx, func(ctx context.Context, tx *runtime.Tx) error {
		if _, err := tx.Exec(ctx, f.insert, "outer", 1, nil, true, joined); err != nil {
			return err
		}
		err := tx.Nested(ctx, func(ctx context.Context, tx *runtime.Tx) error {
			if _, err := tx.Exec(ctx, f.insert, "inner", 2, nil, true, joined); err != nil {
				return err
			}
			return inner
		})
		assert.ErrorIs(t, err, inner)
		return tx.Nested(ctx, func(ctx context.Context, tx *runtime.Tx) error {
			_, err := tx.Exec(ctx, f.insert, "kept", 3, nil, true, joined)
			return err
		})
	})
	require.NoError(t, err)

	op, err := f.b.Select(f.persons).Columns("Name").OrderBy("ID").Prepare()
	require.NoError(t, err)
	names, err := runtime.Query[string](ctx, f.db, op)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "kept"}, names)
}

func TestWriteGate(t *testing.T) {
	f := newFixture(t, sqlite.Options{})
	ctx := context.Background()
	require.NotNil(t, f.db.Gate())

	tx1, err := f.db.Begin(ctx)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = f.db.Begin(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, dberr.IsExecution(err))

	pending := f.db.BeginAsync(ctx)
	select {
	case <-pending.Done():
		t.Fatal("second transaction started while the gate was held")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, tx1.Rollback())
	assert.Error(t, tx1.Rollback(), "second rollback reports the finished transaction")

	tx2, err := pending.Await(ctx)
	require.NoError(t, err)

	// The double rollback released the gate once, so tx2 still holds the only slot.
	short, cancel = context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = f.db.Begin(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, tx2.Commit())

	tx3, err := f.db.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx3.Rollback())
}

func TestUnlimitedWriters(t *testing.T) {
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := runtime.Open(sqlDB, postgres.New(), nil)
	assert.Nil(t, db.Gate())
}

func TestErrors(t *testing.T) {
	f := newFixture(t, sqlite.Options{})
	f.seed(t)
	ctx := context.Background()

	_, err := f.db.Exec(ctx, f.insert, "a", 1, nil, true, joined)
	require.Error(t, err)
	assert.True(t, dberr.IsExecution(err))
	assert.ErrorIs(t, err, dberr.ErrUniqueViolation)
	var de *dberr.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, f.insert.SQL, de.SQL)
	assert.Equal(t, []any{"a", 1, nil, true, joined}, de.Args)

	_, err = f.db.Exec(ctx, f.insert, "only one")
	assert.True(t, dberr.IsCompile(err))
	assert.ErrorIs(t, err, dberr.ErrParameterIndex)

	_, err = f.db.ExecAsync(ctx, f.insert, "only one").Await(ctx)
	assert.True(t, dberr.IsCompile(err))
}

func TestAsync(t *testing.T) {
	f := newFixture(t, sqlite.Options{})
	ctx := context.Background()

	n, err := f.db.ExecAsync(ctx, f.insert, "a", 1, nil, true, joined).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := f.b.Select(f.persons).Count().Prepare()
	require.NoError(t, err)
	counts, err := future.All(ctx,
		runtime.ScalarAsync[int64](ctx, f.db, count),
		runtime.ScalarAsync[int64](ctx, f.db, count))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1}, counts)

	people, err := runtime.QueryAsync[Person](ctx, f.db, f.selectAll(t)).Await(ctx)
	require.NoError(t, err)
	require.Len(t, people, 1)

	c, err := f.db.StreamAsync(ctx, f.selectAll(t)).Await(ctx)
	require.NoError(t, err)
	require.True(t, c.Next())
	require.NoError(t, c.Close())
}

func TestMetricsAndTracing(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := runtime.NewMetrics(reg)
	require.NoError(t, err)
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	f := newFixture(t, sqlite.Options{}, runtime.WithMetrics(m), runtime.WithTracer(tp.Tracer("test")))
	ctx := context.Background()
	_, err = f.db.Exec(ctx, f.insert, "a", 1, nil, true, joined)
	require.NoError(t, err)
	_, err = f.db.Exec(ctx, f.insert, "a", 1, nil, true, joined)
	require.Error(t, err)
	_, err = runtime.Query[Person](ctx, f.db, f.selectAll(t))
	require.NoError(t, err)

	expected := `
# HELP sqlforge_statements_total Statements executed, by dialect, kind and outcome.
# TYPE sqlforge_statements_total counter
sqlforge_statements_total{dialect="sqlite3",kind="ddl",outcome="ok"} 1
sqlforge_statements_total{dialect="sqlite3",kind="exec",outcome="error"} 1
sqlforge_statements_total{dialect="sqlite3",kind="exec",outcome="ok"} 1
sqlforge_statements_total{dialect="sqlite3",kind="query",outcome="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "sqlforge_statements_total"))
	assert.Equal(t, 3, testutil.CollectAndCount(reg, "sqlforge_statement_duration_seconds"))

	_, err = runtime.NewMetrics(reg)
	assert.Error(t, err, "collectors register once")

	spans := rec.Ended()
	require.Len(t, spans, 4)
	failed := spans[2]
	assert.Equal(t, "sqlforge.exec", failed.Name())
	assert.Equal(t, codes.Error, failed.Status().Code)
	assert.Contains(t, failed.Attributes(), attribute.String("db.system", "sqlite3"))
	assert.Contains(t, failed.Attributes(), attribute.String("db.statement", f.insert.SQL))
	assert.Equal(t, "sqlforge.query", spans[3].Name())
	assert.Equal(t, codes.Unset, spans[3].Status().Code)
}

func TestMiddleware(t *testing.T) {
	var events []runtime.Event
	f := newFixture(t, sqlite.Options{}, runtime.WithMiddleware(runtime.TimingMiddleware(func(ev *runtime.Event) {
		events = append(events, *ev)
	})))
	ctx := context.Background()
	_, err := f.db.Exec(ctx, f.insert, "a", 1, nil, true, joined)
	require.NoError(t, err)

	require.Len(t, events, 2)
	last := events[1]
	assert.Equal(t, prepare.KindExec, last.Kind)
	assert.Equal(t, f.insert.SQL, last.SQL)
	assert.Len(t, last.Args, 5)
	assert.NoError(t, last.Err)
	assert.Positive(t, last.Duration)

	ro := runtime.Open(f.db.SQL(), f.db.Dialect(), f.db.Registry(), runtime.WithMiddleware(runtime.ReadOnlyMiddleware()))
	_, err = ro.Exec(ctx, f.insert, "b", 2, nil, true, joined)
	assert.ErrorIs(t, err, runtime.ErrReadOnly)
	assert.True(t, dberr.IsExecution(err))
	n, err := runtime.Scalar[int64](ctx, ro, mustCount(t, f))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func mustCount(t *testing.T, f fixture) *prepare.Operation {
	op, err := f.b.Select(f.persons).Count().Prepare()
	require.NoError(t, err)
	return op
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "abc", runtime.Truncate("abc", 5))
	assert.Equal(t, "ab...", runtime.Truncate("abcdef", 2))

	tests := []struct{ in, want string }{
		{"postgres://app:s3cret@db:5432/app?sslmode=disable", "postgres://app:[REDACTED]@db:5432/app?sslmode=disable"},
		{"host=db user=app password=s3cret dbname=app", "host=db user=app password=[REDACTED] dbname=app"},
		{"app:s3cret@tcp(db:3306)/app?parseTime=true", "app:[REDACTED]@tcp(db:3306)/app?parseTime=true"},
		{"file:test.db?cache=shared", "file:test.db?cache=shared"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, runtime.SanitizeDSN(tt.in))
		})
	}
}

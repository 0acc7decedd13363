package diff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/sqlforge/dialect/postgres"
	"github.com/satishbabariya/sqlforge/dialect/sqlite"
	"github.com/satishbabariya/sqlforge/migrate/diff"
	"github.com/satishbabariya/sqlforge/migrate/introspect"
	"github.com/satishbabariya/sqlforge/model"
)

type Account struct {
	ID    int64   `db:"id,pk,autoincrement"`
	Email string  `db:"email,unique"`
	Org   int64   `db:"org,index,uniquegroup=uq_account_org_name"`
	Name  string  `db:"name,uniquegroup=uq_account_org_name"`
	Note  *string `db:"note"`
}

func (Account) TableName() string { return "account" }

func descriptor(t *testing.T) *model.EntityDescriptor {
	t.Helper()
	desc, err := model.Of[Account](model.NewRegistry())
	require.NoError(t, err)
	return desc
}

// matching is the live shape SQLite reports for a freshly created account table.
func matching() *introspect.TableSchema {
	return &introspect.TableSchema{
		Name: "account",
		Columns: []introspect.ColumnSchema{
			{Name: "id", Type: "INTEGER", NotNull: true, PrimaryKey: true, AutoIncrement: true},
			{Name: "email", Type: "TEXT", NotNull: true, Unique: true},
			{Name: "org", Type: "INTEGER", NotNull: true},
			{Name: "name", Type: "TEXT", NotNull: true},
			{Name: "note", Type: "TEXT"},
		},
		Indices: []introspect.IndexSchema{{Name: "ix_account_org", Columns: []string{"org"}}},
		Uniques: []introspect.IndexSchema{{Name: "uq_account_org_name", Columns: []string{"name", "org"}, Unique: true}},
	}
}

func TestComputeEmpty(t *testing.T) {
	d := diff.Compute(matching(), descriptor(t), sqlite.MustNew(sqlite.Options{Version: "3.45.0"}))
	assert.True(t, d.Empty(), d.Changes())
	assert.Empty(t, d.Changes())
}

func TestComputeColumns(t *testing.T) {
	live := matching()
	live.Columns = []introspect.ColumnSchema{
		{Name: "id", Type: "INTEGER", NotNull: true, PrimaryKey: true},
		{Name: "email", Type: "TEXT"},
		{Name: "org", Type: "TEXT", NotNull: true},
		{Name: "legacy", Type: "BLOB"},
	}
	d := diff.Compute(live, descriptor(t), sqlite.MustNew(sqlite.Options{Version: "3.45.0"}))
	require.False(t, d.Empty())

	var missing []string
	for _, c := range d.Missing {
		missing = append(missing, c.Name)
	}
	assert.Equal(t, []string{"name", "note"}, missing)
	require.Len(t, d.Obsolete, 1)
	assert.Equal(t, "legacy", d.Obsolete[0].Name)

	reasons := map[string][]diff.Reason{}
	for _, c := range d.Altered {
		reasons[c.Target.Name] = c.Reasons
	}
	assert.Equal(t, map[string][]diff.Reason{
		"id":    {diff.ReasonAutoIncrement},
		"email": {diff.ReasonUnique, diff.ReasonNotNull},
		"org":   {diff.ReasonType},
	}, reasons)

	for _, c := range d.Altered {
		switch c.Target.Name {
		case "org":
			assert.True(t, c.OnlyInPlace())
		case "email":
			assert.True(t, c.Has(diff.ReasonUnique))
			assert.False(t, c.OnlyInPlace())
		}
	}
}

func TestComputeIndices(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*introspect.TableSchema)
		check func(t *testing.T, d *diff.TableDiff)
	}{
		{
			"missing index",
			func(s *introspect.TableSchema) { s.Indices = nil },
			func(t *testing.T, d *diff.TableDiff) {
				require.Len(t, d.MissingIndices, 1)
				assert.Equal(t, "ix_account_org", d.MissingIndices[0].Name)
			},
		},
		{
			"obsolete index",
			func(s *introspect.TableSchema) {
				s.Indices = append(s.Indices, introspect.IndexSchema{Name: "ix_old", Columns: []string{"name"}})
			},
			func(t *testing.T, d *diff.TableDiff) {
				require.Len(t, d.ObsoleteIndices, 1)
				assert.Equal(t, "ix_old", d.ObsoleteIndices[0].Name)
			},
		},
		{
			"altered index under the same name",
			func(s *introspect.TableSchema) { s.Indices[0].Columns = []string{"org", "name"} },
			func(t *testing.T, d *diff.TableDiff) {
				require.Len(t, d.AlteredIndices, 1)
				assert.Equal(t, []string{"org", "name"}, d.AlteredIndices[0].Live.Columns)
				assert.Empty(t, d.MissingIndices)
				assert.Empty(t, d.ObsoleteIndices)
			},
		},
		{
			"renamed but equal index is kept",
			func(s *introspect.TableSchema) { s.Indices[0].Name = "account_org_idx" },
			func(t *testing.T, d *diff.TableDiff) {
				assert.True(t, d.IndicesUnchanged())
			},
		},
		{
			"unique column order ignored",
			func(s *introspect.TableSchema) { s.Uniques[0].Columns = []string{"ORG", "name"} },
			func(t *testing.T, d *diff.TableDiff) {
				assert.True(t, d.Empty())
			},
		},
		{
			"missing and obsolete uniques",
			func(s *introspect.TableSchema) {
				s.Uniques = []introspect.IndexSchema{{Name: "uq_other", Columns: []string{"email", "org"}, Unique: true}}
			},
			func(t *testing.T, d *diff.TableDiff) {
				require.Len(t, d.MissingUniques, 1)
				assert.Equal(t, "uq_account_org_name", d.MissingUniques[0].Name)
				require.Len(t, d.ObsoleteUniques, 1)
				assert.Equal(t, "uq_other", d.ObsoleteUniques[0].Name)
				assert.Equal(t, []string{"create unique uq_account_org_name", "drop unique uq_other"}, d.Changes())
			},
		},
		{
			"altered unique",
			func(s *introspect.TableSchema) { s.Uniques[0].Columns = []string{"org"} },
			func(t *testing.T, d *diff.TableDiff) {
				require.Len(t, d.AlteredUniques, 1)
				assert.Equal(t, "uq_account_org_name", d.AlteredUniques[0].Target.Name)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			live := matching()
			tt.edit(live)
			d := diff.Compute(live, descriptor(t), sqlite.MustNew(sqlite.Options{Version: "3.45.0"}))
			assert.Empty(t, d.Missing)
			assert.Empty(t, d.Altered)
			tt.check(t, d)
		})
	}
}

func TestComputeIndexKinds(t *testing.T) {
	desc := model.NewEntity("doc")
	require.NoError(t, desc.AddColumn(&model.ColumnDescriptor{Name: "id", Type: model.BigInt, PrimaryKey: true}))
	require.NoError(t, desc.AddColumn(&model.ColumnDescriptor{Name: "body", Type: model.JSON, NotNull: true}))
	desc.AddIndex("ix_doc_id", "btree", "id")
	desc.AddIndex("ix_doc_body", "gin", "body")

	live := &introspect.TableSchema{
		Name: "doc",
		Columns: []introspect.ColumnSchema{
			{Name: "id", Type: "bigint", NotNull: true, PrimaryKey: true},
			{Name: "body", Type: "jsonb", NotNull: true},
		},
		Indices: []introspect.IndexSchema{
			{Name: "ix_doc_id", Columns: []string{"id"}},
			{Name: "ix_doc_body", Columns: []string{"body"}},
		},
	}
	pg := postgres.New()
	d := diff.Compute(live, desc, pg)
	require.Len(t, d.AlteredIndices, 1)
	assert.Equal(t, "ix_doc_body", d.AlteredIndices[0].Target.Name)

	live.Indices[1].Kind = "gin"
	assert.True(t, diff.Compute(live, desc, pg).Empty())
}

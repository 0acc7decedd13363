package model_test

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/model"
)

type Timestamps struct {
	CreatedAt time.Time
	UpdatedAt *time.Time
}

type UserAccount struct {
	ID      int64   `db:"id,pk,autoincrement"`
	Email   string  `db:"email,unique,size=320"`
	OrgID   int64   `db:",index=ix_member_org"`
	Role    string  `db:",index=ix_member_org,default='member'"`
	Nick    *string `db:"nick"`
	Balance decimal.Decimal
	Token   uuid.UUID
	secret  string
	Ignored string `db:"-"`
	Timestamps
}

type Pair struct {
	Integer int    `db:",uniquegroup=uq_pair"`
	String  string `db:",unique,index,uniquegroup=uq_pair"`
}

func (Pair) TableName() string { return "pair" }

func TestDescribe(t *testing.T) {
	r := model.NewRegistry()

	d, err := model.Of[UserAccount](r)
	require.NoError(t, err)

	assert.Equal(t, "user_accounts", d.Table())
	assert.Equal(t,
		[]string{"id", "email", "org_id", "role", "nick", "balance", "token", "created_at", "updated_at"},
		d.ColumnNames())

	pk := d.PrimaryKey()
	require.NotNil(t, pk)
	assert.Equal(t, "id", pk.Name)
	assert.True(t, pk.AutoIncrement)
	assert.True(t, pk.NotNull)

	email := d.Column("email")
	require.NotNil(t, email)
	assert.True(t, email.Unique)
	assert.Equal(t, 320, email.Size)
	assert.Equal(t, model.String, email.Type)

	assert.False(t, d.Column("nick").NotNull)
	assert.True(t, d.Column("role").NotNull)
	assert.Equal(t, "member", d.Column("role").Default)
	assert.Equal(t, model.Decimal, d.Column("balance").Type)
	assert.Equal(t, model.UUID, d.Column("token").Type)
	assert.Equal(t, model.Time, d.Column("created_at").Type)
	assert.False(t, d.Column("updated_at").NotNull)

	require.Len(t, d.Indices(), 1)
	assert.Equal(t, "ix_member_org", d.Indices()[0].Name)
	assert.Equal(t, []string{"org_id", "role"}, d.Indices()[0].Columns)

	assert.Same(t, d.Column("org_id"), d.Property("OrgID"))
}

func TestDescribeIsCachedPerType(t *testing.T) {
	r := model.NewRegistry()

	var wg sync.WaitGroup
	results := make([]*model.EntityDescriptor, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := r.Describe(reflect.TypeOf(&Pair{}))
			assert.NoError(t, err)
			results[i] = d
		}(i)
	}
	wg.Wait()

	for _, d := range results {
		assert.Same(t, results[0], d)
	}

	other := model.NewRegistry()
	d, err := model.Of[Pair](other)
	require.NoError(t, err)
	assert.NotSame(t, results[0], d, "registries do not share descriptors")
}

func TestDescribeGroups(t *testing.T) {
	d := model.MustOf[Pair](model.NewRegistry())

	assert.Equal(t, "pair", d.Table())
	require.Len(t, d.Uniques(), 1)
	assert.Equal(t, "uq_pair", d.Uniques()[0].Name)
	require.Len(t, d.Indices(), 1)
	assert.Equal(t, "ix_pair_string", d.Indices()[0].Name)
	assert.True(t, d.Column("string").Unique)
}

func TestDescribeRejectsInvalidMetadata(t *testing.T) {
	type twoKeys struct {
		A int `db:"a,pk"`
		B int `db:"b,pk"`
	}
	type autoNoKey struct {
		A int `db:"a,autoincrement"`
	}
	type badTag struct {
		A int `db:"a,sparkly"`
	}
	type unsupported struct {
		A chan int
	}
	type dup struct {
		A int `db:"x"`
		B int `db:"x"`
	}

	tests := []struct {
		name string
		typ  any
	}{
		{"two primary keys", twoKeys{}},
		{"auto increment without key", autoNoKey{}},
		{"unknown tag option", badTag{}},
		{"unsupported field type", unsupported{}},
		{"duplicate column", dup{}},
		{"not a struct", 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := model.NewRegistry().DescribeValue(tt.typ)
			require.Error(t, err)
			assert.True(t, dberr.IsCompile(err))
			assert.ErrorIs(t, err, dberr.ErrInvalidModel)
		})
	}
}

func TestAccessors(t *testing.T) {
	d := model.MustOf[UserAccount](model.NewRegistry())
	u := &UserAccount{Email: "ada@example.com"}

	v, err := d.Column("email").Get(u)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", v)

	require.NoError(t, d.Column("id").Set(u, int64(7)))
	assert.Equal(t, int64(7), u.ID)

	require.NoError(t, d.Column("nick").Set(u, []byte("ada")))
	require.NotNil(t, u.Nick)
	assert.Equal(t, "ada", *u.Nick)

	require.NoError(t, d.Column("nick").Set(u, nil))
	assert.Nil(t, u.Nick)

	require.NoError(t, d.Column("created_at").Set(u, "2024-03-01 10:00:00"))
	assert.Equal(t, 2024, u.CreatedAt.Year())

	id := uuid.New()
	require.NoError(t, d.Column("token").Set(u, id.String()))
	assert.Equal(t, id, u.Token)

	require.NoError(t, d.Column("balance").Set(u, "12.50"))
	assert.True(t, decimal.RequireFromString("12.5").Equal(u.Balance))

	_, err = d.Column("email").Get(*u)
	assert.Error(t, err, "non-pointer entities are rejected")
}

func TestFluentMutation(t *testing.T) {
	d := model.NewEntity("widgets")
	require.NoError(t, d.AddColumn(&model.ColumnDescriptor{Name: "id", Type: model.BigInt, PrimaryKey: true, AutoIncrement: true}))
	require.NoError(t, d.AddColumn(&model.ColumnDescriptor{Name: "sku", Type: model.String, NotNull: true}))
	require.NoError(t, d.AddColumn(&model.ColumnDescriptor{Name: "bin", Type: model.String}))

	d.SetTable("gadgets").
		AddIndex("", "", "bin").
		AddUnique("", "sku").
		AddUnique("", "sku", "bin")

	assert.Equal(t, "gadgets", d.Table())
	assert.True(t, d.Column("sku").Unique)
	require.Len(t, d.Uniques(), 1)
	assert.Equal(t, "uq_gadgets_sku_bin", d.Uniques()[0].Name)
	assert.Equal(t, "ix_gadgets_bin", d.Indices()[0].Name)
	require.NoError(t, d.Validate())

	d.AddIndex("ix_missing", "", "nope")
	assert.ErrorIs(t, d.Validate(), dberr.ErrInvalidModel)
}

func TestStructuralEquality(t *testing.T) {
	a := &model.IndexDescriptor{Name: "a", Columns: []string{"x", "y"}}
	b := &model.IndexDescriptor{Name: "b", Columns: []string{"Y", "x"}}
	c := &model.IndexDescriptor{Name: "a", Columns: []string{"x", "y"}, Kind: "gin"}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, (&model.UniqueDescriptor{Columns: []string{"p", "q"}}).Equal(&model.UniqueDescriptor{Columns: []string{"q", "p"}}))
	assert.False(t, model.SameColumns([]string{"a"}, []string{"a", "b"}))
}

func TestLookup(t *testing.T) {
	r := model.NewRegistry()
	d := model.NewEntity("events")
	require.NoError(t, d.AddColumn(&model.ColumnDescriptor{Name: "id", Type: model.BigInt, PrimaryKey: true}))
	require.NoError(t, r.Register(d))
	model.MustOf[Pair](r)

	got, ok := r.Lookup("events")
	require.True(t, ok)
	assert.Same(t, d, got)

	_, ok = r.Lookup("pair")
	assert.True(t, ok)

	_, ok = r.Lookup("nothing")
	assert.False(t, ok)
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"ID":          "id",
		"UserID":      "user_id",
		"HTTPServer":  "http_server",
		"CreatedAt":   "created_at",
		"Address2":    "address2",
		"already_low": "already_low",
	}
	for in, want := range tests {
		assert.Equal(t, want, model.SnakeCase(in), in)
	}
	assert.Equal(t, "people", model.SnakeNaming{}.TableName("Person"))
	assert.Equal(t, "person", model.SnakeNaming{Singular: true}.TableName("Person"))
}

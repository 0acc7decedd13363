package ui_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/sqlforge/cli/internal/ui"
	"github.com/satishbabariya/sqlforge/migrate"
	"github.com/satishbabariya/sqlforge/migrate/diff"
	"github.com/satishbabariya/sqlforge/migrate/introspect"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := ui.Out
	ui.Out = &buf
	t.Cleanup(func() { ui.Out = old })
	return &buf
}

func TestPlanMarkdown(t *testing.T) {
	p := &migrate.Plan{
		Table:    "item",
		Strategy: migrate.Create,
		Steps: []migrate.Step{
			{Name: migrate.StepCreateTable, SQL: `CREATE TABLE "item" ("id" INTEGER)`},
		},
	}
	md := ui.PlanMarkdown(p)
	assert.Contains(t, md, "## item")
	assert.Contains(t, md, "Strategy: **create**")
	assert.Contains(t, md, "- create table item")
	assert.Contains(t, md, "-- create table\nCREATE TABLE \"item\" (\"id\" INTEGER);\n")

	noop := ui.PlanMarkdown(&migrate.Plan{Table: "item", Strategy: migrate.NoOp})
	assert.Contains(t, noop, "Already up to date.")
	assert.NotContains(t, noop, "```")
}

func TestDestructive(t *testing.T) {
	tests := []struct {
		name string
		plan *migrate.Plan
		want bool
	}{
		{"create", &migrate.Plan{Strategy: migrate.Create}, false},
		{"recreate", &migrate.Plan{Strategy: migrate.Recreate}, true},
		{"drop aside", &migrate.Plan{Strategy: migrate.Alter, Diff: &diff.TableDiff{}, DroppedAside: true}, true},
		{"add only", &migrate.Plan{Strategy: migrate.Alter, Diff: &diff.TableDiff{}}, false},
		{"drop column", &migrate.Plan{Strategy: migrate.Alter, Diff: &diff.TableDiff{Obsolete: []introspect.ColumnSchema{{Name: "x"}}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ui.Destructive(tt.plan))
		})
	}
}

func TestSchemaRows(t *testing.T) {
	def := "0"
	live := &introspect.TableSchema{
		Name: "item",
		Columns: []introspect.ColumnSchema{
			{Name: "id", Type: "INTEGER", PrimaryKey: true, AutoIncrement: true, NotNull: true},
			{Name: "n", Type: "INTEGER", NotNull: true, Default: &def},
		},
		Indices: []introspect.IndexSchema{{Name: "ix_item_n", Columns: []string{"n"}}},
		Uniques: []introspect.IndexSchema{{Name: "uq_item_id_n", Columns: []string{"id", "n"}, Unique: true}},
	}
	assert.Equal(t, [][]string{
		{"id", "INTEGER", "pk, autoincrement, not null", ""},
		{"n", "INTEGER", "not null", "0"},
	}, ui.SchemaRows(live))
	assert.Equal(t, [][]string{
		{"ix_item_n", "index", "n"},
		{"uq_item_id_n", "unique", "id, n"},
	}, ui.IndexRows(live))

	buf := capture(t)
	require.NoError(t, ui.PrintTable([]string{"column", "type", "flags", "default"}, ui.SchemaRows(live)))
	assert.Contains(t, buf.String(), "autoincrement")
}

func TestMessages(t *testing.T) {
	buf := capture(t)
	ui.PrintSuccess("applied %d", 2)
	ui.PrintWarning("careful")
	ui.PrintStep(1, 3, "create table")
	out := buf.String()
	assert.Contains(t, out, "applied 2")
	assert.Contains(t, out, "careful")
	assert.Contains(t, out, "[1/3]")
}

// Package diff compares a live table snapshot with the entity descriptor it should match.
package diff

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/sqlforge/dialect"
	"github.com/satishbabariya/sqlforge/migrate/introspect"
	"github.com/satishbabariya/sqlforge/model"
)

// Reason names one way a live column differs from its declaration.
type Reason string

const (
	ReasonType          Reason = "type"
	ReasonPrimaryKey    Reason = "primary key"
	ReasonAutoIncrement Reason = "auto increment"
	ReasonUnique        Reason = "unique"
	ReasonNotNull       Reason = "not null"
)

// ColumnChange is a column present on both sides with differing declarations.
type ColumnChange struct {
	Live    introspect.ColumnSchema
	Target  *model.ColumnDescriptor
	Reasons []Reason
}

// Has reports whether r is among the change reasons.
func (c ColumnChange) Has(r Reason) bool {
	for _, x := range c.Reasons {
		if x == r {
			return true
		}
	}
	return false
}

// OnlyInPlace reports whether every reason is a type or nullability change, the only
// alterations a dialect may apply without a rebuild.
func (c ColumnChange) OnlyInPlace() bool {
	for _, r := range c.Reasons {
		if r != ReasonType && r != ReasonNotNull {
			return false
		}
	}
	return true
}

// IndexChange pairs a live index with the declaration replacing it under the same name.
type IndexChange struct {
	Live   introspect.IndexSchema
	Target *model.IndexDescriptor
}

// UniqueChange pairs a live unique index with the declaration replacing it.
type UniqueChange struct {
	Live   introspect.IndexSchema
	Target *model.UniqueDescriptor
}

// TableDiff is the structural difference between a live table and its descriptor.
type TableDiff struct {
	Table string

	Missing  []*model.ColumnDescriptor
	Obsolete []introspect.ColumnSchema
	Altered  []ColumnChange

	MissingIndices  []*model.IndexDescriptor
	ObsoleteIndices []introspect.IndexSchema
	AlteredIndices  []IndexChange

	MissingUniques  []*model.UniqueDescriptor
	ObsoleteUniques []introspect.IndexSchema
	AlteredUniques  []UniqueChange
}

// Empty reports whether the table already matches.
func (d *TableDiff) Empty() bool {
	return len(d.Missing) == 0 && len(d.Obsolete) == 0 && len(d.Altered) == 0 && d.IndicesUnchanged()
}

// IndicesUnchanged reports whether indices and unique constraints match.
func (d *TableDiff) IndicesUnchanged() bool {
	return len(d.MissingIndices) == 0 && len(d.ObsoleteIndices) == 0 && len(d.AlteredIndices) == 0 &&
		len(d.MissingUniques) == 0 && len(d.ObsoleteUniques) == 0 && len(d.AlteredUniques) == 0
}

// Changes describes every difference, one line each, for logs and plans.
func (d *TableDiff) Changes() []string {
	var out []string
	for _, c := range d.Missing {
		out = append(out, fmt.Sprintf("add column %s", c.Name))
	}
	for _, c := range d.Obsolete {
		out = append(out, fmt.Sprintf("drop column %s", c.Name))
	}
	for _, c := range d.Altered {
		reasons := make([]string, len(c.Reasons))
		for i, r := range c.Reasons {
			reasons[i] = string(r)
		}
		out = append(out, fmt.Sprintf("alter column %s (%s)", c.Target.Name, strings.Join(reasons, ", ")))
	}
	for _, ix := range d.MissingIndices {
		out = append(out, "create index "+ix.Name)
	}
	for _, ix := range d.AlteredIndices {
		out = append(out, "rebuild index "+ix.Target.Name)
	}
	for _, ix := range d.ObsoleteIndices {
		out = append(out, "drop index "+ix.Name)
	}
	for _, u := range d.MissingUniques {
		out = append(out, "create unique "+u.Name)
	}
	for _, u := range d.AlteredUniques {
		out = append(out, "rebuild unique "+u.Target.Name)
	}
	for _, u := range d.ObsoleteUniques {
		out = append(out, "drop unique "+u.Name)
	}
	return out
}

// Compute diffs live against target using the dialect's type names.
func Compute(live *introspect.TableSchema, target *model.EntityDescriptor, d dialect.Dialect) *TableDiff {
	td := &TableDiff{Table: target.Table()}

	for _, col := range target.Columns() {
		lc := live.Column(col.Name)
		if lc == nil {
			td.Missing = append(td.Missing, col)
			continue
		}
		if reasons := columnReasons(*lc, col, d); len(reasons) > 0 {
			td.Altered = append(td.Altered, ColumnChange{Live: *lc, Target: col, Reasons: reasons})
		}
	}
	for _, lc := range live.Columns {
		if target.Column(lc.Name) == nil {
			td.Obsolete = append(td.Obsolete, lc)
		}
	}

	kinds := d.Capabilities().IndexKinds
	unmatched := matchIndexes(live.Indices, len(target.Indices()), func(i int) (string, []string, string) {
		ix := target.Indices()[i]
		return ix.Name, ix.Columns, ix.Kind
	}, kinds, func(i int, l *introspect.IndexSchema) {
		if l == nil {
			td.MissingIndices = append(td.MissingIndices, target.Indices()[i])
			return
		}
		td.AlteredIndices = append(td.AlteredIndices, IndexChange{Live: *l, Target: target.Indices()[i]})
	})
	td.ObsoleteIndices = unmatched

	td.ObsoleteUniques = matchIndexes(live.Uniques, len(target.Uniques()), func(i int) (string, []string, string) {
		u := target.Uniques()[i]
		return u.Name, u.Columns, ""
	}, false, func(i int, l *introspect.IndexSchema) {
		if l == nil {
			td.MissingUniques = append(td.MissingUniques, target.Uniques()[i])
			return
		}
		td.AlteredUniques = append(td.AlteredUniques, UniqueChange{Live: *l, Target: target.Uniques()[i]})
	})
	return td
}

func columnReasons(live introspect.ColumnSchema, col *model.ColumnDescriptor, d dialect.Dialect) []Reason {
	var reasons []Reason
	if !d.SameType(live.Type, d.TypeName(col)) {
		reasons = append(reasons, ReasonType)
	}
	if live.PrimaryKey != col.PrimaryKey {
		reasons = append(reasons, ReasonPrimaryKey)
	}
	if live.AutoIncrement != col.AutoIncrement {
		reasons = append(reasons, ReasonAutoIncrement)
	}
	if live.Unique != (col.Unique && !col.PrimaryKey) {
		reasons = append(reasons, ReasonUnique)
	}
	if live.NotNull != (col.NotNull || col.PrimaryKey) {
		reasons = append(reasons, ReasonNotNull)
	}
	return reasons
}

// matchIndexes pairs n declared indices with live ones. A declaration matches the live index
// of the same name, or failing that a structurally equal live index under another name.
// report is called with a nil live index for missing declarations and with the live index for
// same-name structural mismatches. The unmatched live indices are returned.
func matchIndexes(live []introspect.IndexSchema, n int, decl func(int) (string, []string, string),
	kinds bool, report func(int, *introspect.IndexSchema)) []introspect.IndexSchema {
	used := make([]bool, len(live))
	pending := make([]int, 0, n)

	for i := 0; i < n; i++ {
		name, cols, kind := decl(i)
		found := -1
		for j := range live {
			if !used[j] && strings.EqualFold(live[j].Name, name) {
				found = j
				break
			}
		}
		if found < 0 {
			pending = append(pending, i)
			continue
		}
		used[found] = true
		if !sameIndex(live[found], cols, kind, kinds) {
			report(i, &live[found])
		}
	}
	for _, i := range pending {
		_, cols, kind := decl(i)
		found := -1
		for j := range live {
			if !used[j] && sameIndex(live[j], cols, kind, kinds) {
				found = j
				break
			}
		}
		if found < 0 {
			report(i, nil)
			continue
		}
		used[found] = true
	}

	var rest []introspect.IndexSchema
	for j := range live {
		if !used[j] {
			rest = append(rest, live[j])
		}
	}
	return rest
}

func sameIndex(live introspect.IndexSchema, cols []string, kind string, kinds bool) bool {
	if !model.SameColumns(live.Columns, cols) {
		return false
	}
	if !kinds {
		return true
	}
	return normalizeKind(live.Kind) == normalizeKind(kind)
}

// normalizeKind treats the default access method and an empty kind as equal.
func normalizeKind(k string) string {
	k = strings.ToLower(k)
	if k == "btree" {
		return ""
	}
	return k
}

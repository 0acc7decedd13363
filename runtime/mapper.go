package runtime

import (
	"database/sql"
	"reflect"
	"strings"
	"time"

	"github.com/satishbabariya/sqlforge/model"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

// isEntity reports whether t, or the type it points to, is a struct filled column by column
// rather than a single value such as time.Time or a sql.Scanner.
func isEntity(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && t != timeType && !reflect.PointerTo(t).Implements(scannerType)
}

// rowMapper is the setter table of one entity type, keyed by lower-cased column name.
type rowMapper struct {
	byName map[string]*model.ColumnDescriptor
}

func newRowMapper(desc *model.EntityDescriptor) *rowMapper {
	m := &rowMapper{byName: make(map[string]*model.ColumnDescriptor, len(desc.Columns()))}
	for _, col := range desc.Columns() {
		if col.HasAccessor() {
			m.byName[strings.ToLower(col.Name)] = col
		}
	}
	return m
}

// bind resolves result columns to setters in projection order. Unmapped columns get nil and
// are skipped when rows are assigned.
func (m *rowMapper) bind(names []string) []*model.ColumnDescriptor {
	out := make([]*model.ColumnDescriptor, len(names))
	for i, n := range names {
		out[i] = m.byName[strings.ToLower(n)]
	}
	return out
}

// assignRow stores vals into the entity dst points to. dst is a pointer to a struct or a
// pointer to a nil or non-nil struct pointer, which is allocated as needed.
func assignRow(dst any, cols []*model.ColumnDescriptor, vals []any) error {
	v := reflect.ValueOf(dst)
	for v.Elem().Kind() == reflect.Pointer {
		if v.Elem().IsNil() {
			v.Elem().Set(reflect.New(v.Elem().Type().Elem()))
		}
		v = v.Elem()
	}
	entity := v.Interface()
	for i, col := range cols {
		if col == nil {
			continue
		}
		if err := col.Set(entity, vals[i]); err != nil {
			return err
		}
	}
	return nil
}

// scanner reads rows into T for Query and First.
type scanner[T any] struct {
	cols   []*model.ColumnDescriptor
	entity bool
	n      int
}

func newScanner[T any](db *DB, rows *sql.Rows) (*scanner[T], error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	s := &scanner[T]{n: len(names)}
	if t := reflect.TypeFor[T](); isEntity(t) {
		m, err := db.mapper(t)
		if err != nil {
			return nil, err
		}
		s.cols = m.bind(names)
		s.entity = true
	}
	return s, nil
}

func (s *scanner[T]) scan(rows *sql.Rows, dst *T) error {
	vals, ptrs := scanBuffers(s.n)
	if err := rows.Scan(ptrs...); err != nil {
		return err
	}
	if !s.entity {
		return model.Assign(reflect.ValueOf(dst).Elem(), vals[0])
	}
	return assignRow(dst, s.cols, vals)
}

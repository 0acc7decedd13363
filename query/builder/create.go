package builder

import (
	"github.com/satishbabariya/sqlforge/dberr"
	"github.com/satishbabariya/sqlforge/model"
	"github.com/satishbabariya/sqlforge/query/prepare"
)

// CreateTableStmt is a CREATE TABLE statement for a descriptor.
//
// Multi-column unique constraints are not table constraints: they are created as named unique
// indices after the table, so the migration engine can drop and introspect them by name.
type CreateTableStmt struct {
	b           *Builder
	desc        *model.EntityDescriptor
	name        string
	ifNotExists bool
}

var _ prepare.Statement = (*CreateTableStmt)(nil)

// CreateTable starts a CREATE TABLE for desc.
func (b *Builder) CreateTable(desc *model.EntityDescriptor) *CreateTableStmt {
	return &CreateTableStmt{b: b, desc: desc, name: desc.Table()}
}

// IfNotExists makes the statement a no-op when the table exists.
func (s *CreateTableStmt) IfNotExists() *CreateTableStmt {
	s.ifNotExists = true
	return s
}

// As creates the table under name instead of the descriptor's table name.
func (s *CreateTableStmt) As(name string) *CreateTableStmt {
	s.name = name
	return s
}

// Name returns the table name the statement creates.
func (s *CreateTableStmt) Name() string { return s.name }

// Build implements prepare.Statement.
func (s *CreateTableStmt) Build(p *prepare.Preparator) error {
	if err := s.desc.Validate(); err != nil {
		return err
	}
	d := p.Dialect()
	p.WriteString("CREATE TABLE ")
	if s.ifNotExists {
		p.WriteString("IF NOT EXISTS ")
	}
	p.WriteIdent(s.name)
	p.WriteString(" (")
	for i, c := range s.desc.Columns() {
		if i > 0 {
			p.WriteString(", ")
		}
		def, err := d.ColumnDDL(c)
		if err != nil {
			return err
		}
		p.WriteString(def)
	}
	p.WriteString(")")
	return nil
}

// Prepare renders the CREATE TABLE statement alone.
func (s *CreateTableStmt) Prepare() (*prepare.Operation, error) {
	return s.b.prepare(prepare.KindDDL, s, nil)
}

// PrepareAll renders the CREATE TABLE followed by the descriptor's unique and secondary
// indices.
func (s *CreateTableStmt) PrepareAll() ([]*prepare.Operation, error) {
	table, err := s.Prepare()
	if err != nil {
		return nil, err
	}
	ops := []*prepare.Operation{table}
	for _, u := range s.desc.Uniques() {
		op, err := s.b.CreateUnique(s.name, u.Name, u.Columns...).Prepare()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	for _, ix := range s.desc.Indices() {
		op, err := s.b.CreateIndex(s.name, ix.Name, ix.Kind, ix.Columns...).Prepare()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// IndexStmt creates or drops an index.
type IndexStmt struct {
	b      *Builder
	table  string
	name   string
	kind   string
	cols   []string
	unique bool
	drop   bool
}

var _ prepare.Statement = (*IndexStmt)(nil)

// CreateIndex starts a CREATE INDEX. kind is ignored by dialects without index kinds.
func (b *Builder) CreateIndex(table, name, kind string, cols ...string) *IndexStmt {
	return &IndexStmt{b: b, table: table, name: name, kind: kind, cols: cols}
}

// CreateUnique starts a CREATE UNIQUE INDEX.
func (b *Builder) CreateUnique(table, name string, cols ...string) *IndexStmt {
	return &IndexStmt{b: b, table: table, name: name, cols: cols, unique: true}
}

// DropIndex starts a DROP INDEX.
func (b *Builder) DropIndex(table, name string) *IndexStmt {
	return &IndexStmt{b: b, table: table, name: name, drop: true}
}

// Build implements prepare.Statement.
func (s *IndexStmt) Build(p *prepare.Preparator) error {
	if s.name == "" {
		return dberr.Compile("index", s.table, dberr.ErrInvalidModel)
	}
	if s.drop {
		p.WriteString(p.Dialect().DropIndex(s.table, s.name))
		return nil
	}
	if len(s.cols) == 0 {
		return dberr.Compilef("index", dberr.ErrInvalidModel, "%s: index %s has no columns", s.table, s.name)
	}
	p.WriteString(p.Dialect().CreateIndex(s.table, s.name, s.cols, s.kind, s.unique))
	return nil
}

// Prepare renders the statement.
func (s *IndexStmt) Prepare() (*prepare.Operation, error) {
	return s.b.prepare(prepare.KindDDL, s, nil)
}

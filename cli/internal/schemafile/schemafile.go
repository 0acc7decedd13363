// Package schemafile reads entity descriptors from a YAML schema file.
//
//	entities:
//	  - table: users
//	    columns:
//	      - {name: id, type: bigint, pk: true, autoincrement: true}
//	      - {name: email, type: string, size: 255, unique: true}
//	      - {name: bio, type: text, nullable: true}
//	    indices:
//	      - {columns: [email], kind: btree}
//	    uniques:
//	      - {name: uq_users_org_email, columns: [org, email]}
package schemafile

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/satishbabariya/sqlforge/model"
)

// File is a parsed schema file.
type File struct {
	Entities []Entity `yaml:"entities"`

	// Checksum is the SHA-256 of the raw file contents.
	Checksum string `yaml:"-"`
}

// Entity describes one table.
type Entity struct {
	Table   string   `yaml:"table"`
	Columns []Column `yaml:"columns"`
	Indices []Index  `yaml:"indices,omitempty"`
	Uniques []Unique `yaml:"uniques,omitempty"`
}

// Column describes one column. Columns are NOT NULL unless nullable is set.
type Column struct {
	Name          string `yaml:"name"`
	Type          string `yaml:"type"`
	Size          int    `yaml:"size,omitempty"`
	PK            bool   `yaml:"pk,omitempty"`
	AutoIncrement bool   `yaml:"autoincrement,omitempty"`
	Nullable      bool   `yaml:"nullable,omitempty"`
	Unique        bool   `yaml:"unique,omitempty"`
	Default       any    `yaml:"default,omitempty"`
}

// Index describes a secondary index; an empty name is derived from the columns.
type Index struct {
	Name    string   `yaml:"name,omitempty"`
	Columns []string `yaml:"columns"`
	Kind    string   `yaml:"kind,omitempty"`
}

// Unique describes a unique constraint.
type Unique struct {
	Name    string   `yaml:"name,omitempty"`
	Columns []string `yaml:"columns"`
}

// Load reads and parses path from fs.
func Load(fs afero.Fs, path string) (*File, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return Parse(data)
}

// Parse parses schema file contents. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}
	sum := sha256.Sum256(data)
	f.Checksum = hex.EncodeToString(sum[:])
	return &f, nil
}

// Descriptors builds a dynamic descriptor per entity, in file order.
func (f *File) Descriptors() ([]*model.EntityDescriptor, error) {
	seen := make(map[string]bool, len(f.Entities))
	out := make([]*model.EntityDescriptor, 0, len(f.Entities))
	for _, e := range f.Entities {
		if seen[e.Table] {
			return nil, fmt.Errorf("table %q declared twice", e.Table)
		}
		seen[e.Table] = true
		d, err := e.Descriptor()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Register adds every entity of f to reg.
func (f *File) Register(reg *model.Registry) ([]*model.EntityDescriptor, error) {
	descs, err := f.Descriptors()
	if err != nil {
		return nil, err
	}
	for _, d := range descs {
		if err := reg.Register(d); err != nil {
			return nil, err
		}
	}
	return descs, nil
}

// Descriptor builds the dynamic descriptor of e.
func (e Entity) Descriptor() (*model.EntityDescriptor, error) {
	d := model.NewEntity(e.Table)
	for _, c := range e.Columns {
		typ, err := model.ParseType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", e.Table, c.Name, err)
		}
		col := &model.ColumnDescriptor{
			Name:          c.Name,
			Type:          typ,
			Size:          c.Size,
			PrimaryKey:    c.PK,
			AutoIncrement: c.AutoIncrement,
			NotNull:       !c.Nullable,
			Unique:        c.Unique,
			Default:       c.Default,
		}
		if err := d.AddColumn(col); err != nil {
			return nil, err
		}
	}
	for _, ix := range e.Indices {
		d.AddIndex(ix.Name, ix.Kind, ix.Columns...)
	}
	for _, u := range e.Uniques {
		d.AddUnique(u.Name, u.Columns...)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

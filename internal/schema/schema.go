// Package schema holds the declarative column definitions for tree rows and the
// transforms that turn raw row data into display values.
package schema

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Exported constants.
const (
	AssetItem = "asset_item"
	SyncItem  = "sync_item"
)

// Exported variables.
var (
	ErrInvalidSchema = errors.New("invalid schema")
)

//go:embed schemas/*.yml
var embedded embed.FS

// Column is one declared column.
type Column struct {
	Key        string `yaml:"key"`
	Title      string `yaml:"title"`
	Transform  string `yaml:"transform"`
	Filterable bool   `yaml:"filter"`
}

// Schema is an ordered column list shared read-only by every row of one kind.
type Schema struct {
	Name    string   `yaml:"name"`
	Columns []Column `yaml:"columns"`
}

// FilterKeys returns the keys of filterable columns in declaration order, without duplicates.
func (s *Schema) FilterKeys() []string {
	seen := make(map[string]bool)

	var keys []string

	for _, col := range s.Columns {
		if col.Filterable && !seen[col.Key] {
			seen[col.Key] = true
			keys = append(keys, col.Key)
		}
	}

	return keys
}

// Titles returns the column titles in order.
func (s *Schema) Titles() []string {
	titles := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		titles[i] = col.Title
	}

	return titles
}

// Registry is the read-only set of loaded schemas keyed by name.
type Registry struct {
	schemas    map[string]*Schema
	transforms Transforms
}

// Load builds the registry from the embedded schema files.
func Load() (*Registry, error) {
	sub, err := fs.Sub(embedded, "schemas")
	if err != nil {
		return nil, fmt.Errorf("open embedded schemas: %w", err)
	}

	return LoadFS(sub, DefaultTransforms())
}

// LoadFS builds a registry from every .yml file in fsys, validating each column
// against transforms. Loading fails on the first invalid schema.
func LoadFS(fsys fs.FS, transforms Transforms) (*Registry, error) {
	names, err := fs.Glob(fsys, "*.yml")
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}

	sort.Strings(names)

	registry := &Registry{schemas: make(map[string]*Schema), transforms: transforms}

	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}

		var s Schema

		err = yaml.Unmarshal(data, &s)
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", name, err)
		}

		if s.Name == "" {
			s.Name = strings.TrimSuffix(path.Base(name), ".yml")
		}

		err = s.validate(transforms)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}

		if _, dup := registry.schemas[s.Name]; dup {
			return nil, fmt.Errorf("schema %s: %w: duplicate name %q", name, ErrInvalidSchema, s.Name)
		}

		registry.schemas[s.Name] = &s
	}

	return registry, nil
}

// Get returns a schema by name.
func (r *Registry) Get(name string) (*Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// MustGet returns a schema by name and panics when it is missing. Use only for
// names that Load is known to provide.
func (r *Registry) MustGet(name string) *Schema {
	s, ok := r.schemas[name]
	if !ok {
		panic(fmt.Sprintf("schema %q not loaded", name))
	}

	return s
}

// Resolve computes every column's display value for row. Values are computed on
// each call and never cached, since row status can change between reads.
func (r *Registry) Resolve(s *Schema, row RowState) []string {
	values := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		values[i] = r.Value(col, row)
	}

	return values
}

// Value computes one column's display value. A missing raw value renders empty.
func (r *Registry) Value(col Column, row RowState) string {
	raw := row.Field(col.Key)
	if isEmpty(raw) {
		return ""
	}

	if col.Transform == "" {
		return fmt.Sprint(raw)
	}

	return r.transforms[col.Transform](row, raw)
}

func (s *Schema) validate(transforms Transforms) error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: no columns", ErrInvalidSchema)
	}

	titles := make(map[string]bool, len(s.Columns))

	for i, col := range s.Columns {
		if col.Key == "" || col.Title == "" {
			return fmt.Errorf("%w: column %d needs key and title", ErrInvalidSchema, i)
		}

		if titles[col.Title] {
			return fmt.Errorf("%w: duplicate title %q", ErrInvalidSchema, col.Title)
		}

		titles[col.Title] = true

		if col.Transform != "" {
			if _, ok := transforms[col.Transform]; !ok {
				return fmt.Errorf("%w: column %q uses unknown transform %q", ErrInvalidSchema, col.Title, col.Transform)
			}
		}
	}

	return nil
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case map[string]string:
		return len(v) == 0
	default:
		return false
	}
}

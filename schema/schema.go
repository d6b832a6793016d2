// Package schema describes CSV files as lists of typed columns and runs rows
// through the column chains built by cellz.
//
// A schema is declared in YAML or TOML:
//
//	name: orders
//	header: true
//	columns:
//	  - name: id
//	    type: long
//	    unique: true
//	  - name: price
//	    type: double
//	    pattern: "#,##0.00"
//	    min: "0.00"
//	  - name: shipped
//	    type: date
//	    optional: true
//
// Compile resolves every column into a cellz.FieldSpec and reports all
// configuration errors at once. A Registry then opens Sessions, one per file
// being read or written.
package schema

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/zoobzio/cellz"
)

// Column declares one CSV column. The embedded Params carry the conversion
// options; in files they sit beside name and type.
type Column struct {
	Name string `yaml:"name" toml:"name"`
	// Label is the header text; it defaults to Name.
	Label string `yaml:"label" toml:"label"`
	// Position is the 0-based column index; it defaults to the declaration
	// order.
	Position  *int       `yaml:"position" toml:"position"`
	Type      cellz.Kind `yaml:"type" toml:"type"`
	Primitive bool       `yaml:"primitive" toml:"primitive"`

	cellz.Params `yaml:",inline"`
}

// HeaderLabel returns the text expected in the header row.
func (c *Column) HeaderLabel() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Name
}

// Schema is a declared CSV layout.
type Schema struct {
	Name    string   `yaml:"name" toml:"name"`
	Header  bool     `yaml:"header" toml:"header"`
	Columns []Column `yaml:"columns" toml:"columns"`
}

// Format names a schema file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf picks the syntax from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("unsupported schema file extension %q", filepath.Ext(path))
}

// LoadFile reads and parses a schema file.
func LoadFile(path string) (*Schema, error) {
	f, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	s, err := Parse(data, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// Parse decodes schema data. Unknown keys are rejected so that a misspelled
// option does not silently drop a constraint.
func Parse(data []byte, f Format) (*Schema, error) {
	var s Schema
	switch f {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("failed to parse schema YAML: %w", err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &s)
		if err != nil {
			return nil, fmt.Errorf("failed to parse schema TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("failed to parse schema TOML: unknown key %q", undecoded[0].String())
		}
	default:
		return nil, fmt.Errorf("unsupported schema format %q", f)
	}
	return &s, nil
}

// Marshal encodes a schema as YAML.
func Marshal(s *Schema) ([]byte, error) {
	return yaml.Marshal(s)
}

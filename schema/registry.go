package schema

import (
	"errors"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
	"github.com/zoobzio/clockz"

	"github.com/zoobzio/cellz"
	"github.com/zoobzio/cellz/format"
)

// Field is a compiled column.
type Field struct {
	Column   Column
	Position int
	Spec     *cellz.FieldSpec
}

// Registry holds the compiled columns of a schema, ordered by position. It is
// immutable and shared by every Session it opens.
type Registry struct {
	name    string
	header  bool
	fields  []*Field
	formats *format.Cache
}

// Compile normalizes every column of s. All column errors are reported
// together, joined with errors.Join.
func Compile(s *Schema, opts ...cellz.NormalizeOption) (*Registry, error) {
	if s == nil || len(s.Columns) == 0 {
		return nil, ErrNoColumns
	}

	formats := format.NewCache()
	opts = append([]cellz.NormalizeOption{cellz.WithFormats(formats)}, opts...)

	var errs []error
	names := make(map[string]bool, len(s.Columns))
	taken := make(map[int]string, len(s.Columns))
	fields := make([]*Field, 0, len(s.Columns))

	for i, col := range s.Columns {
		if col.Name == "" {
			errs = append(errs, fmt.Errorf("column %d: %w", i, ErrUnnamedColumn))
			continue
		}
		if names[col.Name] {
			errs = append(errs, fmt.Errorf("column %q: %w", col.Name, ErrDuplicateColumn))
			continue
		}
		names[col.Name] = true

		pos := i
		if col.Position != nil {
			pos = *col.Position
		}
		if pos < 0 || pos >= len(s.Columns) {
			errs = append(errs, fmt.Errorf("column %q: %w: %d not in [0, %d)", col.Name, ErrBadPosition, pos, len(s.Columns)))
			continue
		}
		if other, ok := taken[pos]; ok {
			errs = append(errs, fmt.Errorf("column %q: %w: %d already used by %q", col.Name, ErrBadPosition, pos, other))
			continue
		}
		taken[pos] = col.Name

		spec, err := cellz.Normalize(col.Name, cellz.Type{Kind: col.Type, Primitive: col.Primitive}, col.Params, opts...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fields = append(fields, &Field{Column: col, Position: pos, Spec: spec})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	slices.SortFunc(fields, func(a, b *Field) int { return a.Position - b.Position })
	return &Registry{
		name:    s.Name,
		header:  s.Header,
		fields:  fields,
		formats: formats,
	}, nil
}

// Name returns the schema name.
func (r *Registry) Name() string {
	return r.name
}

// HasHeader reports whether files of this schema start with a header row.
func (r *Registry) HasHeader() bool {
	return r.header
}

// Fields returns the compiled columns in position order.
func (r *Registry) Fields() []*Field {
	return slices.Clone(r.fields)
}

// Field returns the named column.
func (r *Registry) Field(name string) (*Field, bool) {
	for _, f := range r.fields {
		if f.Spec.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Width returns the number of columns.
func (r *Registry) Width() int {
	return len(r.fields)
}

// Formats returns the number of distinct number and date formats the schema
// compiled.
func (r *Registry) Formats() int {
	return r.formats.Len()
}

// Header returns the header labels in position order.
func (r *Registry) Header() []string {
	labels := make([]string, len(r.fields))
	for i, f := range r.fields {
		labels[i] = f.Column.HeaderLabel()
	}
	return labels
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	logger *logrus.Logger
	clock  clockz.Clock
}

// WithLogger sets the logger rejected cells are reported to. The logrus
// standard logger is used otherwise.
func WithLogger(l *logrus.Logger) SessionOption {
	return func(c *sessionConfig) {
		c.logger = l
	}
}

// WithClock sets the clock of the session and of its chains.
func WithClock(clock clockz.Clock) SessionOption {
	return func(c *sessionConfig) {
		c.clock = clock
	}
}

// NewSession builds fresh input and output chains for every column. With
// skipValidation set, output chains leave out constraint stages.
func (r *Registry) NewSession(skipValidation bool, opts ...SessionOption) (*Session, error) {
	cfg := sessionConfig{
		logger: logrus.StandardLogger(),
		clock:  clockz.RealClock,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return newSession(r, skipValidation, cfg)
}

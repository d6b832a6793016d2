package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"

	"github.com/zoobzio/cellz"
)

// Session metrics.
const (
	SessionRowsRead      = metricz.Key("session.rows.read")
	SessionRowsWritten   = metricz.Key("session.rows.written")
	SessionRowsRejected  = metricz.Key("session.rows.rejected")
	SessionCellsRejected = metricz.Key("session.cells.rejected")
)

const bom = "\ufeff"

type lineKey struct{}

// column is the per-session runtime of one field.
type column struct {
	field  *Field
	input  *cellz.Chain
	output *cellz.Chain
	read   *cellz.Handle[cellz.Cell]
	write  *cellz.Handle[cellz.Cell]
}

// Session reads or writes one file. Its chains remember the values seen by
// uniqueness stages, so a Session must not be shared between files; Reset
// clears it for reuse.
type Session struct {
	id             uuid.UUID
	registry       *Registry
	skipValidation bool
	columns        []*column
	log            *logrus.Entry
	clock          clockz.Clock
	metrics        *metricz.Registry
	startedAt      time.Time

	mu   sync.Mutex
	line int
}

func newSession(r *Registry, skipValidation bool, cfg sessionConfig) (*Session, error) {
	s := &Session{
		id:             uuid.New(),
		registry:       r,
		skipValidation: skipValidation,
		clock:          cfg.clock,
		metrics:        metricz.New(),
	}
	s.startedAt = s.clock.Now()
	s.log = cfg.logger.WithFields(logrus.Fields{
		"schema":  r.name,
		"session": s.id.String(),
	})
	s.metrics.Counter(SessionRowsRead)
	s.metrics.Counter(SessionRowsWritten)
	s.metrics.Counter(SessionRowsRejected)
	s.metrics.Counter(SessionCellsRejected)

	builder := cellz.NewBuilder(cellz.WithClock(s.clock))
	for _, f := range r.fields {
		in, err := builder.BuildInputChain(f.Spec)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("column %q: %w", f.Spec.Name, err)
		}
		out, err := builder.BuildOutputChain(f.Spec, skipValidation)
		if err != nil {
			in.Close()
			s.Close()
			return nil, fmt.Errorf("column %q: %w", f.Spec.Name, err)
		}
		s.columns = append(s.columns, &column{
			field:  f,
			input:  in,
			output: out,
			read:   cellz.NewHandle[cellz.Cell](cellz.Name(f.Spec.Name), in, s.reporter(f, "read")),
			write:  cellz.NewHandle[cellz.Cell](cellz.Name(f.Spec.Name), out, s.reporter(f, "write")),
		})
	}

	s.log.WithField("columns", len(s.columns)).Debug("session opened")
	return s, nil
}

// reporter logs every rejected cell.
func (s *Session) reporter(f *Field, op string) cellz.Chainable[*cellz.Error[cellz.Cell]] {
	return cellz.Effect("report", func(ctx context.Context, e *cellz.Error[cellz.Cell]) error {
		s.metrics.Counter(SessionCellsRejected).Inc()
		entry := s.log.WithFields(logrus.Fields{
			"op":       op,
			"column":   f.Spec.Name,
			"position": f.Position,
			"stage":    e.Stage(),
		})
		if line, ok := ctx.Value(lineKey{}).(int); ok {
			entry = entry.WithField("line", line)
		}
		if v, ok := cellz.ViolationOf(e); ok {
			entry = entry.WithField("kind", v.Kind.String())
		}
		entry.Warn(e.Err)
		return nil
	})
}

// ID returns the session identifier used in log entries and reports.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Registry returns the schema the session was opened from.
func (s *Session) Registry() *Registry {
	return s.registry
}

// StartedAt returns when the session was opened.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// SkipValidation reports whether output chains were built without
// constraints.
func (s *Session) SkipValidation() bool {
	return s.skipValidation
}

// Metrics returns the row and cell counters.
func (s *Session) Metrics() *metricz.Registry {
	return s.metrics
}

// Line returns the number of records consumed so far, header included.
func (s *Session) Line() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.line
}

// Chain returns the chain of the named column in the given direction.
func (s *Session) Chain(name string, dir cellz.Direction) (*cellz.Chain, bool) {
	for _, c := range s.columns {
		if c.field.Spec.Name == name {
			if dir == cellz.Input {
				return c.input, true
			}
			return c.output, true
		}
	}
	return nil, false
}

// Header returns the labels to write as the first record.
func (s *Session) Header() []string {
	return s.registry.Header()
}

func (s *Session) nextLine() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.line++
	return s.line
}

// ReadHeader checks a header record against the schema labels. A leading
// byte order mark and surrounding spaces are ignored.
func (s *Session) ReadHeader(record []string) error {
	line := s.nextLine()
	want := s.registry.Header()
	if len(record) != len(want) {
		return &RowError{Line: line, Err: fmt.Errorf("%w: header has %d, schema has %d", ErrColumnCount, len(record), len(want))}
	}
	for i, label := range record {
		if i == 0 {
			label = strings.TrimPrefix(label, bom)
		}
		if strings.TrimSpace(label) != want[i] {
			return &RowError{Line: line, Err: fmt.Errorf("%w: column %d is %q, want %q", ErrHeaderMismatch, i, label, want[i])}
		}
	}
	return nil
}

// ReadRow converts a record into domain values. Empty cells are read as
// null. Every column is processed, so a *RowError lists all rejected cells of
// the record; the values of accepted cells are still returned.
func (s *Session) ReadRow(ctx context.Context, record []string) ([]cellz.Cell, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	line := s.nextLine()
	s.metrics.Counter(SessionRowsRead).Inc()
	if len(record) != len(s.columns) {
		s.metrics.Counter(SessionRowsRejected).Inc()
		return nil, &RowError{Line: line, Err: fmt.Errorf("%w: got %d, want %d", ErrColumnCount, len(record), len(s.columns))}
	}

	ctx = context.WithValue(ctx, lineKey{}, line)
	values := make([]cellz.Cell, len(s.columns))
	var rowErr *RowError
	for i, c := range s.columns {
		var in cellz.Cell
		if record[i] != "" {
			in = record[i]
		}
		v, err := c.read.Process(ctx, in)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return nil, ctxErr
			}
			if rowErr == nil {
				rowErr = &RowError{Line: line}
			}
			rowErr.Errors = append(rowErr.Errors, &ColumnError{Column: c.field.Spec.Name, Position: i, Err: err})
			continue
		}
		values[i] = v
	}
	if rowErr != nil {
		s.metrics.Counter(SessionRowsRejected).Inc()
		return values, rowErr
	}
	return values, nil
}

// WriteRow converts domain values into a record. Null values are written as
// empty cells.
func (s *Session) WriteRow(ctx context.Context, values []cellz.Cell) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	line := s.nextLine()
	if len(values) != len(s.columns) {
		s.metrics.Counter(SessionRowsRejected).Inc()
		return nil, &RowError{Line: line, Err: fmt.Errorf("%w: got %d, want %d", ErrColumnCount, len(values), len(s.columns))}
	}

	ctx = context.WithValue(ctx, lineKey{}, line)
	record := make([]string, len(s.columns))
	var rowErr *RowError
	for i, c := range s.columns {
		out, err := c.write.Process(ctx, values[i])
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return nil, ctxErr
			}
			if rowErr == nil {
				rowErr = &RowError{Line: line}
			}
			rowErr.Errors = append(rowErr.Errors, &ColumnError{Column: c.field.Spec.Name, Position: i, Err: err})
			continue
		}
		if out != nil {
			record[i] = out.(string)
		}
	}
	if rowErr != nil {
		s.metrics.Counter(SessionRowsRejected).Inc()
		return nil, rowErr
	}
	s.metrics.Counter(SessionRowsWritten).Inc()
	return record, nil
}

// Reset forgets uniqueness memory and line numbering so the session can serve
// another file.
func (s *Session) Reset() {
	s.mu.Lock()
	s.line = 0
	s.mu.Unlock()
	for _, c := range s.columns {
		c.input.Reset()
		c.output.Reset()
	}
}

// Close releases every chain.
func (s *Session) Close() error {
	var errs []error
	for _, c := range s.columns {
		errs = append(errs, c.read.Close(), c.write.Close(), c.input.Close(), c.output.Close())
	}
	s.log.WithFields(logrus.Fields{
		"lines":    s.Line(),
		"rejected": s.metrics.Counter(SessionRowsRejected).Value(),
		"elapsed":  s.clock.Since(s.startedAt).String(),
	}).Debug("session closed")
	return errors.Join(errs...)
}

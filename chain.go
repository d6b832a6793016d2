package cellz

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Direction tells which way a chain converts.
type Direction int

const (
	// Input chains read cell text into domain values.
	Input Direction = iota
	// Output chains write domain values as cell text.
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Chain is the compiled stage list of one field in one direction. It holds the
// memory of its uniqueness stage, so a chain must be used by one read or write
// pass at a time and reset before the next.
type Chain struct {
	spec           *FieldSpec
	direction      Direction
	skipValidation bool
	seq            *Sequence[Cell]
	kinds          []StageKind
	stateful       []resetter
}

// Execute runs value through the chain. Input chains return the field's
// domain value (or nil); output chains return a string (or nil).
//
// A rejected value yields an *Error[Cell] whose cause is a *Violation naming
// the stage that refused it.
func (c *Chain) Execute(ctx context.Context, value Cell) (Cell, error) {
	out, err := c.seq.Process(ctx, value)
	if err != nil {
		return nil, err
	}
	if s, ok := out.(settled); ok {
		return s.v, nil
	}
	if c.direction == Output && out != nil && !c.spec.HasFormatStage() {
		text, err := c.spec.Format(out)
		if err != nil {
			return nil, &Error[Cell]{
				Path:      []Name{c.seq.Name(), Name(stageEncode)},
				InputData: out,
				Err:       &Violation{Kind: ProcessingError, Stage: stageEncode, Field: c.spec.Name, Value: out, Err: err},
			}
		}
		return text, nil
	}
	return out, nil
}

// Process implements Chainable so chains compose with other connectors.
func (c *Chain) Process(ctx context.Context, value Cell) (Cell, error) {
	return c.Execute(ctx, value)
}

// Name returns "<field>.<direction>".
func (c *Chain) Name() Name {
	return c.seq.Name()
}

// Spec returns the field spec the chain was built from.
func (c *Chain) Spec() *FieldSpec {
	return c.spec
}

// Direction returns the direction the chain converts in.
func (c *Chain) Direction() Direction {
	return c.direction
}

// SkipValidation reports whether constraint stages were left out.
func (c *Chain) SkipValidation() bool {
	return c.skipValidation
}

// Kinds returns the stage kinds in execution order.
func (c *Chain) Kinds() []StageKind {
	return slices.Clone(c.kinds)
}

// Has reports whether the chain contains a stage of kind k.
func (c *Chain) Has(k StageKind) bool {
	return slices.Contains(c.kinds, k)
}

// Len returns the number of stages.
func (c *Chain) Len() int {
	return len(c.kinds)
}

// Reset forgets the values seen by uniqueness stages.
func (c *Chain) Reset() {
	for _, r := range c.stateful {
		r.reset()
	}
}

// OnStage registers a handler called asynchronously after every stage.
func (c *Chain) OnStage(handler func(context.Context, SequenceEvent) error) error {
	return c.seq.OnStageComplete(handler)
}

// Metrics returns the metrics of the underlying sequence.
func (c *Chain) Metrics() *metricz.Registry {
	return c.seq.Metrics()
}

// Tracer returns the tracer of the underlying sequence.
func (c *Chain) Tracer() *tracez.Tracer {
	return c.seq.Tracer()
}

// Close releases the chain's tracer and hooks.
func (c *Chain) Close() error {
	return c.seq.Close()
}

func (c *Chain) String() string {
	names := make([]string, len(c.kinds))
	for i, k := range c.kinds {
		names[i] = string(k)
	}
	return fmt.Sprintf("%s: %s", c.Name(), strings.Join(names, " -> "))
}

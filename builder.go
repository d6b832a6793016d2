package cellz

import (
	"errors"

	"github.com/zoobzio/clockz"
)

// ErrNilSpec is returned when a chain is requested for a nil FieldSpec.
var ErrNilSpec = errors.New("nil field spec")

// Builder compiles FieldSpecs into chains. A Builder is immutable and safe for
// concurrent use; the chains it returns are not.
type Builder struct {
	clock clockz.Clock
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithClock sets the clock chains use to time their stages.
func WithClock(clock clockz.Clock) BuilderOption {
	return func(b *Builder) {
		b.clock = clock
	}
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var defaultBuilder = NewBuilder()

// BuildInputChain compiles the input chain of spec with a default Builder.
func BuildInputChain(spec *FieldSpec) (*Chain, error) {
	return defaultBuilder.BuildInputChain(spec)
}

// BuildOutputChain compiles the output chain of spec with a default Builder.
func BuildOutputChain(spec *FieldSpec, skipValidation bool) (*Chain, error) {
	return defaultBuilder.BuildOutputChain(spec, skipValidation)
}

// chainPlan collects stages while a chain is assembled.
type chainPlan struct {
	spec     *FieldSpec
	stages   []Chainable[Cell]
	kinds    []StageKind
	stateful []resetter
}

func (p *chainPlan) add(kind StageKind, stage Chainable[Cell]) {
	p.stages = append(p.stages, stage)
	p.kinds = append(p.kinds, kind)
	if r, ok := stage.(resetter); ok {
		p.stateful = append(p.stateful, r)
	}
}

// BuildInputChain compiles the chain that reads cell text:
//
//	trim? -> default | required | optional -> parse -> equals? -> unique? -> min|max|range? -> text constraints?
//
// A primitive optional field without a default gets a default stage seeded
// with the kind's zero value, because a primitive cannot hold null.
func (b *Builder) BuildInputChain(spec *FieldSpec) (*Chain, error) {
	if spec == nil {
		return nil, ErrNilSpec
	}
	p := &chainPlan{spec: spec}

	if spec.Trim {
		p.add(StageTrim, Trim())
	}
	switch {
	case spec.InputDefault != nil:
		p.add(StageDefault, Default(spec.InputDefault.Value))
	case spec.Type.Primitive && spec.Optional:
		p.add(StageDefault, Default(spec.Type.Kind.Zero()))
	case spec.Nullable:
		p.add(StageOptional, Optional())
	default:
		p.add(StageRequired, Required(spec.Name))
	}

	if kind, ok := parseStageKind(spec); ok {
		p.add(kind, ParseStage(kind, spec))
	}
	addConstraints(p)

	return b.finish(p, Input, false), nil
}

// BuildOutputChain compiles the chain that writes cell text:
//
//	default | optional | required -> equals? -> unique? -> min|max|range? -> text constraints? -> trim? -> format?
//
// With skipValidation the constraint stages are left out entirely. Bounds are
// checked on the domain value before it is formatted.
func (b *Builder) BuildOutputChain(spec *FieldSpec, skipValidation bool) (*Chain, error) {
	if spec == nil {
		return nil, ErrNilSpec
	}
	p := &chainPlan{spec: spec}

	switch {
	case spec.OutputDefault != nil:
		p.add(StageDefault, Default(spec.OutputDefault.Text))
	case spec.Optional:
		p.add(StageOptional, Optional())
	default:
		p.add(StageRequired, Required(spec.Name))
	}

	if !skipValidation {
		addConstraints(p)
	}
	if spec.Trim {
		p.add(StageTrim, Trim())
	}
	if kind, ok := formatStageKind(spec); ok {
		p.add(kind, FormatStage(kind, spec))
	}

	return b.finish(p, Output, skipValidation), nil
}

func (b *Builder) finish(p *chainPlan, dir Direction, skipValidation bool) *Chain {
	seq := NewSequence(Name(p.spec.Name+"."+dir.String()), p.stages...)
	if b.clock != nil {
		seq.WithClock(b.clock)
	}
	return &Chain{
		spec:           p.spec,
		direction:      dir,
		skipValidation: skipValidation,
		seq:            seq,
		kinds:          p.kinds,
		stateful:       p.stateful,
	}
}

func addConstraints(p *chainPlan) {
	spec := p.spec
	if spec.Equals != nil {
		p.add(StageEquals, Equals(spec.Name, spec.Equals.Value))
	}
	switch {
	case spec.UniqueHash:
		p.add(StageUniqueHash, UniqueHash(spec.Name))
	case spec.Unique:
		p.add(StageUnique, Unique(spec.Name))
	}
	switch {
	case spec.Min != nil && spec.Max != nil:
		p.add(StageRange, Range(spec.Name, spec.Min.Value, spec.Max.Value))
	case spec.Min != nil:
		p.add(StageMin, Min(spec.Name, spec.Min.Value))
	case spec.Max != nil:
		p.add(StageMax, Max(spec.Name, spec.Max.Value))
	}
	if t := spec.Text; t != nil {
		if t.MinLength != nil {
			p.add(StageMinLength, MinLength(spec.Name, *t.MinLength))
		}
		if t.MaxLength != nil {
			p.add(StageMaxLength, MaxLength(spec.Name, *t.MaxLength))
		}
		if t.Length != nil {
			p.add(StageLength, Length(spec.Name, *t.Length))
		}
		if t.Regex != nil {
			p.add(StagePattern, Pattern(spec.Name, t.Regex))
		}
	}
}

func parseStageKind(spec *FieldSpec) (StageKind, bool) {
	switch k := spec.Type.Kind; {
	case k.Numeric() && spec.Number != nil:
		return StageParseLocaleNumber, true
	case k.Numeric():
		return StageParseNumber, true
	case k.Temporal():
		return StageParseLocaleDate, true
	case k == KindBoolean:
		return StageParseBoolean, true
	case k == KindEnum:
		return StageParseEnum, true
	}
	return "", false
}

func formatStageKind(spec *FieldSpec) (StageKind, bool) {
	switch k := spec.Type.Kind; {
	case k.Numeric() && spec.Number != nil:
		return StageFormatLocaleNumber, true
	case k.Temporal():
		return StageFormatLocaleDate, true
	case k == KindBoolean:
		return StageFormatBoolean, true
	}
	return "", false
}

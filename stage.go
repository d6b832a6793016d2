package cellz

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/zeebo/xxh3"
)

// StageKind is the stable identity of a stage. It doubles as the stage name in
// error paths, so callers can tell which rule rejected a cell.
type StageKind string

const (
	StageTrim     StageKind = "trim"
	StageDefault  StageKind = "default"
	StageRequired StageKind = "required"
	StageOptional StageKind = "optional"

	StageEquals     StageKind = "equals"
	StageUnique     StageKind = "unique"
	StageUniqueHash StageKind = "unique-hash"
	StageMin        StageKind = "min"
	StageMax        StageKind = "max"
	StageRange      StageKind = "range"

	StageParseNumber        StageKind = "parse-number"
	StageParseLocaleNumber  StageKind = "parse-locale-number"
	StageFormatLocaleNumber StageKind = "format-locale-number"
	StageParseLocaleDate    StageKind = "parse-locale-date"
	StageFormatLocaleDate   StageKind = "format-locale-date"
	StageParseBoolean       StageKind = "parse-boolean"
	StageFormatBoolean      StageKind = "format-boolean"
	StageParseEnum          StageKind = "parse-enum"

	StageMinLength StageKind = "min-length"
	StageMaxLength StageKind = "max-length"
	StageLength    StageKind = "length"
	StagePattern   StageKind = "pattern"

	// stageEncode renders values of fields without a format stage. It runs
	// after the sequence and is never listed among a chain's stages.
	stageEncode StageKind = "encode"
)

// Constraint reports whether k validates a value without converting it.
// Constraint stages are the ones skipValidation removes.
func (k StageKind) Constraint() bool {
	switch k {
	case StageEquals, StageUnique, StageUniqueHash, StageMin, StageMax, StageRange,
		StageMinLength, StageMaxLength, StageLength, StagePattern:
		return true
	}
	return false
}

// Parse reports whether k converts text into a domain value.
func (k StageKind) Parse() bool {
	switch k {
	case StageParseNumber, StageParseLocaleNumber, StageParseLocaleDate, StageParseBoolean, StageParseEnum:
		return true
	}
	return false
}

// Format reports whether k renders a domain value as text.
func (k StageKind) Format() bool {
	switch k {
	case StageFormatLocaleNumber, StageFormatLocaleDate, StageFormatBoolean:
		return true
	}
	return false
}

// settled marks a value substituted by a default. Stages after the default
// pass it through untouched and the chain unwraps it before returning.
type settled struct {
	v Cell
}

func unsettle(v Cell) Cell {
	if s, ok := v.(settled); ok {
		return s.v
	}
	return v
}

// valueStage builds a stage that only sees present, unsettled values.
func valueStage(kind StageKind, fn func(ctx context.Context, v Cell) (Cell, error)) Processor[Cell] {
	return Apply(Name(kind), func(ctx context.Context, v Cell) (Cell, error) {
		if v == nil {
			return nil, nil
		}
		if _, ok := v.(settled); ok {
			return v, nil
		}
		return fn(ctx, v)
	})
}

// Trim strips surrounding whitespace from string cells.
func Trim() Processor[Cell] {
	return Transform(Name(StageTrim), func(_ context.Context, v Cell) Cell {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
		return v
	})
}

// Default replaces a null cell with value. The substitute skips every later
// stage of the chain.
func Default(value Cell) Processor[Cell] {
	return Transform(Name(StageDefault), func(_ context.Context, v Cell) Cell {
		if v == nil {
			return settled{v: value}
		}
		return v
	})
}

// Required rejects null cells.
func Required(field string) Processor[Cell] {
	return Apply(Name(StageRequired), func(_ context.Context, v Cell) (Cell, error) {
		if v == nil {
			return nil, violation(RequiredValue, StageRequired, field, nil, "value is required")
		}
		return v, nil
	})
}

// Optional lets null cells through.
func Optional() Processor[Cell] {
	return Transform(Name(StageOptional), func(_ context.Context, v Cell) Cell {
		return v
	})
}

// Equals rejects values that differ from want.
func Equals(field string, want Cell) Processor[Cell] {
	return valueStage(StageEquals, func(_ context.Context, v Cell) (Cell, error) {
		c, err := compare(v, want)
		if err != nil {
			return nil, &Violation{Kind: ConstraintViolation, Stage: StageEquals, Field: field, Value: v, Err: err}
		}
		if c != 0 {
			return nil, violation(ConstraintViolation, StageEquals, field, v, "must equal %s", describeValue(want))
		}
		return v, nil
	})
}

// Min rejects values below bound. The bound itself passes.
func Min(field string, bound Cell) Processor[Cell] {
	return valueStage(StageMin, func(_ context.Context, v Cell) (Cell, error) {
		if err := checkBounds(StageMin, field, v, bound, nil); err != nil {
			return nil, err
		}
		return v, nil
	})
}

// Max rejects values above bound. The bound itself passes.
func Max(field string, bound Cell) Processor[Cell] {
	return valueStage(StageMax, func(_ context.Context, v Cell) (Cell, error) {
		if err := checkBounds(StageMax, field, v, nil, bound); err != nil {
			return nil, err
		}
		return v, nil
	})
}

// Range rejects values outside [lo, hi].
func Range(field string, lo, hi Cell) Processor[Cell] {
	return valueStage(StageRange, func(_ context.Context, v Cell) (Cell, error) {
		if err := checkBounds(StageRange, field, v, lo, hi); err != nil {
			return nil, err
		}
		return v, nil
	})
}

func checkBounds(kind StageKind, field string, v, lo, hi Cell) error {
	if lo != nil {
		c, err := compare(v, lo)
		if err != nil {
			return &Violation{Kind: ConstraintViolation, Stage: kind, Field: field, Value: v, Err: err}
		}
		if c < 0 {
			return violation(ConstraintViolation, kind, field, v, "must not be less than %s", describeValue(lo))
		}
	}
	if hi != nil {
		c, err := compare(v, hi)
		if err != nil {
			return &Violation{Kind: ConstraintViolation, Stage: kind, Field: field, Value: v, Err: err}
		}
		if c > 0 {
			return violation(ConstraintViolation, kind, field, v, "must not be greater than %s", describeValue(hi))
		}
	}
	return nil
}

// seenSet is the memory of a uniqueness stage. It belongs to one chain and is
// cleared between sessions.
type seenSet[K comparable] struct {
	mu   sync.Mutex
	seen map[K]struct{}
}

func newSeenSet[K comparable]() *seenSet[K] {
	return &seenSet[K]{seen: make(map[K]struct{})}
}

// add records k and reports whether it was new.
func (s *seenSet[K]) add(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[k]; dup {
		return false
	}
	s.seen[k] = struct{}{}
	return true
}

func (s *seenSet[K]) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.seen)
}

// resetter is implemented by stages that carry per-session state.
type resetter interface {
	reset()
}

// UniqueStage rejects values already seen by the same stage. Equality is by
// value, so "12,345" and "12345" collide once parsed.
type UniqueStage struct {
	Processor[Cell]
	keys resetter
}

func (u *UniqueStage) reset() { u.keys.reset() }

// Unique remembers every value it accepts.
func Unique(field string) *UniqueStage {
	set := newSeenSet[string]()
	return &UniqueStage{
		keys: set,
		Processor: valueStage(StageUnique, func(_ context.Context, v Cell) (Cell, error) {
			key, err := uniqueKey(v)
			if err != nil {
				return nil, &Violation{Kind: ConstraintViolation, Stage: StageUnique, Field: field, Value: v, Err: err}
			}
			if !set.add(key) {
				return nil, violation(ConstraintViolation, StageUnique, field, v, "duplicate value")
			}
			return v, nil
		}),
	}
}

// UniqueHash behaves like Unique but keeps 64-bit hashes of the values, which
// bounds memory on large files at the cost of rare false duplicates.
func UniqueHash(field string) *UniqueStage {
	set := newSeenSet[uint64]()
	return &UniqueStage{
		keys: set,
		Processor: valueStage(StageUniqueHash, func(_ context.Context, v Cell) (Cell, error) {
			key, err := uniqueKey(v)
			if err != nil {
				return nil, &Violation{Kind: ConstraintViolation, Stage: StageUniqueHash, Field: field, Value: v, Err: err}
			}
			if !set.add(xxh3.HashString(key)) {
				return nil, violation(ConstraintViolation, StageUniqueHash, field, v, "duplicate value")
			}
			return v, nil
		}),
	}
}

// ParseStage converts text with the field's parser. kind selects the identity
// the stage reports.
func ParseStage(kind StageKind, spec *FieldSpec) Processor[Cell] {
	return valueStage(kind, func(_ context.Context, v Cell) (Cell, error) {
		text, ok := v.(string)
		if !ok {
			if spec.Type.Kind.Accepts(v) {
				return v, nil
			}
			return nil, violation(ProcessingError, kind, spec.Name, v, "expected text, got %T", v)
		}
		out, err := spec.Parse(text)
		if err != nil {
			return nil, &Violation{Kind: ProcessingError, Stage: kind, Field: spec.Name, Value: text, Err: err}
		}
		return out, nil
	})
}

// FormatStage renders the field's domain value as text.
func FormatStage(kind StageKind, spec *FieldSpec) Processor[Cell] {
	return valueStage(kind, func(_ context.Context, v Cell) (Cell, error) {
		text, err := spec.Format(v)
		if err != nil {
			return nil, &Violation{Kind: ProcessingError, Stage: kind, Field: spec.Name, Value: v, Err: err}
		}
		return text, nil
	})
}

// MinLength rejects strings shorter than n runes.
func MinLength(field string, n int) Processor[Cell] {
	return textStage(StageMinLength, field, func(s string) string {
		if l := textLength(s); l < n {
			return fmt.Sprintf("length %d is less than %d", l, n)
		}
		return ""
	})
}

// MaxLength rejects strings longer than n runes.
func MaxLength(field string, n int) Processor[Cell] {
	return textStage(StageMaxLength, field, func(s string) string {
		if l := textLength(s); l > n {
			return fmt.Sprintf("length %d is greater than %d", l, n)
		}
		return ""
	})
}

// Length rejects strings that are not exactly n runes long.
func Length(field string, n int) Processor[Cell] {
	return textStage(StageLength, field, func(s string) string {
		if l := textLength(s); l != n {
			return fmt.Sprintf("length %d is not %d", l, n)
		}
		return ""
	})
}

// Pattern rejects strings the expression does not match in full.
func Pattern(field string, re *regexp.Regexp) Processor[Cell] {
	return textStage(StagePattern, field, func(s string) string {
		if !re.MatchString(s) {
			return fmt.Sprintf("does not match %q", re.String())
		}
		return ""
	})
}

func textStage(kind StageKind, field string, check func(string) string) Processor[Cell] {
	return valueStage(kind, func(_ context.Context, v Cell) (Cell, error) {
		s, ok := v.(string)
		if !ok {
			return nil, violation(ConstraintViolation, kind, field, v, "expected text, got %T", v)
		}
		if msg := check(s); msg != "" {
			return nil, violation(ConstraintViolation, kind, field, s, "%s", msg)
		}
		return v, nil
	})
}

package cellz

import (
	"errors"
	"fmt"
)

// Error categories. Every *Violation matches exactly one of the first three
// with errors.Is; every *ConfigError matches ErrConfiguration.
var (
	ErrRequired      = errors.New("required value missing")
	ErrProcessing    = errors.New("value cannot be processed")
	ErrConstraint    = errors.New("constraint violated")
	ErrConfiguration = errors.New("invalid field configuration")
)

// Configuration causes.
var (
	ErrIncompatibleOption = errors.New("option does not apply to this type")
	ErrMinExceedsMax      = errors.New("min is greater than max")
	ErrNoPrimitive        = errors.New("type has no primitive form")
	ErrMissingOption      = errors.New("option is required for this type")
)

// ErrorKind names the category of a row-level failure.
type ErrorKind int

const (
	RequiredValue ErrorKind = iota
	ProcessingError
	ConstraintViolation
)

func (k ErrorKind) String() string {
	switch k {
	case RequiredValue:
		return "required"
	case ProcessingError:
		return "processing"
	case ConstraintViolation:
		return "constraint"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func (k ErrorKind) sentinel() error {
	switch k {
	case RequiredValue:
		return ErrRequired
	case ProcessingError:
		return ErrProcessing
	}
	return ErrConstraint
}

// Violation is the error a stage raises when it rejects a cell. It names the
// field and the stage so callers can tell "missing", "malformed" and "wrong"
// values apart without inspecting messages.
type Violation struct {
	Kind    ErrorKind
	Stage   StageKind
	Field   string
	Value   Cell
	Message string
	Err     error
}

func (v *Violation) Error() string {
	msg := fmt.Sprintf("field %q: %s rejected %s", v.Field, v.Stage, describeValue(v.Value))
	if v.Message != "" {
		msg += ": " + v.Message
	}
	if v.Err != nil {
		msg += ": " + v.Err.Error()
	}
	return msg
}

// Unwrap exposes the category sentinel and the underlying cause.
func (v *Violation) Unwrap() []error {
	if v.Err == nil {
		return []error{v.Kind.sentinel()}
	}
	return []error{v.Kind.sentinel(), v.Err}
}

func describeValue(v Cell) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", x)
	}
	return fmt.Sprintf("%v", v)
}

func violation(kind ErrorKind, stage StageKind, field string, value Cell, format string, args ...any) *Violation {
	return &Violation{
		Kind:    kind,
		Stage:   stage,
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf(format, args...),
	}
}

// StageOf returns the kind of the stage that rejected a value, or "" when err
// carries no violation.
func StageOf(err error) StageKind {
	var v *Violation
	if errors.As(err, &v) {
		return v.Stage
	}
	return ""
}

// ViolationOf extracts the violation from a chain error.
func ViolationOf(err error) (*Violation, bool) {
	var v *Violation
	ok := errors.As(err, &v)
	return v, ok
}

// ConfigError reports a field declaration that cannot be compiled.
type ConfigError struct {
	Field string
	Param string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("field %q: invalid %s: %v", e.Field, e.Param, e.Err)
	}
	return fmt.Sprintf("field %q: invalid %s %q: %v", e.Field, e.Param, e.Value, e.Err)
}

// Unwrap exposes ErrConfiguration and the underlying cause.
func (e *ConfigError) Unwrap() []error {
	return []error{ErrConfiguration, e.Err}
}

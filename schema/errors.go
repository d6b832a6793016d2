package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zoobzio/cellz"
)

// Row and header failures.
var (
	ErrHeaderMismatch = errors.New("header does not match schema")
	ErrColumnCount    = errors.New("wrong number of columns")
)

// Schema definition failures reported by Compile.
var (
	ErrNoColumns       = errors.New("schema has no columns")
	ErrUnnamedColumn   = errors.New("column has no name")
	ErrDuplicateColumn = errors.New("duplicate column")
	ErrBadPosition     = errors.New("invalid column position")
)

// ColumnError is the failure of one cell.
type ColumnError struct {
	Column   string
	Position int
	Err      error
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("column %d (%s): %v", e.Position, e.Column, e.Err)
}

func (e *ColumnError) Unwrap() error {
	return e.Err
}

// Stage returns the kind of stage that rejected the cell.
func (e *ColumnError) Stage() cellz.StageKind {
	return cellz.StageOf(e.Err)
}

// Violation returns the rejection detail, if the cell was rejected by a stage.
func (e *ColumnError) Violation() (*cellz.Violation, bool) {
	return cellz.ViolationOf(e.Err)
}

// RowError collects every failure of one record. Err is set when the record
// as a whole is unusable; Errors lists the rejected cells otherwise.
type RowError struct {
	Line   int
	Err    error
	Errors []*ColumnError
}

func (e *RowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	parts := make([]string, len(e.Errors))
	for i, ce := range e.Errors {
		parts[i] = ce.Error()
	}
	return fmt.Sprintf("line %d: %s", e.Line, strings.Join(parts, "; "))
}

func (e *RowError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors)+1)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	for _, ce := range e.Errors {
		errs = append(errs, ce)
	}
	return errs
}

// Column returns the error of the named column, or nil.
func (e *RowError) Column(name string) *ColumnError {
	for _, ce := range e.Errors {
		if ce.Column == name {
			return ce
		}
	}
	return nil
}

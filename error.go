package cellz

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Error carries the context of a failed chain execution: the path of stage
// names that led to the failure, the value that entered the failing stage,
// and timing information.
//
// The last element of Path is the stage that rejected the value. Chains use it
// to surface the stage identity to callers:
//
//	_, err := chain.Execute(ctx, "abc")
//	var cellErr *cellz.Error[cellz.Cell]
//	if errors.As(err, &cellErr) {
//	    log.Printf("rejected by %s", cellErr.Path[len(cellErr.Path)-1])
//	}
type Error[T any] struct {
	Timestamp time.Time
	InputData T
	Err       error
	Path      []Name
	Duration  time.Duration
	Timeout   bool
	Canceled  bool
}

// Error renders the path, the outcome, and the underlying error.
func (e *Error[T]) Error() string {
	if e == nil {
		return "<nil>"
	}

	path := "unknown"
	if len(e.Path) > 0 {
		path = strings.Join(e.Path, " -> ")
	}

	switch {
	case e.Timeout:
		return fmt.Sprintf("%s timed out after %v: %v", path, e.Duration, e.Err)
	case e.Canceled:
		return fmt.Sprintf("%s canceled after %v: %v", path, e.Duration, e.Err)
	default:
		return fmt.Sprintf("%s failed after %v: %v", path, e.Duration, e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *Error[T]) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTimeout reports whether the failure was caused by a deadline.
func (e *Error[T]) IsTimeout() bool {
	if e == nil {
		return false
	}
	return e.Timeout || errors.Is(e.Err, context.DeadlineExceeded)
}

// IsCanceled reports whether the failure was caused by cancellation.
func (e *Error[T]) IsCanceled() bool {
	if e == nil {
		return false
	}
	return e.Canceled || errors.Is(e.Err, context.Canceled)
}

// Stage returns the name of the stage that produced the error.
func (e *Error[T]) Stage() Name {
	if e == nil || len(e.Path) == 0 {
		return ""
	}
	return e.Path[len(e.Path)-1]
}

// panicError is the cause recorded when a stage panics.
type panicError struct {
	processorName Name
	sanitized     string
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic in processor %q: %s", p.processorName, p.sanitized)
}

const maxPanicMessage = 200

var (
	addressPattern = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	pathPattern    = regexp.MustCompile(`(^|\s)(/[^\s]+|[A-Za-z]:\\[^\s]+)\.go:\d+`)
)

// sanitizePanicMessage strips addresses, file paths and stack traces from a
// recovered panic value before it is placed into an error.
func sanitizePanicMessage(r interface{}) string {
	if r == nil {
		return "unknown panic (nil value)"
	}

	msg := fmt.Sprintf("%v", r)
	if len(msg) > maxPanicMessage {
		return "panic occurred (message truncated for security)"
	}
	if strings.Contains(msg, "goroutine ") || strings.Contains(msg, "runtime.") {
		return "panic occurred (stack trace sanitized)"
	}
	if pathPattern.MatchString(msg) {
		return "panic occurred (file path sanitized)"
	}
	msg = addressPattern.ReplaceAllString(msg, "0x***")
	return "panic occurred: " + msg
}

// recoverFromPanic converts a panic inside a stage into an *Error. It must be
// deferred directly by the function whose results it overwrites.
func recoverFromPanic[T any](result *T, err *error, name Name, input T) {
	r := recover()
	if r == nil {
		return
	}
	var zero T
	*result = zero
	*err = &Error[T]{
		Path:      []Name{name},
		InputData: input,
		Err: &panicError{
			processorName: name,
			sanitized:     sanitizePanicMessage(r),
		},
		Timestamp: time.Now(),
	}
}

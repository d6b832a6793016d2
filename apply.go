package cellz

import (
	"context"
	"errors"
	"time"
)

// Apply creates a stage from a function that may reject its input. It is the
// shape used by parse stages and constraint stages: the function either returns
// the (possibly converted) value or an error describing why the value was
// refused.
//
// On failure the error is wrapped in an *Error that records the stage name,
// the offending input and how long the stage ran:
//
//	parseShort := cellz.Apply("parse-short", func(_ context.Context, c cellz.Cell) (cellz.Cell, error) {
//	    n, err := strconv.ParseInt(c.(string), 10, 16)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return int16(n), nil
//	})
func Apply[T any](name Name, fn func(context.Context, T) (T, error)) Processor[T] {
	return Processor[T]{
		name: name,
		fn: func(ctx context.Context, value T) (result T, err error) {
			defer recoverFromPanic(&result, &err, name, value)
			start := time.Now()
			result, err = fn(ctx, value)
			if err != nil {
				var zero T
				return zero, &Error[T]{
					Path:      []Name{name},
					InputData: value,
					Err:       err,
					Timestamp: time.Now(),
					Duration:  time.Since(start),
					Timeout:   errors.Is(err, context.DeadlineExceeded),
					Canceled:  errors.Is(err, context.Canceled),
				}
			}
			return result, nil
		},
	}
}

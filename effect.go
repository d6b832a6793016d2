package cellz

import (
	"context"
	"errors"
	"time"
)

// Effect creates a stage that observes the value without changing it. It suits
// checks that either accept the value as-is or reject it, and side effects
// such as logging a rejected cell.
//
//	notBlank := cellz.Effect("not-blank", func(_ context.Context, c cellz.Cell) error {
//	    if s, ok := c.(string); ok && s == "" {
//	        return errors.New("blank")
//	    }
//	    return nil
//	})
func Effect[T any](name Name, fn func(context.Context, T) error) Processor[T] {
	return Processor[T]{
		name: name,
		fn: func(ctx context.Context, value T) (result T, err error) {
			defer recoverFromPanic(&result, &err, name, value)
			start := time.Now()
			if err := fn(ctx, value); err != nil {
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
			return value, nil
		},
	}
}

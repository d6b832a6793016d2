package cellz

import (
	"context"
)

// Transform creates a stage from a function that cannot fail, such as trimming
// or substituting a default. A panic inside fn is recovered and reported as an
// *Error naming the stage.
func Transform[T any](name Name, fn func(context.Context, T) T) Processor[T] {
	return Processor[T]{
		name: name,
		fn: func(ctx context.Context, value T) (result T, err error) {
			defer recoverFromPanic(&result, &err, name, value)
			result = fn(ctx, value)
			return result, nil
		},
	}
}

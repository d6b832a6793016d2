// Package cellz builds and runs cell processor chains: ordered lists of small,
// single-purpose stages that turn CSV cell text into typed values and typed
// values back into text.
//
// A field is described declaratively with a Type and a set of Params. Normalize
// resolves them into an immutable FieldSpec, parsing every literal (defaults,
// equals value, bounds) with the field's own format so configuration mistakes
// surface before any row is read. A Builder then compiles the FieldSpec into a Chain
// for one direction:
//
//	spec, err := cellz.Normalize("price", cellz.Type{Kind: cellz.KindDouble}, cellz.Params{
//	    Pattern: "#,###.0##",
//	    Min:     "-54,321.01",
//	})
//	if err != nil {
//	    return err // *cellz.ConfigError
//	}
//
//	builder := cellz.NewBuilder()
//	in, _ := builder.BuildInputChain(spec)
//	defer in.Close()
//
//	v, err := in.Execute(ctx, "-54,322.02")
//	// err is a *cellz.Violation with Kind == ConstraintViolation and Stage == StageMin
//
// # Stages
//
// Every stage is a Chainable[Cell]. Stages are built with the same adapters
// used for any processor:
//
//   - Apply: a stage that may fail
//   - Transform: a stage that cannot fail
//   - Effect: a side effect that passes the value through
//
// Stages are composed by Sequence, which runs them in order, stops at the first
// failure, and records the failing stage's name on the error path.
//
// # Input and output chains
//
// Input chains run Trim, then one of Default/Optional/Required, then the parse
// stage, then the constraint stages. Output chains run Default/Optional/Required,
// the constraint stages, Trim, and the format stage. Constraint stages are left
// out of output chains built with skipValidation.
//
// # Errors
//
// Chain.Execute reports failures as *Violation values that carry the rejecting
// stage's kind. Use errors.Is with ErrRequired, ErrProcessing or ErrConstraint to
// branch on the category, and StageOf to get the stage:
//
//	if errors.Is(err, cellz.ErrConstraint) && cellz.StageOf(err) == cellz.StageUnique {
//	    // duplicate value
//	}
//
// # Concurrency
//
// Builders and FieldSpecs are immutable and safe to share. Chains hold
// uniqueness memory and must be confined to one read or write pass; build a
// fresh set per session, or call Reset between sessions.
package cellz

import "context"

// Chainable is the interface implemented by every stage and by the connectors
// that compose them.
type Chainable[T any] interface {
	Process(context.Context, T) (T, error)
	Name() Name
}

// Name identifies a stage or connector. Stage names double as stage identity in
// error paths.
type Name = string

// Cell is a single column value flowing through a chain. A nil Cell is the null
// cell: an absent column on input or a missing value on output.
type Cell = any

// Processor is the basic Chainable built by Apply, Transform and Effect.
type Processor[T any] struct {
	fn   func(context.Context, T) (T, error)
	name Name
}

// Process implements Chainable.
func (p Processor[T]) Process(ctx context.Context, data T) (T, error) {
	return p.fn(ctx, data)
}

// Name implements Chainable.
func (p Processor[T]) Name() Name {
	return p.name
}

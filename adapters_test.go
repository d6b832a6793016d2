package cellz

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestApply(t *testing.T) {
	t.Run("Apply Success", func(t *testing.T) {
		parser := Apply("parse", func(_ context.Context, c Cell) (Cell, error) {
			s, ok := c.(string)
			if !ok || s == "" {
				return nil, errors.New("empty cell")
			}
			return s + "_parsed", nil
		})

		if parser.Name() != "parse" {
			t.Errorf("expected name 'parse', got %q", parser.Name())
		}

		result, err := parser.Process(context.Background(), "123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "123_parsed" {
			t.Errorf("expected '123_parsed', got %v", result)
		}
	})

	t.Run("Apply Error", func(t *testing.T) {
		parser := Apply("parse", func(_ context.Context, _ Cell) (Cell, error) {
			return nil, errors.New("empty cell")
		})

		_, err := parser.Process(context.Background(), "")
		if err == nil {
			t.Fatal("expected error for empty cell")
		}

		var cellErr *Error[Cell]
		if !errors.As(err, &cellErr) {
			t.Fatal("expected *Error")
		}
		if !strings.Contains(cellErr.Err.Error(), "empty cell") {
			t.Errorf("unexpected error: %v", err)
		}
		if len(cellErr.Path) != 1 || cellErr.Path[0] != "parse" {
			t.Errorf("expected path [parse], got %v", cellErr.Path)
		}
		if cellErr.InputData != "" {
			t.Errorf("expected input data to be recorded, got %v", cellErr.InputData)
		}
	})

	t.Run("Apply Deadline", func(t *testing.T) {
		parser := Apply("slow", func(ctx context.Context, c Cell) (Cell, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := parser.Process(ctx, "x")
		var cellErr *Error[Cell]
		if !errors.As(err, &cellErr) {
			t.Fatal("expected *Error")
		}
		if !cellErr.IsTimeout() {
			t.Error("expected timeout to be flagged")
		}
	})
}

func TestTransform(t *testing.T) {
	t.Run("Transform Success", func(t *testing.T) {
		upper := Transform("upper", func(_ context.Context, c Cell) Cell {
			return strings.ToUpper(c.(string))
		})

		result, err := upper.Process(context.Background(), "abc")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "ABC" {
			t.Errorf("expected 'ABC', got %v", result)
		}
	})

	t.Run("Transform Panic", func(t *testing.T) {
		upper := Transform("upper", func(_ context.Context, c Cell) Cell {
			return strings.ToUpper(c.(string))
		})

		_, err := upper.Process(context.Background(), 42)
		var cellErr *Error[Cell]
		if !errors.As(err, &cellErr) {
			t.Fatalf("expected *Error from recovered panic, got %v", err)
		}
		if cellErr.Stage() != "upper" {
			t.Errorf("expected stage 'upper', got %q", cellErr.Stage())
		}
	})
}

func TestEffect(t *testing.T) {
	t.Run("Effect Passes Value", func(t *testing.T) {
		var seen Cell
		observe := Effect("observe", func(_ context.Context, c Cell) error {
			seen = c
			return nil
		})

		result, err := observe.Process(context.Background(), int32(5))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != int32(5) || seen != int32(5) {
			t.Errorf("expected value to pass through, got %v and %v", result, seen)
		}
	})

	t.Run("Effect Error", func(t *testing.T) {
		reject := Effect("reject", func(_ context.Context, _ Cell) error {
			return ErrConstraint
		})

		result, err := reject.Process(context.Background(), "x")
		if !errors.Is(err, ErrConstraint) {
			t.Errorf("expected constraint error, got %v", err)
		}
		if result != nil {
			t.Errorf("expected nil result, got %v", result)
		}
	})
}

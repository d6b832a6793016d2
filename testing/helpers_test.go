package testing

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/cellz"
)

func TestMockStage(t *testing.T) {
	ctx := context.Background()

	t.Run("Passes Through By Default", func(t *testing.T) {
		mock := NewMockStage("mock-pass")
		out, err := mock.Process(ctx, "cell")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "cell" {
			t.Errorf("expected 'cell', got %v", out)
		}
	})

	t.Run("Returns Configured Value", func(t *testing.T) {
		mock := NewMockStage("mock-value").WithReturn(int32(7), nil)
		out, err := mock.Process(ctx, "cell")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != int32(7) {
			t.Errorf("expected 7, got %v", out)
		}
	})

	t.Run("Tracks Inputs", func(t *testing.T) {
		mock := NewMockStage("mock-inputs")
		for _, in := range []cellz.Cell{"a", nil, "c"} {
			_, _ = mock.Process(ctx, in)
		}
		AssertCalled(t, mock, 3)
		inputs := mock.Inputs()
		if len(inputs) != 3 || inputs[1] != nil {
			t.Errorf("unexpected inputs %v", inputs)
		}

		mock.Reset()
		AssertCalled(t, mock, 0)
		if len(mock.Inputs()) != 0 {
			t.Error("expected inputs to be cleared")
		}
	})

	t.Run("Violation Stops Sequence", func(t *testing.T) {
		first := NewMockStage("first").WithViolation(cellz.ConstraintViolation, cellz.StageEquals)
		second := NewMockStage("second")
		seq := cellz.NewSequence[cellz.Cell]("f.input", first, second)
		defer seq.Close()

		_, err := seq.Process(ctx, "x")
		if !errors.Is(err, cellz.ErrConstraint) {
			t.Fatalf("expected constraint error, got %v", err)
		}
		AssertViolation(t, err, cellz.ConstraintViolation, cellz.StageEquals)
		AssertCalled(t, second, 0)

		var cellErr *cellz.Error[cellz.Cell]
		if !errors.As(err, &cellErr) {
			t.Fatal("expected *cellz.Error")
		}
		if cellErr.Stage() != "first" {
			t.Errorf("expected stage 'first', got %q", cellErr.Stage())
		}
	})

	t.Run("Panic Is Recovered", func(t *testing.T) {
		mock := NewMockStage("boom").WithPanic("boom")
		seq := cellz.NewSequence[cellz.Cell]("f.input", mock)
		defer seq.Close()

		_, err := seq.Process(ctx, "x")
		if err == nil {
			t.Fatal("expected error from panicking stage")
		}
	})

	t.Run("Wait For Calls", func(t *testing.T) {
		mock := NewMockStage("async")
		go func() {
			time.Sleep(20 * time.Millisecond)
			_, _ = mock.Process(ctx, "late")
		}()
		if !WaitForCalls(mock, 1, time.Second) {
			t.Error("expected the call to arrive")
		}
		if WaitForCalls(mock, 2, 50*time.Millisecond) {
			t.Error("expected the wait to time out")
		}
	})
}

func TestChainAssertions(t *testing.T) {
	spec := cellz.MustNormalize("qty", cellz.Type{Kind: cellz.KindInt}, cellz.Params{
		Pattern: "#,##0",
		Min:     "1",
		Max:     "1,000",
		Unique:  true,
	})

	input, err := cellz.BuildInputChain(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer input.Close()

	AssertStages(t, input,
		cellz.StageRequired,
		cellz.StageParseLocaleNumber,
		cellz.StageUnique,
		cellz.StageRange,
	)
	AssertAccepts(t, input, "1,000", int32(1000))
	AssertRejects(t, input, "1,000", cellz.ConstraintViolation, cellz.StageUnique)
	AssertRejects(t, input, nil, cellz.RequiredValue, cellz.StageRequired)
	AssertRejects(t, input, "many", cellz.ProcessingError, cellz.StageParseLocaleNumber)
	AssertRejects(t, input, "0", cellz.ConstraintViolation, cellz.StageRange)

	output, err := cellz.BuildOutputChain(spec, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer output.Close()

	AssertNoConstraints(t, output)
	AssertStages(t, output, cellz.StageRequired, cellz.StageFormatLocaleNumber)
	AssertAccepts(t, output, int32(5000), "5,000")
}

func TestParallelChain(t *testing.T) {
	spec := cellz.MustNormalize("id", cellz.Type{Kind: cellz.KindLong}, cellz.Params{UniqueHash: true})
	chain, err := cellz.BuildInputChain(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer chain.Close()

	var accepted, rejected int64
	ParallelTest(t, 50, func(id int) {
		// Every value is sent twice; exactly one of each pair is accepted.
		for i := 0; i < 2; i++ {
			_, err := chain.Execute(context.Background(), strconv.Itoa(id))
			if err != nil {
				atomic.AddInt64(&rejected, 1)
			} else {
				atomic.AddInt64(&accepted, 1)
			}
		}
	})

	if accepted != 50 || rejected != 50 {
		t.Errorf("expected 50 accepted and 50 rejected, got %d and %d", accepted, rejected)
	}
}

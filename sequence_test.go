package cellz

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/tracez"
)

// Test name constants.
const (
	testSequence Name = "test"
	upper        Name = "upper"
	trim         Name = "trim"
	nonEmpty     Name = "non_empty"
	double       Name = "double"
	addTen       Name = "add_ten"
	failing      Name = "failing"
	never        Name = "never"
	panicProc    Name = "panic"
)

func TestNewSequence(t *testing.T) {
	seq := NewSequence[string](testSequence)
	defer seq.Close()

	if seq.Len() != 0 {
		t.Errorf("new sequence should be empty, got length %d", seq.Len())
	}
	if seq.Name() != testSequence {
		t.Errorf("expected name %q, got %q", testSequence, seq.Name())
	}
}

func TestSequenceRegister(t *testing.T) {
	seq := NewSequence[string](testSequence)
	defer seq.Close()

	seq.Register(
		Transform(trim, func(_ context.Context, s string) string {
			return strings.TrimSpace(s)
		}),
		Transform(upper, func(_ context.Context, s string) string {
			return strings.ToUpper(s)
		}),
		Effect(nonEmpty, func(_ context.Context, s string) error {
			if s == "" {
				return errors.New("empty string")
			}
			return nil
		}),
	)

	names := seq.Names()
	expected := []Name{trim, upper, nonEmpty}
	if !reflect.DeepEqual(names, expected) {
		t.Errorf("expected names %v, got %v", expected, names)
	}

	result, err := seq.Process(context.Background(), "  hello ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "HELLO" {
		t.Errorf("expected HELLO, got %q", result)
	}
}

func TestSequenceProcess(t *testing.T) {
	t.Run("Stops At First Failure", func(t *testing.T) {
		reached := false
		seq := NewSequence(testSequence,
			Transform(double, func(_ context.Context, n int) int { return n * 2 }),
			Apply(failing, func(_ context.Context, _ int) (int, error) {
				return 0, errors.New("rejected")
			}),
			Effect(never, func(_ context.Context, _ int) error {
				reached = true
				return nil
			}),
		)
		defer seq.Close()

		_, err := seq.Process(context.Background(), 5)
		if err == nil {
			t.Fatal("expected error")
		}
		if reached {
			t.Error("stage after the failure should not run")
		}

		var cellErr *Error[int]
		if !errors.As(err, &cellErr) {
			t.Fatalf("expected *Error, got %T", err)
		}
		if !reflect.DeepEqual(cellErr.Path, []Name{testSequence, failing}) {
			t.Errorf("expected path [test failing], got %v", cellErr.Path)
		}
		if cellErr.InputData != 10 {
			t.Errorf("expected failing stage input 10, got %d", cellErr.InputData)
		}
	})

	t.Run("Canceled Context", func(t *testing.T) {
		seq := NewSequence(testSequence,
			Transform(double, func(_ context.Context, n int) int { return n * 2 }),
		)
		defer seq.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := seq.Process(ctx, 1)
		var cellErr *Error[int]
		if !errors.As(err, &cellErr) {
			t.Fatalf("expected *Error, got %v", err)
		}
		if !cellErr.Canceled || !cellErr.IsCanceled() {
			t.Error("expected canceled error")
		}
	})

	t.Run("Panic Recovery", func(t *testing.T) {
		seq := NewSequence(testSequence,
			Transform(panicProc, func(_ context.Context, _ int) int { panic("boom") }),
		)
		defer seq.Close()

		_, err := seq.Process(context.Background(), 1)
		var cellErr *Error[int]
		if !errors.As(err, &cellErr) {
			t.Fatalf("expected *Error, got %v", err)
		}
		if cellErr.Stage() != panicProc {
			t.Errorf("expected failing stage %q, got %q", panicProc, cellErr.Stage())
		}
	})

	t.Run("Concurrent Use", func(t *testing.T) {
		seq := NewSequence(testSequence,
			Transform(double, func(_ context.Context, n int) int { return n * 2 }),
			Transform(addTen, func(_ context.Context, n int) int { return n + 10 }),
		)
		defer seq.Close()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				got, err := seq.Process(context.Background(), n)
				if err != nil || got != n*2+10 {
					t.Errorf("input %d: got %d, %v", n, got, err)
				}
			}(i)
		}
		wg.Wait()
	})
}

func TestSequenceObservability(t *testing.T) {
	t.Run("Metrics and Spans - Success", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		seq := NewSequence(testSequence,
			Transform(double, func(_ context.Context, n int) int { return n * 2 }),
			Transform(addTen, func(_ context.Context, n int) int { return n + 10 }),
		).WithClock(clock)
		defer seq.Close()

		var spans []tracez.Span
		var spanMu sync.Mutex
		seq.Tracer().OnSpanComplete(func(span tracez.Span) {
			spanMu.Lock()
			spans = append(spans, span)
			spanMu.Unlock()
		})

		result, err := seq.Process(context.Background(), 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != 20 {
			t.Errorf("expected 20, got %d", result)
		}

		if v := seq.Metrics().Counter(SequenceProcessedTotal).Value(); v != 1 {
			t.Errorf("expected 1 processed, got %f", v)
		}
		if v := seq.Metrics().Counter(SequenceSuccessesTotal).Value(); v != 1 {
			t.Errorf("expected 1 success, got %f", v)
		}
		if v := seq.Metrics().Gauge(SequenceStagesCompleted).Value(); v != 2 {
			t.Errorf("expected 2 stages completed, got %f", v)
		}

		spanMu.Lock()
		defer spanMu.Unlock()
		if len(spans) != 3 {
			t.Errorf("expected 3 spans (1 main + 2 stages), got %d", len(spans))
		}
		for _, span := range spans {
			if span.Name == SequenceStageSpan {
				if _, ok := span.Tags[SequenceTagProcessorName]; !ok {
					t.Error("stage span missing processor_name tag")
				}
			}
		}
	})

	t.Run("Metrics - Failure", func(t *testing.T) {
		seq := NewSequence(testSequence,
			Apply(failing, func(_ context.Context, _ int) (int, error) {
				return 0, errors.New("no")
			}),
		)
		defer seq.Close()

		if _, err := seq.Process(context.Background(), 1); err == nil {
			t.Fatal("expected error")
		}
		if v := seq.Metrics().Counter(SequenceFailuresTotal).Value(); v != 1 {
			t.Errorf("expected 1 failure, got %f", v)
		}
	})

	t.Run("Hooks fire on stage events", func(t *testing.T) {
		seq := NewSequence(testSequence,
			Transform(double, func(_ context.Context, n int) int { return n * 2 }),
			Apply(failing, func(_ context.Context, _ int) (int, error) {
				return 0, errors.New("no")
			}),
		)
		defer seq.Close()

		var mu sync.Mutex
		var events []SequenceEvent
		if err := seq.OnStageComplete(func(_ context.Context, e SequenceEvent) error {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("hook registration failed: %v", err)
		}

		_, _ = seq.Process(context.Background(), 1)

		// Wait for async hooks to fire
		time.Sleep(50 * time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		if len(events) != 2 {
			t.Fatalf("expected 2 stage events, got %d", len(events))
		}
		for _, e := range events {
			switch e.StageName {
			case double:
				if !e.Success {
					t.Error("double should succeed")
				}
			case failing:
				if e.Success || e.Error == nil {
					t.Error("failing stage should report its error")
				}
			default:
				t.Errorf("unexpected stage %q", e.StageName)
			}
		}
	})
}

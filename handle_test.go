package cellz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestHandle(t *testing.T) {
	t.Run("Success Does Not Trigger Handler", func(t *testing.T) {
		handlerCalled := false
		processor := Transform("success", func(_ context.Context, n int) int {
			return n * 2
		})
		errorHandler := Effect("error-handler", func(_ context.Context, _ *Error[int]) error {
			handlerCalled = true
			return nil
		})

		handle := NewHandle("test-handle", processor, errorHandler)
		defer handle.Close()
		result, err := handle.Process(context.Background(), 5)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != 10 {
			t.Errorf("expected 10, got %d", result)
		}
		if handlerCalled {
			t.Error("error handler should not be called on success")
		}
	})

	t.Run("Error Triggers Handler", func(t *testing.T) {
		expectedErr := errors.New("processor failed")
		var capturedErr *Error[int]

		processor := Apply("failing", func(_ context.Context, _ int) (int, error) {
			return 0, expectedErr
		})
		errorHandler := Effect("error-handler", func(_ context.Context, err *Error[int]) error {
			capturedErr = err
			return nil
		})

		handle := NewHandle("test-handle", processor, errorHandler)
		defer handle.Close()
		_, err := handle.Process(context.Background(), 5)

		if !errors.Is(err, expectedErr) {
			t.Fatalf("expected original error, got %v", err)
		}
		if capturedErr == nil {
			t.Fatal("handler should have received error")
		}
		if len(capturedErr.Path) != 2 || capturedErr.Path[0] != "test-handle" || capturedErr.Path[1] != "failing" {
			t.Errorf("expected path [test-handle failing], got %v", capturedErr.Path)
		}
		if v := handle.Metrics().Counter(HandleErrorsTotal).Value(); v != 1 {
			t.Errorf("expected 1 handled error, got %f", v)
		}
	})

	t.Run("Handler Error Does Not Replace Original", func(t *testing.T) {
		processorErr := errors.New("processor failed")

		processor := Apply("failing", func(_ context.Context, _ int) (int, error) {
			return 0, processorErr
		})
		errorHandler := Apply("error-handler", func(_ context.Context, err *Error[int]) (*Error[int], error) {
			return err, errors.New("handler failed")
		})

		handle := NewHandle("test-handle", processor, errorHandler)
		defer handle.Close()
		_, err := handle.Process(context.Background(), 5)

		if !errors.Is(err, processorErr) {
			t.Fatalf("expected processor error, got %v", err)
		}
		if v := handle.Metrics().Counter(HandleHandlerErrors).Value(); v != 1 {
			t.Errorf("expected 1 handler error, got %f", v)
		}
	})

	t.Run("Plain Error Is Wrapped", func(t *testing.T) {
		plain := Processor[int]{
			name: "plain",
			fn: func(_ context.Context, _ int) (int, error) {
				return 0, errors.New("plain failure")
			},
		}
		var captured *Error[int]
		handle := NewHandle("test-handle", Chainable[int](plain), Chainable[*Error[int]](Effect("capture", func(_ context.Context, e *Error[int]) error {
			captured = e
			return nil
		})))
		defer handle.Close()

		_, err := handle.Process(context.Background(), 1)
		var cellErr *Error[int]
		if !errors.As(err, &cellErr) {
			t.Fatalf("expected *Error, got %T", err)
		}
		if captured != cellErr {
			t.Error("handler should receive the returned error")
		}
	})

	t.Run("Concurrent Safety", func(t *testing.T) {
		var errorCount int32
		processor := Apply("sometimes-fail", func(_ context.Context, n int) (int, error) {
			if n%2 == 0 {
				return 0, errors.New("even number")
			}
			return n, nil
		})
		errorHandler := Effect("count-errors", func(_ context.Context, _ *Error[int]) error {
			atomic.AddInt32(&errorCount, 1)
			return nil
		})

		handle := NewHandle("test-handle", processor, errorHandler)
		defer handle.Close()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, _ = handle.Process(context.Background(), n)
			}(i)
		}
		wg.Wait()

		if got := atomic.LoadInt32(&errorCount); got != 5 {
			t.Errorf("expected 5 handled errors, got %d", got)
		}
	})

	t.Run("Hooks", func(t *testing.T) {
		processor := Apply("failing", func(_ context.Context, _ int) (int, error) {
			return 0, errors.New("no")
		})
		handle := NewHandle("test-handle", processor, Effect("noop", func(_ context.Context, _ *Error[int]) error {
			return nil
		}))
		defer handle.Close()

		var handled int32
		if err := handle.OnHandled(func(_ context.Context, e HandleEvent) error {
			if e.ProcessorName == "failing" {
				atomic.AddInt32(&handled, 1)
			}
			return nil
		}); err != nil {
			t.Fatalf("hook registration failed: %v", err)
		}

		_, _ = handle.Process(context.Background(), 1)
		time.Sleep(50 * time.Millisecond)

		if got := atomic.LoadInt32(&handled); got != 1 {
			t.Errorf("expected 1 handled event, got %d", got)
		}
	})
}

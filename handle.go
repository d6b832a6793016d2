package cellz

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Handle connector.
const (
	// Metrics.
	HandleProcessedTotal = metricz.Key("handle.processed.total")
	HandleErrorsTotal    = metricz.Key("handle.errors.total")
	HandleHandlerErrors  = metricz.Key("handle.handler.errors.total")

	// Spans.
	HandleProcessSpan = tracez.Key("handle.process")
	HandleErrorSpan   = tracez.Key("handle.error")

	// Tags.
	HandleTagHasError     = tracez.Tag("handle.has_error")
	HandleTagHandlerError = tracez.Tag("handle.handler_error")

	// Hook event keys.
	HandleEventError        = hookz.Key("handle.error")
	HandleEventHandled      = hookz.Key("handle.handled")
	HandleEventHandlerError = hookz.Key("handle.handler_error")
)

// HandleEvent is emitted via hookz when the wrapped processor fails, when the
// error handler succeeds, and when the error handler itself fails.
type HandleEvent struct {
	Name          Name          // Connector name
	ProcessorName Name          // Name of the processor that failed
	Error         error         // The original error
	HandlerName   Name          // Name of the error handler
	HandlerError  error         // Error from handler (if any)
	InputData     interface{}   // The input data that caused the error
	Duration      time.Duration // How long the error handling took
	Timestamp     time.Time     // When the event occurred
}

// Handle observes failures of a wrapped processor. When the processor fails,
// the *Error is passed to the error handler (for logging or recording a
// violation) and the original error is returned unchanged. Handler failures
// are counted and emitted as events but never replace the original error.
//
// Sessions wrap every column chain in a Handle so rejected cells are logged
// with their column and stage:
//
//	logged := cellz.NewHandle("price", chain,
//	    cellz.Effect("log", func(_ context.Context, e *cellz.Error[cellz.Cell]) error {
//	        log.WithField("stage", e.Stage()).Warn(e.Err)
//	        return nil
//	    }),
//	)
type Handle[T any] struct {
	processor    Chainable[T]
	errorHandler Chainable[*Error[T]]
	name         Name
	mu           sync.RWMutex
	metrics      *metricz.Registry
	tracer       *tracez.Tracer
	hooks        *hookz.Hooks[HandleEvent]
}

// NewHandle creates a new Handle connector.
func NewHandle[T any](name Name, processor Chainable[T], errorHandler Chainable[*Error[T]]) *Handle[T] {
	metrics := metricz.New()
	metrics.Counter(HandleProcessedTotal)
	metrics.Counter(HandleErrorsTotal)
	metrics.Counter(HandleHandlerErrors)

	return &Handle[T]{
		name:         name,
		processor:    processor,
		errorHandler: errorHandler,
		metrics:      metrics,
		tracer:       tracez.New(),
		hooks:        hookz.New[HandleEvent](),
	}
}

// Process implements the Chainable interface.
func (h *Handle[T]) Process(ctx context.Context, input T) (result T, err error) {
	defer recoverFromPanic(&result, &err, h.name, input)

	h.metrics.Counter(HandleProcessedTotal).Inc()

	ctx, span := h.tracer.StartSpan(ctx, HandleProcessSpan)
	defer func() {
		if err != nil {
			span.SetTag(HandleTagHasError, "true")
		} else {
			span.SetTag(HandleTagHasError, "false")
		}
		span.Finish()
	}()

	h.mu.RLock()
	processor := h.processor
	errorHandler := h.errorHandler
	h.mu.RUnlock()

	result, err = processor.Process(ctx, input)
	if err == nil {
		return result, nil
	}

	h.metrics.Counter(HandleErrorsTotal).Inc()
	_ = h.hooks.Emit(ctx, HandleEventError, HandleEvent{ //nolint:errcheck
		Name:          h.name,
		ProcessorName: processor.Name(),
		Error:         err,
		HandlerName:   errorHandler.Name(),
		InputData:     input,
		Timestamp:     time.Now(),
	})

	var pipeErr *Error[T]
	if errors.As(err, &pipeErr) {
		pipeErr.Path = append([]Name{h.name}, pipeErr.Path...)
	} else {
		pipeErr = &Error[T]{
			Timestamp: time.Now(),
			InputData: input,
			Err:       err,
			Path:      []Name{h.name, processor.Name()},
		}
		err = pipeErr
	}

	errorCtx, errorSpan := h.tracer.StartSpan(ctx, HandleErrorSpan)
	handlerStart := time.Now()
	_, handlerErr := errorHandler.Process(errorCtx, pipeErr)
	event := HandleEvent{
		Name:          h.name,
		ProcessorName: processor.Name(),
		Error:         err,
		HandlerName:   errorHandler.Name(),
		InputData:     input,
		Duration:      time.Since(handlerStart),
		Timestamp:     time.Now(),
	}
	if handlerErr != nil {
		h.metrics.Counter(HandleHandlerErrors).Inc()
		errorSpan.SetTag(HandleTagHandlerError, handlerErr.Error())
		event.HandlerError = handlerErr
		_ = h.hooks.Emit(ctx, HandleEventHandlerError, event) //nolint:errcheck
	} else {
		_ = h.hooks.Emit(ctx, HandleEventHandled, event) //nolint:errcheck
	}
	errorSpan.Finish()

	return result, err
}

// SetErrorHandler replaces the error handler.
func (h *Handle[T]) SetErrorHandler(handler Chainable[*Error[T]]) *Handle[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errorHandler = handler
	return h
}

// Name returns the name of this connector.
func (h *Handle[T]) Name() Name {
	return h.name
}

// Metrics returns the metrics registry for this connector.
func (h *Handle[T]) Metrics() *metricz.Registry {
	return h.metrics
}

// Tracer returns the tracer for this connector.
func (h *Handle[T]) Tracer() *tracez.Tracer {
	return h.tracer
}

// Close shuts down the tracer and hooks.
func (h *Handle[T]) Close() error {
	if h.tracer != nil {
		h.tracer.Close()
	}
	h.hooks.Close()
	return nil
}

// OnError registers a handler called asynchronously when the processor fails.
func (h *Handle[T]) OnError(handler func(context.Context, HandleEvent) error) error {
	_, err := h.hooks.Hook(HandleEventError, handler)
	return err
}

// OnHandled registers a handler called asynchronously after the error handler
// succeeded.
func (h *Handle[T]) OnHandled(handler func(context.Context, HandleEvent) error) error {
	_, err := h.hooks.Hook(HandleEventHandled, handler)
	return err
}

// OnHandlerError registers a handler called asynchronously when the error
// handler itself fails.
func (h *Handle[T]) OnHandlerError(handler func(context.Context, HandleEvent) error) error {
	_, err := h.hooks.Hook(HandleEventHandlerError, handler)
	return err
}

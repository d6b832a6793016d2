// Package testing provides test utilities for code built on cellz chains.
//
// It includes a mock stage, assertions on chain shape and on the violations a
// chain raises, and a helper for exercising chains from many goroutines.
//
// Example usage:
//
//	func TestPriceColumn(t *testing.T) {
//		spec := cellz.MustNormalize("price", cellz.Type{Kind: cellz.KindDouble}, cellz.Params{Min: "0"})
//		chain, _ := cellz.BuildInputChain(spec)
//
//		cellztest.AssertStages(t, chain, cellz.StageRequired, cellz.StageParseNumber, cellz.StageMin)
//		cellztest.AssertAccepts(t, chain, "1.5", 1.5)
//		cellztest.AssertRejects(t, chain, "-1", cellz.ConstraintViolation, cellz.StageMin)
//	}
package testing

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zoobzio/cellz"
)

// MockStage is a configurable cellz.Chainable[cellz.Cell]. It records every
// cell it sees and returns the configured result, or passes the cell through
// when none is configured.
type MockStage struct { //nolint:govet // fieldalignment: Test helper struct optimized for functionality over memory efficiency
	name       string
	callCount  int64
	mu         sync.RWMutex
	inputs     []cellz.Cell
	returnVal  cellz.Cell
	returnErr  error
	configured bool
	panicMsg   string
}

// NewMockStage creates a pass-through mock stage.
func NewMockStage(name string) *MockStage {
	return &MockStage{name: name}
}

// WithReturn makes the stage return val and err for every call.
func (m *MockStage) WithReturn(val cellz.Cell, err error) *MockStage {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.returnVal = val
	m.returnErr = err
	m.configured = true
	return m
}

// WithViolation makes the stage reject every cell with a violation of the
// given kind and stage.
func (m *MockStage) WithViolation(kind cellz.ErrorKind, stage cellz.StageKind) *MockStage {
	return m.WithReturn(nil, &cellz.Violation{Kind: kind, Stage: stage, Field: m.name, Message: "mock rejection"})
}

// WithPanic makes the stage panic with msg.
func (m *MockStage) WithPanic(msg string) *MockStage {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicMsg = msg
	return m
}

// Name returns the stage name.
func (m *MockStage) Name() cellz.Name {
	return cellz.Name(m.name)
}

// Process records the cell and returns the configured result.
func (m *MockStage) Process(_ context.Context, c cellz.Cell) (cellz.Cell, error) {
	atomic.AddInt64(&m.callCount, 1)

	m.mu.Lock()
	m.inputs = append(m.inputs, c)
	configured, val, err, panicMsg := m.configured, m.returnVal, m.returnErr, m.panicMsg
	m.mu.Unlock()

	if panicMsg != "" {
		panic(panicMsg)
	}
	if !configured {
		return c, nil
	}
	return val, err
}

// CallCount returns the number of calls.
func (m *MockStage) CallCount() int {
	return int(atomic.LoadInt64(&m.callCount))
}

// Inputs returns a copy of every cell received.
func (m *MockStage) Inputs() []cellz.Cell {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]cellz.Cell(nil), m.inputs...)
}

// Reset clears call tracking.
func (m *MockStage) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	atomic.StoreInt64(&m.callCount, 0)
	m.inputs = nil
}

// Assertion Helpers

// AssertCalled verifies that a mock stage was called exactly n times.
func AssertCalled(t *testing.T, mock *MockStage, n int) {
	t.Helper()
	if got := mock.CallCount(); got != n {
		t.Errorf("expected mock stage %s to be called %d times, but was called %d times", mock.name, n, got)
	}
}

// AssertStages verifies the exact stage list of a chain.
func AssertStages(t *testing.T, chain *cellz.Chain, kinds ...cellz.StageKind) bool {
	t.Helper()
	if len(kinds) == 0 {
		kinds = []cellz.StageKind{}
	}
	got := chain.Kinds()
	if got == nil {
		got = []cellz.StageKind{}
	}
	return assert.Equal(t, kinds, got, "stages of %s", chain.Name())
}

// AssertNoConstraints verifies that a chain holds no constraint stage.
func AssertNoConstraints(t *testing.T, chain *cellz.Chain) bool {
	t.Helper()
	ok := true
	for _, k := range chain.Kinds() {
		if k.Constraint() {
			ok = assert.Fail(t, "unexpected constraint stage", "%s holds %s", chain.Name(), k) && ok
		}
	}
	return ok
}

// AssertViolation verifies that err carries a violation of the given kind
// raised by the given stage.
func AssertViolation(t *testing.T, err error, kind cellz.ErrorKind, stage cellz.StageKind) bool {
	t.Helper()
	v, ok := cellz.ViolationOf(err)
	if !assert.True(t, ok, "expected a violation, got %v", err) {
		return false
	}
	return assert.Equal(t, kind, v.Kind, "violation kind") && assert.Equal(t, stage, v.Stage, "violation stage")
}

// AssertAccepts runs in through the chain and compares the result with want.
func AssertAccepts(t *testing.T, chain *cellz.Chain, in, want cellz.Cell) bool {
	t.Helper()
	got, err := chain.Execute(context.Background(), in)
	if !assert.NoError(t, err, "%s rejected %v", chain.Name(), in) {
		return false
	}
	return assert.Equal(t, want, got, "%s output for %v", chain.Name(), in)
}

// AssertRejects runs in through the chain and verifies the violation.
func AssertRejects(t *testing.T, chain *cellz.Chain, in cellz.Cell, kind cellz.ErrorKind, stage cellz.StageKind) bool {
	t.Helper()
	_, err := chain.Execute(context.Background(), in)
	if !assert.Error(t, err, "%s accepted %v", chain.Name(), in) {
		return false
	}
	return AssertViolation(t, err, kind, stage)
}

// Helper Functions

// WaitForCalls waits for a mock stage to be called at least n times. It
// reports whether the count was reached before the timeout.
func WaitForCalls(mock *MockStage, n int, timeout time.Duration) bool {
	start := time.Now()
	for time.Since(start) < timeout {
		if mock.CallCount() >= n {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// ParallelTest runs testFunc from the given number of goroutines and waits
// for all of them.
func ParallelTest(t *testing.T, goroutines int, testFunc func(int)) {
	t.Helper()

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			testFunc(id)
		}(i)
	}

	wg.Wait()
}

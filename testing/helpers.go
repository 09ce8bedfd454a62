// Package testing provides test utilities and helpers for mapretry-based code.
//
// This package includes scripted transformation functions, chaos functions
// and assertion helpers that check the guarantees an Engine makes: one
// result per item and a bounded number of attempts per item.
//
// Example usage:
//
//	func TestFetchAll(t *testing.T) {
//		mock := mrtesting.NewMockFunc[string, int](clock).
//			WithFailures("b", 1).
//			WithOutput(func(s string) int { return len(s) })
//
//		engine, _ := mapretry.New("fetch", mapretry.FromSlice([]string{"a", "b"}), mock.Func(), opts,
//			mapretry.WithClock(clock))
//		results, _ := engine.Collect(context.Background())
//
//		mrtesting.AssertConservation(t, results, 2)
//		mrtesting.AssertAttempts(t, mock, "b", 2)
//	}
package testing

import (
	"context"
	"errors"
	"fmt"
	mathrand "math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mapretry "github.com/retep007/map-retry"
	"github.com/zoobzio/clockz"
)

// ErrInjected is the error returned by scripted and chaotic failures.
var ErrInjected = errors.New("injected failure")

// MockFunc provides a scripted mapretry.Func. It records every call with a
// timestamp from its clock and fails a configured number of times per input.
type MockFunc[In comparable, Out any] struct { //nolint:govet // fieldalignment: Test helper struct optimized for functionality over memory efficiency
	clock     clockz.Clock
	output    func(In) Out
	failures  map[In]int
	panics    map[In]string
	calls     map[In][]time.Time
	history   []MockCall[In]
	callCount int64
	mu        sync.Mutex
}

// MockCall represents a single call to the mock function.
type MockCall[In any] struct {
	Input     In
	Timestamp time.Time
}

// NewMockFunc creates a mock that succeeds with the zero Out for every input.
// A nil clock selects clockz.RealClock.
func NewMockFunc[In comparable, Out any](clock clockz.Clock) *MockFunc[In, Out] {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &MockFunc[In, Out]{
		clock:    clock,
		failures: make(map[In]int),
		panics:   make(map[In]string),
		calls:    make(map[In][]time.Time),
	}
}

// WithOutput configures how successful calls compute their output.
func (m *MockFunc[In, Out]) WithOutput(fn func(In) Out) *MockFunc[In, Out] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.output = fn
	return m
}

// WithFailures makes the first n calls for input fail with ErrInjected.
// A negative n makes every call for input fail.
func (m *MockFunc[In, Out]) WithFailures(input In, n int) *MockFunc[In, Out] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[input] = n
	return m
}

// WithPanic makes every call for input panic with msg.
func (m *MockFunc[In, Out]) WithPanic(input In, msg string) *MockFunc[In, Out] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics[input] = msg
	return m
}

// Func returns the mock as a mapretry.Func.
func (m *MockFunc[In, Out]) Func() mapretry.Func[In, Out] {
	return m.call
}

func (m *MockFunc[In, Out]) call(_ context.Context, input In) (Out, error) {
	atomic.AddInt64(&m.callCount, 1)

	m.mu.Lock()
	now := m.clock.Now()
	m.calls[input] = append(m.calls[input], now)
	m.history = append(m.history, MockCall[In]{Input: input, Timestamp: now})
	attempt := len(m.calls[input])
	failures, scripted := m.failures[input]
	panicMsg := m.panics[input]
	output := m.output
	m.mu.Unlock()

	if panicMsg != "" {
		panic(panicMsg)
	}

	var out Out
	if scripted && (failures < 0 || attempt <= failures) {
		return out, fmt.Errorf("%w: %v attempt %d", ErrInjected, input, attempt)
	}
	if output != nil {
		out = output(input)
	}
	return out, nil
}

// CallCount returns the number of calls across all inputs.
func (m *MockFunc[In, Out]) CallCount() int {
	return int(atomic.LoadInt64(&m.callCount))
}

// CallsFor returns the timestamps of every call made for input.
func (m *MockFunc[In, Out]) CallsFor(input In) []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]time.Time, len(m.calls[input]))
	copy(calls, m.calls[input])
	return calls
}

// CallHistory returns a copy of all recorded calls in call order.
func (m *MockFunc[In, Out]) CallHistory() []MockCall[In] {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := make([]MockCall[In], len(m.history))
	copy(history, m.history)
	return history
}

// Inputs returns every distinct input the mock has seen.
func (m *MockFunc[In, Out]) Inputs() []In {
	m.mu.Lock()
	defer m.mu.Unlock()
	inputs := make([]In, 0, len(m.calls))
	for in := range m.calls {
		inputs = append(inputs, in)
	}
	return inputs
}

// Flaky fails every n-th call and succeeds otherwise, echoing its input.
// All state lives in the value, so independent Flaky values never interfere.
type Flaky[T any] struct {
	calls int64
	every int64
}

// FailEvery creates a Flaky failing calls n, 2n, 3n and so on.
// FailEvery(2) alternates success and failure, starting with a success.
func FailEvery[T any](n int) *Flaky[T] {
	if n < 1 {
		n = 1
	}
	return &Flaky[T]{every: int64(n)}
}

// Func returns the flaky function as a mapretry.Func.
func (f *Flaky[T]) Func() mapretry.Func[T, T] {
	return func(_ context.Context, v T) (T, error) {
		if atomic.AddInt64(&f.calls, 1)%f.every == 0 {
			var zero T
			return zero, ErrInjected
		}
		return v, nil
	}
}

// Calls returns the number of calls made so far.
func (f *Flaky[T]) Calls() int {
	return int(atomic.LoadInt64(&f.calls))
}

// ChaosFunc wraps a mapretry.Func and randomly injects failures and panics.
type ChaosFunc[In, Out any] struct { //nolint:govet // fieldalignment: Test helper struct optimized for functionality over memory efficiency
	wrapped     mapretry.Func[In, Out]
	failureRate float64
	panicRate   float64
	rng         *mathrand.Rand
	mu          sync.Mutex
	totalCalls  int64
	failedCalls int64
	panicCalls  int64
}

// ChaosConfig holds configuration for chaos testing.
type ChaosConfig struct {
	FailureRate float64 // Probability of returning an error (0.0 to 1.0)
	PanicRate   float64 // Probability of panicking (0.0 to 1.0)
	Seed        int64   // Random seed for reproducible chaos
}

// NewChaosFunc creates a chaos function around wrapped.
func NewChaosFunc[In, Out any](wrapped mapretry.Func[In, Out], config ChaosConfig) *ChaosFunc[In, Out] {
	return &ChaosFunc[In, Out]{
		wrapped:     wrapped,
		failureRate: config.FailureRate,
		panicRate:   config.PanicRate,
		rng:         mathrand.New(mathrand.NewSource(config.Seed)), //nolint:gosec // G404: Test utility uses weak RNG for deterministic chaos scenarios
	}
}

// Func returns the chaos function as a mapretry.Func.
func (c *ChaosFunc[In, Out]) Func() mapretry.Func[In, Out] {
	return func(ctx context.Context, input In) (Out, error) {
		atomic.AddInt64(&c.totalCalls, 1)

		c.mu.Lock()
		roll := c.rng.Float64()
		c.mu.Unlock()

		if roll < c.panicRate {
			atomic.AddInt64(&c.panicCalls, 1)
			panic("chaos panic")
		}
		if roll < c.panicRate+c.failureRate {
			atomic.AddInt64(&c.failedCalls, 1)
			var zero Out
			return zero, ErrInjected
		}
		return c.wrapped(ctx, input)
	}
}

// ChaosStats contains statistics about chaos function behavior.
type ChaosStats struct {
	TotalCalls  int64
	FailedCalls int64
	PanicCalls  int64
}

// Stats returns current chaos statistics.
func (c *ChaosFunc[In, Out]) Stats() ChaosStats {
	return ChaosStats{
		TotalCalls:  atomic.LoadInt64(&c.totalCalls),
		FailedCalls: atomic.LoadInt64(&c.failedCalls),
		PanicCalls:  atomic.LoadInt64(&c.panicCalls),
	}
}

// String returns a human-readable representation of chaos statistics.
func (s ChaosStats) String() string {
	return fmt.Sprintf("ChaosStats{Total: %d, Failed: %d, Panics: %d}",
		s.TotalCalls, s.FailedCalls, s.PanicCalls)
}

// Assertion Helpers

// AssertConservation verifies that results hold exactly one entry for each
// of the n source indexes.
func AssertConservation[In, Out any](t *testing.T, results []mapretry.Result[In, Out], n int) {
	t.Helper()
	if len(results) != n {
		t.Errorf("expected %d results, got %d", n, len(results))
	}
	seen := make(map[int]int, len(results))
	for _, r := range results {
		seen[r.Index]++
	}
	for i := 0; i < n; i++ {
		if seen[i] != 1 {
			t.Errorf("expected exactly one result for index %d, got %d", i, seen[i])
		}
	}
}

// AssertAttempts verifies that input was passed to the mock exactly n times.
func AssertAttempts[In comparable, Out any](t *testing.T, mock *MockFunc[In, Out], input In, n int) {
	t.Helper()
	if got := len(mock.CallsFor(input)); got != n {
		t.Errorf("expected %v to be attempted %d times, got %d", input, n, got)
	}
}

// AssertMaxAttempts verifies that no input was passed to the mock more than max times.
func AssertMaxAttempts[In comparable, Out any](t *testing.T, mock *MockFunc[In, Out], maxAttempts int) {
	t.Helper()
	for _, in := range mock.Inputs() {
		if got := len(mock.CallsFor(in)); got > maxAttempts {
			t.Errorf("expected at most %d attempts for %v, got %d", maxAttempts, in, got)
		}
	}
}

// AssertSpacing verifies that consecutive calls for input are at least
// minGap apart on the mock's clock.
func AssertSpacing[In comparable, Out any](t *testing.T, mock *MockFunc[In, Out], input In, minGap time.Duration) {
	t.Helper()
	calls := mock.CallsFor(input)
	for i := 1; i < len(calls); i++ {
		if gap := calls[i].Sub(calls[i-1]); gap < minGap {
			t.Errorf("attempt %d of %v came %v after the previous one, want at least %v", i+1, input, gap, minGap)
		}
	}
}

// CountOutcomes returns the number of successful and failed results.
func CountOutcomes[In, Out any](results []mapretry.Result[In, Out]) (successes, failures int) {
	for _, r := range results {
		if r.Ok() {
			successes++
		} else {
			failures++
		}
	}
	return successes, failures
}

// WaitForCalls waits for the mock to be called at least n times or until timeout.
func WaitForCalls[In comparable, Out any](mock *MockFunc[In, Out], n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if mock.CallCount() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return mock.CallCount() >= n
}

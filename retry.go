package mapretry

import (
	"context"
	"errors"
	"io"
	"iter"
	"strconv"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Engine maps a fallible Func over a Source and retries failed items.
//
// Engine is pull-based: every call to Next produces exactly one Result and
// every item pulled from the source produces exactly one Result over the
// engine's lifetime. Items whose attempt fails are parked in a delay queue
// and attempted again once the configured minimum delay has passed, up to
// the retry budget. An item that succeeds is never retried; an item that
// runs out of budget is reported with the error of its last attempt.
//
// Each call to Next works through three steps:
//
//  1. If a parked item is due, attempt it. A success is returned at once.
//  2. Pull items from the source and attempt them until one succeeds.
//     Failures are parked.
//  3. Once the source is exhausted, wait for parked items one at a time
//     until one produces a final result.
//
// A failure that exhausts its budget during steps 1 or 2 does not interrupt
// the source; it is returned at the start of the following call, or before
// the engine starts waiting in step 3.
//
// Results are emitted in completion order unless the options request order
// preservation, in which case results are buffered and released by source
// index.
//
// Engine is not safe for concurrent calls to Next. The Func is never called
// concurrently with itself.
//
// Example:
//
//	opts := mapretry.NewOptionsBuilder().
//	    NumRetries(3).
//	    MinDelay(time.Second).
//	    Finalize()
//
//	engine, err := mapretry.New("fetch-pages", mapretry.FromSlice(urls), fetchPage, opts)
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	for result := range engine.Results(ctx) {
//	    if !result.Ok() {
//	        log.Printf("giving up on %s: %v", result.Input, result.Err)
//	    }
//	}
//
// # Observability
//
// Metrics:
//   - mapretry.pulled.total: Counter of items pulled from the source
//   - mapretry.attempts.total: Counter of calls to the Func
//   - mapretry.successes.total: Counter of successful attempts
//   - mapretry.failures.total: Counter of failed attempts
//   - mapretry.retries.scheduled.total: Counter of items parked for retry
//   - mapretry.exhausted.total: Counter of items that ran out of budget
//   - mapretry.emitted.total: Counter of results returned by Next
//   - mapretry.queue.depth: Gauge of parked items
//   - mapretry.reorder.buffered: Gauge of results held for ordering
//
// Traces:
//   - mapretry.attempt: Span for each call to the Func
//
// Events (via hooks):
//   - mapretry.success: Fired when an attempt succeeds
//   - mapretry.retry_scheduled: Fired when a failed item is parked
//   - mapretry.exhausted: Fired when an item runs out of retries
type Engine[In, Out any] struct {
	source  Source[In]
	fn      Func[In, Out]
	queue   RetryQueue[retryItem[In]]
	clock   clockz.Clock
	logger  *zap.Logger
	reorder *reorderBuffer[In, Out]
	name    Name
	held    []Result[In, Out]
	err     error
	opts    Options
	delay   time.Duration
	pulled  int
	drained bool

	// Observability
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[Event]
}

// retryItem is a parked item together with its remaining budget.
type retryItem[T any] struct {
	value     T
	index     int
	attempts  int
	remaining uint8
}

// EngineOption configures an Engine at construction.
type EngineOption func(*engineConfig)

type engineConfig struct {
	clock  clockz.Clock
	logger *zap.Logger
}

// WithClock sets the clock used for eligibility times and waits.
// Tests pass a clockz.FakeClock to control retry timing.
func WithClock(clock clockz.Clock) EngineOption {
	return func(c *engineConfig) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets the logger for retry and exhaustion messages.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(c *engineConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates an Engine mapping fn over source.
// It returns ErrMissingDelay when opts allow retries without a delay.
func New[In, Out any](name Name, source Source[In], fn Func[In, Out], opts Options, options ...EngineOption) (*Engine[In, Out], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if source == nil || fn == nil {
		return nil, errors.New("mapretry: source and func are required")
	}

	cfg := engineConfig{
		clock:  clockz.RealClock,
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		opt(&cfg)
	}

	metrics := metricz.New()
	metrics.Counter(EnginePulledTotal)
	metrics.Counter(EngineAttemptsTotal)
	metrics.Counter(EngineSuccessesTotal)
	metrics.Counter(EngineFailuresTotal)
	metrics.Counter(EngineRetriesTotal)
	metrics.Counter(EngineExhaustedTotal)
	metrics.Counter(EngineEmittedTotal)
	metrics.Gauge(EngineQueueDepth)
	metrics.Gauge(EngineReorderBufferLength)

	delay, _ := opts.MinDelay()
	e := &Engine[In, Out]{
		source:  source,
		fn:      fn,
		queue:   NewDelayQueue[retryItem[In]](cfg.clock),
		clock:   cfg.clock,
		logger:  cfg.logger.With(zap.String("engine", name)),
		name:    name,
		opts:    opts,
		delay:   delay,
		metrics: metrics,
		tracer:  tracez.New(),
		hooks:   hookz.New[Event](),
	}
	if opts.PreserveOrder() {
		e.reorder = newReorderBuffer[In, Out]()
	}
	return e, nil
}

// Next produces the next result. It returns ErrDone once every item has
// been accounted for, and ctx.Err() if ctx ends while waiting for a parked
// item; in that case no item is lost and Next may be called again.
func (e *Engine[In, Out]) Next(ctx context.Context) (Result[In, Out], error) {
	if e.reorder == nil {
		r, err := e.next(ctx)
		if err != nil {
			return r, e.fail(err)
		}
		e.metrics.Counter(EngineEmittedTotal).Inc()
		return r, nil
	}

	for {
		if r, ok := e.reorder.release(); ok {
			e.metrics.Gauge(EngineReorderBufferLength).Set(float64(e.reorder.len()))
			e.metrics.Counter(EngineEmittedTotal).Inc()
			return r, nil
		}
		r, err := e.next(ctx)
		if err != nil {
			return r, e.fail(err)
		}
		e.reorder.add(r)
		e.metrics.Gauge(EngineReorderBufferLength).Set(float64(e.reorder.len()))
	}
}

func (e *Engine[In, Out]) next(ctx context.Context) (Result[In, Out], error) {
	if r, ok := e.popHeld(); ok {
		return r, nil
	}

	// Serve a due retry first.
	if it, ok := e.queue.TryPop(); ok {
		e.updateQueueDepth()
		if r, final := e.attempt(ctx, it, PhaseRetry); final {
			if r.Ok() {
				return r, nil
			}
			e.held = append(e.held, r)
		}
	}

	// Advance the source.
	for !e.drained {
		value, ok := e.source.Next()
		if !ok {
			e.drained = true
			break
		}
		e.metrics.Counter(EnginePulledTotal).Inc()
		it := retryItem[In]{
			value:     value,
			index:     e.pulled,
			remaining: e.opts.NumRetries(),
		}
		e.pulled++
		if r, final := e.attempt(ctx, it, PhasePrimary); final {
			if r.Ok() {
				return r, nil
			}
			e.held = append(e.held, r)
		}
	}

	if r, ok := e.popHeld(); ok {
		return r, nil
	}

	// Drain the queue, waiting for each entry to become due.
	for e.queue.Len() > 0 {
		it, err := e.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueEmpty) {
				break
			}
			var zero Result[In, Out]
			return zero, err
		}
		e.updateQueueDepth()
		if r, final := e.attempt(ctx, it, PhaseDrain); final {
			return r, nil
		}
	}

	var zero Result[In, Out]
	return zero, ErrDone
}

// attempt calls the Func once for it. It reports true when the returned
// result is final for the item; otherwise the item has been parked again.
func (e *Engine[In, Out]) attempt(ctx context.Context, it retryItem[In], phase Phase) (Result[In, Out], bool) {
	it.attempts++

	ctx, span := e.tracer.StartSpan(ctx, EngineAttemptSpan)
	defer span.Finish()
	span.SetTag(EngineTagName, e.name)
	span.SetTag(EngineTagIndex, strconv.Itoa(it.index))
	span.SetTag(EngineTagAttempt, strconv.Itoa(it.attempts))
	span.SetTag(EngineTagPhase, string(phase))

	e.metrics.Counter(EngineAttemptsTotal).Inc()
	start := e.clock.Now()
	out, err := invoke(ctx, e.name, e.fn, duplicate(it.value))
	elapsed := e.clock.Since(start)

	result := Result[In, Out]{
		Input:    it.value,
		Value:    out,
		Err:      err,
		Index:    it.index,
		Attempts: it.attempts,
	}
	event := Event{
		Name:      e.name,
		Phase:     phase,
		Error:     err,
		Index:     it.index,
		Attempt:   it.attempts,
		Duration:  elapsed,
		Timestamp: e.clock.Now(),
	}

	if err == nil {
		e.metrics.Counter(EngineSuccessesTotal).Inc()
		span.SetTag(EngineTagSuccess, "true")
		_ = e.hooks.Emit(ctx, EngineEventSuccess, event) //nolint:errcheck
		return result, true
	}

	e.metrics.Counter(EngineFailuresTotal).Inc()
	span.SetTag(EngineTagSuccess, "false")
	span.SetTag(EngineTagError, err.Error())

	if it.remaining == 0 {
		e.metrics.Counter(EngineExhaustedTotal).Inc()
		e.logger.Warn("item exhausted its retries",
			zap.Int("index", it.index),
			zap.Int("attempts", it.attempts),
			zap.String("phase", string(phase)),
			zap.Error(err),
		)
		_ = e.hooks.Emit(ctx, EngineEventExhausted, event) //nolint:errcheck
		return result, true
	}

	it.remaining--
	e.queue.Push(it, e.delay)
	e.updateQueueDepth()
	e.metrics.Counter(EngineRetriesTotal).Inc()
	e.logger.Debug("retry scheduled",
		zap.Int("index", it.index),
		zap.Int("attempt", it.attempts),
		zap.Uint8("remaining", it.remaining),
		zap.Duration("delay", e.delay),
		zap.Error(err),
	)
	event.Remaining = it.remaining
	event.Delay = e.delay
	_ = e.hooks.Emit(ctx, EngineEventRetryScheduled, event) //nolint:errcheck
	return result, false
}

func (e *Engine[In, Out]) popHeld() (Result[In, Out], bool) {
	if len(e.held) == 0 {
		var zero Result[In, Out]
		return zero, false
	}
	r := e.held[0]
	e.held = e.held[1:]
	return r, true
}

func (e *Engine[In, Out]) updateQueueDepth() {
	e.metrics.Gauge(EngineQueueDepth).Set(float64(e.queue.Len()))
}

func (e *Engine[In, Out]) fail(err error) error {
	if !errors.Is(err, ErrDone) {
		e.err = err
	}
	return err
}

// Results returns an iterator over the remaining results. Iteration stops
// when the engine is done or Next fails; check Err afterwards.
func (e *Engine[In, Out]) Results(ctx context.Context) iter.Seq[Result[In, Out]] {
	return func(yield func(Result[In, Out]) bool) {
		for {
			r, err := e.Next(ctx)
			if err != nil {
				return
			}
			if !yield(r) {
				return
			}
		}
	}
}

// Collect drains the engine and returns every remaining result.
// The error is nil when the engine finished normally.
func (e *Engine[In, Out]) Collect(ctx context.Context) ([]Result[In, Out], error) {
	var results []Result[In, Out]
	for {
		r, err := e.Next(ctx)
		if errors.Is(err, ErrDone) {
			return results, nil
		}
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
}

// Err returns the last error other than ErrDone returned by Next.
func (e *Engine[In, Out]) Err() error {
	return e.err
}

// Pulled returns the number of items pulled from the source so far.
func (e *Engine[In, Out]) Pulled() int {
	return e.pulled
}

// Pending returns the number of items that were pulled but have no
// emitted result yet.
func (e *Engine[In, Out]) Pending() int {
	n := e.queue.Len() + len(e.held)
	if e.reorder != nil {
		n += e.reorder.len()
	}
	return n
}

// Options returns the options the engine was created with.
func (e *Engine[In, Out]) Options() Options {
	return e.opts
}

// Name returns the name of this engine.
func (e *Engine[In, Out]) Name() Name {
	return e.name
}

// Metrics returns the metrics registry for this engine.
func (e *Engine[In, Out]) Metrics() *metricz.Registry {
	return e.metrics
}

// Tracer returns the tracer for this engine.
func (e *Engine[In, Out]) Tracer() *tracez.Tracer {
	return e.tracer
}

// OnSuccess registers a handler for successful attempts.
// Handlers run asynchronously.
func (e *Engine[In, Out]) OnSuccess(handler func(context.Context, Event) error) error {
	_, err := e.hooks.Hook(EngineEventSuccess, handler)
	return err
}

// OnRetryScheduled registers a handler for failed items parked for another attempt.
func (e *Engine[In, Out]) OnRetryScheduled(handler func(context.Context, Event) error) error {
	_, err := e.hooks.Hook(EngineEventRetryScheduled, handler)
	return err
}

// OnExhausted registers a handler for items that ran out of retries.
func (e *Engine[In, Out]) OnExhausted(handler func(context.Context, Event) error) error {
	_, err := e.hooks.Hook(EngineEventExhausted, handler)
	return err
}

// Close releases the source, if it is an io.Closer, and shuts down
// observability components. Parked items are discarded.
func (e *Engine[In, Out]) Close() error {
	var err error
	if closer, ok := e.source.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}
	if e.tracer != nil {
		e.tracer.Close()
	}
	e.hooks.Close()
	return err
}

// Package mapretry maps a fallible function over a sequence and retries
// the items that failed.
//
// # Overview
//
// Batch jobs that call out to networks or services one item at a time tend
// to grow the same hand-written loop: try the item, remember it if it
// failed, come back to it later, give up after a few tries. mapretry packages
// that loop as a pull-based Engine that behaves like a lazy sequence of
// results.
//
// Every item pulled from the source yields exactly one Result: its first
// success, or the error of its last attempt once the retry budget is spent.
// Each item is attempted at most 1 + NumRetries times and never sooner than
// MinDelay after its previous attempt.
//
// # Installation
//
//	go get github.com/retep007/map-retry
//
// Requires Go 1.23+ for range-over-func iterators.
//
// # Configuration
//
// Options are immutable and built with a value builder. Every setter returns
// a new builder:
//
//	opts := mapretry.NewOptionsBuilder().
//	    NumRetries(2).
//	    MinDelay(250 * time.Millisecond).
//	    PreserveOrder(true).
//	    Finalize()
//
// Unset options default to one retry, no delay and completion order.
// Retries require a delay; New rejects options that allow retries without
// one with ErrMissingDelay. A zero delay is allowed and makes failed items
// eligible again immediately.
//
// # Usage
//
//	engine, err := mapretry.New("fetch", mapretry.FromSlice(urls),
//	    func(ctx context.Context, url string) (*Page, error) {
//	        return client.Get(ctx, url)
//	    },
//	    opts,
//	)
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	results, err := engine.Collect(ctx)
//	if err != nil {
//	    return err
//	}
//	if err := mapretry.Failures(results); err != nil {
//	    log.Printf("some pages failed: %v", err)
//	}
//
// Sources are anything implementing Source: slices (FromSlice), iterators
// (FromSeq), channels (FromChannel) or plain functions (SourceFunc).
//
// # Ordering
//
// By default results come out in completion order: a retried item is
// reported after items that succeeded on their first attempt. With
// PreserveOrder set, results are buffered and released in source order,
// at the cost of holding completed results until every earlier item has
// resolved.
//
// # Timing
//
// All eligibility times are read from a clockz.Clock. Pass WithClock with a
// clockz.FakeClock in tests to drive retries deterministically.
//
// # Observability
//
// Each Engine exposes a metricz registry, a tracez tracer with one span per
// attempt, and hookz events for successes, scheduled retries and exhausted
// items. Pass WithLogger to receive zap log entries for retries and
// exhaustion.
package mapretry

package mapretry

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// RetryQueue is the time-ordered holding area the engine parks failed
// items in. Entries become eligible once their delay has elapsed.
type RetryQueue[T any] interface {
	// Push inserts value, eligible at now + delay.
	Push(value T, delay time.Duration)

	// TryPop removes and returns an entry whose delay has already
	// elapsed. It never blocks.
	TryPop() (T, bool)

	// Pop blocks until the earliest entry is eligible and returns it.
	// It returns ErrQueueEmpty when there is nothing to wait for and
	// ctx.Err() when ctx ends first, leaving the entry queued.
	Pop(ctx context.Context) (T, error)

	// Len returns the number of queued entries, eligible or not.
	Len() int
}

// DelayQueue is a RetryQueue backed by a min-heap of eligibility times.
// Entries with equal eligibility times pop in insertion order.
// It is safe for concurrent use.
type DelayQueue[T any] struct {
	clock clockz.Clock
	heap  delayHeap[T]
	seq   uint64
	mu    sync.Mutex
}

// NewDelayQueue creates an empty queue reading time from clock.
// A nil clock selects clockz.RealClock.
func NewDelayQueue[T any](clock clockz.Clock) *DelayQueue[T] {
	if clock == nil {
		clock = clockz.RealClock
	}
	q := &DelayQueue[T]{clock: clock}
	heap.Init(&q.heap)
	return q
}

// Push implements RetryQueue.
func (q *DelayQueue[T]) Push(value T, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	heap.Push(&q.heap, delayEntry[T]{
		value:    value,
		deadline: q.clock.Now().Add(delay),
		seq:      q.seq,
	})
}

// TryPop implements RetryQueue.
func (q *DelayQueue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.heap.Len() == 0 || q.heap[0].deadline.After(q.clock.Now()) {
		var zero T
		return zero, false
	}
	return heap.Pop(&q.heap).(delayEntry[T]).value, true
}

// Pop implements RetryQueue.
func (q *DelayQueue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if q.heap.Len() == 0 {
			q.mu.Unlock()
			return zero, ErrQueueEmpty
		}
		wait := q.heap[0].deadline.Sub(q.clock.Now())
		if wait <= 0 {
			entry := heap.Pop(&q.heap).(delayEntry[T])
			q.mu.Unlock()
			return entry.value, nil
		}
		q.mu.Unlock()

		// The head may change while waiting, so re-check after waking.
		select {
		case <-q.clock.After(wait):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Len implements RetryQueue.
func (q *DelayQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

type delayEntry[T any] struct {
	deadline time.Time
	value    T
	seq      uint64
}

// delayHeap implements heap.Interface ordered by deadline, then seq.
type delayHeap[T any] []delayEntry[T]

func (h delayHeap[T]) Len() int { return len(h) }

func (h delayHeap[T]) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h delayHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *delayHeap[T]) Push(x any) {
	*h = append(*h, x.(delayEntry[T]))
}

func (h *delayHeap[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	var zero delayEntry[T]
	old[n-1] = zero
	*h = old[:n-1]
	return it
}

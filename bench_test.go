package mapretry

import (
	"context"
	"errors"
	"testing"
)

// Focused benchmarks for the engine hot paths.

func benchItems(n int) []int {
	items := make([]int, n)
	for i := range items {
		items[i] = i
	}
	return items
}

// BenchmarkEngine measures a full pass over a batch with varying failure mixes.
func BenchmarkEngine(b *testing.B) {
	ctx := context.Background()
	items := benchItems(1000)
	opts := NewOptionsBuilder().NumRetries(1).MinDelay(0).Finalize()
	errBench := errors.New("benchmark error")

	b.Run("AllSucceed", func(b *testing.B) {
		fn := func(_ context.Context, n int) (int, error) { return n * 2, nil }
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			engine, err := New("bench", FromSlice(items), fn, opts)
			if err != nil {
				b.Fatal(err)
			}
			if _, err := engine.Collect(ctx); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("EveryOtherFails", func(b *testing.B) {
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			calls := 0
			fn := func(_ context.Context, n int) (int, error) {
				calls++
				if calls%2 == 0 {
					return 0, errBench
				}
				return n, nil
			}
			engine, err := New("bench", FromSlice(items), fn, opts)
			if err != nil {
				b.Fatal(err)
			}
			if _, err := engine.Collect(ctx); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("PreserveOrder", func(b *testing.B) {
		ordered := NewOptionsBuilder().NumRetries(1).MinDelay(0).PreserveOrder(true).Finalize()
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			calls := 0
			fn := func(_ context.Context, n int) (int, error) {
				calls++
				if calls%3 == 0 {
					return 0, errBench
				}
				return n, nil
			}
			engine, err := New("bench", FromSlice(items), fn, ordered)
			if err != nil {
				b.Fatal(err)
			}
			if _, err := engine.Collect(ctx); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// BenchmarkDelayQueue measures push and immediate pop of due entries.
func BenchmarkDelayQueue(b *testing.B) {
	q := NewDelayQueue[int](nil)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Push(i, 0)
		if _, ok := q.TryPop(); !ok {
			b.Fatal("expected due entry")
		}
	}
}

// BenchmarkMapRetry measures the one-shot retry over a batch.
func BenchmarkMapRetry(b *testing.B) {
	ctx := context.Background()
	items := benchItems(1000)
	errBench := errors.New("benchmark error")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		calls := 0
		_ = MapRetry(ctx, items, func(_ context.Context, n int) (int, error) {
			calls++
			if calls%2 == 0 {
				return 0, errBench
			}
			return n, nil
		})
	}
}

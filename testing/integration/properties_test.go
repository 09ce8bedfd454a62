package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	mapretry "github.com/retep007/map-retry"
	mrtesting "github.com/retep007/map-retry/testing"
	"github.com/zoobzio/clockz"
)

func keys(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("item-%03d", i)
	}
	return out
}

// drive advances clock until done is closed.
func drive(t *testing.T, clock *clockz.FakeClock, step time.Duration, done <-chan struct{}) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case <-done:
			return
		case <-timeout:
			t.Fatal("test timed out")
		default:
		}
		clock.Advance(step)
		clock.BlockUntilReady()
		time.Sleep(time.Millisecond)
	}
}

func TestConservation(t *testing.T) {
	ctx := context.Background()
	echo := mapretry.Func[string, string](func(_ context.Context, s string) (string, error) { return s, nil })

	for _, seed := range []int64{1, 7, 42, 1234} {
		for _, retries := range []uint8{0, 1, 3} {
			t.Run(fmt.Sprintf("Seed %d Retries %d", seed, retries), func(t *testing.T) {
				chaos := mrtesting.NewChaosFunc(echo, mrtesting.ChaosConfig{
					FailureRate: 0.4,
					PanicRate:   0.05,
					Seed:        seed,
				})
				opts := mapretry.NewOptionsBuilder().NumRetries(retries).MinDelay(0).Finalize()

				engine, err := mapretry.New("conservation", mapretry.FromSlice(keys(100)), chaos.Func(), opts,
					mapretry.WithClock(clockz.NewFakeClock()))
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				defer engine.Close()

				results, err := engine.Collect(ctx)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				mrtesting.AssertConservation(t, results, 100)

				if stats := chaos.Stats(); stats.TotalCalls > int64(100*(1+int(retries))) {
					t.Errorf("expected at most %d calls, got %d", 100*(1+int(retries)), stats.TotalCalls)
				}
			})
		}
	}
}

func TestBoundedAttempts(t *testing.T) {
	ctx := context.Background()
	clock := clockz.NewFakeClock()
	items := keys(20)

	mock := mrtesting.NewMockFunc[string, int](clock)
	for i, k := range items {
		// Item i fails i%6 times: some succeed after retries, some never do.
		mock.WithFailures(k, i%6)
	}

	opts := mapretry.NewOptionsBuilder().NumRetries(3).MinDelay(25 * time.Millisecond).Finalize()
	engine, err := mapretry.New("bounded", mapretry.FromSlice(items), mock.Func(), opts, mapretry.WithClock(clock))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer engine.Close()

	done := make(chan struct{})
	var results []mapretry.Result[string, int]
	go func() {
		defer close(done)
		results, err = engine.Collect(ctx)
	}()
	drive(t, clock, 5*time.Millisecond, done)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mrtesting.AssertConservation(t, results, len(items))
	mrtesting.AssertMaxAttempts(t, mock, 4)

	for _, r := range results {
		failures := r.Index % 6
		switch {
		case failures == 0:
			// Success precedence: never queued, one attempt.
			if !r.Ok() || r.Attempts != 1 {
				t.Errorf("%s: expected first-try success, got %+v", r.Input, r)
			}
			mrtesting.AssertAttempts(t, mock, r.Input, 1)
		case failures <= 3:
			if !r.Ok() || r.Attempts != failures+1 {
				t.Errorf("%s: expected success after %d attempts, got %+v", r.Input, failures+1, r)
			}
			mrtesting.AssertAttempts(t, mock, r.Input, failures+1)
		default:
			// Exhaustion terminality: the last failure is the only result.
			if r.Ok() || r.Attempts != 4 {
				t.Errorf("%s: expected failure after 4 attempts, got %+v", r.Input, r)
			}
			mrtesting.AssertAttempts(t, mock, r.Input, 4)
		}
		mrtesting.AssertSpacing(t, mock, r.Input, 25*time.Millisecond)
	}
}

func TestAlternatingExample(t *testing.T) {
	ctx := context.Background()
	clock := clockz.NewFakeClock()
	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	flaky := mrtesting.FailEvery[int](2)

	opts := mapretry.NewOptionsBuilder().NumRetries(1).MinDelay(time.Second).Finalize()
	engine, err := mapretry.New("alternating", mapretry.FromSlice(items), flaky.Func(), opts, mapretry.WithClock(clock))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer engine.Close()

	done := make(chan struct{})
	var results []mapretry.Result[int, int]
	go func() {
		defer close(done)
		results, err = engine.Collect(ctx)
	}()

	// Start the clock only once every item had its first attempt.
	deadline := time.Now().Add(time.Second)
	for flaky.Calls() < len(items) {
		if time.Now().After(deadline) {
			t.Fatal("primary pass did not finish")
		}
		time.Sleep(time.Millisecond)
	}
	drive(t, clock, time.Second, done)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mrtesting.AssertConservation(t, results, len(items))
	ok, failed := mrtesting.CountOutcomes(results)
	if ok != 8 || failed != 2 {
		t.Errorf("expected 8 successes and 2 failures, got %d and %d", ok, failed)
	}
	if err := mapretry.Failures(results); err == nil {
		t.Error("expected combined failures")
	}
}

func TestPreserveOrderUnderChaos(t *testing.T) {
	ctx := context.Background()
	echo := mapretry.Func[string, string](func(_ context.Context, s string) (string, error) { return s, nil })
	chaos := mrtesting.NewChaosFunc(echo, mrtesting.ChaosConfig{FailureRate: 0.5, Seed: 99})

	opts := mapretry.NewOptionsBuilder().
		NumRetries(2).
		MinDelay(0).
		PreserveOrder(true).
		Finalize()
	engine, err := mapretry.New("ordered", mapretry.FromSlice(keys(50)), chaos.Func(), opts,
		mapretry.WithClock(clockz.NewFakeClock()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer engine.Close()

	i := 0
	for r := range engine.Results(ctx) {
		if r.Index != i {
			t.Fatalf("position %d: got index %d", i, r.Index)
		}
		if r.Input != fmt.Sprintf("item-%03d", i) {
			t.Errorf("position %d: got input %s", i, r.Input)
		}
		i++
	}
	if engine.Err() != nil {
		t.Fatalf("unexpected error: %v", engine.Err())
	}
	if i != 50 {
		t.Errorf("expected 50 results, got %d", i)
	}
}

func TestChannelSourceWithRealClock(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := make(chan string)
	go func() {
		defer close(ch)
		for _, k := range keys(5) {
			ch <- k
		}
	}()

	mock := mrtesting.NewMockFunc[string, int](nil).
		WithFailures("item-002", 1).
		WithOutput(func(s string) int { return len(s) })

	opts := mapretry.NewOptionsBuilder().NumRetries(1).MinDelay(10 * time.Millisecond).Finalize()
	engine, err := mapretry.New("channel", mapretry.FromChannel(ch), mock.Func(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer engine.Close()

	results, err := engine.Collect(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mrtesting.AssertConservation(t, results, 5)
	if ok, _ := mrtesting.CountOutcomes(results); ok != 5 {
		t.Errorf("expected all items to succeed, got %d", ok)
	}
	mrtesting.AssertSpacing(t, mock, "item-002", 10*time.Millisecond)
}

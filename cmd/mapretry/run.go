package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	mapretry "github.com/retep007/map-retry"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorGray  = "\033[37m"
)

var (
	runItems         int
	runRetries       uint8
	runDelay         time.Duration
	runFailEvery     int
	runPreserveOrder bool
	runVerbose       bool

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Map a flaky operation over synthetic items",
		Long: `Run the retry engine over --items synthetic items with an operation
that fails every --fail-every calls. Each result is printed as it is
produced, followed by a summary.

Exits with status 1 if any item exhausted its retries.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runEngine(ctx)
		},
	}
)

func init() {
	runCmd.Flags().IntVar(&runItems, "items", 10, "Number of items to process")
	runCmd.Flags().Uint8Var(&runRetries, "retries", 1, "Retries allowed per failed item")
	runCmd.Flags().DurationVar(&runDelay, "delay", 100*time.Millisecond, "Minimum delay between attempts of an item")
	runCmd.Flags().IntVar(&runFailEvery, "fail-every", 2, "Fail every n-th call of the operation")
	runCmd.Flags().BoolVar(&runPreserveOrder, "preserve-order", false, "Emit results in input order")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Log retry decisions")
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

// flaky fails every n-th call, counting calls across all items.
func flaky(n int) mapretry.Func[int, string] {
	calls := 0
	return func(_ context.Context, item int) (string, error) {
		calls++
		if n > 0 && calls%n == 0 {
			return "", fmt.Errorf("call %d: simulated failure", calls)
		}
		return fmt.Sprintf("item-%d", item), nil
	}
}

func runEngine(ctx context.Context) error {
	logger, err := newLogger(runVerbose)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	items := make([]int, runItems)
	for i := range items {
		items[i] = i + 1
	}

	opts := mapretry.NewOptionsBuilder().
		NumRetries(runRetries).
		MinDelay(runDelay).
		PreserveOrder(runPreserveOrder).
		Finalize()

	engine, err := mapretry.New("cli-run", mapretry.FromSlice(items), flaky(runFailEvery), opts,
		mapretry.WithLogger(logger))
	if err != nil {
		return err
	}

	start := time.Now()
	var results []mapretry.Result[int, string]
	for r := range engine.Results(ctx) {
		printResult(r)
		results = append(results, r)
	}
	err = multierr.Append(engine.Err(), engine.Close())
	if err != nil {
		return err
	}

	ok := 0
	for _, r := range results {
		if r.Ok() {
			ok++
		}
	}
	metrics := engine.Metrics()
	fmt.Printf("\n%d results in %v: %d succeeded, %d failed\n",
		len(results), time.Since(start).Round(time.Millisecond), ok, len(results)-ok)
	fmt.Printf("%sattempts=%.0f retries=%.0f exhausted=%.0f%s\n", colorGray,
		metrics.Counter(mapretry.EngineAttemptsTotal).Value(),
		metrics.Counter(mapretry.EngineRetriesTotal).Value(),
		metrics.Counter(mapretry.EngineExhaustedTotal).Value(),
		colorReset)

	if failures := mapretry.Failures(results); failures != nil {
		return errors.New("some items exhausted their retries")
	}
	return nil
}

func printResult[In, Out any](r mapretry.Result[In, Out]) {
	if r.Ok() {
		fmt.Printf("%s✓%s #%-3d %v -> %v (attempts: %d)\n", colorGreen, colorReset, r.Index, r.Input, r.Value, r.Attempts)
		return
	}
	fmt.Printf("%s✗%s #%-3d %v: %v (attempts: %d)\n", colorRed, colorReset, r.Index, r.Input, r.Err, r.Attempts)
}

package main

import (
	"context"
	"fmt"

	mapretry "github.com/retep007/map-retry"
	"github.com/spf13/cobra"
)

var (
	compareItems int

	compareCmd = &cobra.Command{
		Use:   "compare",
		Short: "Compare the one-shot retry with the engine",
		Long: `Run the same alternating workload through MapRetry, which retries each
failure once after the first pass, and through the engine with a zero
delay, which retries failures as soon as they are due.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCompare(cmd.Context())
		},
	}
)

func init() {
	compareCmd.Flags().IntVar(&compareItems, "items", 10, "Number of items to process")
}

func runCompare(ctx context.Context) error {
	items := make([]int, compareItems)
	for i := range items {
		items[i] = i + 1
	}

	fmt.Println("MapRetry:")
	for _, r := range mapretry.MapRetry(ctx, items, flaky(2)) {
		printResult(r)
	}

	opts := mapretry.NewOptionsBuilder().NumRetries(1).MinDelay(0).Finalize()
	engine, err := mapretry.New("cli-compare", mapretry.FromSlice(items), flaky(2), opts)
	if err != nil {
		return err
	}
	defer engine.Close()

	results, err := engine.Collect(ctx)
	if err != nil {
		return err
	}
	fmt.Println("\nEngine:")
	for _, r := range results {
		printResult(r)
	}
	return nil
}

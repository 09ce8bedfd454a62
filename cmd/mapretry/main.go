package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:   "mapretry",
		Short: "Retrying sequence transformation playground",
		Long: `mapretry drives the retrying map engine over synthetic workloads.

Use it to see how the retry budget, the minimum delay and order
preservation shape the stream of results produced for a batch of
fallible operations.`,
		Version: version,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(compareCmd)
}

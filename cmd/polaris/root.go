package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "polaris",
	Short: "Polaris - federated inference gateway",
	Long: `Polaris is a federated inference gateway.

It exposes an OpenAI-compatible API and routes each request across a
fleet of inference clusters:
  - Logical model names federated over multiple physical endpoints
  - Health-scored failover with per-target cooldown
  - Streaming proxying with cancellation propagation
  - Asynchronous batch job submission and tracking
  - Per-request usage accounting`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
}

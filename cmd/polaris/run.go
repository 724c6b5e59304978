package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"polaris-hq/polaris/pkg/config"
	"polaris-hq/polaris/pkg/server"
	"polaris-hq/polaris/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	noWatch       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Polaris gateway",
	Long: `Start the Polaris gateway with the specified configuration.

The gateway listens on the configured address and serves the
OpenAI-compatible API, routing each request across the configured
inference endpoints.

Examples:
  # Start with default config
  polaris run

  # Start with custom config
  polaris run --config /etc/polaris/config.yaml

  # Override listen address
  polaris run --listen 0.0.0.0:8080

  # Disable configuration hot reload
  polaris run --no-watch`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.noWatch, "no-watch", false, "disable configuration hot reload")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Logging.Level = runFlags.logLevel
	}

	if _, err := logging.Setup(cfg.Logging); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	watchPath := cfgFile
	if runFlags.noWatch {
		watchPath = ""
	}

	srv, err := server.New(cfg, watchPath)
	if err != nil {
		return err
	}

	return srv.Start(cmd.Context())
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"polaris-hq/polaris/pkg/config"
	"polaris-hq/polaris/pkg/ingest"
	"polaris-hq/polaris/pkg/store"
	"polaris-hq/polaris/pkg/telemetry/logging"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Drain historical request logs into usage metrics",
	Long: `Process every unprocessed request log in the store into usage
metrics rows, then exit.

The live gateway ingests continuously; backfill exists for logs that
accumulated while ingestion was disabled or broken. It is safe to run
against a live database: rows are claimed before processing, so the
running gateway and the backfill never double-count.

Examples:
  # Backfill using the default config
  polaris backfill

  # Backfill a specific database
  polaris backfill --config /etc/polaris/config.yaml`,
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if _, err := logging.Setup(cfg.Logging); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	if cfg.Store.Backend != "sqlite" {
		return fmt.Errorf("backfill requires a persistent store, got backend %q", cfg.Store.Backend)
	}

	st, err := store.NewSQLiteStore(&store.SQLiteConfig{
		Path:         cfg.Store.Path,
		Driver:       cfg.Store.Driver,
		MaxOpenConns: cfg.Store.MaxOpenConns,
		MaxIdleConns: cfg.Store.MaxIdleConns,
		WALMode:      cfg.Store.WALMode,
		BusyTimeout:  cfg.Store.BusyTimeout,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	processor := ingest.NewProcessor(st, &ingest.Config{
		WorkerID:      cfg.Ingest.WorkerID,
		BatchSize:     cfg.Ingest.BatchSize,
		ClaimExpiry:   cfg.Ingest.ClaimExpiry,
		BackfillDelay: cfg.Ingest.BackfillDelay,
	})

	processed, err := processor.Backfill(cmd.Context())
	if err != nil {
		return fmt.Errorf("backfill failed after %d rows: %w", processed, err)
	}

	fmt.Printf("Backfill complete: %d rows processed\n", processed)
	return nil
}

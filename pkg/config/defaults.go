package config

import (
	"fmt"
	"os"
	"time"
)

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// Store defaults
	DefaultStoreBackend      = "sqlite"
	DefaultStorePath         = "data/polaris.db"
	DefaultStoreDriver       = "sqlite3"
	DefaultStoreMaxOpenConns = 10
	DefaultStoreMaxIdleConns = 5
	DefaultStoreBusyTimeout  = 5 * time.Second

	// Routing defaults
	DefaultCooldownWindow = 60 * time.Second

	// Cluster status defaults
	DefaultRefreshInterval = 120 * time.Second
	DefaultStalenessBound  = 5 * time.Minute
	DefaultRefreshTimeout  = 30 * time.Second

	// Batch defaults
	DefaultBatchUserCap      = 2
	DefaultBatchRetention    = 72 * time.Hour
	DefaultBatchPollSchedule = "@every 30s"

	// Ingest defaults
	DefaultIngestBatchSize     = 100
	DefaultIngestInterval      = 10 * time.Second
	DefaultIngestClaimExpiry   = 5 * time.Minute
	DefaultIngestBackfillDelay = 2 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsNamespace = "polaris"
)

// ApplyDefaults fills zero-valued configuration fields with documented
// defaults. It only sets fields that are unset; explicit values are
// never overwritten.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DefaultStoreDriver
	}
	if cfg.Store.MaxOpenConns == 0 {
		cfg.Store.MaxOpenConns = DefaultStoreMaxOpenConns
	}
	if cfg.Store.MaxIdleConns == 0 {
		cfg.Store.MaxIdleConns = DefaultStoreMaxIdleConns
	}
	if cfg.Store.BusyTimeout == 0 {
		cfg.Store.BusyTimeout = DefaultStoreBusyTimeout
	}

	if cfg.Routing.CooldownWindow == 0 {
		cfg.Routing.CooldownWindow = DefaultCooldownWindow
	}

	if cfg.ClusterStatus.RefreshInterval == 0 {
		cfg.ClusterStatus.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.ClusterStatus.StalenessBound == 0 {
		cfg.ClusterStatus.StalenessBound = DefaultStalenessBound
	}
	if cfg.ClusterStatus.RefreshTimeout == 0 {
		cfg.ClusterStatus.RefreshTimeout = DefaultRefreshTimeout
	}

	if cfg.Batch.UserCap == 0 {
		cfg.Batch.UserCap = DefaultBatchUserCap
	}
	if cfg.Batch.Retention == 0 {
		cfg.Batch.Retention = DefaultBatchRetention
	}
	if cfg.Batch.PollSchedule == "" {
		cfg.Batch.PollSchedule = DefaultBatchPollSchedule
	}

	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = DefaultIngestBatchSize
	}
	if cfg.Ingest.Interval == 0 {
		cfg.Ingest.Interval = DefaultIngestInterval
	}
	if cfg.Ingest.ClaimExpiry == 0 {
		cfg.Ingest.ClaimExpiry = DefaultIngestClaimExpiry
	}
	if cfg.Ingest.BackfillDelay == 0 {
		cfg.Ingest.BackfillDelay = DefaultIngestBackfillDelay
	}
	if cfg.Ingest.WorkerID == "" {
		cfg.Ingest.WorkerID = defaultWorkerID()
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
}

// defaultWorkerID builds a per-process worker identity. Claims are
// stamped and released by worker id, so two processes sharing one id
// would release each other's claims.
func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "polaris"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

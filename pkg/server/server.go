// Package server assembles the Polaris gateway and runs its HTTP server.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"polaris-hq/polaris/pkg/auth"
	"polaris-hq/polaris/pkg/batch"
	"polaris-hq/polaris/pkg/clusterstatus"
	"polaris-hq/polaris/pkg/config"
	"polaris-hq/polaris/pkg/ingest"
	"polaris-hq/polaris/pkg/proxy/handlers"
	"polaris-hq/polaris/pkg/proxy/middleware"
	"polaris-hq/polaris/pkg/routing"
	"polaris-hq/polaris/pkg/secrets"
	"polaris-hq/polaris/pkg/store"
	"polaris-hq/polaris/pkg/telemetry/metrics"
)

// Server owns every long-running component of the gateway: the HTTP
// server, the cluster status cache, the batch poller, the metrics
// ingestion worker, and the configuration watcher.
type Server struct {
	config      *config.Config
	configPath  string
	relaySecret string

	store     store.Store
	router    *routing.Router
	cache     *clusterstatus.Cache
	validator *auth.Validator
	batches   *batch.Manager
	poller    *batch.Poller
	processor *ingest.Processor
	metrics   *metrics.Collector
	watcher   *config.Watcher

	httpServer   *http.Server
	logger       *slog.Logger
	shutdownChan chan struct{}
	shutdownOnce sync.Once

	mu        sync.RWMutex
	isRunning bool
}

// New builds a gateway from a loaded configuration. configPath, when
// non-empty, enables hot reload of endpoints, federated models, and API
// keys; server-level settings still require a restart.
func New(cfg *config.Config, configPath string) (*Server, error) {
	runtime, err := config.Build(cfg)
	if err != nil {
		return nil, err
	}

	relaySecret, err := secrets.Resolve(cfg.Server.RelaySecret)
	if err != nil {
		return nil, fmt.Errorf("relay secret: %w", err)
	}

	st, err := openStore(&cfg.Store)
	if err != nil {
		return nil, err
	}

	cache := clusterstatus.New(clusterstatus.Config{
		RefreshInterval: cfg.ClusterStatus.RefreshInterval,
		StalenessBound:  cfg.ClusterStatus.StalenessBound,
		RefreshTimeout:  cfg.ClusterStatus.RefreshTimeout,
	}, runtime.Clusters)

	router, err := routing.New(routing.Config{
		CooldownWindow: cfg.Routing.CooldownWindow,
	}, runtime.Topology, cache)
	if err != nil {
		st.Close()
		return nil, err
	}

	collector := metrics.NewCollector(cfg.Metrics, nil)
	collector.RegisterLagGauge(st)

	s := &Server{
		config:       cfg,
		configPath:   configPath,
		relaySecret:  relaySecret,
		store:        st,
		router:       router,
		cache:        cache,
		validator:    auth.NewValidator(runtime.Keys),
		metrics:      collector,
		logger:       slog.Default().With("component", "server"),
		shutdownChan: make(chan struct{}),
	}

	if cfg.Batch.BatchEnabled() {
		s.batches = batch.NewManager(st, router, &batch.Config{
			UserCap:      cfg.Batch.UserCap,
			Retention:    cfg.Batch.Retention,
			PollSchedule: cfg.Batch.PollSchedule,
		})
		s.batches.OnStatusChange = collector.RecordBatchStatus
		s.poller = batch.NewPoller(s.batches)
	}

	s.processor = ingest.NewProcessor(st, &ingest.Config{
		WorkerID:      cfg.Ingest.WorkerID,
		BatchSize:     cfg.Ingest.BatchSize,
		Interval:      cfg.Ingest.Interval,
		ClaimExpiry:   cfg.Ingest.ClaimExpiry,
		BackfillDelay: cfg.Ingest.BackfillDelay,
	})
	s.processor.OnProcessed = collector.RecordIngested

	if configPath != "" {
		watcher, err := config.NewWatcher(config.WatcherConfig{Path: configPath})
		if err != nil {
			st.Close()
			return nil, err
		}
		s.watcher = watcher
	}

	return s, nil
}

// seedBatchGate replays the store's non-terminal batches into the
// admission gate so per-user caps survive a restart.
func (s *Server) seedBatchGate(ctx context.Context) error {
	if s.batches == nil {
		return nil
	}
	if err := s.batches.Gate().SeedFromStore(ctx, s.store); err != nil {
		return fmt.Errorf("failed to seed batch admission gate: %w", err)
	}
	return nil
}

// openStore creates the configured storage backend.
func openStore(cfg *config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "sqlite":
		return store.NewSQLiteStore(&store.SQLiteConfig{
			Path:         cfg.Path,
			Driver:       cfg.Driver,
			MaxOpenConns: cfg.MaxOpenConns,
			MaxIdleConns: cfg.MaxIdleConns,
			WALMode:      cfg.WALMode,
			BusyTimeout:  cfg.BusyTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Start starts every component and blocks until shutdown: a cancelled
// context, an interrupt signal, a fatal server error, or Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	// The gate must reflect batches already in flight before the
	// listener can accept submissions, or a restart resets the cap.
	if err := s.seedBatchGate(ctx); err != nil {
		return err
	}

	s.cache.Start(ctx)

	if s.poller != nil {
		if err := s.poller.Start(ctx); err != nil {
			return fmt.Errorf("failed to start batch poller: %w", err)
		}
	}

	s.processor.Start(ctx)

	if s.watcher != nil {
		go func() {
			if err := s.watcher.Watch(ctx, s.reload); err != nil {
				s.logger.Error("configuration watcher exited", "error", err)
			}
		}()
	}

	s.httpServer = &http.Server{
		Addr:           s.config.Server.ListenAddress,
		Handler:        s.setupRoutes(),
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting gateway server", "address", s.config.Server.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		return s.Shutdown(context.Background())
	}
}

// Shutdown stops the HTTP server first so no new work arrives, then the
// background components, then the store.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		if s.watcher != nil {
			if err := s.watcher.Stop(); err != nil {
				s.logger.Error("error stopping configuration watcher", "error", err)
			}
		}
		if s.poller != nil {
			s.poller.Stop()
		}
		s.processor.Stop()
		s.cache.Stop()

		if err := s.store.Close(); err != nil {
			s.logger.Error("error closing store", "error", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("gateway server stopped")
	})

	return shutdownErr
}

// reload re-reads the configuration file and swaps in the parts that
// support hot reload. A file that fails to load or build leaves the
// running configuration untouched.
func (s *Server) reload() error {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return err
	}

	runtime, err := config.Build(cfg)
	if err != nil {
		return err
	}

	s.router.UpdateTopology(runtime.Topology)
	s.validator.Replace(runtime.Keys)

	s.logger.Info("configuration reloaded",
		"endpoints", len(runtime.Topology.Endpoints),
		"federated_models", len(runtime.Topology.Federated),
		"api_keys", len(runtime.Keys),
	)
	return nil
}

// setupRoutes configures HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	deps := &handlers.Deps{
		Router:  s.router,
		Store:   s.store,
		Batches: s.batches,
		Cache:   s.cache,
		Metrics: s.metrics,
	}

	// API routes pass through relay verification and key validation;
	// health and metrics endpoints are open.
	api := func(h http.Handler) http.Handler {
		return middleware.Relay(s.relaySecret)(middleware.Auth(s.validator)(h))
	}

	batchHandler := handlers.NewBatchHandler(deps)
	mux.Handle("/v1/chat/completions", api(handlers.NewChatHandler(deps)))
	mux.Handle("/v1/completions", api(handlers.NewCompletionsHandler(deps)))
	mux.Handle("/v1/models", api(handlers.NewModelsHandler(deps)))
	mux.Handle("/v1/batches", api(batchHandler))
	mux.Handle("/v1/batches/", api(batchHandler))

	mux.Handle("/healthz", handlers.NewHealthHandler())
	mux.Handle("/readyz", handlers.NewReadyHandler(deps))
	if s.config.Metrics.Enabled {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(handler)
	return handler
}

// IsRunning reports whether Start is active.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

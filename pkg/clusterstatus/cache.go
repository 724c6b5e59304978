// Package clusterstatus maintains a periodically refreshed snapshot of
// model availability across clusters.
//
// The cache is read by many concurrent router invocations and written by
// a single refresh loop. Readers always see an atomically replaced,
// immutable snapshot; a refresh in progress is never observable. The
// snapshot may lag reality by up to the configured staleness bound.
// Routing correctness requires only eventual consistency, and a stale
// entry at worst costs one failover hop.
package clusterstatus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"polaris-hq/polaris/pkg/adaptors"
)

// Snapshot is an immutable view of cluster status at one refresh.
// Never mutate a snapshot after publication.
type Snapshot struct {
	// Clusters maps cluster name to its last collected status
	Clusters map[string]*adaptors.ClusterStatus

	// RefreshedAt is when this snapshot was published
	RefreshedAt time.Time
}

// LiveModels returns every running model entry across all clusters.
func (s *Snapshot) LiveModels() []adaptors.JobEntry {
	var live []adaptors.JobEntry
	for _, cs := range s.Clusters {
		live = append(live, cs.Running...)
	}
	return live
}

// IsModelLive reports whether the given model is running on the given
// cluster according to this snapshot.
func (s *Snapshot) IsModelLive(cluster, model string) bool {
	cs, ok := s.Clusters[cluster]
	if !ok {
		return false
	}
	for _, job := range cs.Running {
		if job.Model == model {
			return true
		}
	}
	return false
}

// Config contains cache tuning parameters.
type Config struct {
	// RefreshInterval is how often the cache polls cluster adaptors.
	// Default: 120s.
	RefreshInterval time.Duration

	// StalenessBound is how old a snapshot may be before readers should
	// treat it as unusable and fall back to optimistic routing.
	// Default: 5m.
	StalenessBound time.Duration

	// RefreshTimeout bounds a single GetJobs call. Default: 30s.
	RefreshTimeout time.Duration
}

// applyDefaults fills zero fields with documented defaults.
func (c *Config) applyDefaults() {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 120 * time.Second
	}
	if c.StalenessBound <= 0 {
		c.StalenessBound = 5 * time.Minute
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = 30 * time.Second
	}
}

// Cache owns the refresh loop and exposes read access to the latest
// snapshot. It is injected into the router; nothing reads it as global
// state.
type Cache struct {
	config   Config
	clusters map[string]adaptors.ClusterAdaptor

	// snapshot is replaced wholesale on every refresh
	snapshot atomic.Pointer[Snapshot]

	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a status cache over the given cluster adaptors
// (cluster name → adaptor). The cache starts with an empty snapshot;
// call Start to begin refreshing, or Refresh for a one-shot fill.
func New(config Config, clusters map[string]adaptors.ClusterAdaptor) *Cache {
	config.applyDefaults()

	c := &Cache{
		config:   config,
		clusters: clusters,
		logger:   slog.Default().With("component", "clusterstatus"),
		stopCh:   make(chan struct{}),
	}
	c.snapshot.Store(&Snapshot{Clusters: map[string]*adaptors.ClusterStatus{}})
	return c
}

// Snapshot returns the latest published snapshot. The returned value is
// immutable and safe to read without locks.
func (c *Cache) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// Stale reports whether the latest snapshot is older than the staleness
// bound. A stale cache makes the router route optimistically instead of
// filtering candidates by liveness.
func (c *Cache) Stale() bool {
	s := c.snapshot.Load()
	if s.RefreshedAt.IsZero() {
		return true
	}
	return time.Since(s.RefreshedAt) > c.config.StalenessBound
}

// Start launches the refresh loop. It performs one immediate refresh so
// the router has data as soon as the gateway is up, then refreshes every
// RefreshInterval until ctx is cancelled or Stop is called.
func (c *Cache) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.Refresh(ctx)

		ticker := time.NewTicker(c.config.RefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Refresh(ctx)
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the refresh loop and waits for it to exit.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// Refresh collects status from every cluster adaptor and publishes a new
// snapshot. A cluster whose GetJobs call fails keeps its previous entry,
// so one unreachable control plane does not blank out routing for the
// whole federation.
func (c *Cache) Refresh(ctx context.Context) {
	previous := c.snapshot.Load()
	next := make(map[string]*adaptors.ClusterStatus, len(c.clusters))

	for name, adaptor := range c.clusters {
		callCtx, cancel := context.WithTimeout(ctx, c.config.RefreshTimeout)
		status, err := adaptor.GetJobs(callCtx)
		cancel()

		if err != nil {
			c.logger.Warn("cluster status refresh failed, keeping previous entry",
				"cluster", name,
				"error", err,
			)
			if prev, ok := previous.Clusters[name]; ok {
				next[name] = prev
			}
			continue
		}

		next[name] = status
		c.logger.Debug("cluster status refreshed",
			"cluster", name,
			"running", len(status.Running),
			"queued", len(status.Queued),
		)
	}

	published := &Snapshot{
		Clusters:    next,
		RefreshedAt: time.Now(),
	}
	c.snapshot.Store(published)

	c.logger.Info("cluster status snapshot published",
		"clusters", len(next),
		"live_models", len(published.LiveModels()),
	)
}

// Package metrics registers and records the gateway's Prometheus
// metrics: request outcomes, failover events, batch job states, and
// metrics-ingestion lag.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"polaris-hq/polaris/pkg/store"
)

// Config controls metric registration.
type Config struct {
	// Enabled turns metric recording on. Disabled collectors record
	// nothing but stay safe to call.
	Enabled bool `yaml:"enabled"`

	// Namespace is the metric name prefix. Default: "polaris".
	Namespace string `yaml:"namespace"`

	// RequestDurationBuckets are histogram bounds in seconds,
	// defaulted for LLM latencies (100ms to 5m, streams included).
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// Collector owns the registry and every gateway metric.
type Collector struct {
	config   Config
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	failoverEvents  *prometheus.CounterVec
	streamsActive   prometheus.Gauge
	batchJobs       *prometheus.CounterVec
	ingestProcessed prometheus.Counter
}

// NewCollector creates a collector over the given registry; a nil
// registry gets a fresh private one.
func NewCollector(cfg Config, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "polaris"
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		cfg.RequestDurationBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 300}
	}

	c := &Collector{
		config:   cfg,
		registry: registry,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "requests_total",
				Help:      "Inference requests by model, serving endpoint, and status code.",
			},
			[]string{"model", "endpoint", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "request_duration_seconds",
				Help:      "End-to-end request duration in seconds.",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"model", "endpoint"},
		),

		failoverEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "failover_events_total",
				Help:      "Candidate failures absorbed by advancing to the next target.",
			},
			[]string{"endpoint"},
		),

		streamsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "streams_active",
				Help:      "Streaming responses currently in flight.",
			},
		),

		batchJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "batch_jobs_total",
				Help:      "Batch job state transitions by resulting status.",
			},
			[]string{"status"},
		),

		ingestProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "ingest_processed_total",
				Help:      "Request log rows converted to metrics records.",
			},
		),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.failoverEvents,
		c.streamsActive,
		c.batchJobs,
		c.ingestProcessed,
	)
	return c
}

// Registry exposes the underlying registry for the /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordRequest records one finished inference call.
func (c *Collector) RecordRequest(model, endpoint, status string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.requestsTotal.WithLabelValues(model, endpoint, status).Inc()
	c.requestDuration.WithLabelValues(model, endpoint).Observe(duration.Seconds())
}

// RecordFailover records one absorbed candidate failure.
func (c *Collector) RecordFailover(endpoint string) {
	if !c.config.Enabled {
		return
	}
	c.failoverEvents.WithLabelValues(endpoint).Inc()
}

// StreamStarted / StreamEnded bracket an in-flight stream.
func (c *Collector) StreamStarted() {
	if c.config.Enabled {
		c.streamsActive.Inc()
	}
}

// StreamEnded marks a stream as finished.
func (c *Collector) StreamEnded() {
	if c.config.Enabled {
		c.streamsActive.Dec()
	}
}

// RecordBatchStatus records a batch job reaching a status.
func (c *Collector) RecordBatchStatus(status string) {
	if !c.config.Enabled {
		return
	}
	c.batchJobs.WithLabelValues(status).Inc()
}

// RecordIngested records n request log rows processed into metrics.
func (c *Collector) RecordIngested(n int) {
	if c.config.Enabled && n > 0 {
		c.ingestProcessed.Add(float64(n))
	}
}

// RegisterLagGauge exposes the ingestion backlog straight from the
// store, sampled at scrape time.
func (c *Collector) RegisterLagGauge(s store.Store) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Name:      "ingest_lag_rows",
			Help:      "Request log rows awaiting metrics ingestion.",
		},
		func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			lag, err := s.IngestionLag(ctx)
			if err != nil {
				return -1
			}
			return float64(lag.UnprocessedCount)
		},
	))
}

package config

import (
	"time"

	"polaris-hq/polaris/pkg/telemetry/logging"
	"polaris-hq/polaris/pkg/telemetry/metrics"
)

// Config is the root configuration structure for the Polaris gateway.
// It contains all configuration sections for the HTTP server, inference
// endpoints, routing, batch processing, storage, and telemetry.
type Config struct {
	// Server contains HTTP server configuration including listen
	// address, timeouts, and the relay secret shared between peer
	// gateways.
	Server ServerConfig `yaml:"server"`

	// Store contains request log and metrics storage configuration.
	Store StoreConfig `yaml:"store"`

	// Routing contains federated router tuning parameters.
	Routing RoutingConfig `yaml:"routing"`

	// ClusterStatus contains cluster status cache tuning parameters.
	ClusterStatus ClusterStatusConfig `yaml:"cluster_status"`

	// Batch contains batch job manager settings.
	Batch BatchConfig `yaml:"batch"`

	// Ingest contains metrics ingestion worker settings.
	Ingest IngestConfig `yaml:"ingest"`

	// Endpoints lists every physical inference endpoint the gateway
	// can route to.
	Endpoints []EndpointConfig `yaml:"endpoints"`

	// FederatedModels lists the logical model names servable by more
	// than one endpoint, with their ordered target lists.
	FederatedModels []FederatedModelConfig `yaml:"federated_models"`

	// APIKeys lists the bearer tokens the gateway accepts and the
	// identities they resolve to.
	APIKeys []APIKeyConfig `yaml:"api_keys"`

	// Logging contains structured logging configuration.
	Logging logging.Config `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics metrics.Config `yaml:"metrics"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port". Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire
	// request, including the body. Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of
	// the response. Streaming responses are exempt because the server
	// flushes chunks as they arrive; this bounds buffered responses
	// only. Default: 0 (no timeout)
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next
	// request when keep-alives are enabled. Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown before in-flight requests are abandoned. Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server
	// will read parsing request headers. Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// RelaySecret is the shared secret that authenticates relay hops
	// between peer gateways. Supports "env:NAME" references. Empty
	// disables relay acceptance.
	RelaySecret string `yaml:"relay_secret"`
}

// StoreConfig contains storage backend configuration.
type StoreConfig struct {
	// Backend selects the storage backend: "sqlite" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// Path is the SQLite database file path.
	// Default: "data/polaris.db"
	Path string `yaml:"path"`

	// Driver selects the SQLite driver: "sqlite3" (cgo) or "sqlite"
	// (pure Go). Default: "sqlite3"
	Driver string `yaml:"driver"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging. Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RoutingConfig contains federated router tuning parameters.
type RoutingConfig struct {
	// CooldownWindow is how long a failed target is penalized before
	// it regains its configured rank. Default: 60s
	CooldownWindow time.Duration `yaml:"cooldown_window"`
}

// ClusterStatusConfig contains cluster status cache tuning parameters.
type ClusterStatusConfig struct {
	// RefreshInterval is how often the cache polls cluster adaptors.
	// Default: 120s
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// StalenessBound is how old a snapshot may be before routing falls
	// back to optimistic mode. Default: 5m
	StalenessBound time.Duration `yaml:"staleness_bound"`

	// RefreshTimeout bounds a single status poll. Default: 30s
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`
}

// BatchConfig contains batch job manager settings.
type BatchConfig struct {
	// Enabled controls whether the batch endpoints are served.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// UserCap is the maximum non-terminal batches per user.
	// Default: 2
	UserCap int `yaml:"user_cap"`

	// Retention is the backend retention window; batches still
	// non-terminal after this long are forced to failed. Default: 72h
	Retention time.Duration `yaml:"retention"`

	// PollSchedule is the cron schedule for status polling.
	// Default: "@every 30s"
	PollSchedule string `yaml:"poll_schedule"`
}

// IngestConfig contains metrics ingestion worker settings.
type IngestConfig struct {
	// WorkerID identifies this worker's claims. Default: hostname plus
	// the process id.
	WorkerID string `yaml:"worker_id"`

	// BatchSize bounds how many rows one cycle claims. Default: 100
	BatchSize int `yaml:"batch_size"`

	// Interval is the pause between live ingestion cycles.
	// Default: 10s
	Interval time.Duration `yaml:"interval"`

	// ClaimExpiry is how long a claim is honored before the row is
	// considered abandoned. Default: 5m
	ClaimExpiry time.Duration `yaml:"claim_expiry"`

	// BackfillDelay is the pause between backfill batches. Default: 2s
	BackfillDelay time.Duration `yaml:"backfill_delay"`
}

// EndpointConfig describes one physical inference endpoint.
type EndpointConfig struct {
	// Slug is the unique endpoint identifier, format
	// "cluster-framework-model".
	Slug string `yaml:"slug"`

	// Cluster is the owning cluster's name.
	Cluster string `yaml:"cluster"`

	// Framework is the serving framework behind the endpoint.
	Framework string `yaml:"framework"`

	// Model is the model name as the backend knows it.
	Model string `yaml:"model"`

	// Type is the adaptor type identifier ("openai_api", "fabric").
	Type string `yaml:"type"`

	// URL is the backend API base URL.
	URL string `yaml:"url"`

	// APIKey is the backend authentication key. Supports "env:NAME"
	// references resolved at load time.
	APIKey string `yaml:"api_key"`

	// Timeout is the per-call timeout. Zero uses the adaptor default.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the maximum number of transport-level retries.
	MaxRetries int `yaml:"max_retries"`

	// AllowedGroups restricts the endpoint to these identity groups
	// (empty means unrestricted).
	AllowedGroups []string `yaml:"allowed_groups"`

	// AllowedDomains restricts the endpoint to these user email
	// domains (empty means unrestricted).
	AllowedDomains []string `yaml:"allowed_domains"`

	// ClusterStatus marks this endpoint's adaptor as the status source
	// for its cluster. At most one endpoint per cluster may set it.
	ClusterStatus bool `yaml:"cluster_status"`

	// Extra holds adaptor-specific configuration keys.
	Extra map[string]string `yaml:"extra"`
}

// FederatedModelConfig describes one logical model and its targets.
type FederatedModelConfig struct {
	// Name is the logical model name clients request.
	Name string `yaml:"name"`

	// Targets is the ordered list of serving endpoints; configuration
	// order is the baseline preference before health scoring.
	Targets []FederatedTargetConfig `yaml:"targets"`
}

// FederatedTargetConfig names one endpoint serving a federated model.
type FederatedTargetConfig struct {
	// Endpoint is the slug of the serving endpoint.
	Endpoint string `yaml:"endpoint"`
}

// APIKeyConfig binds one bearer token to an identity.
type APIKeyConfig struct {
	// Key is the bearer token value. Supports "env:NAME" references.
	Key string `yaml:"key"`

	// Username is the identity the key authenticates as.
	Username string `yaml:"username"`

	// Email is the user's email address; its domain participates in
	// endpoint domain restrictions.
	Email string `yaml:"email"`

	// Groups lists the identity's group memberships.
	Groups []string `yaml:"groups"`

	// Enabled gates the key without deleting it. Default: true
	Enabled *bool `yaml:"enabled"`
}

// BatchEnabled reports whether batch processing is on, honoring the
// default when the field is unset.
func (c *BatchConfig) BatchEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// KeyEnabled reports whether the key is active, honoring the default
// when the field is unset.
func (k *APIKeyConfig) KeyEnabled() bool {
	return k.Enabled == nil || *k.Enabled
}

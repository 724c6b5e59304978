package routing

import (
	"time"

	"polaris-hq/polaris/pkg/adaptors"
)

// Endpoint is one physical inference endpoint: a configured adaptor plus
// its identity triple. Endpoints are configuration data, immutable at
// request time.
type Endpoint struct {
	// Slug is the unique endpoint identifier, format "cluster-framework-model"
	Slug string

	// Cluster is the owning cluster's name
	Cluster string

	// Framework is the serving framework behind the endpoint
	Framework string

	// Model is the model name as the backend knows it
	Model string

	// Adaptor is the backend adaptor serving this endpoint
	Adaptor adaptors.Adaptor
}

// Target is one concrete (cluster, framework, model, endpoint)
// combination backing a federated endpoint.
type Target struct {
	// Cluster is the target cluster's name
	Cluster string

	// Framework is the serving framework on that cluster
	Framework string

	// Model is the model name as the target endpoint's backend knows
	// it, used for liveness checks against the cluster status cache.
	// Configuration loading rejects a target whose endpoint serves a
	// different model than the federated name.
	Model string

	// EndpointSlug references the Endpoint that serves this target
	EndpointSlug string
}

// FederatedEndpoint is a logical model identity servable by more than
// one physical target, enabling load balancing and failover.
type FederatedEndpoint struct {
	// Slug is the federated endpoint's identifier
	Slug string

	// TargetModelName is the logical model name clients request
	TargetModelName string

	// Targets is the ordered list of physical targets; configuration
	// order is the baseline preference before health scoring
	Targets []Target
}

// Topology is the routable universe: all endpoints and federated
// endpoints, built from configuration.
type Topology struct {
	// Endpoints maps endpoint slug to endpoint
	Endpoints map[string]*Endpoint

	// Federated maps logical model name (TargetModelName) to its
	// federated endpoint
	Federated map[string]*FederatedEndpoint
}

// Pin is an explicit cluster/framework selection that bypasses
// federation and health ordering.
type Pin struct {
	// Cluster restricts routing to this cluster
	Cluster string

	// Framework additionally restricts to this framework (optional)
	Framework string
}

// Request carries the routing inputs for one inference call.
type Request struct {
	// RequestID is the request log id, used for correlation
	RequestID string

	// Model is the logical model name the client asked for
	Model string

	// Pin, when set, restricts candidates to the single matching endpoint
	Pin *Pin

	// Allow, when set, excludes candidates the caller may not use
	// (endpoint-level group and domain restrictions)
	Allow func(*Endpoint) bool
}

// Route describes where a call ended up and what it took to get there.
type Route struct {
	// Endpoint is the slug that served the call
	Endpoint string

	// Cluster is the serving cluster
	Cluster string

	// Framework is the serving framework
	Framework string

	// FailoverCount is how many candidates failed before this one
	FailoverCount int

	// Attempted lists every candidate tried, in order
	Attempted []string
}

// Config contains router tuning parameters. All values are operational
// parameters with documented defaults rather than hard-coded constants.
type Config struct {
	// CooldownWindow is how long a failed target is penalized before it
	// regains its configured rank. Default: 60s.
	CooldownWindow time.Duration

	// MaxFailureHistory bounds how many targets the failure tracker
	// remembers. Default: 1024.
	MaxFailureHistory int
}

// applyDefaults fills zero fields with documented defaults.
func (c *Config) applyDefaults() {
	if c.CooldownWindow <= 0 {
		c.CooldownWindow = 60 * time.Second
	}
	if c.MaxFailureHistory <= 0 {
		c.MaxFailureHistory = 1024
	}
}

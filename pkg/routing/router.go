// Package routing resolves logical model names to ranked physical targets
// and applies failover across adaptor calls.
//
// A request is served by the first candidate that answers. A candidate
// that errors or times out is marked failed for a cooldown window and the
// router advances to the next one; the client sees an error only after
// every candidate has been exhausted, as a single aggregate RoutingError.
package routing

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"

	"polaris-hq/polaris/pkg/adaptors"
	"polaris-hq/polaris/pkg/clusterstatus"
)

// Router routes inference calls across the federated topology.
//
// The topology pointer is replaced wholesale on configuration reload, so
// in-flight requests keep the view they started with.
type Router struct {
	topology atomic.Pointer[Topology]

	// cache is the cluster status cache consulted for target liveness
	cache *clusterstatus.Cache

	// tracker penalizes recently failed targets
	tracker *failureTracker

	stats  *atomicStats
	config Config
	logger *slog.Logger
}

// New creates a router over the given topology and status cache.
func New(config Config, topology *Topology, cache *clusterstatus.Cache) (*Router, error) {
	config.applyDefaults()

	tracker, err := newFailureTracker(config.CooldownWindow, config.MaxFailureHistory)
	if err != nil {
		return nil, err
	}

	r := &Router{
		cache:   cache,
		tracker: tracker,
		stats:   newAtomicStats(),
		config:  config,
		logger:  slog.Default().With("component", "routing"),
	}
	r.topology.Store(topology)
	return r, nil
}

// UpdateTopology atomically replaces the routable universe.
// Called by the configuration watcher on reload.
func (r *Router) UpdateTopology(topology *Topology) {
	r.topology.Store(topology)
	r.logger.Info("routing topology updated",
		"endpoints", len(topology.Endpoints),
		"federated", len(topology.Federated),
	)
}

// Adaptor resolves an endpoint slug against the current topology. The
// batch manager uses this, so reloads are visible to later submissions.
func (r *Router) Adaptor(slug string) (adaptors.Adaptor, bool) {
	ep, ok := r.topology.Load().Endpoints[slug]
	if !ok {
		return nil, false
	}
	return ep.Adaptor, true
}

// Stats returns current routing statistics.
func (r *Router) Stats() *Stats {
	return r.stats.Snapshot()
}

// MarkFailed records an out-of-band target failure, starting its
// cooldown. The streaming proxy uses this when a stream dies after the
// router has already handed it off.
func (r *Router) MarkFailed(endpointSlug string) {
	r.tracker.MarkFailed(endpointSlug)
}

// ListModels returns the sorted logical model names the caller can
// reach: every federated model with at least one allowed target, plus
// direct endpoint models with no federated entry. A nil filter lists
// everything.
func (r *Router) ListModels(allow func(*Endpoint) bool) []string {
	topology := r.topology.Load()
	seen := make(map[string]bool)

	for name, fe := range topology.Federated {
		for _, target := range fe.Targets {
			ep, ok := topology.Endpoints[target.EndpointSlug]
			if !ok {
				continue
			}
			if allow == nil || allow(ep) {
				seen[name] = true
				break
			}
		}
	}
	for _, ep := range topology.Endpoints {
		if seen[ep.Model] {
			continue
		}
		if _, federated := topology.Federated[ep.Model]; federated {
			continue
		}
		if allow == nil || allow(ep) {
			seen[ep.Model] = true
		}
	}

	models := make([]string, 0, len(seen))
	for name := range seen {
		models = append(models, name)
	}
	sort.Strings(models)
	return models
}

// Candidates resolves the ranked candidate list for a request without
// invoking anything. Exposed for the models listing and for tests.
//
// Resolution:
//  1. A pinned request maps to the single matching endpoint.
//  2. Otherwise the federated endpoint's targets are filtered to those
//     the status cache reports live, then ordered by health score. When
//     the cache is stale beyond its bound the filter is skipped: routing
//     degrades to optimistic ordering rather than refusing service.
//  3. A model with no federated entry falls back to every endpoint
//     serving that model name directly.
func (r *Router) Candidates(req *Request) ([]*Endpoint, error) {
	topology := r.topology.Load()

	if req.Pin != nil {
		for _, ep := range topology.Endpoints {
			if ep.Model != req.Model || ep.Cluster != req.Pin.Cluster {
				continue
			}
			if req.Pin.Framework != "" && ep.Framework != req.Pin.Framework {
				continue
			}
			if req.Allow != nil && !req.Allow(ep) {
				continue
			}
			return []*Endpoint{ep}, nil
		}
		return nil, &PinNotFoundError{
			Model:     req.Model,
			Cluster:   req.Pin.Cluster,
			Framework: req.Pin.Framework,
		}
	}

	var candidates []*Endpoint
	liveFiltered := false

	if fe, ok := topology.Federated[req.Model]; ok {
		useFilter := !r.cache.Stale()
		snapshot := r.cache.Snapshot()

		for _, target := range fe.Targets {
			ep, ok := topology.Endpoints[target.EndpointSlug]
			if !ok {
				// Validated at config load; a miss here means a reload
				// race, skip rather than fail the request.
				r.logger.Warn("federated target references unknown endpoint",
					"federated", fe.Slug,
					"endpoint", target.EndpointSlug,
				)
				continue
			}
			if useFilter && !snapshot.IsModelLive(target.Cluster, target.Model) {
				r.logger.Debug("target excluded, model not live",
					"endpoint", ep.Slug,
					"cluster", target.Cluster,
					"model", target.Model,
				)
				liveFiltered = true
				continue
			}
			if req.Allow != nil && !req.Allow(ep) {
				continue
			}
			candidates = append(candidates, ep)
		}
	} else {
		for _, ep := range topology.Endpoints {
			if ep.Model != req.Model {
				continue
			}
			if req.Allow != nil && !req.Allow(ep) {
				continue
			}
			candidates = append(candidates, ep)
		}
	}

	if len(candidates) == 0 {
		// a model whose targets were all excluded by the liveness
		// filter exists but is unservable right now; everything else
		// is not found for this caller
		if liveFiltered {
			return nil, &RoutingError{Model: req.Model}
		}
		return nil, &ModelNotFoundError{Model: req.Model}
	}

	return r.tracker.Order(candidates), nil
}

// SubmitTask routes a synchronous inference call, failing over across
// candidates. A target error or timeout starts that target's cooldown
// and advances to the next candidate; exhaustion returns a RoutingError
// aggregating every per-target failure.
func (r *Router) SubmitTask(ctx context.Context, req *Request, task *adaptors.TaskRequest) (*adaptors.TaskResult, *Route, error) {
	r.stats.IncrementTotal()

	candidates, err := r.Candidates(req)
	if err != nil {
		r.stats.IncrementErrors()
		return nil, nil, err
	}

	routingErr := &RoutingError{Model: req.Model}
	attempted := make([]string, 0, len(candidates))

	for _, ep := range candidates {
		if ctx.Err() != nil {
			r.stats.IncrementErrors()
			return nil, nil, ctx.Err()
		}

		attempted = append(attempted, ep.Slug)
		result, err := ep.Adaptor.SubmitTask(ctx, task)
		if err != nil {
			r.failCandidate(req, ep, err, routingErr)
			continue
		}

		route := &Route{
			Endpoint:      ep.Slug,
			Cluster:       ep.Cluster,
			Framework:     ep.Framework,
			FailoverCount: len(routingErr.Failures),
			Attempted:     attempted,
		}
		r.stats.IncrementEndpoint(ep.Slug)
		return result, route, nil
	}

	r.stats.IncrementErrors()
	return nil, nil, routingErr
}

// SubmitStreamingTask routes a streaming inference call. Failure to
// establish the stream is a failover event exactly like a synchronous
// error; once a chunk channel has been handed back, the stream belongs
// to the proxy and mid-stream failures are no longer the router's to
// absorb.
func (r *Router) SubmitStreamingTask(ctx context.Context, req *Request, task *adaptors.TaskRequest, requestLogID string) (<-chan *adaptors.StreamChunk, *Route, error) {
	r.stats.IncrementTotal()

	candidates, err := r.Candidates(req)
	if err != nil {
		r.stats.IncrementErrors()
		return nil, nil, err
	}

	routingErr := &RoutingError{Model: req.Model}
	attempted := make([]string, 0, len(candidates))

	for _, ep := range candidates {
		if ctx.Err() != nil {
			r.stats.IncrementErrors()
			return nil, nil, ctx.Err()
		}

		attempted = append(attempted, ep.Slug)
		chunks, err := ep.Adaptor.SubmitStreamingTask(ctx, task, requestLogID)
		if err != nil {
			r.failCandidate(req, ep, err, routingErr)
			continue
		}

		route := &Route{
			Endpoint:      ep.Slug,
			Cluster:       ep.Cluster,
			Framework:     ep.Framework,
			FailoverCount: len(routingErr.Failures),
			Attempted:     attempted,
		}
		r.stats.IncrementEndpoint(ep.Slug)
		return chunks, route, nil
	}

	r.stats.IncrementErrors()
	return nil, nil, routingErr
}

// failCandidate records one candidate failure: cooldown, stats, log,
// and the aggregate error entry.
func (r *Router) failCandidate(req *Request, ep *Endpoint, err error, routingErr *RoutingError) {
	r.tracker.MarkFailed(ep.Slug)
	r.stats.IncrementFailover()
	routingErr.Failures = append(routingErr.Failures, TargetFailure{
		Endpoint: ep.Slug,
		Err:      err,
	})

	r.logger.Warn("target failed, advancing to next candidate",
		"request_id", req.RequestID,
		"model", req.Model,
		"endpoint", ep.Slug,
		"error", err,
	)
}

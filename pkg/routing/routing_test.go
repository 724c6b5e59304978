package routing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"polaris-hq/polaris/internal/adaptortest"
	"polaris-hq/polaris/pkg/adaptors"
	"polaris-hq/polaris/pkg/clusterstatus"
)

func newTestEndpoint(slug, cluster, framework, model string) (*Endpoint, *adaptortest.MockAdaptor) {
	mock := adaptortest.NewMockAdaptor(slug)
	mock.SetConfig(adaptors.Config{
		Slug:      slug,
		Cluster:   cluster,
		Framework: framework,
		Type:      "mock",
	})
	return &Endpoint{
		Slug:      slug,
		Cluster:   cluster,
		Framework: framework,
		Model:     model,
		Adaptor:   mock,
	}, mock
}

// newTestTopology builds a two-target federated model "llama" backed by
// clusters alpha and beta, in that configured order.
func newTestTopology() (*Topology, *adaptortest.MockAdaptor, *adaptortest.MockAdaptor) {
	epA, mockA := newTestEndpoint("alpha-vllm-llama", "alpha", "vllm", "llama-8b")
	epB, mockB := newTestEndpoint("beta-vllm-llama", "beta", "vllm", "llama-8b")

	topology := &Topology{
		Endpoints: map[string]*Endpoint{
			epA.Slug: epA,
			epB.Slug: epB,
		},
		Federated: map[string]*FederatedEndpoint{
			"llama": {
				Slug:            "llama",
				TargetModelName: "llama",
				Targets: []Target{
					{Cluster: "alpha", Framework: "vllm", Model: "llama-8b", EndpointSlug: epA.Slug},
					{Cluster: "beta", Framework: "vllm", Model: "llama-8b", EndpointSlug: epB.Slug},
				},
			},
		},
	}
	return topology, mockA, mockB
}

// staleCache returns a cache that never refreshed, so the router skips
// the liveness filter.
func staleCache() *clusterstatus.Cache {
	return clusterstatus.New(clusterstatus.Config{}, nil)
}

// liveCache returns a cache whose snapshot reports the given models
// running on the given clusters.
func liveCache(t *testing.T, running map[string][]string) *clusterstatus.Cache {
	t.Helper()

	clusters := make(map[string]adaptors.ClusterAdaptor, len(running))
	for cluster, models := range running {
		mock := adaptortest.NewMockAdaptor(cluster)
		jobs := make([]adaptors.JobEntry, 0, len(models))
		for _, model := range models {
			jobs = append(jobs, adaptors.JobEntry{Model: model, Framework: "vllm"})
		}
		mock.GetJobsFunc = func(ctx context.Context) (*adaptors.ClusterStatus, error) {
			return &adaptors.ClusterStatus{Running: jobs, CollectedAt: time.Now()}, nil
		}
		clusters[cluster] = mock
	}

	cache := clusterstatus.New(clusterstatus.Config{}, clusters)
	cache.Refresh(context.Background())
	return cache
}

func newTestRouter(t *testing.T, topology *Topology, cache *clusterstatus.Cache) *Router {
	t.Helper()
	r, err := New(Config{CooldownWindow: time.Minute}, topology, cache)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestSubmitTaskFirstCandidateServes(t *testing.T) {
	topology, mockA, mockB := newTestTopology()
	router := newTestRouter(t, topology, staleCache())

	result, route, err := router.SubmitTask(context.Background(), &Request{Model: "llama"}, &adaptors.TaskRequest{Model: "llama"})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	if result.Content != "mock response" {
		t.Errorf("content = %q", result.Content)
	}
	if route.Endpoint != "alpha-vllm-llama" {
		t.Errorf("endpoint = %q, want alpha-vllm-llama", route.Endpoint)
	}
	if route.FailoverCount != 0 {
		t.Errorf("failover count = %d, want 0", route.FailoverCount)
	}
	if mockA.TaskCalls() != 1 || mockB.TaskCalls() != 0 {
		t.Errorf("calls = (%d, %d), want (1, 0)", mockA.TaskCalls(), mockB.TaskCalls())
	}
}

func TestSubmitTaskFailsOverToNextCandidate(t *testing.T) {
	topology, mockA, mockB := newTestTopology()
	mockA.SetHealthy(false)
	router := newTestRouter(t, topology, staleCache())

	result, route, err := router.SubmitTask(context.Background(), &Request{Model: "llama"}, &adaptors.TaskRequest{Model: "llama"})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	if result == nil {
		t.Fatal("result is nil")
	}
	if route.Endpoint != "beta-vllm-llama" {
		t.Errorf("endpoint = %q, want beta-vllm-llama", route.Endpoint)
	}
	if route.FailoverCount != 1 {
		t.Errorf("failover count = %d, want 1", route.FailoverCount)
	}
	if want := []string{"alpha-vllm-llama", "beta-vllm-llama"}; len(route.Attempted) != 2 ||
		route.Attempted[0] != want[0] || route.Attempted[1] != want[1] {
		t.Errorf("attempted = %v, want %v", route.Attempted, want)
	}
	if mockB.TaskCalls() != 1 {
		t.Errorf("second candidate calls = %d, want 1", mockB.TaskCalls())
	}
}

func TestSubmitTaskExhaustionAggregatesFailures(t *testing.T) {
	topology, mockA, mockB := newTestTopology()
	mockA.SetHealthy(false)
	mockB.SetHealthy(false)
	router := newTestRouter(t, topology, staleCache())

	_, _, err := router.SubmitTask(context.Background(), &Request{Model: "llama"}, &adaptors.TaskRequest{Model: "llama"})
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}

	var routingErr *RoutingError
	if !errors.As(err, &routingErr) {
		t.Fatalf("error type = %T, want *RoutingError", err)
	}
	if len(routingErr.Failures) != 2 {
		t.Fatalf("failures = %d, want 2", len(routingErr.Failures))
	}
	seen := map[string]bool{}
	for _, f := range routingErr.Failures {
		seen[f.Endpoint] = true
		if f.Err == nil {
			t.Errorf("failure %s has nil cause", f.Endpoint)
		}
	}
	if !seen["alpha-vllm-llama"] || !seen["beta-vllm-llama"] {
		t.Errorf("failures cover %v, want both endpoints", seen)
	}
}

func TestCooldownDemotesFailedTarget(t *testing.T) {
	topology, mockA, _ := newTestTopology()
	router := newTestRouter(t, topology, staleCache())

	// First call fails over from alpha, starting its cooldown.
	mockA.SetHealthy(false)
	if _, _, err := router.SubmitTask(context.Background(), &Request{Model: "llama"}, &adaptors.TaskRequest{Model: "llama"}); err != nil {
		t.Fatalf("first SubmitTask: %v", err)
	}

	// Alpha recovers, but within the cooldown window it ranks last:
	// the next request goes straight to beta without touching alpha.
	mockA.SetHealthy(true)
	callsBefore := mockA.TaskCalls()

	_, route, err := router.SubmitTask(context.Background(), &Request{Model: "llama"}, &adaptors.TaskRequest{Model: "llama"})
	if err != nil {
		t.Fatalf("second SubmitTask: %v", err)
	}
	if route.Endpoint != "beta-vllm-llama" {
		t.Errorf("endpoint = %q, want beta-vllm-llama during cooldown", route.Endpoint)
	}
	if route.FailoverCount != 0 {
		t.Errorf("failover count = %d, want 0", route.FailoverCount)
	}
	if mockA.TaskCalls() != callsBefore {
		t.Errorf("cooled-down target was attempted first")
	}
}

func TestCooldownExpiryRestoresRank(t *testing.T) {
	topology, mockA, _ := newTestTopology()
	router := newTestRouter(t, topology, staleCache())

	mockA.SetHealthy(false)
	if _, _, err := router.SubmitTask(context.Background(), &Request{Model: "llama"}, &adaptors.TaskRequest{Model: "llama"}); err != nil {
		t.Fatalf("first SubmitTask: %v", err)
	}
	mockA.SetHealthy(true)

	// Move the tracker clock past the cooldown window.
	router.tracker.now = func() time.Time {
		return time.Now().Add(2 * time.Minute)
	}

	_, route, err := router.SubmitTask(context.Background(), &Request{Model: "llama"}, &adaptors.TaskRequest{Model: "llama"})
	if err != nil {
		t.Fatalf("second SubmitTask: %v", err)
	}
	if route.Endpoint != "alpha-vllm-llama" {
		t.Errorf("endpoint = %q, want alpha-vllm-llama after cooldown expiry", route.Endpoint)
	}
}

func TestCandidatesLivenessFilter(t *testing.T) {
	topology, _, _ := newTestTopology()

	// Only beta reports the model live.
	cache := liveCache(t, map[string][]string{
		"alpha": {},
		"beta":  {"llama-8b"},
	})
	router := newTestRouter(t, topology, cache)

	candidates, err := router.Candidates(&Request{Model: "llama"})
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Slug != "beta-vllm-llama" {
		t.Errorf("candidates = %v, want [beta-vllm-llama]", slugs(candidates))
	}
}

func TestCandidatesAllFilteredIsRoutingError(t *testing.T) {
	topology, _, _ := newTestTopology()
	cache := liveCache(t, map[string][]string{"alpha": {}, "beta": {}})
	router := newTestRouter(t, topology, cache)

	_, err := router.Candidates(&Request{Model: "llama"})
	var routingErr *RoutingError
	if !errors.As(err, &routingErr) {
		t.Fatalf("error type = %T, want *RoutingError", err)
	}
	var notFound *ModelNotFoundError
	if errors.As(err, &notFound) {
		t.Error("known but unservable model must not report not-found")
	}
}

func TestCandidatesStaleCacheSkipsFilter(t *testing.T) {
	topology, _, _ := newTestTopology()
	router := newTestRouter(t, topology, staleCache())

	candidates, err := router.Candidates(&Request{Model: "llama"})
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(candidates) != 2 {
		t.Errorf("candidates = %v, want both targets with a stale cache", slugs(candidates))
	}
}

func TestCandidatesUnknownModel(t *testing.T) {
	topology, _, _ := newTestTopology()
	router := newTestRouter(t, topology, staleCache())

	_, err := router.Candidates(&Request{Model: "no-such-model"})
	var notFound *ModelNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error type = %T, want *ModelNotFoundError", err)
	}
	if notFound.Model != "no-such-model" {
		t.Errorf("model = %q", notFound.Model)
	}
}

func TestCandidatesPin(t *testing.T) {
	topology, _, _ := newTestTopology()
	router := newTestRouter(t, topology, staleCache())

	candidates, err := router.Candidates(&Request{
		Model: "llama-8b",
		Pin:   &Pin{Cluster: "beta"},
	})
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Slug != "beta-vllm-llama" {
		t.Errorf("candidates = %v, want the pinned endpoint only", slugs(candidates))
	}

	_, err = router.Candidates(&Request{
		Model: "llama-8b",
		Pin:   &Pin{Cluster: "gamma"},
	})
	var pinErr *PinNotFoundError
	if !errors.As(err, &pinErr) {
		t.Fatalf("error type = %T, want *PinNotFoundError", err)
	}
}

func TestCandidatesAllowFilter(t *testing.T) {
	topology, _, _ := newTestTopology()
	router := newTestRouter(t, topology, staleCache())

	candidates, err := router.Candidates(&Request{
		Model: "llama",
		Allow: func(ep *Endpoint) bool { return ep.Cluster != "alpha" },
	})
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Slug != "beta-vllm-llama" {
		t.Errorf("candidates = %v, want [beta-vllm-llama]", slugs(candidates))
	}

	// Everything excluded by access reads as not-found: restricted
	// models do not leak their existence.
	_, err = router.Candidates(&Request{
		Model: "llama",
		Allow: func(*Endpoint) bool { return false },
	})
	var notFound *ModelNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error type = %T, want *ModelNotFoundError", err)
	}
}

func TestDirectFallbackWithoutFederatedEntry(t *testing.T) {
	ep, _ := newTestEndpoint("alpha-vllm-mistral", "alpha", "vllm", "mistral-7b")
	topology := &Topology{
		Endpoints: map[string]*Endpoint{ep.Slug: ep},
		Federated: map[string]*FederatedEndpoint{},
	}
	router := newTestRouter(t, topology, staleCache())

	candidates, err := router.Candidates(&Request{Model: "mistral-7b"})
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Slug != ep.Slug {
		t.Errorf("candidates = %v, want the direct endpoint", slugs(candidates))
	}
}

func TestSubmitStreamingTaskConnectFailureFailsOver(t *testing.T) {
	topology, mockA, mockB := newTestTopology()
	mockA.SubmitStreamingTaskFunc = func(ctx context.Context, req *adaptors.TaskRequest, requestLogID string) (<-chan *adaptors.StreamChunk, error) {
		return nil, fmt.Errorf("connection refused")
	}
	router := newTestRouter(t, topology, staleCache())

	chunks, route, err := router.SubmitStreamingTask(context.Background(), &Request{Model: "llama"}, &adaptors.TaskRequest{Model: "llama", Stream: true}, "req-1")
	if err != nil {
		t.Fatalf("SubmitStreamingTask: %v", err)
	}
	if route.Endpoint != "beta-vllm-llama" || route.FailoverCount != 1 {
		t.Errorf("route = %+v, want beta with one failover", route)
	}

	var content string
	for chunk := range chunks {
		content += chunk.Delta
	}
	if content != "mock stream" {
		t.Errorf("content = %q", content)
	}
	if mockB.StreamCalls() != 1 {
		t.Errorf("beta stream calls = %d, want 1", mockB.StreamCalls())
	}
}

func TestMarkFailedStartsCooldown(t *testing.T) {
	topology, _, _ := newTestTopology()
	router := newTestRouter(t, topology, staleCache())

	router.MarkFailed("alpha-vllm-llama")

	candidates, err := router.Candidates(&Request{Model: "llama"})
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if candidates[0].Slug != "beta-vllm-llama" {
		t.Errorf("first candidate = %q, want beta after out-of-band failure", candidates[0].Slug)
	}
}

func TestUpdateTopologySwapsUniverse(t *testing.T) {
	topology, _, _ := newTestTopology()
	router := newTestRouter(t, topology, staleCache())

	ep, _ := newTestEndpoint("gamma-vllm-phi", "gamma", "vllm", "phi-3")
	router.UpdateTopology(&Topology{
		Endpoints: map[string]*Endpoint{ep.Slug: ep},
		Federated: map[string]*FederatedEndpoint{},
	})

	if _, err := router.Candidates(&Request{Model: "llama"}); err == nil {
		t.Error("old model still routable after topology swap")
	}
	candidates, err := router.Candidates(&Request{Model: "phi-3"})
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Errorf("candidates = %v", slugs(candidates))
	}
}

func TestListModels(t *testing.T) {
	topology, _, _ := newTestTopology()
	ep, _ := newTestEndpoint("alpha-vllm-mistral", "alpha", "vllm", "mistral-7b")
	topology.Endpoints[ep.Slug] = ep
	router := newTestRouter(t, topology, staleCache())

	models := router.ListModels(nil)
	if len(models) != 3 {
		t.Fatalf("models = %v, want 3 entries", models)
	}
	// Sorted: llama (federated), llama-8b and mistral-7b (direct).
	if models[0] != "llama" || models[1] != "llama-8b" || models[2] != "mistral-7b" {
		t.Errorf("models = %v", models)
	}

	restricted := router.ListModels(func(ep *Endpoint) bool { return ep.Cluster == "alpha" })
	for _, m := range restricted {
		if m == "beta-only" {
			t.Errorf("restricted listing leaked %q", m)
		}
	}
	if len(restricted) != 3 {
		// Alpha serves a llama target and both direct models.
		t.Errorf("restricted models = %v, want 3 entries", restricted)
	}
}

func TestStatsCountFailovers(t *testing.T) {
	topology, mockA, _ := newTestTopology()
	mockA.SetHealthy(false)
	router := newTestRouter(t, topology, staleCache())

	if _, _, err := router.SubmitTask(context.Background(), &Request{Model: "llama"}, &adaptors.TaskRequest{Model: "llama"}); err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	stats := router.Stats()
	if stats.TotalRequests != 1 {
		t.Errorf("total = %d, want 1", stats.TotalRequests)
	}
	if stats.FailoverEvents != 1 {
		t.Errorf("failovers = %d, want 1", stats.FailoverEvents)
	}
	if stats.RequestsPerEndpoint["beta-vllm-llama"] != 1 {
		t.Errorf("per-endpoint = %v", stats.RequestsPerEndpoint)
	}
}

func TestSubmitTaskCancelledContext(t *testing.T) {
	topology, _, _ := newTestTopology()
	router := newTestRouter(t, topology, staleCache())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := router.SubmitTask(ctx, &Request{Model: "llama"}, &adaptors.TaskRequest{Model: "llama"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func slugs(endpoints []*Endpoint) []string {
	out := make([]string, len(endpoints))
	for i, ep := range endpoints {
		out[i] = ep.Slug
	}
	return out
}

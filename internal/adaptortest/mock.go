// Package adaptortest provides a configurable mock adaptor for tests.
package adaptortest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"polaris-hq/polaris/pkg/adaptors"
)

// MockAdaptor is a mock implementation of the Adaptor, BatchAdaptor,
// and ClusterAdaptor interfaces for testing.
type MockAdaptor struct {
	mu      sync.Mutex
	name    string
	healthy bool
	config  adaptors.Config

	// SubmitTaskFunc overrides SubmitTask when set.
	SubmitTaskFunc func(ctx context.Context, req *adaptors.TaskRequest) (*adaptors.TaskResult, error)

	// SubmitStreamingTaskFunc overrides SubmitStreamingTask when set.
	SubmitStreamingTaskFunc func(ctx context.Context, req *adaptors.TaskRequest, requestLogID string) (<-chan *adaptors.StreamChunk, error)

	// SubmitBatchFunc overrides SubmitBatch when set.
	SubmitBatchFunc func(ctx context.Context, req *adaptors.BatchRequest, user string) (*adaptors.BatchSubmitResult, error)

	// GetBatchStatusFunc overrides GetBatchStatus when set.
	GetBatchStatusFunc func(ctx context.Context, batchID string) (*adaptors.BatchStatusResult, error)

	// GetJobsFunc overrides GetJobs when set.
	GetJobsFunc func(ctx context.Context) (*adaptors.ClusterStatus, error)

	// BatchDisabled makes HasBatchEnabled report false.
	BatchDisabled bool

	taskCalls   int
	streamCalls int
	batchCalls  int
}

// NewMockAdaptor creates a healthy mock adaptor with the given name.
func NewMockAdaptor(name string) *MockAdaptor {
	return &MockAdaptor{
		name:    name,
		healthy: true,
		config: adaptors.Config{
			Slug:      name,
			Cluster:   "mock-cluster",
			Framework: "mock",
			Type:      "mock",
		},
	}
}

// SetHealthy sets the mock's health status.
func (m *MockAdaptor) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

// SetConfig replaces the mock's configuration.
func (m *MockAdaptor) SetConfig(config adaptors.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config
}

// TaskCalls returns how many times SubmitTask was invoked.
func (m *MockAdaptor) TaskCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.taskCalls
}

// StreamCalls returns how many times SubmitStreamingTask was invoked.
func (m *MockAdaptor) StreamCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCalls
}

// BatchCalls returns how many times SubmitBatch was invoked.
func (m *MockAdaptor) BatchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batchCalls
}

func (m *MockAdaptor) SubmitTask(ctx context.Context, req *adaptors.TaskRequest) (*adaptors.TaskResult, error) {
	m.mu.Lock()
	m.taskCalls++
	fn := m.SubmitTaskFunc
	healthy := m.healthy
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if !healthy {
		return nil, fmt.Errorf("adaptor %s is unhealthy", m.name)
	}
	return &adaptors.TaskResult{
		Content: "mock response",
		Model:   req.Model,
	}, nil
}

func (m *MockAdaptor) SubmitStreamingTask(ctx context.Context, req *adaptors.TaskRequest, requestLogID string) (<-chan *adaptors.StreamChunk, error) {
	m.mu.Lock()
	m.streamCalls++
	fn := m.SubmitStreamingTaskFunc
	healthy := m.healthy
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req, requestLogID)
	}
	if !healthy {
		return nil, fmt.Errorf("adaptor %s is unhealthy", m.name)
	}

	ch := make(chan *adaptors.StreamChunk, 2)
	ch <- &adaptors.StreamChunk{Delta: "mock "}
	ch <- &adaptors.StreamChunk{Delta: "stream", FinishReason: "stop"}
	close(ch)
	return ch, nil
}

func (m *MockAdaptor) SubmitBatch(ctx context.Context, req *adaptors.BatchRequest, user string) (*adaptors.BatchSubmitResult, error) {
	m.mu.Lock()
	m.batchCalls++
	fn := m.SubmitBatchFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req, user)
	}
	return &adaptors.BatchSubmitResult{
		BatchID: "mock-batch-1",
		TaskIDs: []string{"task-0", "task-1", "task-2"},
	}, nil
}

func (m *MockAdaptor) GetBatchStatus(ctx context.Context, batchID string) (*adaptors.BatchStatusResult, error) {
	m.mu.Lock()
	fn := m.GetBatchStatusFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, batchID)
	}
	return &adaptors.BatchStatusResult{Status: adaptors.BatchStatusRunning}, nil
}

func (m *MockAdaptor) HasBatchEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.BatchDisabled
}

func (m *MockAdaptor) GetJobs(ctx context.Context) (*adaptors.ClusterStatus, error) {
	m.mu.Lock()
	fn := m.GetJobsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return &adaptors.ClusterStatus{CollectedAt: time.Now()}, nil
}

func (m *MockAdaptor) Name() string { return m.name }

func (m *MockAdaptor) Type() string { return "mock" }

func (m *MockAdaptor) Config() adaptors.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

func (m *MockAdaptor) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

func (m *MockAdaptor) Health() adaptors.Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	return adaptors.Health{
		IsHealthy: m.healthy,
		LastCheck: time.Now(),
	}
}

func (m *MockAdaptor) Close() error { return nil }

// Lookup is a map-backed adaptor resolver for tests.
type Lookup map[string]adaptors.Adaptor

// Adaptor resolves a slug.
func (l Lookup) Adaptor(slug string) (adaptors.Adaptor, bool) {
	a, ok := l[slug]
	return a, ok
}

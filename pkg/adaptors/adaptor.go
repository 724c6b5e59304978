package adaptors

import "context"

// Adaptor is the core interface every backend variant must implement.
// It is the only seam between the gateway and backend execution targets.
//
// All methods accept a context.Context for cancellation and timeout
// control. Implementations must respect context cancellation and return
// promptly when the context is cancelled.
//
// No method panics across the interface boundary: every failure is a
// tagged error value so the router can apply uniform failover logic.
type Adaptor interface {
	// SubmitTask sends a synchronous single inference call and returns
	// the normalized result or a tagged error.
	SubmitTask(ctx context.Context, req *TaskRequest) (*TaskResult, error)

	// SubmitStreamingTask sends a streaming inference call. It returns a
	// channel that yields chunks in backend arrival order; the channel is
	// closed when the stream ends. An error during streaming arrives as
	// the Error field of the final chunk.
	//
	// requestLogID ties the stream to its request log row so final usage
	// accounting lands on exactly one record.
	//
	// The caller must drain the channel. Cancelling the context closes
	// the backend connection and ends the stream.
	SubmitStreamingTask(ctx context.Context, req *TaskRequest, requestLogID string) (<-chan *StreamChunk, error)

	// Name returns the endpoint slug this adaptor serves.
	Name() string

	// Type returns the adaptor type identifier (e.g. "openai_api", "fabric").
	Type() string

	// Config returns the adaptor's configuration.
	Config() Config

	// IsHealthy reports the adaptor's current health, fed by request
	// outcomes. Used for routing decisions.
	IsHealthy() bool

	// Health returns detailed health information.
	Health() Health

	// Close releases resources (HTTP connections, etc.).
	// After Close the adaptor must not be used.
	Close() error
}

// BatchAdaptor is implemented by adaptors whose backend can execute
// multi-line batch workloads asynchronously.
type BatchAdaptor interface {
	Adaptor

	// HasBatchEnabled reports whether this endpoint is configured for
	// batch execution.
	HasBatchEnabled() bool

	// SubmitBatch submits a batch workload on behalf of user and returns
	// the backend's batch and task identifiers.
	SubmitBatch(ctx context.Context, req *BatchRequest, user string) (*BatchSubmitResult, error)

	// GetBatchStatus queries the backend for the current state of a
	// previously submitted batch. Safe to call repeatedly; querying a
	// terminal batch returns the same terminal result.
	GetBatchStatus(ctx context.Context, batchID string) (*BatchStatusResult, error)
}

// ClusterAdaptor is implemented by adaptors that can enumerate the model
// deployments currently present on their cluster. It is consumed only by
// the cluster status cache, never on the request hot path.
type ClusterAdaptor interface {
	// GetJobs returns the cluster's current model availability.
	GetJobs(ctx context.Context) (*ClusterStatus, error)
}

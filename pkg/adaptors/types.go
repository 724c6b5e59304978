package adaptors

import "time"

// Message represents a single message in a conversation.
// It is backend-agnostic and transformed to backend-specific formats by
// each adaptor variant.
type Message struct {
	// Role identifies the message sender (system, user, assistant)
	Role string `json:"role"`

	// Content is the message text content
	Content string `json:"content"`

	// Name is an optional name for the message sender
	Name string `json:"name,omitempty"`
}

// Usage tracks token consumption for a request.
type Usage struct {
	// PromptTokens is the number of tokens in the prompt
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the completion
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the total number of tokens used (prompt + completion)
	TotalTokens int `json:"total_tokens"`
}

// TaskRequest represents a backend-agnostic inference request.
// Either Messages (chat) or Prompt (plain completion) is set, never both.
type TaskRequest struct {
	// Model is the model identifier as the backend knows it
	Model string `json:"model"`

	// Messages is the conversation history for chat-style requests
	Messages []Message `json:"messages,omitempty"`

	// Prompt is the raw prompt for completion-style requests
	Prompt string `json:"prompt,omitempty"`

	// MaxTokens is the maximum number of tokens to generate
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 to 2.0)
	Temperature float64 `json:"temperature,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0)
	TopP float64 `json:"top_p,omitempty"`

	// Stream indicates whether the caller wants a streaming response
	Stream bool `json:"stream,omitempty"`

	// Stop sequences that halt generation
	Stop []string `json:"stop,omitempty"`

	// User is an optional end-user identifier
	User string `json:"user,omitempty"`

	// Metadata carries internal request context (request log id, identity).
	// It is never sent to the backend.
	Metadata map[string]string `json:"-"`
}

// TaskResult represents a backend-agnostic inference result.
// It is normalized from backend-specific response formats.
type TaskResult struct {
	// ID is the unique response identifier assigned by the backend
	ID string `json:"id"`

	// Model is the model that generated the response
	Model string `json:"model"`

	// Content is the generated text content
	Content string `json:"content"`

	// FinishReason indicates why generation stopped (stop, length)
	FinishReason string `json:"finish_reason"`

	// Usage contains token consumption information
	Usage Usage `json:"usage"`

	// Created is the Unix timestamp when the response was created
	Created int64 `json:"created"`

	// Raw is the verbatim backend response body, persisted on the
	// request log for later metrics extraction
	Raw []byte `json:"-"`
}

// StreamChunk represents a single chunk in a streaming response.
type StreamChunk struct {
	// ID is the response identifier (same across all chunks)
	ID string `json:"id"`

	// Model is the model generating the response
	Model string `json:"model"`

	// Delta is the incremental content in this chunk
	Delta string `json:"delta"`

	// FinishReason is set in the final chunk to indicate why generation stopped
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage is included in the final chunk when the backend reports it
	Usage *Usage `json:"usage,omitempty"`

	// Error is set if an error occurred during streaming
	Error error `json:"-"`

	// Created is the Unix timestamp when the chunk was created
	Created int64 `json:"created"`
}

// JobEntry describes one model deployment reported by a cluster.
// Extra carries adaptor-specific fields without widening the core schema.
type JobEntry struct {
	// Model is the model name as served on the cluster
	Model string `json:"model"`

	// Framework is the serving framework running the model (e.g. vllm)
	Framework string `json:"framework"`

	// Cluster is the reporting cluster's name
	Cluster string `json:"cluster"`

	// Extra holds adaptor-specific fields (node, partition, job id, ...)
	Extra map[string]string `json:"extra,omitempty"`
}

// ClusterStatus is the job-listing payload returned by GetJobs.
// It reflects the cluster's view at collection time and is consumed only
// by the cluster status cache, never on the request hot path.
type ClusterStatus struct {
	// Running lists models currently live and able to serve requests
	Running []JobEntry `json:"running"`

	// Queued lists models waiting for resources
	Queued []JobEntry `json:"queued"`

	// Stopped lists models that have been shut down
	Stopped []JobEntry `json:"stopped"`

	// Others lists jobs in states the adaptor cannot classify
	Others []JobEntry `json:"others"`

	// PrivateBatchRunning lists running batch-dedicated deployments
	PrivateBatchRunning []JobEntry `json:"private_batch_running"`

	// PrivateBatchQueued lists queued batch-dedicated deployments
	PrivateBatchQueued []JobEntry `json:"private_batch_queued"`

	// ClusterInfo holds cluster-level status fields (load, partitions, ...)
	ClusterInfo map[string]string `json:"cluster_status"`

	// CollectedAt is when the adaptor gathered this snapshot
	CollectedAt time.Time `json:"-"`
}

// BatchRequest represents a batch submission.
// InputFile points at a JSONL file with one request per line; results are
// written under OutputFolder, one entry per input line.
type BatchRequest struct {
	// InputFile is the locator of the JSONL input
	InputFile string `json:"input_file"`

	// OutputFolder is the locator results are written under
	OutputFolder string `json:"output_folder"`

	// Model is the model every line is executed against
	Model string `json:"model"`
}

// BatchSubmitResult is returned by SubmitBatch on success.
type BatchSubmitResult struct {
	// BatchID is the backend's identifier for the batch
	BatchID string `json:"batch_id"`

	// TaskIDs are the backend task ids, one per input line, in input order
	TaskIDs []string `json:"task_ids"`
}

// BatchLineError records a failure of a single input line.
// Line numbering is zero-based and follows input order.
type BatchLineError struct {
	// Line is the zero-based input line index
	Line int `json:"line"`

	// Message is the backend's error message for this line
	Message string `json:"message"`

	// Code is the backend's error code, if any
	Code string `json:"code,omitempty"`
}

// Batch status values reported by GetBatchStatus.
const (
	BatchStatusPending   = "pending"
	BatchStatusRunning   = "running"
	BatchStatusCompleted = "completed"
	BatchStatusFailed    = "failed"
)

// BatchStatusResult is the backend's view of a batch.
type BatchStatusResult struct {
	// Status is one of the BatchStatus* constants
	Status string `json:"status"`

	// CompletedTasks counts lines with a terminal result
	CompletedTasks int `json:"completed_tasks"`

	// TotalTasks is the number of input lines
	TotalTasks int `json:"total_tasks"`

	// OutputLocation is where results were written (set when completed)
	OutputLocation string `json:"output_location,omitempty"`

	// LineErrors lists per-line failures; a non-empty list does not by
	// itself make the batch failed
	LineErrors []BatchLineError `json:"line_errors,omitempty"`
}

// Health tracks the health status of an adaptor.
type Health struct {
	// IsHealthy indicates whether the adaptor is currently healthy
	IsHealthy bool

	// LastCheck is the timestamp of the last health update
	LastCheck time.Time

	// LastError is the most recent error encountered (nil if healthy)
	LastError error

	// ConsecutiveFailures counts sequential failures
	ConsecutiveFailures int

	// TotalRequests is the total number of requests sent through this adaptor
	TotalRequests int64

	// FailedRequests is the total number of failed requests
	FailedRequests int64
}

// Config contains configuration for a single adaptor instance.
// The typed fields are the core schema shared by every variant; Extra is
// the open extension map for adaptor-specific keys (execution-target id,
// function id, batch-variant ids, ...).
type Config struct {
	// Slug is the unique endpoint identifier, format "cluster-framework-model"
	Slug string

	// Cluster is the owning cluster's name
	Cluster string

	// Framework is the serving framework behind the endpoint
	Framework string

	// Model is the model name as the backend knows it
	Model string

	// Type is the adaptor type identifier resolved through the registry
	Type string

	// BaseURL is the backend API base URL
	BaseURL string

	// APIKey is the resolved authentication key (empty if none)
	APIKey string

	// Timeout is the per-call timeout; a timeout counts as a target
	// failure for routing purposes
	Timeout time.Duration

	// MaxRetries is the maximum number of transport-level retry attempts
	MaxRetries int

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum idle connections per host
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle connection remains pooled
	IdleConnTimeout time.Duration

	// AllowedGroups restricts the endpoint to these identity groups
	// (empty means unrestricted)
	AllowedGroups []string

	// AllowedDomains restricts the endpoint to these user domains
	// (empty means unrestricted)
	AllowedDomains []string

	// Extra holds adaptor-specific configuration keys
	Extra map[string]string
}

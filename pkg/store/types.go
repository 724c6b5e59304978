package store

import (
	"context"
	"time"
)

// RequestLog is the per-request record written by the proxy.
// MetricsProcessed starts false and is set true only after a successful
// metrics upsert; the raw Result payload is what ingestion parses.
type RequestLog struct {
	// ID is the sortable request identifier (ULID)
	ID string

	// User is the authenticated username
	User string

	// Cluster, Framework, Model identify the target that served the call
	Cluster   string
	Framework string
	Model     string

	// Endpoint is the serving endpoint's slug
	Endpoint string

	// StatusCode is the HTTP status returned to the client
	StatusCode int

	// Stream records whether the call was streamed
	Stream bool

	// ReceivedAt is when the gateway accepted the request
	ReceivedAt time.Time

	// BackendRequestAt is when the backend call was issued
	BackendRequestAt time.Time

	// BackendResponseAt is when the backend finished responding
	BackendResponseAt time.Time

	// Result is the raw backend result payload
	Result []byte

	// MetricsProcessed is true once ingestion has upserted metrics
	MetricsProcessed bool
}

// RequestMetrics is the derived row keyed by request id.
// Upserted, never duplicated; reprocessing yields identical output.
type RequestMetrics struct {
	// RequestID is the owning request log id
	RequestID string

	// PromptTokens, CompletionTokens, TotalTokens are the token counts
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int

	// ResponseTimeMs is backend latency in milliseconds
	ResponseTimeMs int64

	// TokensPerSecond is completion throughput
	TokensPerSecond float64

	// CreatedAt is when the row was first written
	CreatedAt time.Time
}

// Batch job status values. Status is monotonic: once Running a job never
// reverts to Pending, and terminal states are final.
const (
	BatchPending   = "pending"
	BatchRunning   = "running"
	BatchCompleted = "completed"
	BatchFailed    = "failed"
)

// batchRank orders statuses for the monotonic-transition guard.
var batchRank = map[string]int{
	BatchPending:   0,
	BatchRunning:   1,
	BatchCompleted: 2,
	BatchFailed:    2,
}

// IsTerminalBatchStatus reports whether the status is final.
func IsTerminalBatchStatus(status string) bool {
	return status == BatchCompleted || status == BatchFailed
}

// BatchJob is one tracked batch workload.
type BatchJob struct {
	// ID is the gateway's batch identifier (UUID)
	ID string

	// BackendBatchID is the backend fabric's identifier
	BackendBatchID string

	// User is the submitting username
	User string

	// Model is the model every line runs against
	Model string

	// Endpoint is the slug of the endpoint the batch was submitted to
	Endpoint string

	// Status is one of the Batch* constants
	Status string

	// TaskIDs are the backend task ids in input-line order
	TaskIDs []string

	// InputFile and OutputFolder are the submission locators
	InputFile    string
	OutputFolder string

	// OutputLocation is where results landed (set on completion)
	OutputLocation string

	// Error holds the failure reason for failed batches
	Error string

	// CreatedAt is submission time; UpdatedAt tracks the last poll that
	// changed anything
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BatchLineResult records the outcome of one input line. A failed line
// does not fail the batch; it is recorded here alongside successes.
type BatchLineResult struct {
	// BatchID is the owning batch
	BatchID string

	// Line is the zero-based input line index
	Line int

	// OK reports whether the line succeeded
	OK bool

	// Result is the line's output payload (empty on failure)
	Result string

	// ErrorMessage and ErrorCode describe a failed line
	ErrorMessage string
	ErrorCode    string
}

// LagStats exposes metrics ingestion backlog observability.
type LagStats struct {
	// UnprocessedCount is how many eligible rows await processing
	UnprocessedCount int64

	// OldestUnprocessed and NewestUnprocessed bound the backlog's
	// received timestamps (zero when the backlog is empty)
	OldestUnprocessed time.Time
	NewestUnprocessed time.Time
}

// Store is the persistence contract consumed by the proxy, the batch
// manager, and metrics ingestion.
type Store interface {
	// InsertRequestLog writes a new request log row.
	InsertRequestLog(ctx context.Context, log *RequestLog) error

	// FinalizeRequestLog records the outcome of a request: status code,
	// raw result payload, and backend response time. A finalized
	// successful row with a non-empty result becomes eligible for
	// metrics ingestion.
	FinalizeRequestLog(ctx context.Context, id string, statusCode int, result []byte, backendResponseAt time.Time) error

	// GetRequestLog fetches one row by id.
	GetRequestLog(ctx context.Context, id string) (*RequestLog, error)

	// ClaimUnprocessed claims up to limit unprocessed eligible rows for
	// the given worker and returns them. Rows already claimed by a live
	// worker are skipped, never waited on. Claims older than
	// claimExpiry are treated as abandoned and re-claimable.
	ClaimUnprocessed(ctx context.Context, workerID string, limit int, claimExpiry time.Duration) ([]*RequestLog, error)

	// UpsertRequestMetrics writes the derived metrics row, keyed by
	// request id. Idempotent.
	UpsertRequestMetrics(ctx context.Context, metrics *RequestMetrics) error

	// GetRequestMetrics fetches one derived row.
	GetRequestMetrics(ctx context.Context, requestID string) (*RequestMetrics, error)

	// MarkProcessed sets metrics_processed and releases the claim for
	// the given rows. Called only after the upsert succeeded.
	MarkProcessed(ctx context.Context, ids []string) error

	// ReleaseClaims drops any claims held by the worker without marking
	// rows processed, so another worker can pick them up.
	ReleaseClaims(ctx context.Context, workerID string) error

	// MarkAllUnprocessed resets metrics_processed on every eligible
	// historical row; the backfill pass then drains them normally.
	MarkAllUnprocessed(ctx context.Context) (int64, error)

	// IngestionLag reports the current ingestion backlog.
	IngestionLag(ctx context.Context) (*LagStats, error)

	// InsertBatchJob writes a new batch job.
	InsertBatchJob(ctx context.Context, job *BatchJob) error

	// GetBatchJob fetches one batch job by gateway id.
	GetBatchJob(ctx context.Context, id string) (*BatchJob, error)

	// UpdateBatchJobStatus advances a batch's status. Transitions that
	// would move status backward (Running to Pending, or out of a
	// terminal state) are ignored, making polling idempotent.
	UpdateBatchJobStatus(ctx context.Context, id, status, errMsg, outputLocation string) error

	// ListNonTerminalBatchJobs returns every batch still pending or
	// running, oldest first.
	ListNonTerminalBatchJobs(ctx context.Context) ([]*BatchJob, error)

	// CountNonTerminalBatchJobs counts a user's pending plus running
	// batches, for admission control.
	CountNonTerminalBatchJobs(ctx context.Context, user string) (int, error)

	// InsertBatchLineResults records per-line outcomes for a batch.
	InsertBatchLineResults(ctx context.Context, results []*BatchLineResult) error

	// ListBatchLineResults returns a batch's line outcomes in line order.
	ListBatchLineResults(ctx context.Context, batchID string) ([]*BatchLineResult, error)

	// Close releases the underlying resources.
	Close() error
}

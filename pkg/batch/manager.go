package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"polaris-hq/polaris/pkg/adaptors"
	"polaris-hq/polaris/pkg/store"
)

// AdaptorLookup resolves an endpoint slug to its adaptor. The router
// satisfies this.
type AdaptorLookup interface {
	Adaptor(slug string) (adaptors.Adaptor, bool)
}

// Config contains batch manager settings.
type Config struct {
	// UserCap is the maximum non-terminal batches per user. Default: 2.
	UserCap int

	// Retention is the backend retention window. Batches still
	// non-terminal after this long are forced to failed. Default: 72h.
	Retention time.Duration

	// PollSchedule is the cron schedule for status polling.
	// Default: "@every 30s".
	PollSchedule string
}

// DefaultConfig returns the default batch configuration.
func DefaultConfig() *Config {
	return &Config{
		UserCap:      2,
		Retention:    72 * time.Hour,
		PollSchedule: "@every 30s",
	}
}

// SubmitRequest is a client batch submission.
type SubmitRequest struct {
	// Endpoint is the slug of the batch-capable endpoint
	Endpoint string

	// Model is the model every input line runs against
	Model string

	// InputFile is the JSONL input locator
	InputFile string

	// OutputFolder is where results are written
	OutputFolder string
}

// Manager submits batches and answers status queries.
type Manager struct {
	store  store.Store
	lookup AdaptorLookup
	gate   *AdmissionGate
	config *Config
	logger *slog.Logger

	// OnStatusChange, when set, is called with every status a batch
	// reaches (submission and poller transitions). Used for metrics.
	OnStatusChange func(status string)
}

// NewManager creates a batch manager. The admission gate should be
// seeded from the store before the manager accepts submissions.
func NewManager(s store.Store, lookup AdaptorLookup, config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	return &Manager{
		store:  s,
		lookup: lookup,
		gate:   NewAdmissionGate(config.UserCap),
		config: config,
		logger: slog.Default().With("component", "batch.manager"),
	}
}

// Gate exposes the admission gate, mainly for seeding and for the
// poller to release slots.
func (m *Manager) Gate() *AdmissionGate {
	return m.gate
}

// Submit admits, hands off, and records a new batch. The returned job
// is in the pending state; the poller advances it from there.
//
// Over-cap submissions fail immediately with CapacityExceededError.
func (m *Manager) Submit(ctx context.Context, user string, req *SubmitRequest) (*store.BatchJob, error) {
	if !m.gate.Acquire(user) {
		return nil, &CapacityExceededError{User: user, Limit: m.config.UserCap}
	}

	adaptor, err := m.batchAdaptor(req.Endpoint)
	if err != nil {
		m.gate.Release(user)
		return nil, err
	}

	result, err := adaptor.SubmitBatch(ctx, &adaptors.BatchRequest{
		InputFile:    req.InputFile,
		OutputFolder: req.OutputFolder,
		Model:        req.Model,
	}, user)
	if err != nil {
		m.gate.Release(user)
		return nil, fmt.Errorf("batch submission to %q failed: %w", req.Endpoint, err)
	}

	now := time.Now().UTC()
	job := &store.BatchJob{
		ID:             uuid.NewString(),
		BackendBatchID: result.BatchID,
		User:           user,
		Model:          req.Model,
		Endpoint:       req.Endpoint,
		Status:         store.BatchPending,
		TaskIDs:        result.TaskIDs,
		InputFile:      req.InputFile,
		OutputFolder:   req.OutputFolder,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := m.store.InsertBatchJob(ctx, job); err != nil {
		// The backend already accepted the batch; keep the slot so the
		// cap stays honest, but the job is untracked.
		m.logger.Error("failed to persist submitted batch",
			"batch_id", job.ID,
			"backend_batch_id", result.BatchID,
			"error", err,
		)
		return nil, fmt.Errorf("failed to record batch: %w", err)
	}

	m.logger.Info("batch submitted",
		"batch_id", job.ID,
		"backend_batch_id", result.BatchID,
		"user", user,
		"endpoint", req.Endpoint,
		"tasks", len(result.TaskIDs),
	)
	m.notifyStatus(store.BatchPending)

	return job, nil
}

// notifyStatus fires the status-change hook when one is set.
func (m *Manager) notifyStatus(status string) {
	if m.OnStatusChange != nil {
		m.OnStatusChange(status)
	}
}

// Status returns a batch and, once it is terminal, its per-line
// outcomes.
func (m *Manager) Status(ctx context.Context, id string) (*store.BatchJob, []*store.BatchLineResult, error) {
	job, err := m.store.GetBatchJob(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job == nil {
		return nil, nil, &NotFoundError{BatchID: id}
	}

	if !store.IsTerminalBatchStatus(job.Status) {
		return job, nil, nil
	}

	lines, err := m.store.ListBatchLineResults(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return job, lines, nil
}

// batchAdaptor resolves an endpoint slug to a batch-capable adaptor.
func (m *Manager) batchAdaptor(slug string) (adaptors.BatchAdaptor, error) {
	a, ok := m.lookup.Adaptor(slug)
	if !ok {
		return nil, &UnsupportedError{Endpoint: slug}
	}
	ba, ok := a.(adaptors.BatchAdaptor)
	if !ok || !ba.HasBatchEnabled() {
		return nil, &UnsupportedError{Endpoint: slug}
	}
	return ba, nil
}

package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"polaris-hq/polaris/pkg/adaptors"
	"polaris-hq/polaris/pkg/store"
)

// Poller advances non-terminal batches by polling their backends on a
// schedule. It also enforces the retention window: a batch still
// non-terminal past the window is forced to failed, because its
// artifacts are no longer retrievable.
type Poller struct {
	manager *Manager
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
	now     func() time.Time
}

// NewPoller creates a poller for the manager's batches.
func NewPoller(manager *Manager) *Poller {
	return &Poller{
		manager: manager,
		cron:    cron.New(),
		logger:  slog.Default().With("component", "batch.poller"),
		now:     time.Now,
	}
}

// Start schedules polling per the manager's PollSchedule. The first
// poll happens after one schedule interval, not at startup.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	schedule := p.manager.config.PollSchedule
	if schedule == "" {
		p.logger.Info("poll schedule not configured, batch polling disabled")
		return nil
	}

	if _, err := p.cron.AddFunc(schedule, func() {
		p.Poll(ctx)
	}); err != nil {
		return fmt.Errorf("invalid poll schedule %q: %w", schedule, err)
	}

	p.cron.Start()
	p.running = true

	p.logger.Info("batch poller started",
		"schedule", schedule,
		"retention", p.manager.config.Retention,
	)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()

	return nil
}

// Stop stops the poller and waits for a running poll to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		<-p.cron.Stop().Done()
		p.running = false
		p.logger.Info("batch poller stopped")
	}
}

// Poll runs one polling cycle over every non-terminal batch. Exported
// so a cycle can be driven directly in tests and on demand.
func (p *Poller) Poll(ctx context.Context) {
	jobs, err := p.manager.store.ListNonTerminalBatchJobs(ctx)
	if err != nil {
		p.logger.Error("failed to list batches for polling", "error", err)
		return
	}

	for _, job := range jobs {
		if err := p.pollOne(ctx, job); err != nil {
			p.logger.Warn("batch poll failed",
				"batch_id", job.ID,
				"error", err,
			)
		}
	}
}

func (p *Poller) pollOne(ctx context.Context, job *store.BatchJob) error {
	// A batch that has reached the retention deadline is already gone
	// on the backend, so the deadline itself counts as expired.
	if age := p.now().Sub(job.CreatedAt); age >= p.manager.config.Retention {
		return p.expire(ctx, job)
	}

	adaptor, err := p.manager.batchAdaptor(job.Endpoint)
	if err != nil {
		return err
	}

	result, err := adaptor.GetBatchStatus(ctx, job.BackendBatchID)
	if err != nil {
		// transient: the batch stays where it is until the next cycle
		return err
	}

	return p.apply(ctx, job, result)
}

// expire forces an over-retention batch to failed.
func (p *Poller) expire(ctx context.Context, job *store.BatchJob) error {
	expErr := &ExpiryError{
		BatchID:     job.ID,
		SubmittedAt: job.CreatedAt,
		Retention:   p.manager.config.Retention,
	}

	if err := p.manager.store.UpdateBatchJobStatus(ctx, job.ID, store.BatchFailed, expErr.Error(), ""); err != nil {
		return err
	}

	p.manager.gate.Release(job.User)
	p.manager.notifyStatus(store.BatchFailed)
	p.logger.Warn("batch expired",
		"batch_id", job.ID,
		"user", job.User,
		"submitted_at", job.CreatedAt,
	)
	return nil
}

// apply maps a backend status report onto the stored job.
func (p *Poller) apply(ctx context.Context, job *store.BatchJob, result *adaptors.BatchStatusResult) error {
	status, errMsg := mapBackendStatus(result)
	if status == job.Status {
		return nil
	}

	if err := p.manager.store.UpdateBatchJobStatus(ctx, job.ID, status, errMsg, result.OutputLocation); err != nil {
		return err
	}

	if status == store.BatchCompleted {
		if err := p.recordLineResults(ctx, job, result); err != nil {
			return err
		}
	}

	if store.IsTerminalBatchStatus(status) {
		p.manager.gate.Release(job.User)
	}
	p.manager.notifyStatus(status)

	p.logger.Info("batch status advanced",
		"batch_id", job.ID,
		"from", job.Status,
		"to", status,
		"completed_tasks", result.CompletedTasks,
		"total_tasks", result.TotalTasks,
	)
	return nil
}

// recordLineResults persists per-line outcomes for a completed batch.
// Lines the backend reported errors for are stored as failures; every
// other line succeeded and points at its task's output.
func (p *Poller) recordLineResults(ctx context.Context, job *store.BatchJob, result *adaptors.BatchStatusResult) error {
	failed := make(map[int]adaptors.BatchLineError, len(result.LineErrors))
	for _, le := range result.LineErrors {
		failed[le.Line] = le
	}

	total := result.TotalTasks
	if total == 0 {
		total = len(job.TaskIDs)
	}

	lines := make([]*store.BatchLineResult, 0, total)
	for i := 0; i < total; i++ {
		line := &store.BatchLineResult{
			BatchID: job.ID,
			Line:    i,
		}
		if le, ok := failed[i]; ok {
			line.ErrorMessage = le.Message
			line.ErrorCode = le.Code
		} else {
			line.OK = true
			if i < len(job.TaskIDs) {
				line.Result = job.TaskIDs[i]
			}
		}
		lines = append(lines, line)
	}

	return p.manager.store.InsertBatchLineResults(ctx, lines)
}

// mapBackendStatus translates the adaptor's status report to the stored
// status plus an error message for failures.
func mapBackendStatus(result *adaptors.BatchStatusResult) (string, string) {
	switch result.Status {
	case adaptors.BatchStatusPending:
		return store.BatchPending, ""
	case adaptors.BatchStatusRunning:
		return store.BatchRunning, ""
	case adaptors.BatchStatusCompleted:
		// line errors do not fail the batch; they are recorded per line
		return store.BatchCompleted, ""
	case adaptors.BatchStatusFailed:
		return store.BatchFailed, "backend reported batch failure"
	default:
		return store.BatchRunning, ""
	}
}

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"polaris-hq/polaris/pkg/store"
)

// Config contains metrics ingestion settings.
type Config struct {
	// WorkerID identifies this worker's claims. Default: hostname plus
	// a random suffix.
	WorkerID string

	// BatchSize bounds how many rows one cycle claims. Default: 100.
	BatchSize int

	// Interval is the pause between live ingestion cycles. Default: 10s.
	Interval time.Duration

	// ClaimExpiry is how long a claim is honored before the row is
	// considered abandoned. Default: 5m.
	ClaimExpiry time.Duration

	// BackfillDelay is the pause between backfill batches, keeping the
	// historical drain from starving live traffic. Default: 2s.
	BackfillDelay time.Duration
}

// DefaultConfig returns the default ingestion configuration.
func DefaultConfig() *Config {
	host, _ := os.Hostname()
	if host == "" {
		host = "polaris"
	}
	return &Config{
		WorkerID:      fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		BatchSize:     100,
		Interval:      10 * time.Second,
		ClaimExpiry:   5 * time.Minute,
		BackfillDelay: 2 * time.Second,
	}
}

// Processor drains unprocessed request logs into metrics rows.
type Processor struct {
	store  store.Store
	config *Config
	logger *slog.Logger

	// OnProcessed, when set, receives the row count of every completed
	// cycle. Used for metrics.
	OnProcessed func(n int)

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewProcessor creates an ingestion processor.
func NewProcessor(s store.Store, config *Config) *Processor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Processor{
		store:  s,
		config: config,
		logger: slog.Default().With("component", "ingest.processor", "worker_id", config.WorkerID),
	}
}

// Start launches the live ingestion loop. The first cycle runs after
// one interval.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.running = true

	p.logger.Info("metrics ingestion started",
		"batch_size", p.config.BatchSize,
		"interval", p.config.Interval,
	)

	go p.loop(ctx)
}

// Stop halts the loop, waits for an in-flight cycle, and releases any
// claims this worker still holds.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	done := p.done
	p.running = false
	p.mu.Unlock()

	<-done

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.store.ReleaseClaims(ctx, p.config.WorkerID); err != nil {
		p.logger.Warn("failed to release claims on shutdown", "error", err)
	}
	p.logger.Info("metrics ingestion stopped")
}

func (p *Processor) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("ingestion cycle failed", "error", err)
			}
		}
	}
}

// ProcessBatch runs one ingestion cycle: claim up to BatchSize eligible
// rows, derive and upsert their metrics, mark the successes processed.
// Returns how many rows were processed. Exported for tests and the
// backfill driver.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	logs, err := p.store.ClaimUnprocessed(ctx, p.config.WorkerID, p.config.BatchSize, p.config.ClaimExpiry)
	if err != nil {
		return 0, fmt.Errorf("failed to claim rows: %w", err)
	}
	if len(logs) == 0 {
		return 0, nil
	}

	processed := make([]string, 0, len(logs))
	for _, log := range logs {
		metrics, err := deriveMetrics(log)
		if err != nil {
			// unparseable rows stay claimed until the claim expires,
			// keeping them out of every cycle's way for a while
			p.logger.Warn("failed to derive metrics",
				"request_id", log.ID,
				"error", err,
			)
			continue
		}
		metrics.CreatedAt = time.Now().UTC()

		if err := p.store.UpsertRequestMetrics(ctx, metrics); err != nil {
			p.logger.Error("failed to upsert metrics",
				"request_id", log.ID,
				"error", err,
			)
			continue
		}
		processed = append(processed, log.ID)
	}

	if err := p.store.MarkProcessed(ctx, processed); err != nil {
		return 0, fmt.Errorf("failed to mark rows processed: %w", err)
	}

	p.logger.Debug("ingestion cycle completed",
		"claimed", len(logs),
		"processed", len(processed),
	)
	if p.OnProcessed != nil {
		p.OnProcessed(len(processed))
	}
	return len(processed), nil
}

// Backfill resets every eligible historical row to unprocessed and
// drains them in throttled batches. Derivation is deterministic and the
// metrics write is an upsert, so rows that were already processed end
// up with identical values rather than duplicates.
func (p *Processor) Backfill(ctx context.Context) (int, error) {
	reset, err := p.store.MarkAllUnprocessed(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reset processed flags: %w", err)
	}
	p.logger.Info("backfill started", "eligible_rows", reset)

	total := 0
	for {
		n, err := p.ProcessBatch(ctx)
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(p.config.BackfillDelay):
		}
	}

	p.logger.Info("backfill completed", "processed_rows", total)
	return total, nil
}

// Lag reports the current ingestion backlog.
func (p *Processor) Lag(ctx context.Context) (*store.LagStats, error) {
	return p.store.IngestionLag(ctx)
}

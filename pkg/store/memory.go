package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and standalone runs
// where persistence is not needed.
type MemoryStore struct {
	mu          sync.Mutex
	logs        map[string]*RequestLog
	claims      map[string]claim
	metrics     map[string]*RequestMetrics
	batches     map[string]*BatchJob
	lineResults map[string]map[int]*BatchLineResult

	// now is swappable for claim expiry tests
	now func() time.Time
}

type claim struct {
	workerID  string
	claimedAt time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		logs:        make(map[string]*RequestLog),
		claims:      make(map[string]claim),
		metrics:     make(map[string]*RequestMetrics),
		batches:     make(map[string]*BatchJob),
		lineResults: make(map[string]map[int]*BatchLineResult),
		now:         time.Now,
	}
}

func (s *MemoryStore) InsertRequestLog(ctx context.Context, log *RequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *log
	s.logs[log.ID] = &cp
	return nil
}

func (s *MemoryStore) FinalizeRequestLog(ctx context.Context, id string, statusCode int, result []byte, backendResponseAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.logs[id]
	if !ok {
		return nil
	}
	log.StatusCode = statusCode
	log.Result = result
	log.BackendResponseAt = backendResponseAt
	return nil
}

func (s *MemoryStore) GetRequestLog(ctx context.Context, id string) (*RequestLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.logs[id]
	if !ok {
		return nil, nil
	}
	cp := *log
	return &cp, nil
}

func eligible(log *RequestLog) bool {
	return !log.MetricsProcessed &&
		log.StatusCode >= 200 && log.StatusCode <= 299 &&
		len(log.Result) > 0
}

func (s *MemoryStore) ClaimUnprocessed(ctx context.Context, workerID string, limit int, claimExpiry time.Duration) ([]*RequestLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var candidates []*RequestLog
	for _, log := range s.logs {
		if !eligible(log) {
			continue
		}
		if c, held := s.claims[log.ID]; held && now.Sub(c.claimedAt) < claimExpiry {
			continue
		}
		candidates = append(candidates, log)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ReceivedAt.Before(candidates[j].ReceivedAt)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	claimed := make([]*RequestLog, 0, len(candidates))
	for _, log := range candidates {
		s.claims[log.ID] = claim{workerID: workerID, claimedAt: now}
		cp := *log
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (s *MemoryStore) UpsertRequestMetrics(ctx context.Context, metrics *RequestMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *metrics
	if prev, ok := s.metrics[metrics.RequestID]; ok {
		cp.CreatedAt = prev.CreatedAt
	}
	s.metrics[metrics.RequestID] = &cp
	return nil
}

func (s *MemoryStore) GetRequestMetrics(ctx context.Context, requestID string) (*RequestMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.metrics[requestID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) MarkProcessed(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if log, ok := s.logs[id]; ok {
			log.MetricsProcessed = true
		}
		delete(s.claims, id)
	}
	return nil
}

func (s *MemoryStore) ReleaseClaims(ctx context.Context, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.claims {
		if c.workerID == workerID {
			delete(s.claims, id)
		}
	}
	return nil
}

func (s *MemoryStore) MarkAllUnprocessed(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, log := range s.logs {
		if log.StatusCode >= 200 && log.StatusCode <= 299 && len(log.Result) > 0 {
			log.MetricsProcessed = false
			delete(s.claims, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) IngestionLag(ctx context.Context) (*LagStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats LagStats
	for _, log := range s.logs {
		if !eligible(log) {
			continue
		}
		stats.UnprocessedCount++
		if stats.OldestUnprocessed.IsZero() || log.ReceivedAt.Before(stats.OldestUnprocessed) {
			stats.OldestUnprocessed = log.ReceivedAt
		}
		if log.ReceivedAt.After(stats.NewestUnprocessed) {
			stats.NewestUnprocessed = log.ReceivedAt
		}
	}
	return &stats, nil
}

func (s *MemoryStore) InsertBatchJob(ctx context.Context, job *BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	cp.TaskIDs = append([]string(nil), job.TaskIDs...)
	s.batches[job.ID] = &cp
	return nil
}

func (s *MemoryStore) GetBatchJob(ctx context.Context, id string) (*BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.batches[id]
	if !ok {
		return nil, nil
	}
	cp := *job
	cp.TaskIDs = append([]string(nil), job.TaskIDs...)
	return &cp, nil
}

func (s *MemoryStore) UpdateBatchJobStatus(ctx context.Context, id, status, errMsg, outputLocation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.batches[id]
	if !ok {
		return nil
	}
	if IsTerminalBatchStatus(job.Status) {
		return nil
	}
	if job.Status == BatchRunning && status == BatchPending {
		return nil
	}

	job.Status = status
	if errMsg != "" {
		job.Error = errMsg
	}
	if outputLocation != "" {
		job.OutputLocation = outputLocation
	}
	job.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) ListNonTerminalBatchJobs(ctx context.Context) ([]*BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []*BatchJob
	for _, job := range s.batches {
		if IsTerminalBatchStatus(job.Status) {
			continue
		}
		cp := *job
		cp.TaskIDs = append([]string(nil), job.TaskIDs...)
		jobs = append(jobs, &cp)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (s *MemoryStore) CountNonTerminalBatchJobs(ctx context.Context, user string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, job := range s.batches {
		if job.User == user && !IsTerminalBatchStatus(job.Status) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) InsertBatchLineResults(ctx context.Context, results []*BatchLineResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range results {
		lines, ok := s.lineResults[r.BatchID]
		if !ok {
			lines = make(map[int]*BatchLineResult)
			s.lineResults[r.BatchID] = lines
		}
		cp := *r
		lines[r.Line] = &cp
	}
	return nil
}

func (s *MemoryStore) ListBatchLineResults(ctx context.Context, batchID string) ([]*BatchLineResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, ok := s.lineResults[batchID]
	if !ok {
		return nil, nil
	}
	results := make([]*BatchLineResult, 0, len(lines))
	for _, r := range lines {
		cp := *r
		results = append(results, &cp)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Line < results[j].Line
	})
	return results, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

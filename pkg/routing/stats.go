package routing

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of routing statistics.
type Stats struct {
	// TotalRequests is the total number of routed calls
	TotalRequests int64

	// RequestsPerEndpoint maps endpoint slug to served call count
	RequestsPerEndpoint map[string]int64

	// FailoverEvents counts candidate failures that were absorbed by
	// advancing to the next target
	FailoverEvents int64

	// Errors counts routed calls that exhausted every candidate
	Errors int64

	// LastResetTime is when statistics were last reset
	LastResetTime time.Time
}

// atomicStats tracks routing statistics with lock-free counters.
type atomicStats struct {
	totalRequests atomic.Int64

	// requestsPerEndpoint holds *atomic.Int64 values keyed by slug
	requestsPerEndpoint sync.Map

	failoverEvents atomic.Int64
	errors         atomic.Int64

	mu            sync.RWMutex
	lastResetTime time.Time
}

// newAtomicStats creates a stats tracker.
func newAtomicStats() *atomicStats {
	return &atomicStats{lastResetTime: time.Now()}
}

// IncrementTotal increments the total routed call counter.
func (s *atomicStats) IncrementTotal() {
	s.totalRequests.Add(1)
}

// IncrementEndpoint increments the served counter for an endpoint.
func (s *atomicStats) IncrementEndpoint(slug string) {
	val, _ := s.requestsPerEndpoint.LoadOrStore(slug, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

// IncrementFailover increments the absorbed-failure counter.
func (s *atomicStats) IncrementFailover() {
	s.failoverEvents.Add(1)
}

// IncrementErrors increments the exhaustion counter.
func (s *atomicStats) IncrementErrors() {
	s.errors.Add(1)
}

// Snapshot returns a consistent copy safe to read without locks.
func (s *atomicStats) Snapshot() *Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perEndpoint := make(map[string]int64)
	s.requestsPerEndpoint.Range(func(key, value interface{}) bool {
		perEndpoint[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})

	return &Stats{
		TotalRequests:       s.totalRequests.Load(),
		RequestsPerEndpoint: perEndpoint,
		FailoverEvents:      s.failoverEvents.Load(),
		Errors:              s.errors.Load(),
		LastResetTime:       s.lastResetTime,
	}
}

// Reset zeroes all counters.
func (s *atomicStats) Reset() {
	s.totalRequests.Store(0)
	s.failoverEvents.Store(0)
	s.errors.Store(0)

	s.requestsPerEndpoint.Range(func(key, value interface{}) bool {
		s.requestsPerEndpoint.Delete(key)
		return true
	})

	s.mu.Lock()
	s.lastResetTime = time.Now()
	s.mu.Unlock()
}

package batch

import (
	"context"
	"sync"
	"sync/atomic"

	"polaris-hq/polaris/pkg/store"
)

// AdmissionGate caps the number of non-terminal batches per user.
//
// The check is an atomic compare-and-increment: the counter is bumped
// first, and if it lands over the cap it is rolled back and the
// submission rejected. Two racing submissions against one free slot
// therefore admit exactly one.
type AdmissionGate struct {
	limit  int64
	counts sync.Map // username -> *int64
}

// NewAdmissionGate creates a gate with the given per-user cap.
func NewAdmissionGate(limit int) *AdmissionGate {
	return &AdmissionGate{limit: int64(limit)}
}

// SeedFromStore initializes the gate's counters from the batches
// already non-terminal in the store, so restarts do not reset the cap.
func (g *AdmissionGate) SeedFromStore(ctx context.Context, s store.Store) error {
	jobs, err := s.ListNonTerminalBatchJobs(ctx)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		atomic.AddInt64(g.counter(job.User), 1)
	}
	return nil
}

// Acquire attempts to take a batch slot for the user. Returns false
// when the user is at the cap. A successful Acquire must be paired
// with Release once the batch reaches a terminal state.
func (g *AdmissionGate) Acquire(user string) bool {
	c := g.counter(user)
	if atomic.AddInt64(c, 1) > g.limit {
		atomic.AddInt64(c, -1)
		return false
	}
	return true
}

// Release frees a user's batch slot.
func (g *AdmissionGate) Release(user string) {
	c := g.counter(user)
	if atomic.AddInt64(c, -1) < 0 {
		atomic.StoreInt64(c, 0)
	}
}

// Current returns the user's non-terminal batch count.
func (g *AdmissionGate) Current(user string) int64 {
	return atomic.LoadInt64(g.counter(user))
}

// Limit returns the per-user cap.
func (g *AdmissionGate) Limit() int {
	return int(g.limit)
}

func (g *AdmissionGate) counter(user string) *int64 {
	v, _ := g.counts.LoadOrStore(user, new(int64))
	return v.(*int64)
}

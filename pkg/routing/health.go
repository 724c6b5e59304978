package routing

import (
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// failureTracker remembers when targets last failed so the router can
// order candidates with recently-failed targets last, and skip nothing:
// a target past its cooldown simply regains its configured rank.
//
// Backed by a bounded LRU so an ever-growing topology cannot leak
// memory; evicting an old entry merely forgets a stale failure, which is
// the same outcome cooldown expiry produces.
type failureTracker struct {
	cooldown time.Duration
	failures *lru.Cache[string, time.Time]

	// now is swappable for tests
	now func() time.Time
}

// newFailureTracker creates a tracker with the given cooldown window and
// history bound.
func newFailureTracker(cooldown time.Duration, maxEntries int) (*failureTracker, error) {
	cache, err := lru.New[string, time.Time](maxEntries)
	if err != nil {
		return nil, err
	}

	return &failureTracker{
		cooldown: cooldown,
		failures: cache,
		now:      time.Now,
	}, nil
}

// MarkFailed records a failure for the endpoint, starting (or
// restarting) its cooldown window.
func (t *failureTracker) MarkFailed(endpointSlug string) {
	t.failures.Add(endpointSlug, t.now())
}

// InCooldown reports whether the endpoint failed within the cooldown
// window.
func (t *failureTracker) InCooldown(endpointSlug string) bool {
	failedAt, ok := t.failures.Get(endpointSlug)
	if !ok {
		return false
	}
	return t.now().Sub(failedAt) < t.cooldown
}

// lastFailure returns the recorded failure time, zero if none.
func (t *failureTracker) lastFailure(endpointSlug string) time.Time {
	failedAt, ok := t.failures.Get(endpointSlug)
	if !ok {
		return time.Time{}
	}
	return failedAt
}

// Order sorts candidates by health score: targets with no failure inside
// the cooldown window keep their configured order; cooled-down targets
// go last, most-recently-failed at the very end. The sort is stable so
// equally scored candidates preserve configuration preference.
func (t *failureTracker) Order(candidates []*Endpoint) []*Endpoint {
	ordered := make([]*Endpoint, len(candidates))
	copy(ordered, candidates)

	sort.SliceStable(ordered, func(i, j int) bool {
		iCool := t.InCooldown(ordered[i].Slug)
		jCool := t.InCooldown(ordered[j].Slug)

		if iCool != jCool {
			return !iCool
		}
		if iCool && jCool {
			// Both penalized: older failure first.
			return t.lastFailure(ordered[i].Slug).Before(t.lastFailure(ordered[j].Slug))
		}
		// Both healthy: keep configured order.
		return false
	})

	return ordered
}

// Package store persists the gateway's runtime data: request logs,
// derived request metrics, and batch jobs with their per-line results.
//
// Two implementations are provided: SQLite (the production backend, WAL
// mode, selectable driver) and an in-memory store used by tests. Both
// implement the same claim discipline for metrics ingestion: a worker
// claims a bounded batch of unprocessed rows by stamping a claim token,
// skipping rows already claimed by another worker, so concurrent
// workers drain disjoint batches without blocking each other.
package store

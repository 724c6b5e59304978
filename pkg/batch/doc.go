// Package batch manages long-running batch inference jobs.
//
// A submitted batch is recorded locally, handed to a batch-capable
// adaptor, and then tracked by a background poller until it reaches a
// terminal state. Status only moves forward: Pending to Running to
// Completed or Failed. Batches that outlive the backend retention
// window are forced to Failed so clients are never left polling a job
// whose artifacts no longer exist.
//
// Admission is enforced per user: each user may hold a bounded number
// of non-terminal batches, and submissions over the cap are rejected
// immediately rather than queued.
package batch

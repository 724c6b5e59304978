package batch

import (
	"fmt"
	"time"
)

// CapacityExceededError is returned when a user already holds the
// maximum number of non-terminal batches. The submission is rejected
// immediately; nothing is queued.
type CapacityExceededError struct {
	// User is the submitting username
	User string

	// Limit is the per-user cap that was hit
	Limit int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("user %q already has %d active batches, wait for one to finish", e.User, e.Limit)
}

// ExpiryError marks a batch that outlived the backend retention window
// before reaching a terminal state. Its results are gone; the batch is
// forced to failed.
type ExpiryError struct {
	// BatchID is the gateway batch identifier
	BatchID string

	// SubmittedAt is when the batch was submitted
	SubmittedAt time.Time

	// Retention is the backend retention window
	Retention time.Duration
}

func (e *ExpiryError) Error() string {
	return fmt.Sprintf("batch %s exceeded the %s retention window (submitted %s), results are no longer retrievable",
		e.BatchID, e.Retention, e.SubmittedAt.Format(time.RFC3339))
}

// NotFoundError is returned when a batch id is unknown.
type NotFoundError struct {
	// BatchID is the requested identifier
	BatchID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("batch %s not found", e.BatchID)
}

// UnsupportedError is returned when the target endpoint cannot run
// batches.
type UnsupportedError struct {
	// Endpoint is the endpoint slug
	Endpoint string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("endpoint %q does not support batch jobs", e.Endpoint)
}

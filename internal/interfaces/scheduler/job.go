package scheduler

import "context"

// Job represents a unit of work that can be executed by the worker pool.
type Job interface {
	// Execute runs the job with the given context.
	// Context should be respected for cancellation and timeouts.
	Execute(ctx context.Context) error

	// Key identifies the job for logging and tracing, e.g. "monthly:2026-03".
	Key() string

	// Description returns a human-readable description of the job.
	Description() string
}

// Package queue provides the durable delayed-job backend the orchestration
// core is written against: named queues, per-job delays, at-least-once
// delivery with retry and backoff, dead-lettering, and upsert-idempotent
// recurring jobs.
package queue

import (
	"context"
	"errors"
	"time"
)

// Job is one unit of queued work handed to a handler.
type Job struct {
	ID         string    `json:"id"`
	Queue      string    `json:"queue"`
	Name       string    `json:"name"`
	Payload    []byte    `json:"payload"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	RunAt      time.Time `json:"run_at"`
}

// Handler processes a job. Returning a non-nil error triggers a retry
// unless the error is marked Permanent. Handlers run at-least-once and must
// tolerate re-execution.
type Handler func(ctx context.Context, job Job) error

// Backend is the queue contract consumed by the scheduler and processors.
type Backend interface {
	// Enqueue schedules a job to run no earlier than now+delay.
	Enqueue(ctx context.Context, queue, name string, payload []byte, delay time.Duration) (string, error)
	// RegisterRecurring upserts a fixed-interval recurring job. Registering
	// the same (queue, name) twice replaces the schedule, never duplicates it.
	RegisterRecurring(ctx context.Context, queue, name string, every time.Duration) error
	// RegisterRecurringCron upserts a cron-spec recurring job.
	RegisterRecurringCron(ctx context.Context, queue, name, spec string) error
	// OnJob registers the handler for a queue. One handler per queue; it
	// dispatches on job name.
	OnJob(queue string, handler Handler)
}

// ---------------------------------------------------------------------------
// Error classification
// ---------------------------------------------------------------------------

// permanentError wraps errors that must not be retried: retrying a
// validation or state problem would not change the outcome.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as non-retryable. The job completes without retry and
// without dead-lettering.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// ---------------------------------------------------------------------------
// Retry policy
// ---------------------------------------------------------------------------

// RetryPolicy defines how transient handler failures are handled.
type RetryPolicy struct {
	MaxAttempts int           // after this many failures the job is dead-lettered
	Backoff     time.Duration // base delay before the first retry
	Multiplier  float64       // exponential growth factor
	MaxBackoff  time.Duration // backoff ceiling
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Backoff:     5 * time.Second,
		Multiplier:  2.0,
		MaxBackoff:  60 * time.Second,
	}
}

// Delay returns the backoff before retry number attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.Backoff
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

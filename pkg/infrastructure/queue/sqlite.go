package queue

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/kimy-labs/kimy/pkg/domain"
	"github.com/kimy-labs/kimy/pkg/logger"
)

const jobSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	queue        TEXT NOT NULL,
	name         TEXT NOT NULL,
	payload      BLOB,
	run_at       TIMESTAMP NOT NULL,
	attempt      INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'pending',
	last_error   TEXT NOT NULL DEFAULT '',
	enqueued_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_due ON jobs(queue, status, run_at);

CREATE TABLE IF NOT EXISTS recurring_jobs (
	queue     TEXT NOT NULL,
	name      TEXT NOT NULL,
	cron_spec TEXT NOT NULL DEFAULT '',
	every_ms  INTEGER NOT NULL DEFAULT 0,
	next_run  TIMESTAMP NOT NULL,
	PRIMARY KEY (queue, name)
);
`

const (
	statusPending = "pending"
	statusRunning = "running"
	statusDead    = "dead"
)

// SQLiteBackend is a SQLite-durable implementation of Backend. Jobs survive
// process restarts; delayed jobs resume with their original target fire
// time. Each queue gets its own worker pool with bounded concurrency, and
// queues execute independently of each other.
type SQLiteBackend struct {
	db          *sql.DB
	policy      RetryPolicy
	poll        time.Duration
	concurrency int
	events      domain.EventBus // optional

	mu       sync.RWMutex
	handlers map[string]Handler

	wg sync.WaitGroup
}

// Option configures a SQLiteBackend.
type Option func(*SQLiteBackend)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(b *SQLiteBackend) { b.policy = p }
}

// WithPollInterval overrides the worker poll interval (tests use a short one).
func WithPollInterval(d time.Duration) Option {
	return func(b *SQLiteBackend) { b.poll = d }
}

// WithConcurrency sets the per-queue worker concurrency.
func WithConcurrency(n int) Option {
	return func(b *SQLiteBackend) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithEventBus publishes job.failed / job.dead domain events.
func WithEventBus(events domain.EventBus) Option {
	return func(b *SQLiteBackend) { b.events = events }
}

// NewSQLiteBackend creates the backend on an open database handle and
// applies the job schema.
func NewSQLiteBackend(db *sql.DB, opts ...Option) (*SQLiteBackend, error) {
	b := &SQLiteBackend{
		db:          db,
		policy:      DefaultRetryPolicy(),
		poll:        250 * time.Millisecond,
		concurrency: 2,
		handlers:    make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(b)
	}
	if _, err := db.Exec(jobSchema); err != nil {
		return nil, fmt.Errorf("queue: apply schema: %w", err)
	}
	return b, nil
}

// Enqueue schedules a job to run no earlier than now+delay.
func (b *SQLiteBackend) Enqueue(ctx context.Context, queue, name string, payload []byte, delay time.Duration) (string, error) {
	if delay < 0 {
		delay = 0
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO jobs (id, queue, name, payload, run_at, attempt, status, enqueued_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		id, queue, name, payload, now.Add(delay), statusPending, now)
	if err != nil {
		return "", fmt.Errorf("queue: enqueue %s/%s: %w", queue, name, err)
	}
	return id, nil
}

// RegisterRecurring upserts a fixed-interval recurring job.
func (b *SQLiteBackend) RegisterRecurring(ctx context.Context, queue, name string, every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("queue: recurring interval must be positive")
	}
	return b.upsertRecurring(ctx, queue, name, "", every, time.Now().UTC().Add(every))
}

// RegisterRecurringCron upserts a cron-spec recurring job.
func (b *SQLiteBackend) RegisterRecurringCron(ctx context.Context, queue, name, spec string) error {
	if !gronx.New().IsValid(spec) {
		return fmt.Errorf("queue: invalid cron spec %q", spec)
	}
	next, err := gronx.NextTick(spec, false)
	if err != nil {
		return fmt.Errorf("queue: compute next tick for %q: %w", spec, err)
	}
	return b.upsertRecurring(ctx, queue, name, spec, 0, next.UTC())
}

func (b *SQLiteBackend) upsertRecurring(ctx context.Context, queue, name, spec string, every time.Duration, next time.Time) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO recurring_jobs (queue, name, cron_spec, every_ms, next_run)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(queue, name) DO UPDATE SET
		 	cron_spec = excluded.cron_spec,
		 	every_ms = excluded.every_ms,
		 	next_run = excluded.next_run`,
		queue, name, spec, every.Milliseconds(), next)
	if err != nil {
		return fmt.Errorf("queue: register recurring %s/%s: %w", queue, name, err)
	}
	return nil
}

// OnJob registers the handler for a queue.
func (b *SQLiteBackend) OnJob(queue string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[queue] = handler
}

// Start recovers interrupted jobs and launches one worker pool per
// registered queue plus the recurring-job dispatcher. It returns
// immediately; workers stop when ctx is done.
func (b *SQLiteBackend) Start(ctx context.Context) error {
	// Jobs claimed by a previous process that died mid-flight go back to
	// pending (at-least-once delivery).
	if _, err := b.db.ExecContext(ctx,
		`UPDATE jobs SET status = ? WHERE status = ?`, statusPending, statusRunning); err != nil {
		return fmt.Errorf("queue: recover running jobs: %w", err)
	}

	b.mu.RLock()
	queues := make([]string, 0, len(b.handlers))
	for q := range b.handlers {
		queues = append(queues, q)
	}
	b.mu.RUnlock()

	for _, q := range queues {
		for i := 0; i < b.concurrency; i++ {
			b.wg.Add(1)
			go b.worker(ctx, q)
		}
	}

	b.wg.Add(1)
	go b.recurringLoop(ctx)

	return nil
}

// Wait blocks until all workers have exited.
func (b *SQLiteBackend) Wait() { b.wg.Wait() }

func (b *SQLiteBackend) worker(ctx context.Context, queue string) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for b.runNext(ctx, queue) {
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// runNext claims and executes one due job. Returns true if a job was run.
func (b *SQLiteBackend) runNext(ctx context.Context, queue string) bool {
	job, ok := b.claim(ctx, queue)
	if !ok {
		return false
	}

	b.mu.RLock()
	handler := b.handlers[queue]
	b.mu.RUnlock()

	err := handler(ctx, job)
	switch {
	case err == nil:
		b.complete(ctx, job.ID)
	case IsPermanent(err):
		logger.WarnCF("queue", "Job failed permanently, not retrying", map[string]interface{}{
			"queue": queue, "job": job.Name, "id": job.ID, "error": err.Error(),
		})
		b.complete(ctx, job.ID)
	default:
		b.retry(ctx, job, err)
	}
	return true
}

// claim atomically moves one due pending job to running.
func (b *SQLiteBackend) claim(ctx context.Context, queue string) (Job, bool) {
	now := time.Now().UTC()
	var job Job
	row := b.db.QueryRowContext(ctx,
		`SELECT id, queue, name, payload, run_at, attempt, enqueued_at
		 FROM jobs WHERE queue = ? AND status = ? AND run_at <= ?
		 ORDER BY run_at ASC LIMIT 1`,
		queue, statusPending, now)
	if err := row.Scan(&job.ID, &job.Queue, &job.Name, &job.Payload,
		&job.RunAt, &job.Attempt, &job.EnqueuedAt); err != nil {
		return Job{}, false
	}

	res, err := b.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, attempt = attempt + 1
		 WHERE id = ? AND status = ?`,
		statusRunning, job.ID, statusPending)
	if err != nil {
		return Job{}, false
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Another worker on the same queue got there first.
		return Job{}, false
	}
	job.Attempt++
	return job, true
}

func (b *SQLiteBackend) complete(ctx context.Context, id string) {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		logger.ErrorCF("queue", "Failed to delete completed job", map[string]interface{}{
			"id": id, "error": err.Error(),
		})
	}
}

func (b *SQLiteBackend) retry(ctx context.Context, job Job, cause error) {
	if job.Attempt >= b.policy.MaxAttempts {
		logger.ErrorCF("queue", "Job exhausted retries, moving to dead letter", map[string]interface{}{
			"queue": job.Queue, "job": job.Name, "id": job.ID,
			"attempts": job.Attempt, "error": cause.Error(),
		})
		if _, err := b.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, last_error = ? WHERE id = ?`,
			statusDead, cause.Error(), job.ID); err != nil {
			logger.ErrorCF("queue", "Failed to dead-letter job", map[string]interface{}{
				"id": job.ID, "error": err.Error(),
			})
		}
		b.publish(domain.EventJobDead, job, cause)
		return
	}

	backoff := b.policy.Delay(job.Attempt)
	logger.WarnCF("queue", "Job failed, retrying", map[string]interface{}{
		"queue": job.Queue, "job": job.Name, "id": job.ID,
		"attempt": job.Attempt, "backoff": backoff.String(), "error": cause.Error(),
	})
	if _, err := b.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, run_at = ?, last_error = ? WHERE id = ?`,
		statusPending, time.Now().UTC().Add(backoff), cause.Error(), job.ID); err != nil {
		logger.ErrorCF("queue", "Failed to reschedule job", map[string]interface{}{
			"id": job.ID, "error": err.Error(),
		})
	}
	b.publish(domain.EventJobFailed, job, cause)
}

func (b *SQLiteBackend) publish(t domain.EventType, job Job, cause error) {
	if b.events == nil {
		return
	}
	b.events.Publish(domain.NewEvent(t, domain.EntityID(job.ID), map[string]interface{}{
		"queue": job.Queue, "job": job.Name, "attempt": job.Attempt, "error": cause.Error(),
	}))
}

// ---------------------------------------------------------------------------
// Recurring jobs
// ---------------------------------------------------------------------------

func (b *SQLiteBackend) recurringLoop(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.fireDueRecurring(ctx)
		}
	}
}

func (b *SQLiteBackend) fireDueRecurring(ctx context.Context) {
	now := time.Now().UTC()
	rows, err := b.db.QueryContext(ctx,
		`SELECT queue, name, cron_spec, every_ms FROM recurring_jobs WHERE next_run <= ?`, now)
	if err != nil {
		logger.ErrorCF("queue", "Failed to query recurring jobs", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	type due struct {
		queue, name, spec string
		every             time.Duration
	}
	var dues []due
	for rows.Next() {
		var d due
		var everyMs int64
		if err := rows.Scan(&d.queue, &d.name, &d.spec, &everyMs); err != nil {
			continue
		}
		d.every = time.Duration(everyMs) * time.Millisecond
		dues = append(dues, d)
	}
	rows.Close()

	for _, d := range dues {
		if _, err := b.Enqueue(ctx, d.queue, d.name, nil, 0); err != nil {
			logger.ErrorCF("queue", "Failed to enqueue recurring job", map[string]interface{}{
				"queue": d.queue, "job": d.name, "error": err.Error(),
			})
			continue
		}
		next := now.Add(d.every)
		if d.spec != "" {
			if t, err := gronx.NextTick(d.spec, false); err == nil {
				next = t.UTC()
			}
		}
		if _, err := b.db.ExecContext(ctx,
			`UPDATE recurring_jobs SET next_run = ? WHERE queue = ? AND name = ?`,
			next, d.queue, d.name); err != nil {
			logger.ErrorCF("queue", "Failed to advance recurring schedule", map[string]interface{}{
				"queue": d.queue, "job": d.name, "error": err.Error(),
			})
		}
	}
}

// ---------------------------------------------------------------------------
// Operator inspection
// ---------------------------------------------------------------------------

// DeadLetter is a job that exhausted its retries, kept for inspection.
type DeadLetter struct {
	Job       Job
	LastError string
}

// DeadLetters returns all dead-lettered jobs. They are never auto-resolved.
func (b *SQLiteBackend) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, queue, name, payload, run_at, attempt, enqueued_at, last_error
		 FROM jobs WHERE status = ? ORDER BY run_at ASC`, statusDead)
	if err != nil {
		return nil, fmt.Errorf("queue: query dead letters: %w", err)
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var d DeadLetter
		if err := rows.Scan(&d.Job.ID, &d.Job.Queue, &d.Job.Name, &d.Job.Payload,
			&d.Job.RunAt, &d.Job.Attempt, &d.Job.EnqueuedAt, &d.LastError); err != nil {
			return nil, fmt.Errorf("queue: scan dead letter: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// RecurringCount returns the number of registered recurring schedules
// (diagnostics; also exercised by idempotence tests).
func (b *SQLiteBackend) RecurringCount(ctx context.Context) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recurring_jobs`).Scan(&n)
	return n, err
}

// Verify interface compliance at compile time.
var _ Backend = (*SQLiteBackend)(nil)

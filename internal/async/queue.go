// Package async runs the background work that follows a committed write:
// embedding memories, upserting vectors, and removing vectors for deleted
// memories. Jobs are idempotent, so a lost job is repaired by the parity
// reconciler on the next start rather than by durable queueing.
package async

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/membank-io/membank/internal/errors"
)

// JobKind identifies what the worker should do for one memory.
type JobKind int

const (
	// JobUpsert embeds the memory payload and upserts its vector.
	JobUpsert JobKind = iota
	// JobDelete removes the memory's vector from the index.
	JobDelete
)

// String returns a stable name for logging and metrics labels.
func (k JobKind) String() string {
	switch k {
	case JobUpsert:
		return "upsert"
	case JobDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Job is one unit of background work keyed by memory id.
type Job struct {
	Kind     JobKind
	MemoryID int64
}

// ProcessFunc performs the work for a single job. Returned errors are
// retried with backoff when marked retryable; a nil return acknowledges
// the job.
type ProcessFunc func(ctx context.Context, job Job) error

// QueueConfig bounds the queue and tunes the retry schedule.
type QueueConfig struct {
	// Depth is the channel capacity. Enqueue fails with an overloaded
	// error once Depth jobs are waiting.
	Depth int

	// Retry is applied per job around the process function.
	Retry apperrors.RetryConfig
}

// DefaultQueueConfig mirrors the admission bound used for remote
// embedding calls.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Depth: 64,
		Retry: apperrors.DefaultRetryConfig(),
	}
}

// Queue is a bounded single-worker job queue. Submissions never block:
// when the queue is full the caller gets an overloaded error and the
// reconciler picks the work up later.
type Queue struct {
	cfg     QueueConfig
	process ProcessFunc
	log     *slog.Logger

	jobs chan Job

	pending   atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewQueue creates a stopped queue. Start must be called before jobs
// are consumed; Enqueue works immediately and buffers up to Depth jobs.
func NewQueue(cfg QueueConfig, process ProcessFunc, logger *slog.Logger) *Queue {
	if cfg.Depth <= 0 {
		cfg.Depth = DefaultQueueConfig().Depth
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = DefaultQueueConfig().Retry
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		cfg:     cfg,
		process: process,
		log:     logger.With("component", "async"),
		jobs:    make(chan Job, cfg.Depth),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the worker goroutine. Calling Start twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	go q.run(ctx)
}

// Enqueue submits a job without blocking. It fails with an overloaded
// error when the queue is full and with an internal error once the
// queue has been stopped.
func (q *Queue) Enqueue(job Job) error {
	select {
	case <-q.stopCh:
		return apperrors.New(apperrors.KindInternal, "background queue is stopped")
	default:
	}

	q.pending.Add(1)
	select {
	case q.jobs <- job:
		return nil
	default:
		q.pending.Add(-1)
		return apperrors.Overloaded("embedding")
	}
}

// Pending reports jobs queued plus the job currently being processed.
func (q *Queue) Pending() int {
	return int(q.pending.Load())
}

// Processed reports jobs completed successfully since creation.
func (q *Queue) Processed() int64 { return q.processed.Load() }

// Failed reports jobs dropped after exhausting retries.
func (q *Queue) Failed() int64 { return q.failed.Load() }

// Stop closes the queue, drains jobs already accepted, and waits for
// the worker to exit. The context bounds the wait; on expiry the worker
// is abandoned and the context error returned.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	select {
	case <-q.stopCh:
	default:
		close(q.stopCh)
	}
	running := q.running
	q.mu.Unlock()

	if !running {
		return nil
	}
	select {
	case <-q.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain blocks until no jobs are pending or the context expires.
func (q *Queue) Drain(ctx context.Context) error {
	for {
		if q.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			// Finish what was accepted before the stop signal.
			for {
				select {
				case job := <-q.jobs:
					q.handle(ctx, job)
				default:
					return
				}
			}
		case job := <-q.jobs:
			q.handle(ctx, job)
		}
	}
}

func (q *Queue) handle(ctx context.Context, job Job) {
	defer q.pending.Add(-1)

	err := apperrors.Retry(ctx, q.cfg.Retry, func() error {
		return q.process(ctx, job)
	})
	if err != nil {
		q.failed.Add(1)
		q.log.Warn("background job dropped",
			"kind", job.Kind.String(),
			"memory_id", job.MemoryID,
			"error", err)
		return
	}
	q.processed.Add(1)
}

/*
Package submit carries signed fiscal documents to the authority.

PURPOSE:
  A pool of workers consumes submission jobs from a durable queue, invokes
  the tenant's Authority Client and drives the document state machine. The
  package owns bounded retry with exponential backoff and jitter, and the
  dead-letter path for documents that exhaust their attempt budget.

DESIGN:
  - Long-lived worker loop blocking on the queue (channels + timers), not
    cron-style polling.
  - Idempotent enqueue: the signed -> queued status CAS reserves the job
    slot, so no external dedup is needed and at most one live submission
    exists per document.
  - Every communication with the authority - success, rejection, outage -
    persists a SubmissionAttempt. Attempts are never overwritten.

SEE ALSO:
  - worker.go: Pool and per-job processing
  - poller.go: Resolves submitted documents via status queries
*/
package submit

import (
	"context"
	"time"

	"github.com/arvo/fiscal-engine/fiscal"
)

// Job is one unit of submission work. Attempt is 1-based: the attempt this
// job will perform, not a count already spent.
type Job struct {
	DocumentID fiscal.DocumentID
	TenantID   fiscal.TenantID
	Attempt    int
}

// Queue is the durable work queue contract: at-least-once delivery with
// support for delayed re-enqueue (backoff).
type Queue interface {
	// Push makes the job available immediately.
	Push(ctx context.Context, job Job) error

	// PushDelayed makes the job available after the delay elapses.
	PushDelayed(ctx context.Context, job Job, delay time.Duration) error

	// Pop blocks until a job is available or the context ends.
	Pop(ctx context.Context) (Job, error)
}

// =============================================================================
// MEMORY QUEUE - Channel-backed implementation
// =============================================================================

// MemoryQueue implements Queue on a buffered channel, with timers providing
// the delayed re-enqueue primitive.
type MemoryQueue struct {
	jobs chan Job
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryQueue{jobs: make(chan Job, capacity)}
}

func (q *MemoryQueue) Push(ctx context.Context, job Job) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) PushDelayed(ctx context.Context, job Job, delay time.Duration) error {
	if delay <= 0 {
		return q.Push(ctx, job)
	}
	time.AfterFunc(delay, func() {
		// Detached from the enqueuing context: the retry must survive the
		// request that scheduled it. The send blocks until a worker frees
		// capacity, so a full queue delays the job instead of dropping it.
		q.jobs <- job
	})
	return nil
}

func (q *MemoryQueue) Pop(ctx context.Context) (Job, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Len reports the jobs currently buffered. For tests and introspection.
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

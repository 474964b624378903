/*
worker.go - Submission service and worker pool

PROCESSING CONTRACT:
  Process loads the document, re-checks that submission is still legal
  (stale or duplicate jobs racing a rectification are dropped), invokes the
  tenant's Authority Client, ALWAYS persists a SubmissionAttempt, and drives
  the state machine:

    ack received        queued -> submitted
    legal rejection     queued -> rejected          (terminal, no retry)
    outage / internal   queued -> error -> queued   (while attempts < max)
                        queued -> error             (budget exhausted:
                                                     dead-letter + alert)

RETRY ACCOUNTING:
  Each retry is a NEW SubmissionAttempt with the next sequence number. A
  document whose authority is permanently unavailable accumulates exactly
  maxAttempts rows and then parks in terminal error.
*/
package submit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arvo/fiscal-engine/authority"
	"github.com/arvo/fiscal-engine/fiscal"
)

// Service orchestrates enqueue and processing. All collaborators injected.
type Service struct {
	Documents fiscal.DocumentStore
	Attempts  fiscal.AttemptStore
	Tenants   fiscal.TenantStore
	Lifecycle *fiscal.Lifecycle
	Queue     Queue
	Clients   authority.Selector
	Alerter   Alerter
	Backoff   BackoffPolicy

	// CallTimeout bounds each authority call. A timeout surfaces as
	// AuthorityUnavailable and is recorded like any other failed attempt.
	CallTimeout time.Duration

	Now func() time.Time
}

func NewService(docs fiscal.DocumentStore, attempts fiscal.AttemptStore, tenants fiscal.TenantStore,
	lc *fiscal.Lifecycle, queue Queue, clients authority.Selector, alerter Alerter) *Service {
	return &Service{
		Documents:   docs,
		Attempts:    attempts,
		Tenants:     tenants,
		Lifecycle:   lc,
		Queue:       queue,
		Clients:     clients,
		Alerter:     alerter,
		Backoff:     DefaultBackoff,
		CallTimeout: authority.DefaultTimeout,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// ENQUEUE - Idempotent per document
// =============================================================================

// Enqueue reserves the document's submission slot and pushes a job. The
// signed -> queued CAS is the reservation: re-enqueueing a document already
// queued or submitted is a no-op, and losing the CAS race means another
// actor holds the slot - also not an error for the caller.
func (s *Service) Enqueue(ctx context.Context, id fiscal.DocumentID, actor string) error {
	doc, err := s.Documents.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	switch doc.Status {
	case fiscal.StatusQueued, fiscal.StatusSubmitted:
		return nil // already in flight
	case fiscal.StatusSigned:
	default:
		return &fiscal.TransitionError{DocumentID: id, From: doc.Status, To: fiscal.StatusQueued}
	}

	if err := s.Lifecycle.MarkQueued(ctx, doc, actor); err != nil {
		if errors.Is(err, fiscal.ErrConcurrencyConflict) {
			return nil // someone else claimed the slot
		}
		return err
	}

	return s.Queue.Push(ctx, Job{DocumentID: doc.ID, TenantID: doc.TenantID, Attempt: 1})
}

// Recover re-enqueues documents left in queued without a live job, e.g.
// after a process restart. Safe to call at startup.
func (s *Service) Recover(ctx context.Context) (int, error) {
	docs, err := s.Documents.ListByStatus(ctx, "", fiscal.StatusQueued)
	if err != nil {
		return 0, err
	}
	for _, doc := range docs {
		attempts, err := s.Attempts.Attempts(ctx, doc.ID)
		if err != nil {
			return 0, err
		}
		job := Job{DocumentID: doc.ID, TenantID: doc.TenantID, Attempt: len(attempts) + 1}
		if err := s.Queue.Push(ctx, job); err != nil {
			return 0, err
		}
	}
	return len(docs), nil
}

// =============================================================================
// PROCESS - One job, one attempt
// =============================================================================

// Process performs a single submission attempt for the job's document.
func (s *Service) Process(ctx context.Context, job Job) error {
	doc, err := s.Documents.GetDocument(ctx, job.DocumentID)
	if err != nil {
		return err
	}
	// Guard against stale jobs: a duplicate delivery or a document resolved
	// by another worker is skipped, not an error.
	if doc.Status != fiscal.StatusQueued {
		log.Printf("[Worker] skipping stale job for %s (status %s)", doc.ID, doc.Status)
		return nil
	}

	tenant, err := s.Tenants.GetTenant(ctx, doc.TenantID)
	if err != nil {
		return err
	}
	client := s.Clients.For(tenant)
	creds := authority.CredentialsFor(tenant)

	callCtx, cancel := context.WithTimeout(ctx, s.CallTimeout)
	start := s.Now()
	result, submitErr := client.Submit(callCtx, doc.Payload, creds)
	cancel()
	duration := s.Now().Sub(start)

	// Win or lose, the attempt is recorded.
	attempt := fiscal.SubmissionAttempt{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		TenantID:   doc.TenantID,
		Seq:        job.Attempt,
		Channel:    string(tenant.Mode),
		Duration:   duration,
		At:         start,
	}

	switch {
	case submitErr == nil:
		attempt.Outcome = fiscal.OutcomeAccepted
		attempt.ExternalID = result.ExternalID
	case errors.Is(submitErr, fiscal.ErrAuthorityRejected):
		attempt.Outcome = fiscal.OutcomeRejected
		attempt.ResponseRef = submitErr.Error()
	default:
		attempt.Outcome = fiscal.OutcomeError
		attempt.ResponseRef = submitErr.Error()
	}
	if err := s.Attempts.AppendAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}

	switch {
	case submitErr == nil:
		return s.Lifecycle.MarkSubmitted(ctx, doc, result.ExternalID)

	case errors.Is(submitErr, fiscal.ErrAuthorityRejected):
		// A legal rejection is not a transient error. Terminal.
		var rej *fiscal.RejectionError
		code, reason := "", submitErr.Error()
		if errors.As(submitErr, &rej) {
			code, reason = rej.Code, rej.Reason
		}
		return s.Lifecycle.MarkRejected(ctx, doc, code, reason)

	case fiscal.IsRetryable(submitErr):
		return s.handleRetryable(ctx, doc, tenant, job, submitErr)

	default:
		// Unknown failure kind: treat as internal, bounded like any other
		// retryable error.
		return s.handleRetryable(ctx, doc, tenant, job, fmt.Errorf("%w: %v", fiscal.ErrInternal, submitErr))
	}
}

func (s *Service) handleRetryable(ctx context.Context, doc *fiscal.FiscalDocument, tenant *fiscal.TenantConfig, job Job, cause error) error {
	if err := s.Lifecycle.MarkError(ctx, doc, cause.Error()); err != nil {
		return err
	}

	maxAttempts := tenant.EffectiveMaxAttempts()
	if job.Attempt >= maxAttempts {
		// Budget exhausted: dead-letter. The document stays in terminal
		// error and is never re-queued automatically.
		s.Alerter.Alert(ctx, DeadLetterAlert{
			DocumentID: doc.ID,
			TenantID:   doc.TenantID,
			Attempts:   job.Attempt,
			Cause:      cause.Error(),
		})
		return nil
	}

	next := job.Attempt + 1
	if err := s.Lifecycle.RetryToQueued(ctx, doc, next); err != nil {
		return err
	}
	delay := s.Backoff.Delay(job.Attempt)
	log.Printf("[Worker] retrying %s in %v (attempt %d/%d)", doc.ID, delay.Round(time.Millisecond), next, maxAttempts)
	return s.Queue.PushDelayed(ctx, Job{DocumentID: doc.ID, TenantID: doc.TenantID, Attempt: next}, delay)
}

// DeadLetters lists documents parked in terminal error for operator review.
func (s *Service) DeadLetters(ctx context.Context, tenantID fiscal.TenantID) ([]*fiscal.FiscalDocument, error) {
	return s.Documents.ListByStatus(ctx, tenantID, fiscal.StatusError)
}

// =============================================================================
// POOL - Long-lived concurrent workers
// =============================================================================

// Pool runs N workers blocking on the queue. Workers share nothing beyond
// the queue and the stores, which provide their own concurrency safety.
type Pool struct {
	Service *Service
	Workers int

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewPool(svc *Service, workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{Service: svc, Workers: workers}
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.Workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	log.Printf("[Worker] pool started with %d workers", p.Workers)
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
		p.wg.Wait()
		p.cancel = nil
		log.Println("[Worker] pool stopped")
	}
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		job, err := p.Service.Queue.Pop(ctx)
		if err != nil {
			return // context ended
		}
		if err := p.Service.Process(ctx, job); err != nil {
			log.Printf("[Worker %d] job for %s failed: %v", id, job.DocumentID, err)
		}
	}
}

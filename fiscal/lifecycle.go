/*
lifecycle.go - Legal lifecycle of a fiscal document

PURPOSE:
  Drives the fixed state machine every fiscal document follows:

    draft -> validated -> signed -> queued -> submitted -> accepted
                                                        -> rejected
                                                        -> error (retry / dead-letter)

  Cancellation never mutates state: it is expressed as a new compensating
  (rectifying) document referencing the original.

LOCKING:
  The validated -> signed transition locks the document. From that point
  only the status and the append-linked fields (external id, authority
  response code) may change. The store enforces this independently.

CONCURRENCY:
  Every transition is a compare-and-swap on the stored status. A lost race
  surfaces as ErrConcurrencyConflict and means another actor owns the
  document right now - callers treat it as "already being handled".

AUDIT:
  Every transition, including failed validations and legal rejections, is
  recorded synchronously in the append-only audit log. If the audit write
  fails the transition is rolled back and fails with ErrAuditWriteFailed.

SEE ALSO:
  - validate.go: Validation rules gating draft -> validated
  - submit/:     Queue and workers driving the post-signing states
*/
package fiscal

import (
	"context"
	"fmt"
	"time"
)

// legalTransitions is the full lifecycle graph. Anything absent is illegal.
var legalTransitions = map[Status][]Status{
	StatusDraft:     {StatusValidated},
	StatusValidated: {StatusSigned},
	StatusSigned:    {StatusQueued},
	StatusQueued:    {StatusSubmitted, StatusRejected, StatusError},
	StatusSubmitted: {StatusAccepted, StatusRejected, StatusError},
	StatusError:     {StatusQueued}, // automatic retry within the attempt budget
}

// CanTransition reports whether from -> to is part of the lifecycle graph.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Lifecycle is the state machine service. All collaborators are injected;
// there is no ambient lookup.
type Lifecycle struct {
	Documents DocumentStore
	Series    SeriesStore
	Tenants   TenantStore
	Audit     AuditLog
	Signer    Signer
	Validator Validator

	Now func() time.Time
}

func NewLifecycle(docs DocumentStore, series SeriesStore, tenants TenantStore, audit AuditLog, signer Signer) *Lifecycle {
	return &Lifecycle{
		Documents: docs,
		Series:    series,
		Tenants:   tenants,
		Audit:     audit,
		Signer:    signer,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// DRAFT -> VALIDATED
// =============================================================================

// Validate runs the validation service against a draft. On pass the document
// receives its gapless sequence number and moves to validated. On failure it
// stays in draft with the rule violations attached (pre-lock fields, so a
// plain update is legal).
func (lc *Lifecycle) Validate(ctx context.Context, id DocumentID, actor string) (*FiscalDocument, error) {
	doc, err := lc.Documents.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != StatusDraft {
		return nil, &TransitionError{DocumentID: id, From: doc.Status, To: StatusValidated}
	}

	result := lc.Validator.Validate(doc)
	if !result.Valid {
		doc.ValidationErrors = result.Errors
		doc.UpdatedAt = lc.Now()
		if err := lc.Documents.UpdateDraft(ctx, doc); err != nil {
			return nil, err
		}
		if err := lc.Audit.Record(ctx, NewAuditEntry(doc.TenantID, id, actor, ActorUser,
			StatusDraft, StatusDraft, fmt.Sprintf("validation failed: %d error(s)", len(result.Errors)))); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAuditWriteFailed, err)
		}
		return doc, &ValidationFailedError{DocumentID: id, Errors: result.Errors}
	}

	patch := TransitionPatch{}
	if doc.SequenceNumber == 0 {
		seq, err := lc.Series.NextSequence(ctx, doc.TenantID, doc.Series)
		if err != nil {
			return nil, fmt.Errorf("allocate sequence: %w", err)
		}
		patch.SequenceNumber = &seq
		doc.SequenceNumber = seq
	}

	if err := lc.transition(ctx, doc, StatusValidated, patch, actor, ActorUser, "validation passed"); err != nil {
		return nil, err
	}
	doc.ValidationErrors = nil
	return doc, nil
}

// =============================================================================
// VALIDATED -> SIGNED (locks the document)
// =============================================================================

// Sign re-validates defensively, asks the signing collaborator for a signed
// payload and locks the document with its content hash. A signing failure
// leaves the document in validated.
func (lc *Lifecycle) Sign(ctx context.Context, id DocumentID, actor string) (*FiscalDocument, error) {
	doc, err := lc.Documents.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != StatusValidated {
		return nil, &TransitionError{DocumentID: id, From: doc.Status, To: StatusSigned}
	}

	// Defensive re-validation: attributes may have changed since the draft
	// passed, and signing is the point of no return.
	if result := lc.Validator.Validate(doc); !result.Valid {
		return nil, &ValidationFailedError{DocumentID: id, Errors: result.Errors}
	}

	tenant, err := lc.Tenants.GetTenant(ctx, doc.TenantID)
	if err != nil {
		return nil, err
	}

	signed, hash, err := lc.Signer.Sign(ctx, doc.Payload, tenant.CertRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	doc.Payload = signed
	doc.UpdatedAt = lc.Now()
	if err := lc.Documents.UpdateDraft(ctx, doc); err != nil {
		return nil, err
	}

	if err := lc.transition(ctx, doc, StatusSigned, TransitionPatch{SignedHash: &hash}, actor, ActorUser, "payload signed"); err != nil {
		return nil, err
	}
	doc.SignedHash = hash
	return doc, nil
}

// =============================================================================
// POST-LOCK TRANSITIONS (driven by the submission worker)
// =============================================================================

// MarkQueued claims the document's submission slot: the signed -> queued CAS
// is the sole mutual-exclusion mechanism for at-most-one-live-submission.
func (lc *Lifecycle) MarkQueued(ctx context.Context, doc *FiscalDocument, actor string) error {
	return lc.transition(ctx, doc, StatusQueued, TransitionPatch{}, actor, ActorSystem, "submission job enqueued")
}

// MarkSubmitted records the authority's synchronous "accepted for
// processing" acknowledgment. Not the final decision.
func (lc *Lifecycle) MarkSubmitted(ctx context.Context, doc *FiscalDocument, externalID string) error {
	err := lc.transition(ctx, doc, StatusSubmitted, TransitionPatch{ExternalID: &externalID},
		"worker", ActorSystem, "dispatched to authority, external id "+externalID)
	if err == nil {
		doc.ExternalID = externalID
	}
	return err
}

// MarkAccepted records the authority's final acceptance.
func (lc *Lifecycle) MarkAccepted(ctx context.Context, doc *FiscalDocument, code string) error {
	return lc.transition(ctx, doc, StatusAccepted, TransitionPatch{AuthorityCode: &code},
		"worker", ActorSystem, "authority accepted, code "+code)
}

// MarkRejected records a legal rejection. Terminal: correction requires a
// compensating document.
func (lc *Lifecycle) MarkRejected(ctx context.Context, doc *FiscalDocument, code, reason string) error {
	return lc.transition(ctx, doc, StatusRejected, TransitionPatch{AuthorityCode: &code},
		"worker", ActorSystem, "authority rejected: "+reason)
}

// MarkError parks the document in error after a failed attempt.
func (lc *Lifecycle) MarkError(ctx context.Context, doc *FiscalDocument, cause string) error {
	return lc.transition(ctx, doc, StatusError, TransitionPatch{}, "worker", ActorSystem, cause)
}

// RetryToQueued moves error -> queued for an automatic retry within the
// attempt budget.
func (lc *Lifecycle) RetryToQueued(ctx context.Context, doc *FiscalDocument, attempt int) error {
	return lc.transition(ctx, doc, StatusQueued, TransitionPatch{},
		"worker", ActorSystem, fmt.Sprintf("automatic retry, attempt %d", attempt))
}

// =============================================================================
// COMPENSATING DOCUMENTS
// =============================================================================

// Cancel creates a compensating rectification for a locked document. The
// original is never mutated; the rectification starts its own lifecycle in
// draft. Pre-lock documents don't need one - they can simply be edited.
func (lc *Lifecycle) Cancel(ctx context.Context, id DocumentID, actor string) (*FiscalDocument, error) {
	doc, err := lc.Documents.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.Status.Locked() {
		return nil, fmt.Errorf("%w: document %s is not locked; edit it instead of rectifying", ErrIllegalTransition, id)
	}

	rect := doc.Rectification(lc.Now())
	rect.Payload = doc.Payload
	if err := lc.Documents.CreateDocument(ctx, rect); err != nil {
		return nil, err
	}

	if err := lc.Audit.Record(ctx, NewAuditEntry(doc.TenantID, id, actor, ActorUser,
		doc.Status, doc.Status, fmt.Sprintf("compensating document %s created", rect.ID))); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuditWriteFailed, err)
	}
	return rect, nil
}

// =============================================================================
// TRANSITION CORE
// =============================================================================

// transition performs the CAS status change and the synchronous audit write.
// An audit failure rolls the status back so no state change goes unaudited.
func (lc *Lifecycle) transition(ctx context.Context, doc *FiscalDocument, to Status, patch TransitionPatch, actor string, actorType ActorType, cause string) error {
	from := doc.Status
	if !CanTransition(from, to) {
		return &TransitionError{DocumentID: doc.ID, From: from, To: to}
	}

	if err := lc.Documents.Transition(ctx, doc.ID, from, to, patch); err != nil {
		return err
	}

	if err := lc.Audit.Record(ctx, NewAuditEntry(doc.TenantID, doc.ID, actor, actorType, from, to, cause)); err != nil {
		// Roll back rather than leave an unaudited state change behind.
		_ = lc.Documents.Transition(ctx, doc.ID, to, from, TransitionPatch{})
		return fmt.Errorf("%w: %v", ErrAuditWriteFailed, err)
	}

	doc.Status = to
	doc.UpdatedAt = lc.Now()
	return nil
}

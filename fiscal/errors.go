/*
errors.go - Centralized error taxonomy for the fiscal engine

PURPOSE:
  All error kinds in one place. Callers classify with errors.Is / errors.As
  and the helpers at the bottom decide retry behavior.

ERROR CATEGORIES:
  1. Lifecycle errors  - Validation, signing, illegal transitions
  2. Submission errors - Authority communication outcomes
  3. Store errors      - Immutability and concurrency enforcement

RETRY SEMANTICS:
  AuthorityUnavailable and InternalError are retryable up to the tenant's
  attempt budget. AuthorityRejected is a legal decision: final, never
  retried. A lost status CAS (ErrConcurrencyConflict) means another actor
  owns the transition - not a failure for the caller.

SEE ALSO:
  - lifecycle.go: Raises lifecycle errors
  - store.go: Store contracts raising immutability/concurrency errors
  - submit/worker.go: Maps these errors onto retry/dead-letter decisions
*/
package fiscal

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidationFailed is returned when a document fails pre-submission
	// validation. Recoverable: the document stays in draft for correction.
	ErrValidationFailed = errors.New("validation failed")

	// ErrSigningFailed is returned when the signing collaborator cannot
	// produce a signed payload. The document stays in validated.
	ErrSigningFailed = errors.New("signing failed")

	// ErrAuthorityUnavailable is returned when the authority endpoint cannot
	// be reached or times out. Retryable within the attempt budget.
	ErrAuthorityUnavailable = errors.New("authority unavailable")

	// ErrAuthorityRejected is returned when the authority legally rejects a
	// document. Terminal: correction requires a compensating document.
	ErrAuthorityRejected = errors.New("authority rejected document")

	// ErrInternal is returned for unexpected failures inside the engine.
	// Retryable within the attempt budget.
	ErrInternal = errors.New("internal error")

	// ErrConcurrencyConflict is returned when a status compare-and-swap lost
	// a race. Someone else is handling the document; not a caller error.
	ErrConcurrencyConflict = errors.New("concurrent transition detected")

	// ErrImmutable is returned when a write would mutate a locked document's
	// financial fields, or touch an append-only row.
	ErrImmutable = errors.New("record is immutable")

	// ErrAuditWriteFailed is fatal: a state change must never proceed
	// unaudited, so the triggering operation aborts.
	ErrAuditWriteFailed = errors.New("audit write failed")

	// ErrIllegalTransition is returned for status changes outside the
	// lifecycle graph.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrDocumentNotFound is returned when a referenced document doesn't exist.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrTenantNotFound is returned when a referenced tenant doesn't exist.
	ErrTenantNotFound = errors.New("tenant not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationFailedError carries the individual rule violations.
type ValidationFailedError struct {
	DocumentID DocumentID
	Errors     []string
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("document %s failed validation: %d error(s)", e.DocumentID, len(e.Errors))
}

func (e *ValidationFailedError) Unwrap() error {
	return ErrValidationFailed
}

// RejectionError carries the authority's response code and description for a
// legal rejection.
type RejectionError struct {
	ExternalID string
	Code       string
	Reason     string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("authority rejected (code %s): %s", e.Code, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return ErrAuthorityRejected
}

// TransitionError describes an attempted status change outside the
// lifecycle graph.
type TransitionError struct {
	DocumentID DocumentID
	From       Status
	To         Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("document %s: cannot transition %s -> %s", e.DocumentID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if a submission failure may succeed on retry.
// Legal rejections are never retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrAuthorityUnavailable) ||
		errors.Is(err, ErrInternal)
}

// IsTerminal returns true if the error ends the document's lifecycle.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrAuthorityRejected)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrImmutable) ||
		errors.Is(err, ErrIllegalTransition)
}

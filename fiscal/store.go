/*
store.go - Persistence contracts for documents, attempts and audit entries

PURPOSE:
  Defines the interface between the domain logic and storage. Different
  implementations can use SQLite, PostgreSQL, or in-memory storage.

APPEND-ONLY CONTRACT:
  SubmissionAttempt and audit rows are append-only at the INTERFACE level:
  AttemptStore and AuditLog simply have no update or delete operation, so an
  illegal write is a compile-time impossibility, not a runtime check. The
  storage layer enforces the same rule again (defense in depth - see the
  SQLite triggers in store/sqlite).

IMMUTABILITY:
  UpdateDraft refuses to touch a locked document (ErrImmutable). From signed
  onward the only legal write is Transition, which changes the status plus
  the append-linked fields and nothing else.

CONCURRENCY:
  Transition is a compare-and-swap on the status column: the write succeeds
  only if the stored status still equals `from`. A lost race surfaces as
  ErrConcurrencyConflict. This CAS is the engine's sole mutual-exclusion
  mechanism for claiming a document's submission slot.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - fiscal/store:  In-memory for testing/dev

SEE ALSO:
  - lifecycle.go: Drives Transition via the state machine
  - audit.go: AuditLog contract
*/
package fiscal

import "context"

// =============================================================================
// DOCUMENT STORE
// =============================================================================

// TransitionPatch carries the append-linked fields a transition may set.
// Nil pointers leave the stored value untouched; a set value is written
// once and never rewritten.
type TransitionPatch struct {
	SignedHash     *string
	ExternalID     *string
	AuthorityCode  *string
	SequenceNumber *int64
}

// DocumentStore persists fiscal documents. Update is split in two: free-form
// writes pre-lock, CAS status transitions after.
type DocumentStore interface {
	// CreateDocument inserts a new draft.
	CreateDocument(ctx context.Context, doc *FiscalDocument) error

	// GetDocument loads a document. Returns ErrDocumentNotFound.
	GetDocument(ctx context.Context, id DocumentID) (*FiscalDocument, error)

	// UpdateDraft rewrites a document's mutable attributes. Legal only while
	// the document is pre-lock; returns ErrImmutable otherwise.
	UpdateDraft(ctx context.Context, doc *FiscalDocument) error

	// Transition atomically moves a document from one status to another,
	// applying the patch's append-linked fields. Returns
	// ErrConcurrencyConflict if the stored status no longer equals from.
	Transition(ctx context.Context, id DocumentID, from, to Status, patch TransitionPatch) error

	// ListByStatus returns a tenant's documents in a given status, oldest
	// first. TenantID "" means all tenants (used by the status poller).
	ListByStatus(ctx context.Context, tenantID TenantID, status Status) ([]*FiscalDocument, error)
}

// =============================================================================
// ATTEMPT STORE - Append-only
// =============================================================================

// AttemptStore records submission attempts. APPEND-ONLY: there is no update
// and no delete, ever. Rows are immutable once written.
type AttemptStore interface {
	// AppendAttempt persists one attempt. The only write operation.
	AppendAttempt(ctx context.Context, attempt SubmissionAttempt) error

	// Attempts returns all attempts for a document ordered by Seq.
	Attempts(ctx context.Context, id DocumentID) ([]SubmissionAttempt, error)
}

// =============================================================================
// SERIES STORE - Gapless per-tenant numbering
// =============================================================================

// SeriesStore allocates sequence numbers. Numbers within a (tenant, series)
// pair are monotonic and gapless; allocation happens when a document passes
// validation, so drafts that never validate consume no number.
type SeriesStore interface {
	NextSequence(ctx context.Context, tenantID TenantID, series string) (int64, error)
}

// =============================================================================
// TENANT STORE
// =============================================================================

// TenantStore persists tenant configuration. Freely mutable, owned by the
// tenant admin.
type TenantStore interface {
	SaveTenant(ctx context.Context, cfg TenantConfig) error
	GetTenant(ctx context.Context, id TenantID) (*TenantConfig, error)
	ListTenants(ctx context.Context) ([]TenantConfig, error)
}

// =============================================================================
// SIGNING COLLABORATOR
// =============================================================================

// Signer is the external signing collaborator. The signed payload and its
// content hash are opaque to this engine.
type Signer interface {
	Sign(ctx context.Context, payload string, certRef string) (signed string, hash string, err error)
}

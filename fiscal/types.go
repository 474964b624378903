/*
Package fiscal provides the core fiscal-document ledger engine.

PURPOSE:
  This package contains the domain types and lifecycle rules for regulated
  fiscal documents (invoices, rectifications, tax-authority events). Once a
  document is signed it is legally immutable: every later change is either a
  status progression or a brand-new compensating document. The engine never
  edits history.

KEY CONCEPTS IN THIS FILE (types.go):
  - FiscalDocument: The ledger-backed business record, mutable only pre-lock
  - SubmissionAttempt: One row per communication with the tax authority
  - TenantConfig: Per-tenant credentials, numbering series and retry budget
  - Status: The legal lifecycle (see lifecycle.go for the transition rules)

DESIGN PRINCIPLES:
  1. Immutability: Locked documents are corrected via compensating documents
  2. Precision: Uses decimal.Decimal for amounts - never floating point
  3. Type Safety: Strong typing for tenant/document IDs
  4. Auditability: Every transition and submission attempt leaves a record

SEE ALSO:
  - lifecycle.go: State machine driving the legal lifecycle
  - store.go: Persistence contracts (append-only where the law requires it)
  - validate.go: Pre-submission structural and business validation
*/
package fiscal

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string

type DocumentID string

// NewDocumentID mints a fresh document identifier.
func NewDocumentID() DocumentID {
	return DocumentID(uuid.NewString())
}

// =============================================================================
// STATUS - Legal lifecycle of a fiscal document
// =============================================================================

type Status string

const (
	StatusDraft     Status = "draft"
	StatusValidated Status = "validated"
	StatusSigned    Status = "signed"
	StatusQueued    Status = "queued"
	StatusSubmitted Status = "submitted"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusError     Status = "error"
)

// Locked reports whether the document has entered its immutable phase.
// From signed onward only the status and append-linked fields (external
// submission id, authority response code) may change.
func (s Status) Locked() bool {
	switch s {
	case StatusSigned, StatusQueued, StatusSubmitted, StatusAccepted, StatusRejected, StatusError:
		return true
	}
	return false
}

// Terminal reports whether the lifecycle has ended. Error is terminal only
// once the retry budget is exhausted; the worker tracks that separately.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// =============================================================================
// DIRECTION
// =============================================================================

type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// =============================================================================
// FISCAL DOCUMENT
// =============================================================================

type DocumentKind string

const (
	KindInvoice       DocumentKind = "invoice"
	KindRectification DocumentKind = "rectification"
)

// FiscalDocument is the central ledger record. Financial attributes are
// mutable only while the status is pre-lock (draft, validated). After
// signing, corrections require a new compensating document that references
// this one via RectifiesID.
type FiscalDocument struct {
	ID       DocumentID
	TenantID TenantID
	Kind     DocumentKind

	// Numbering: series + per-tenant gapless sequence, assigned when the
	// document passes validation.
	Series         string
	SequenceNumber int64

	Direction Direction

	// Amounts use fixed-point decimals. Invariant: Net + Tax == Gross
	// within the currency's rounding tolerance (see validate.go).
	Gross    decimal.Decimal
	Tax      decimal.Decimal
	Net      decimal.Decimal
	Currency string

	// Counterpart (customer for outbound, supplier for inbound).
	CounterpartName  string
	CounterpartTaxID string
	CounterpartIBAN  string

	// Payload to be signed and submitted. SignedHash is set exactly once,
	// by the validated -> signed transition, and locks the document.
	Payload    string
	SignedHash string

	Status Status

	// Append-linked fields: writable after lock, never rewritten once set.
	ExternalID    string // authority-assigned submission id
	AuthorityCode string // authority response code for the final decision

	// RectifiesID links a compensating document to the original it corrects.
	RectifiesID DocumentID

	// Validation errors from the last failed validate call. Pre-lock only.
	ValidationErrors []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Rectification builds a compensating document for a locked original.
// The original is never touched; legal cancellation is expressed as this
// new record working back through the same lifecycle.
func (d *FiscalDocument) Rectification(now time.Time) *FiscalDocument {
	return &FiscalDocument{
		ID:               NewDocumentID(),
		TenantID:         d.TenantID,
		Kind:             KindRectification,
		Series:           d.Series,
		Direction:        d.Direction,
		Gross:            d.Gross.Neg(),
		Tax:              d.Tax.Neg(),
		Net:              d.Net.Neg(),
		Currency:         d.Currency,
		CounterpartName:  d.CounterpartName,
		CounterpartTaxID: d.CounterpartTaxID,
		CounterpartIBAN:  d.CounterpartIBAN,
		Status:           StatusDraft,
		RectifiesID:      d.ID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// =============================================================================
// SUBMISSION ATTEMPT - Append-only, 1..N per document
// =============================================================================

type AttemptOutcome string

const (
	OutcomeAccepted AttemptOutcome = "accepted" // synchronous ack, not final decision
	OutcomeRejected AttemptOutcome = "rejected" // legal rejection, terminal
	OutcomeError    AttemptOutcome = "error"    // transport or internal failure
)

// SubmissionAttempt records one communication with the authority. Rows are
// immutable after creation and totally ordered by (DocumentID, Seq).
type SubmissionAttempt struct {
	ID          string
	DocumentID  DocumentID
	TenantID    TenantID
	Seq         int // 1-based attempt sequence
	Channel     string
	Outcome     AttemptOutcome
	ExternalID  string
	ResponseRef string
	Duration    time.Duration
	At          time.Time
}

// =============================================================================
// TENANT CONFIG
// =============================================================================

// AuthorityMode selects which Authority Client implementation serves a
// tenant. Never hard-coded: always read from the tenant's configuration.
type AuthorityMode string

const (
	ModeSimulated AuthorityMode = "simulated"
	ModeLive      AuthorityMode = "live"
)

// TenantConfig is owned by the tenant admin and, unlike everything else in
// this package, freely mutable.
type TenantConfig struct {
	ID              TenantID
	Name            string
	Mode            AuthorityMode
	Endpoint        string
	APIKey          string
	CertRef         string
	Series          string
	MaxAttempts     int
	DefaultCurrency string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DefaultMaxAttempts bounds the retry budget when a tenant does not set one.
const DefaultMaxAttempts = 3

// EffectiveMaxAttempts returns the tenant's retry budget, falling back to
// the default for unconfigured tenants.
func (tc *TenantConfig) EffectiveMaxAttempts() int {
	if tc == nil || tc.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return tc.MaxAttempts
}

/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the domain model from
  the external contract. Amounts travel as decimal strings, never floats.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Structural parsing happens in handlers; business validation is the
  validation service's job and surfaces through the validate endpoint.

SEE ALSO:
  - handlers.go: Uses these types
  - server.go: Router setup and middleware
*/
package api

import (
	"time"

	"github.com/arvo/fiscal-engine/fiscal"
)

// =============================================================================
// DOCUMENTS
// =============================================================================

// DocumentDTO represents a fiscal document in API responses.
type DocumentDTO struct {
	ID               string   `json:"id"`
	TenantID         string   `json:"tenantId"`
	Kind             string   `json:"kind"`
	Series           string   `json:"series"`
	SequenceNumber   int64    `json:"sequenceNumber"`
	Direction        string   `json:"direction"`
	Gross            string   `json:"gross"`
	Tax              string   `json:"tax"`
	Net              string   `json:"net"`
	Currency         string   `json:"currency"`
	CounterpartName  string   `json:"counterpartName"`
	CounterpartTaxID string   `json:"counterpartTaxId"`
	CounterpartIBAN  string   `json:"counterpartIban,omitempty"`
	Status           string   `json:"status"`
	SignedHash       string   `json:"signedHash,omitempty"`
	ExternalID       string   `json:"externalId,omitempty"`
	AuthorityCode    string   `json:"authorityCode,omitempty"`
	RectifiesID      string   `json:"rectifiesId,omitempty"`
	ValidationErrors []string `json:"validationErrors,omitempty"`
	CreatedAt        string   `json:"createdAt"`
	UpdatedAt        string   `json:"updatedAt"`
}

func toDocumentDTO(doc *fiscal.FiscalDocument) DocumentDTO {
	return DocumentDTO{
		ID:               string(doc.ID),
		TenantID:         string(doc.TenantID),
		Kind:             string(doc.Kind),
		Series:           doc.Series,
		SequenceNumber:   doc.SequenceNumber,
		Direction:        string(doc.Direction),
		Gross:            doc.Gross.String(),
		Tax:              doc.Tax.String(),
		Net:              doc.Net.String(),
		Currency:         doc.Currency,
		CounterpartName:  doc.CounterpartName,
		CounterpartTaxID: doc.CounterpartTaxID,
		CounterpartIBAN:  doc.CounterpartIBAN,
		Status:           string(doc.Status),
		SignedHash:       doc.SignedHash,
		ExternalID:       doc.ExternalID,
		AuthorityCode:    doc.AuthorityCode,
		RectifiesID:      string(doc.RectifiesID),
		ValidationErrors: doc.ValidationErrors,
		CreatedAt:        doc.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        doc.UpdatedAt.Format(time.RFC3339),
	}
}

// CreateDocumentRequest creates a new draft.
type CreateDocumentRequest struct {
	TenantID         string `json:"tenantId"`
	Direction        string `json:"direction"`
	Series           string `json:"series,omitempty"`
	Gross            string `json:"gross"`
	Tax              string `json:"tax"`
	Net              string `json:"net"`
	Currency         string `json:"currency,omitempty"`
	CounterpartName  string `json:"counterpartName"`
	CounterpartTaxID string `json:"counterpartTaxId"`
	CounterpartIBAN  string `json:"counterpartIban,omitempty"`
	Payload          string `json:"payload"`
}

// UpdateDocumentRequest rewrites a draft's mutable attributes.
type UpdateDocumentRequest struct {
	Direction        string `json:"direction"`
	Gross            string `json:"gross"`
	Tax              string `json:"tax"`
	Net              string `json:"net"`
	Currency         string `json:"currency"`
	CounterpartName  string `json:"counterpartName"`
	CounterpartTaxID string `json:"counterpartTaxId"`
	CounterpartIBAN  string `json:"counterpartIban,omitempty"`
	Payload          string `json:"payload"`
}

// ValidationResponse reports a validate call's outcome.
type ValidationResponse struct {
	Valid    bool        `json:"valid"`
	Errors   []string    `json:"errors,omitempty"`
	Document DocumentDTO `json:"document"`
}

// =============================================================================
// ATTEMPTS & AUDIT
// =============================================================================

type AttemptDTO struct {
	ID          string `json:"id"`
	Seq         int    `json:"seq"`
	Channel     string `json:"channel"`
	Outcome     string `json:"outcome"`
	ExternalID  string `json:"externalId,omitempty"`
	ResponseRef string `json:"responseRef,omitempty"`
	DurationMS  int64  `json:"durationMs"`
	At          string `json:"at"`
}

func toAttemptDTO(a fiscal.SubmissionAttempt) AttemptDTO {
	return AttemptDTO{
		ID:          a.ID,
		Seq:         a.Seq,
		Channel:     a.Channel,
		Outcome:     string(a.Outcome),
		ExternalID:  a.ExternalID,
		ResponseRef: a.ResponseRef,
		DurationMS:  a.Duration.Milliseconds(),
		At:          a.At.Format(time.RFC3339Nano),
	}
}

type AuditEntryDTO struct {
	ID         string `json:"id"`
	At         string `json:"at"`
	DocumentID string `json:"documentId"`
	Actor      string `json:"actor"`
	ActorType  string `json:"actorType"`
	FromState  string `json:"fromState"`
	ToState    string `json:"toState"`
	Cause      string `json:"cause"`
}

func toAuditEntryDTO(e fiscal.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:         e.ID,
		At:         e.At.Format(time.RFC3339Nano),
		DocumentID: string(e.DocumentID),
		Actor:      e.Actor,
		ActorType:  string(e.ActorType),
		FromState:  string(e.FromState),
		ToState:    string(e.ToState),
		Cause:      e.Cause,
	}
}

// =============================================================================
// TENANTS
// =============================================================================

type TenantDTO struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Mode            string `json:"mode"`
	Endpoint        string `json:"endpoint,omitempty"`
	CertRef         string `json:"certRef,omitempty"`
	Series          string `json:"series"`
	MaxAttempts     int    `json:"maxAttempts"`
	DefaultCurrency string `json:"defaultCurrency"`
}

func toTenantDTO(cfg fiscal.TenantConfig) TenantDTO {
	return TenantDTO{
		ID:              string(cfg.ID),
		Name:            cfg.Name,
		Mode:            string(cfg.Mode),
		Endpoint:        cfg.Endpoint,
		CertRef:         cfg.CertRef,
		Series:          cfg.Series,
		MaxAttempts:     cfg.EffectiveMaxAttempts(),
		DefaultCurrency: cfg.DefaultCurrency,
	}
}

// SaveTenantRequest creates or updates a tenant. The api key is accepted on
// write but never echoed back.
type SaveTenantRequest struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Mode            string `json:"mode"`
	Endpoint        string `json:"endpoint,omitempty"`
	APIKey          string `json:"apiKey,omitempty"`
	CertRef         string `json:"certRef,omitempty"`
	Series          string `json:"series,omitempty"`
	MaxAttempts     int    `json:"maxAttempts,omitempty"`
	DefaultCurrency string `json:"defaultCurrency,omitempty"`
}

// TestConnectionResponse reports a connectivity check.
type TestConnectionResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

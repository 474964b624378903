/*
handlers.go - HTTP API handlers for the fiscal document engine

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic. There is no
  synchronous wait for a final authority decision anywhere: submission
  endpoints return immediately and clients observe the document's state.

ENDPOINTS:
  Documents:
    POST   /api/documents                 Create draft
    GET    /api/documents/{id}            Get document
    PUT    /api/documents/{id}            Update draft (pre-lock only)
    POST   /api/documents/{id}/validate   Run validation (draft -> validated)
    POST   /api/documents/{id}/sign       Sign and lock (validated -> signed)
    POST   /api/documents/{id}/submit     Enqueue submission (idempotent)
    POST   /api/documents/{id}/cancel     Create compensating document
    GET    /api/documents/{id}/attempts   Submission attempt history
    GET    /api/documents/{id}/audit      Audit trail

  Tenants:
    GET    /api/tenants                   List tenants
    POST   /api/tenants                   Create/update tenant
    GET    /api/tenants/{id}              Get tenant
    POST   /api/tenants/{id}/test-connection  Verify authority reachability

  Operations:
    GET    /api/deadletters               Documents requiring manual action

ERROR HANDLING:
  - 400: Malformed input
  - 404: Unknown document/tenant
  - 409: Immutability or lifecycle violation
  - 422: Business validation failure
  - 500: Internal errors (including failed audit writes)

SECURITY NOTE:
  Identity and permissions are resolved by the surrounding platform; the
  actor arrives in the X-Actor header and is trusted here.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/arvo/fiscal-engine/authority"
	"github.com/arvo/fiscal-engine/fiscal"
	"github.com/arvo/fiscal-engine/submit"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers. Everything is injected;
// no ambient lookups.
type Handler struct {
	Documents   fiscal.DocumentStore
	Attempts    fiscal.AttemptStore
	Tenants     fiscal.TenantStore
	Audit       fiscal.AuditLog
	Lifecycle   *fiscal.Lifecycle
	Submissions *submit.Service
	Clients     authority.Selector
}

// actor extracts the acting identity from the request. The platform in
// front of this service authenticates; we just attribute.
func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "anonymous"
}

// =============================================================================
// DOCUMENT HANDLERS
// =============================================================================

func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tenant, err := h.Tenants.GetTenant(r.Context(), fiscal.TenantID(req.TenantID))
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown tenant", err)
		return
	}

	gross, tax, net, err := parseAmounts(req.Gross, req.Tax, req.Net)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Amounts must be decimal strings", err)
		return
	}

	now := time.Now().UTC()
	doc := &fiscal.FiscalDocument{
		ID:               fiscal.NewDocumentID(),
		TenantID:         tenant.ID,
		Kind:             fiscal.KindInvoice,
		Series:           firstNonEmpty(req.Series, tenant.Series),
		Direction:        fiscal.Direction(req.Direction),
		Gross:            gross,
		Tax:              tax,
		Net:              net,
		Currency:         firstNonEmpty(req.Currency, tenant.DefaultCurrency),
		CounterpartName:  req.CounterpartName,
		CounterpartTaxID: req.CounterpartTaxID,
		CounterpartIBAN:  req.CounterpartIBAN,
		Payload:          req.Payload,
		Status:           fiscal.StatusDraft,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := h.Documents.CreateDocument(r.Context(), doc); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create document", err)
		return
	}
	if err := h.Audit.Record(r.Context(), fiscal.NewAuditEntry(doc.TenantID, doc.ID, actor(r), fiscal.ActorUser,
		fiscal.StatusDraft, fiscal.StatusDraft, "document created")); err != nil {
		writeError(w, http.StatusInternalServerError, "Audit write failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentDTO(doc))
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Documents.GetDocument(r.Context(), fiscal.DocumentID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentDTO(doc))
}

func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	var req UpdateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	doc, err := h.Documents.GetDocument(r.Context(), fiscal.DocumentID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	gross, tax, net, err := parseAmounts(req.Gross, req.Tax, req.Net)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Amounts must be decimal strings", err)
		return
	}

	doc.Direction = fiscal.Direction(req.Direction)
	doc.Gross, doc.Tax, doc.Net = gross, tax, net
	doc.Currency = req.Currency
	doc.CounterpartName = req.CounterpartName
	doc.CounterpartTaxID = req.CounterpartTaxID
	doc.CounterpartIBAN = req.CounterpartIBAN
	doc.Payload = req.Payload
	doc.UpdatedAt = time.Now().UTC()

	if err := h.Documents.UpdateDraft(r.Context(), doc); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentDTO(doc))
}

func (h *Handler) ValidateDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Lifecycle.Validate(r.Context(), fiscal.DocumentID(chi.URLParam(r, "id")), actor(r))

	var vErr *fiscal.ValidationFailedError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ValidationResponse{Valid: true, Document: toDocumentDTO(doc)})
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusUnprocessableEntity, ValidationResponse{
			Valid:    false,
			Errors:   vErr.Errors,
			Document: toDocumentDTO(doc),
		})
	default:
		writeDomainError(w, err)
	}
}

func (h *Handler) SignDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Lifecycle.Sign(r.Context(), fiscal.DocumentID(chi.URLParam(r, "id")), actor(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentDTO(doc))
}

func (h *Handler) SubmitDocument(w http.ResponseWriter, r *http.Request) {
	id := fiscal.DocumentID(chi.URLParam(r, "id"))
	if err := h.Submissions.Enqueue(r.Context(), id, actor(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	// Asynchronous from here on: clients poll the document's status.
	doc, err := h.Documents.GetDocument(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toDocumentDTO(doc))
}

func (h *Handler) CancelDocument(w http.ResponseWriter, r *http.Request) {
	rect, err := h.Lifecycle.Cancel(r.Context(), fiscal.DocumentID(chi.URLParam(r, "id")), actor(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentDTO(rect))
}

func (h *Handler) GetAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.Attempts.Attempts(r.Context(), fiscal.DocumentID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load attempts", err)
		return
	}
	dtos := make([]AttemptDTO, 0, len(attempts))
	for _, a := range attempts {
		dtos = append(dtos, toAttemptDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	docID := fiscal.DocumentID(chi.URLParam(r, "id"))
	entries, err := h.Audit.Query(r.Context(), fiscal.AuditFilter{DocumentID: &docID})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load audit trail", err)
		return
	}
	dtos := make([]AuditEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toAuditEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// OPERATIONS
// =============================================================================

// ListDeadLetters surfaces documents parked in terminal error. These are
// never re-queued automatically; an operator has to act.
func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	tenantID := fiscal.TenantID(r.URL.Query().Get("tenant"))
	docs, err := h.Submissions.DeadLetters(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list dead letters", err)
		return
	}
	dtos := make([]DocumentDTO, 0, len(docs))
	for _, doc := range docs {
		dtos = append(dtos, toDocumentDTO(doc))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// TENANT HANDLERS
// =============================================================================

func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.Tenants.ListTenants(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tenants", err)
		return
	}
	dtos := make([]TenantDTO, 0, len(tenants))
	for _, t := range tenants {
		dtos = append(dtos, toTenantDTO(t))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SaveTenant(w http.ResponseWriter, r *http.Request) {
	var req SaveTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "Tenant id is required", nil)
		return
	}
	mode := fiscal.AuthorityMode(req.Mode)
	if mode == "" {
		mode = fiscal.ModeSimulated
	}

	now := time.Now().UTC()
	cfg := fiscal.TenantConfig{
		ID:              fiscal.TenantID(req.ID),
		Name:            req.Name,
		Mode:            mode,
		Endpoint:        req.Endpoint,
		APIKey:          req.APIKey,
		CertRef:         req.CertRef,
		Series:          req.Series,
		MaxAttempts:     req.MaxAttempts,
		DefaultCurrency: firstNonEmpty(req.DefaultCurrency, "EUR"),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := h.Tenants.SaveTenant(r.Context(), cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save tenant", err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantDTO(cfg))
}

func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Tenants.GetTenant(r.Context(), fiscal.TenantID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantDTO(*cfg))
}

func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Tenants.GetTenant(r.Context(), fiscal.TenantID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	client := h.Clients.For(cfg)
	if err := client.TestConnection(r.Context(), authority.CredentialsFor(cfg)); err != nil {
		writeJSON(w, http.StatusOK, TestConnectionResponse{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, TestConnectionResponse{OK: true})
}

// =============================================================================
// HELPERS
// =============================================================================

func parseAmounts(gross, tax, net string) (g, t, n decimal.Decimal, err error) {
	if g, err = decimal.NewFromString(gross); err != nil {
		return
	}
	if t, err = decimal.NewFromString(tax); err != nil {
		return
	}
	n, err = decimal.NewFromString(net)
	return
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// writeDomainError maps domain error kinds onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fiscal.ErrDocumentNotFound), errors.Is(err, fiscal.ErrTenantNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, fiscal.ErrImmutable):
		writeError(w, http.StatusConflict, "Document is locked", err)
	case errors.Is(err, fiscal.ErrIllegalTransition):
		writeError(w, http.StatusConflict, "Operation not legal in current status", err)
	case errors.Is(err, fiscal.ErrValidationFailed):
		writeError(w, http.StatusUnprocessableEntity, "Validation failed", err)
	case errors.Is(err, fiscal.ErrSigningFailed):
		writeError(w, http.StatusBadGateway, "Signing collaborator failed", err)
	case errors.Is(err, fiscal.ErrConcurrencyConflict):
		// Someone else is driving this document; report the observable state.
		writeError(w, http.StatusConflict, "Document is being processed", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

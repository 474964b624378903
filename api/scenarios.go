/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the engine with realistic
	data for testing and demos. Each scenario creates a demo tenant and a
	set of documents at different points of the legal lifecycle.

AVAILABLE SCENARIOS:

	invoice-flow:  Documents in every pre-terminal state plus one accepted
	dead-letter:   A document that exhausted its retry budget
	rectification: An accepted invoice with a compensating document

HOW SCENARIOS WORK:
 1. Create (or update) a dedicated demo tenant in simulated mode
 2. Create documents and walk them through the lifecycle service
 3. Append the submission attempts the walk would have produced

NOTE:

	The ledger is append-only, so loading a scenario ADDS data: there is no
	reset. Every load mints fresh document ids under the demo tenant. Only
	use in development/demo environments.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "invoice-flow"}

SEE ALSO:
  - fiscal/lifecycle.go: The state machine the loaders drive
  - server.go: Route registration
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arvo/fiscal-engine/fiscal"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// Scenario describes a loadable demo data set.
type Scenario struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var scenarios = []Scenario{
	{
		ID:          "invoice-flow",
		Name:        "Invoice lifecycle",
		Description: "Documents in draft, validated, signed, submitted and accepted states",
	},
	{
		ID:          "dead-letter",
		Name:        "Dead-lettered submission",
		Description: "A document in terminal error after exhausting its retry budget",
	},
	{
		ID:          "rectification",
		Name:        "Compensating document",
		Description: "An accepted invoice cancelled via a rectification draft",
	},
}

// demoTenantID is where every scenario writes its documents.
const demoTenantID = fiscal.TenantID("demo")

// =============================================================================
// HANDLERS
// =============================================================================

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

type loadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req loadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if err := h.ensureDemoTenant(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create demo tenant", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "invoice-flow":
		err = h.loadInvoiceFlowScenario(ctx)
	case "dead-letter":
		err = h.loadDeadLetterScenario(ctx)
	case "rectification":
		err = h.loadRectificationScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario %q", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"tenant":   string(demoTenantID),
	})
}

// =============================================================================
// LOADERS
// =============================================================================

func (h *Handler) ensureDemoTenant(ctx context.Context) error {
	now := time.Now().UTC()
	return h.Tenants.SaveTenant(ctx, fiscal.TenantConfig{
		ID:              demoTenantID,
		Name:            "Demo Tenant",
		Mode:            fiscal.ModeSimulated,
		APIKey:          "demo-key",
		CertRef:         "cert:demo",
		Series:          "D",
		MaxAttempts:     3,
		DefaultCurrency: "EUR",
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

// demoDraft builds one demo invoice draft with reconciling totals.
func demoDraft(net string, counterpart string) *fiscal.FiscalDocument {
	n := decimal.RequireFromString(net)
	tax := n.Mul(decimal.RequireFromString("0.21")).Round(2)
	now := time.Now().UTC()
	return &fiscal.FiscalDocument{
		ID:               fiscal.NewDocumentID(),
		TenantID:         demoTenantID,
		Kind:             fiscal.KindInvoice,
		Series:           "D",
		Direction:        fiscal.DirectionOutbound,
		Gross:            n.Add(tax),
		Tax:              tax,
		Net:              n,
		Currency:         "EUR",
		CounterpartName:  counterpart,
		CounterpartTaxID: "B65410011",
		Payload:          fmt.Sprintf("<invoice customer=%q net=%q/>", counterpart, net),
		Status:           fiscal.StatusDraft,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// walk advances a freshly created draft through the named statuses using the
// lifecycle service, so sequence numbers, hashes and audit entries are real.
func (h *Handler) walk(ctx context.Context, doc *fiscal.FiscalDocument, until fiscal.Status) error {
	if err := h.Documents.CreateDocument(ctx, doc); err != nil {
		return err
	}
	if until == fiscal.StatusDraft {
		return nil
	}

	current, err := h.Lifecycle.Validate(ctx, doc.ID, "scenario-loader")
	if err != nil {
		return err
	}
	if until == fiscal.StatusValidated {
		return nil
	}

	if current, err = h.Lifecycle.Sign(ctx, doc.ID, "scenario-loader"); err != nil {
		return err
	}
	if until == fiscal.StatusSigned {
		return nil
	}

	if err := h.Lifecycle.MarkQueued(ctx, current, "scenario-loader"); err != nil {
		return err
	}
	if until == fiscal.StatusQueued {
		return nil
	}

	externalID := "SIM-" + uuid.NewString()[:16]
	if err := h.recordAttempt(ctx, current, 1, fiscal.OutcomeAccepted, externalID); err != nil {
		return err
	}
	if err := h.Lifecycle.MarkSubmitted(ctx, current, externalID); err != nil {
		return err
	}
	if until == fiscal.StatusSubmitted {
		return nil
	}

	return h.Lifecycle.MarkAccepted(ctx, current, "R-0000")
}

func (h *Handler) recordAttempt(ctx context.Context, doc *fiscal.FiscalDocument, seq int, outcome fiscal.AttemptOutcome, externalID string) error {
	return h.Attempts.AppendAttempt(ctx, fiscal.SubmissionAttempt{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		TenantID:   doc.TenantID,
		Seq:        seq,
		Channel:    string(fiscal.ModeSimulated),
		Outcome:    outcome,
		ExternalID: externalID,
		Duration:   120 * time.Millisecond,
		At:         time.Now().UTC(),
	})
}

// loadInvoiceFlowScenario leaves one document in each pre-terminal state and
// one fully accepted.
func (h *Handler) loadInvoiceFlowScenario(ctx context.Context) error {
	steps := []struct {
		net         string
		counterpart string
		until       fiscal.Status
	}{
		{"100.00", "Borrador SL", fiscal.StatusDraft},
		{"250.00", "Validado SA", fiscal.StatusValidated},
		{"380.50", "Firmado SL", fiscal.StatusSigned},
		{"512.30", "En Tramite SA", fiscal.StatusSubmitted},
		{"999.99", "Aceptado SL", fiscal.StatusAccepted},
	}
	for _, step := range steps {
		if err := h.walk(ctx, demoDraft(step.net, step.counterpart), step.until); err != nil {
			return fmt.Errorf("scenario step %s: %w", step.until, err)
		}
	}
	return nil
}

// loadDeadLetterScenario parks a document in terminal error with a spent
// retry budget of three attempts.
func (h *Handler) loadDeadLetterScenario(ctx context.Context) error {
	doc := demoDraft("640.00", "Inalcanzable SL")
	if err := h.walk(ctx, doc, fiscal.StatusQueued); err != nil {
		return err
	}

	current, err := h.Documents.GetDocument(ctx, doc.ID)
	if err != nil {
		return err
	}
	for seq := 1; seq <= 3; seq++ {
		if err := h.recordAttempt(ctx, current, seq, fiscal.OutcomeError, ""); err != nil {
			return err
		}
		if err := h.Lifecycle.MarkError(ctx, current, "authority unavailable: demo outage"); err != nil {
			return err
		}
		if seq < 3 {
			if err := h.Lifecycle.RetryToQueued(ctx, current, seq+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadRectificationScenario accepts an invoice, then cancels it via a
// compensating document left in draft.
func (h *Handler) loadRectificationScenario(ctx context.Context) error {
	doc := demoDraft("1500.00", "Anulado SA")
	if err := h.walk(ctx, doc, fiscal.StatusAccepted); err != nil {
		return err
	}
	_, err := h.Lifecycle.Cancel(ctx, doc.ID, "scenario-loader")
	return err
}

package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvo/fiscal-engine/fiscal"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testDocument(status fiscal.Status) *fiscal.FiscalDocument {
	now := time.Now().UTC()
	return &fiscal.FiscalDocument{
		ID:               fiscal.NewDocumentID(),
		TenantID:         "acme",
		Kind:             fiscal.KindInvoice,
		Series:           "A",
		Direction:        fiscal.DirectionOutbound,
		Gross:            decimal.RequireFromString("121.00"),
		Tax:              decimal.RequireFromString("21.00"),
		Net:              decimal.RequireFromString("100.00"),
		Currency:         "EUR",
		CounterpartName:  "Clientes Unidos SL",
		CounterpartTaxID: "B65410011",
		Payload:          "<invoice/>",
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// =============================================================================
// DOCUMENT ROUNDTRIP
// =============================================================================

func TestStore_DocumentRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := testDocument(fiscal.StatusDraft)
	doc.ValidationErrors = []string{"first violation", "second violation"}
	require.NoError(t, store.CreateDocument(ctx, doc))

	got, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)

	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, doc.TenantID, got.TenantID)
	assert.True(t, got.Gross.Equal(doc.Gross), "decimal survives the TEXT column")
	assert.True(t, got.Tax.Equal(doc.Tax))
	assert.True(t, got.Net.Equal(doc.Net))
	assert.Equal(t, doc.CounterpartTaxID, got.CounterpartTaxID)
	assert.Equal(t, []string{"first violation", "second violation"}, got.ValidationErrors)
}

func TestStore_GetDocument_Missing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetDocument(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, fiscal.ErrDocumentNotFound)
}

// =============================================================================
// DRAFT UPDATES AND THE LOCK
// =============================================================================

func TestStore_UpdateDraft_PreLock(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := testDocument(fiscal.StatusDraft)
	require.NoError(t, store.CreateDocument(ctx, doc))

	doc.CounterpartName = "Proveedores Reunidos SA"
	doc.Gross = decimal.RequireFromString("242.00")
	doc.Tax = decimal.RequireFromString("42.00")
	doc.Net = decimal.RequireFromString("200.00")
	require.NoError(t, store.UpdateDraft(ctx, doc))

	got, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Proveedores Reunidos SA", got.CounterpartName)
	assert.True(t, got.Gross.Equal(decimal.RequireFromString("242.00")))
}

func TestStore_UpdateDraft_LockedDocument_Refused(t *testing.T) {
	// GIVEN: A document stored in a post-lock status
	// WHEN: Rewriting its attributes through UpdateDraft
	// THEN: ErrImmutable, nothing changes

	store := newTestStore(t)
	ctx := context.Background()

	doc := testDocument(fiscal.StatusSigned)
	require.NoError(t, store.CreateDocument(ctx, doc))

	doc.CounterpartName = "Someone Else SA"
	err := store.UpdateDraft(ctx, doc)
	assert.ErrorIs(t, err, fiscal.ErrImmutable)

	got, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Clientes Unidos SL", got.CounterpartName)
}

func TestStore_UpdateDraft_Missing(t *testing.T) {
	store := newTestStore(t)
	doc := testDocument(fiscal.StatusDraft)

	err := store.UpdateDraft(context.Background(), doc)
	assert.ErrorIs(t, err, fiscal.ErrDocumentNotFound)
}

func TestStore_LockGuardTrigger_BlocksDirectSQL(t *testing.T) {
	// GIVEN: A locked document and raw database access bypassing the Go layer
	// WHEN: Updating a frozen financial column directly
	// THEN: The trigger aborts the statement

	store := newTestStore(t)
	ctx := context.Background()

	doc := testDocument(fiscal.StatusSigned)
	require.NoError(t, store.CreateDocument(ctx, doc))

	_, err := store.db.Exec("UPDATE documents SET gross = '999.99' WHERE id = ?", string(doc.ID))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")

	// Status changes with untouched financial columns still pass.
	_, err = store.db.Exec("UPDATE documents SET status = 'queued' WHERE id = ?", string(doc.ID))
	assert.NoError(t, err)
}

func TestStore_DeleteDocument_BlockedByTrigger(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := testDocument(fiscal.StatusDraft)
	require.NoError(t, store.CreateDocument(ctx, doc))

	_, err := store.db.Exec("DELETE FROM documents WHERE id = ?", string(doc.ID))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")
}

// =============================================================================
// STATUS CAS
// =============================================================================

func TestStore_Transition_CAS(t *testing.T) {
	// GIVEN: A signed document
	// WHEN: Two actors attempt signed -> queued
	// THEN: The first CAS wins, the second loses with ErrConcurrencyConflict

	store := newTestStore(t)
	ctx := context.Background()

	doc := testDocument(fiscal.StatusSigned)
	require.NoError(t, store.CreateDocument(ctx, doc))

	require.NoError(t, store.Transition(ctx, doc.ID, fiscal.StatusSigned, fiscal.StatusQueued, fiscal.TransitionPatch{}))

	err := store.Transition(ctx, doc.ID, fiscal.StatusSigned, fiscal.StatusQueued, fiscal.TransitionPatch{})
	assert.ErrorIs(t, err, fiscal.ErrConcurrencyConflict)
}

func TestStore_Transition_AppliesPatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := testDocument(fiscal.StatusQueued)
	require.NoError(t, store.CreateDocument(ctx, doc))

	externalID := "EXT-42"
	require.NoError(t, store.Transition(ctx, doc.ID, fiscal.StatusQueued, fiscal.StatusSubmitted,
		fiscal.TransitionPatch{ExternalID: &externalID}))

	got, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusSubmitted, got.Status)
	assert.Equal(t, "EXT-42", got.ExternalID)
	assert.Empty(t, got.AuthorityCode, "unpatched columns stay untouched")
}

func TestStore_Transition_PatchFieldsWriteOnce(t *testing.T) {
	// GIVEN: A submitted document carrying its authority-assigned reference
	// WHEN: The document cycles through error and back to submitted with a
	//       different reference in the patch
	// THEN: The first reference survives

	store := newTestStore(t)
	ctx := context.Background()

	doc := testDocument(fiscal.StatusQueued)
	require.NoError(t, store.CreateDocument(ctx, doc))

	first := "EXT-FIRST"
	require.NoError(t, store.Transition(ctx, doc.ID, fiscal.StatusQueued, fiscal.StatusSubmitted,
		fiscal.TransitionPatch{ExternalID: &first}))

	require.NoError(t, store.Transition(ctx, doc.ID, fiscal.StatusSubmitted, fiscal.StatusError, fiscal.TransitionPatch{}))
	require.NoError(t, store.Transition(ctx, doc.ID, fiscal.StatusError, fiscal.StatusQueued, fiscal.TransitionPatch{}))

	second := "EXT-SECOND"
	require.NoError(t, store.Transition(ctx, doc.ID, fiscal.StatusQueued, fiscal.StatusSubmitted,
		fiscal.TransitionPatch{ExternalID: &second}))

	got, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "EXT-FIRST", got.ExternalID)
}

func TestStore_CreateDocument_DuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := testDocument(fiscal.StatusDraft)
	require.NoError(t, store.CreateDocument(ctx, doc))

	again := testDocument(fiscal.StatusDraft)
	again.ID = doc.ID
	assert.Error(t, store.CreateDocument(ctx, again))
}

func TestStore_Transition_Missing(t *testing.T) {
	store := newTestStore(t)

	err := store.Transition(context.Background(), "no-such-id", fiscal.StatusSigned, fiscal.StatusQueued, fiscal.TransitionPatch{})
	assert.ErrorIs(t, err, fiscal.ErrDocumentNotFound)
}

// =============================================================================
// GAPLESS NUMBERING
// =============================================================================

func TestStore_NextSequence_GaplessPerTenantAndSeries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		got, err := store.NextSequence(ctx, "acme", "A")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// Other series and tenants count independently.
	got, err := store.NextSequence(ctx, "acme", "B")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	got, err = store.NextSequence(ctx, "globex", "A")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestStore_SeriesUniqueness_Enforced(t *testing.T) {
	// GIVEN: A document holding sequence number 1 in series A
	// WHEN: Inserting a second document with the same number
	// THEN: The unique index rejects it

	store := newTestStore(t)
	ctx := context.Background()

	first := testDocument(fiscal.StatusValidated)
	first.SequenceNumber = 1
	require.NoError(t, store.CreateDocument(ctx, first))

	second := testDocument(fiscal.StatusValidated)
	second.SequenceNumber = 1
	assert.Error(t, store.CreateDocument(ctx, second))

	// Drafts without a number (0) never collide.
	third := testDocument(fiscal.StatusDraft)
	fourth := testDocument(fiscal.StatusDraft)
	assert.NoError(t, store.CreateDocument(ctx, third))
	assert.NoError(t, store.CreateDocument(ctx, fourth))
}

// =============================================================================
// APPEND-ONLY TABLES
// =============================================================================

func TestStore_Attempts_AppendAndOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docID := fiscal.NewDocumentID()
	for seq := 3; seq >= 1; seq-- { // insert out of order
		require.NoError(t, store.AppendAttempt(ctx, fiscal.SubmissionAttempt{
			ID: string(fiscal.NewDocumentID()), DocumentID: docID, TenantID: "acme",
			Seq: seq, Channel: "simulated", Outcome: fiscal.OutcomeError,
			Duration: 120 * time.Millisecond, At: time.Now().UTC(),
		}))
	}

	attempts, err := store.Attempts(ctx, docID)
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	for i, a := range attempts {
		assert.Equal(t, i+1, a.Seq, "attempts come back ordered by seq")
	}
	assert.Equal(t, 120*time.Millisecond, attempts[0].Duration)
}

func TestStore_Attempts_DuplicateSeq_Rejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docID := fiscal.NewDocumentID()
	attempt := fiscal.SubmissionAttempt{
		ID: "a-1", DocumentID: docID, TenantID: "acme",
		Seq: 1, Channel: "simulated", Outcome: fiscal.OutcomeError, At: time.Now().UTC(),
	}
	require.NoError(t, store.AppendAttempt(ctx, attempt))

	attempt.ID = "a-2"
	assert.Error(t, store.AppendAttempt(ctx, attempt), "one row per (document, seq)")
}

func TestStore_AttemptTriggers_BlockRewrites(t *testing.T) {
	// GIVEN: A recorded attempt and raw database access
	// WHEN: Updating or deleting the row directly
	// THEN: Both statements abort

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendAttempt(ctx, fiscal.SubmissionAttempt{
		ID: "a-1", DocumentID: "doc-1", TenantID: "acme",
		Seq: 1, Channel: "simulated", Outcome: fiscal.OutcomeError, At: time.Now().UTC(),
	}))

	_, err := store.db.Exec("UPDATE submission_attempts SET outcome = 'accepted' WHERE id = 'a-1'")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	_, err = store.db.Exec("DELETE FROM submission_attempts WHERE id = 'a-1'")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")
}

func TestStore_AuditTriggers_BlockRewrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := fiscal.NewAuditEntry("acme", "doc-1", "tester", fiscal.ActorUser,
		fiscal.StatusDraft, fiscal.StatusValidated, "validation passed")
	require.NoError(t, store.Record(ctx, entry))

	_, err := store.db.Exec("UPDATE audit_log SET cause = 'rewritten' WHERE id = ?", entry.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	_, err = store.db.Exec("DELETE FROM audit_log WHERE id = ?", entry.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")
}

// =============================================================================
// AUDIT QUERIES
// =============================================================================

func TestStore_AuditQuery_Filters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, e := range []struct {
		tenant fiscal.TenantID
		doc    fiscal.DocumentID
		actor  string
	}{
		{"acme", "doc-1", "alice"},
		{"acme", "doc-2", "bob"},
		{"globex", "doc-3", "alice"},
	} {
		require.NoError(t, store.Record(ctx, fiscal.NewAuditEntry(
			e.tenant, e.doc, e.actor, fiscal.ActorUser,
			fiscal.StatusDraft, fiscal.StatusValidated, "validation passed")))
	}

	acme := fiscal.TenantID("acme")
	entries, err := store.Query(ctx, fiscal.AuditFilter{TenantID: &acme})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	alice := "alice"
	entries, err = store.Query(ctx, fiscal.AuditFilter{Actor: &alice})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	docID := fiscal.DocumentID("doc-3")
	entries, err = store.Query(ctx, fiscal.AuditFilter{DocumentID: &docID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, fiscal.TenantID("globex"), entries[0].TenantID)
}

// =============================================================================
// TENANTS
// =============================================================================

func TestStore_TenantUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cfg := fiscal.TenantConfig{
		ID: "acme", Name: "Acme SL", Mode: fiscal.ModeSimulated,
		APIKey: "key-1", Series: "A", MaxAttempts: 3, DefaultCurrency: "EUR",
	}
	require.NoError(t, store.SaveTenant(ctx, cfg))

	got, err := store.GetTenant(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme SL", got.Name)
	assert.Equal(t, fiscal.ModeSimulated, got.Mode)

	cfg.Mode = fiscal.ModeLive
	cfg.Endpoint = "https://authority.example"
	require.NoError(t, store.SaveTenant(ctx, cfg))

	got, err = store.GetTenant(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, fiscal.ModeLive, got.Mode)
	assert.Equal(t, "https://authority.example", got.Endpoint)

	tenants, err := store.ListTenants(ctx)
	require.NoError(t, err)
	assert.Len(t, tenants, 1)
}

func TestStore_GetTenant_Missing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetTenant(context.Background(), "no-such-tenant")
	assert.ErrorIs(t, err, fiscal.ErrTenantNotFound)
}

package fiscal_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvo/fiscal-engine/fiscal"
	"github.com/arvo/fiscal-engine/fiscal/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLifecycle() (*fiscal.Lifecycle, *store.Memory) {
	mem := store.NewMemory()
	lc := fiscal.NewLifecycle(mem, mem, mem, mem, fiscal.HashSigner{})
	return lc, mem
}

func seedTenant(t *testing.T, mem *store.Memory) fiscal.TenantConfig {
	t.Helper()
	cfg := fiscal.TenantConfig{
		ID:              "acme",
		Name:            "Acme SL",
		Mode:            fiscal.ModeSimulated,
		APIKey:          "sim-key",
		CertRef:         "cert:acme-2026",
		Series:          "A",
		DefaultCurrency: "EUR",
	}
	require.NoError(t, mem.SaveTenant(context.Background(), cfg))
	return cfg
}

func createDraft(t *testing.T, mem *store.Memory) *fiscal.FiscalDocument {
	t.Helper()
	doc := validDraft()
	require.NoError(t, mem.CreateDocument(context.Background(), doc))
	return doc
}

// signedDoc walks a fresh draft to signed.
func signedDoc(t *testing.T, lc *fiscal.Lifecycle, mem *store.Memory) *fiscal.FiscalDocument {
	t.Helper()
	ctx := context.Background()
	doc := createDraft(t, mem)

	_, err := lc.Validate(ctx, doc.ID, "tester")
	require.NoError(t, err)
	signed, err := lc.Sign(ctx, doc.ID, "tester")
	require.NoError(t, err)
	return signed
}

// =============================================================================
// DRAFT -> VALIDATED
// =============================================================================

func TestLifecycle_Validate_AssignsGaplessSequence(t *testing.T) {
	// GIVEN: Three drafts in the same tenant and series
	// WHEN: Validating each
	// THEN: They receive sequence numbers 1, 2, 3 with no gaps

	lc, mem := newTestLifecycle()
	seedTenant(t, mem)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		doc := createDraft(t, mem)
		validated, err := lc.Validate(ctx, doc.ID, "tester")
		require.NoError(t, err)
		assert.Equal(t, want, validated.SequenceNumber)
		assert.Equal(t, fiscal.StatusValidated, validated.Status)
	}
}

func TestLifecycle_Validate_FailureStaysInDraft(t *testing.T) {
	// GIVEN: A draft with irreconcilable totals
	// WHEN: Validating
	// THEN: It stays in draft, keeps the violations, and gets no sequence number

	lc, mem := newTestLifecycle()
	seedTenant(t, mem)
	ctx := context.Background()

	doc := validDraft()
	doc.Tax = doc.Tax.Sub(doc.Tax) // zero tax, totals no longer reconcile
	require.NoError(t, mem.CreateDocument(ctx, doc))

	_, err := lc.Validate(ctx, doc.ID, "tester")

	var vErr *fiscal.ValidationFailedError
	require.ErrorAs(t, err, &vErr)
	assert.True(t, errors.Is(err, fiscal.ErrValidationFailed))

	stored, err := mem.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusDraft, stored.Status)
	assert.NotEmpty(t, stored.ValidationErrors)
	assert.Zero(t, stored.SequenceNumber, "failed validation must not consume a sequence number")
}

func TestLifecycle_Validate_FailureIsAudited(t *testing.T) {
	// GIVEN: A draft that fails validation
	// WHEN: Validating
	// THEN: The failed attempt still appears in the audit trail

	lc, mem := newTestLifecycle()
	seedTenant(t, mem)
	ctx := context.Background()

	doc := validDraft()
	doc.CounterpartTaxID = ""
	require.NoError(t, mem.CreateDocument(ctx, doc))

	_, err := lc.Validate(ctx, doc.ID, "tester")
	require.Error(t, err)

	entries, err := mem.Query(ctx, fiscal.AuditFilter{DocumentID: &doc.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Cause, "validation failed")
}

// =============================================================================
// VALIDATED -> SIGNED (locking)
// =============================================================================

func TestLifecycle_Sign_LocksDocument(t *testing.T) {
	// GIVEN: A validated document
	// WHEN: Signing it
	// THEN: It is locked and carries a signed hash

	lc, mem := newTestLifecycle()
	seedTenant(t, mem)

	doc := signedDoc(t, lc, mem)

	assert.Equal(t, fiscal.StatusSigned, doc.Status)
	assert.True(t, doc.Status.Locked())
	assert.NotEmpty(t, doc.SignedHash)
	assert.Contains(t, doc.Payload, "<signed cert=")
}

func TestLifecycle_Sign_LockedDocumentRejectsEdits(t *testing.T) {
	// GIVEN: A signed (locked) document
	// WHEN: Attempting to rewrite its attributes
	// THEN: The store refuses with ErrImmutable

	lc, mem := newTestLifecycle()
	seedTenant(t, mem)
	ctx := context.Background()

	doc := signedDoc(t, lc, mem)
	doc.CounterpartName = "Someone Else SA"

	err := mem.UpdateDraft(ctx, doc)
	assert.ErrorIs(t, err, fiscal.ErrImmutable)
}

func TestLifecycle_Sign_RequiresValidatedStatus(t *testing.T) {
	// GIVEN: A document still in draft
	// WHEN: Signing directly
	// THEN: Rejected as an illegal transition

	lc, mem := newTestLifecycle()
	seedTenant(t, mem)
	ctx := context.Background()

	doc := createDraft(t, mem)
	_, err := lc.Sign(ctx, doc.ID, "tester")

	var tErr *fiscal.TransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, fiscal.StatusDraft, tErr.From)
	assert.Equal(t, fiscal.StatusSigned, tErr.To)
}

func TestLifecycle_Sign_WithoutCertificate_Fails(t *testing.T) {
	// GIVEN: A tenant with no signing certificate configured
	// WHEN: Signing a validated document
	// THEN: ErrSigningFailed, and the document stays in validated

	lc, mem := newTestLifecycle()
	ctx := context.Background()
	require.NoError(t, mem.SaveTenant(ctx, fiscal.TenantConfig{ID: "acme", Mode: fiscal.ModeSimulated}))

	doc := createDraft(t, mem)
	_, err := lc.Validate(ctx, doc.ID, "tester")
	require.NoError(t, err)

	_, err = lc.Sign(ctx, doc.ID, "tester")
	assert.ErrorIs(t, err, fiscal.ErrSigningFailed)

	stored, err := mem.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusValidated, stored.Status)
}

// =============================================================================
// TRANSITION GRAPH
// =============================================================================

func TestCanTransition_Graph(t *testing.T) {
	legal := [][2]fiscal.Status{
		{fiscal.StatusDraft, fiscal.StatusValidated},
		{fiscal.StatusValidated, fiscal.StatusSigned},
		{fiscal.StatusSigned, fiscal.StatusQueued},
		{fiscal.StatusQueued, fiscal.StatusSubmitted},
		{fiscal.StatusQueued, fiscal.StatusRejected},
		{fiscal.StatusQueued, fiscal.StatusError},
		{fiscal.StatusSubmitted, fiscal.StatusAccepted},
		{fiscal.StatusSubmitted, fiscal.StatusRejected},
		{fiscal.StatusSubmitted, fiscal.StatusError},
		{fiscal.StatusError, fiscal.StatusQueued},
	}
	for _, pair := range legal {
		assert.True(t, fiscal.CanTransition(pair[0], pair[1]), "%s -> %s should be legal", pair[0], pair[1])
	}

	illegal := [][2]fiscal.Status{
		{fiscal.StatusDraft, fiscal.StatusSigned},
		{fiscal.StatusSigned, fiscal.StatusAccepted},
		{fiscal.StatusAccepted, fiscal.StatusQueued},
		{fiscal.StatusRejected, fiscal.StatusQueued},
		{fiscal.StatusAccepted, fiscal.StatusRejected},
	}
	for _, pair := range illegal {
		assert.False(t, fiscal.CanTransition(pair[0], pair[1]), "%s -> %s should be illegal", pair[0], pair[1])
	}
}

func TestLifecycle_TerminalStatesAreFinal(t *testing.T) {
	// GIVEN: An accepted document
	// WHEN: The worker tries any further transition
	// THEN: Refused - terminal means terminal

	lc, mem := newTestLifecycle()
	seedTenant(t, mem)
	ctx := context.Background()

	doc := signedDoc(t, lc, mem)
	require.NoError(t, lc.MarkQueued(ctx, doc, "tester"))
	require.NoError(t, lc.MarkSubmitted(ctx, doc, "EXT-1"))
	require.NoError(t, lc.MarkAccepted(ctx, doc, "OK"))

	err := lc.MarkError(ctx, doc, "should never happen")
	var tErr *fiscal.TransitionError
	assert.ErrorAs(t, err, &tErr)
}

// =============================================================================
// AUDIT ATOMICITY
// =============================================================================

// failingAudit wraps the memory store and refuses audit writes.
type failingAudit struct {
	*store.Memory
}

func (f failingAudit) Record(context.Context, fiscal.AuditEntry) error {
	return errors.New("audit log unavailable")
}

func TestLifecycle_AuditFailure_RollsBackTransition(t *testing.T) {
	// GIVEN: An audit log that refuses every write
	// WHEN: Queueing a signed document
	// THEN: The call fails with ErrAuditWriteFailed and the status is rolled back

	lc, mem := newTestLifecycle()
	seedTenant(t, mem)
	ctx := context.Background()

	doc := signedDoc(t, lc, mem)
	lc.Audit = failingAudit{mem}

	err := lc.MarkQueued(ctx, doc, "tester")
	require.ErrorIs(t, err, fiscal.ErrAuditWriteFailed)

	stored, err := mem.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusSigned, stored.Status, "unaudited transition must not persist")
}

func TestLifecycle_EveryTransitionIsAudited(t *testing.T) {
	// GIVEN: A document walked through the full happy path
	// WHEN: Querying the audit trail
	// THEN: One entry per transition, in order

	lc, mem := newTestLifecycle()
	seedTenant(t, mem)
	ctx := context.Background()

	doc := signedDoc(t, lc, mem)
	require.NoError(t, lc.MarkQueued(ctx, doc, "tester"))
	require.NoError(t, lc.MarkSubmitted(ctx, doc, "EXT-1"))
	require.NoError(t, lc.MarkAccepted(ctx, doc, "OK"))

	entries, err := mem.Query(ctx, fiscal.AuditFilter{DocumentID: &doc.ID})
	require.NoError(t, err)
	require.Len(t, entries, 5) // validated, signed, queued, submitted, accepted

	assert.Equal(t, fiscal.StatusValidated, entries[0].ToState)
	assert.Equal(t, fiscal.StatusSigned, entries[1].ToState)
	assert.Equal(t, fiscal.StatusQueued, entries[2].ToState)
	assert.Equal(t, fiscal.StatusSubmitted, entries[3].ToState)
	assert.Equal(t, fiscal.StatusAccepted, entries[4].ToState)
}

// =============================================================================
// CAS CONCURRENCY
// =============================================================================

func TestLifecycle_ConcurrentClaim_ExactlyOneWins(t *testing.T) {
	// GIVEN: One signed document and many workers racing to queue it
	// WHEN: All call MarkQueued concurrently
	// THEN: Exactly one CAS succeeds; the rest lose with ErrConcurrencyConflict

	lc, mem := newTestLifecycle()
	seedTenant(t, mem)
	ctx := context.Background()

	doc := signedDoc(t, lc, mem)

	const racers = 16
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		go func() {
			cp := *doc
			results <- lc.MarkQueued(ctx, &cp, "racer")
		}()
	}

	wins, losses := 0, 0
	for i := 0; i < racers; i++ {
		err := <-results
		switch {
		case err == nil:
			wins++
		case errors.Is(err, fiscal.ErrConcurrencyConflict):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, losses)
}

// =============================================================================
// COMPENSATING DOCUMENTS
// =============================================================================

func TestLifecycle_Cancel_CreatesRectification(t *testing.T) {
	// GIVEN: A locked document
	// WHEN: Cancelling it
	// THEN: A draft rectification with negated amounts references the original,
	//       and the original is untouched

	lc, mem := newTestLifecycle()
	seedTenant(t, mem)
	ctx := context.Background()

	doc := signedDoc(t, lc, mem)

	rect, err := lc.Cancel(ctx, doc.ID, "tester")
	require.NoError(t, err)

	assert.Equal(t, fiscal.KindRectification, rect.Kind)
	assert.Equal(t, fiscal.StatusDraft, rect.Status)
	assert.Equal(t, doc.ID, rect.RectifiesID)
	assert.True(t, rect.Gross.Equal(doc.Gross.Neg()))
	assert.True(t, rect.Net.Equal(doc.Net.Neg()))
	assert.True(t, rect.Tax.Equal(doc.Tax.Neg()))

	original, err := mem.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusSigned, original.Status)
	assert.Equal(t, doc.SignedHash, original.SignedHash)
}

func TestLifecycle_Cancel_PreLockDocument_Refused(t *testing.T) {
	// GIVEN: A document still in draft
	// WHEN: Cancelling
	// THEN: Refused - pre-lock documents are simply edited, not rectified

	lc, mem := newTestLifecycle()
	seedTenant(t, mem)

	doc := createDraft(t, mem)
	_, err := lc.Cancel(context.Background(), doc.ID, "tester")
	assert.ErrorIs(t, err, fiscal.ErrIllegalTransition)
}

func TestLifecycle_Cancel_RectificationValidates(t *testing.T) {
	// GIVEN: A rectification created by Cancel
	// WHEN: Running it through validation
	// THEN: It passes - negative totals are legal on rectifications

	lc, mem := newTestLifecycle()
	seedTenant(t, mem)
	ctx := context.Background()

	doc := signedDoc(t, lc, mem)
	rect, err := lc.Cancel(ctx, doc.ID, "tester")
	require.NoError(t, err)

	validated, err := lc.Validate(ctx, rect.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusValidated, validated.Status)
	assert.NotZero(t, validated.SequenceNumber)
}

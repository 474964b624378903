package submit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvo/fiscal-engine/authority"
	"github.com/arvo/fiscal-engine/fiscal"
	"github.com/arvo/fiscal-engine/submit"
)

// =============================================================================
// SCRIPTED AUTHORITY - Client with canned status answers
// =============================================================================

type scriptedClient struct {
	authority.Client
	status map[string]authority.StatusResult
	err    error
}

func (c *scriptedClient) QueryStatus(_ context.Context, externalID string, _ authority.Credentials) (authority.StatusResult, error) {
	if c.err != nil {
		return authority.StatusResult{}, c.err
	}
	return c.status[externalID], nil
}

func newPollerHarness(t *testing.T, client authority.Client) (*submit.StatusPoller, *harness) {
	t.Helper()
	h := newHarness(t)
	sel := authority.Selector{Simulated: client, Live: client}
	return submit.NewStatusPoller(h.Store, h.Store, h.LC, sel), h
}

// submittedDoc walks a document to submitted with the given external id.
func submittedDoc(t *testing.T, h *harness, externalID string) *fiscal.FiscalDocument {
	t.Helper()
	ctx := context.Background()
	doc := h.signedDoc(t, "<invoice n='"+externalID+"'/>")
	require.NoError(t, h.LC.MarkQueued(ctx, doc, "tester"))
	require.NoError(t, h.LC.MarkSubmitted(ctx, doc, externalID))
	return doc
}

// =============================================================================
// RESOLUTION
// =============================================================================

func TestPoller_AcceptedSubmission_Finalized(t *testing.T) {
	// GIVEN: A submitted document the authority has since accepted
	// WHEN: Running one polling pass
	// THEN: The document reaches terminal accepted with the response code

	client := &scriptedClient{status: map[string]authority.StatusResult{
		"EXT-1": {State: authority.StatusAccepted, Code: "R-0000"},
	}}
	poller, h := newPollerHarness(t, client)
	ctx := context.Background()

	doc := submittedDoc(t, h, "EXT-1")
	poller.Resolve(ctx)

	stored, err := h.Store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusAccepted, stored.Status)
	assert.Equal(t, "R-0000", stored.AuthorityCode)
}

func TestPoller_RejectedSubmission_Finalized(t *testing.T) {
	client := &scriptedClient{status: map[string]authority.StatusResult{
		"EXT-2": {State: authority.StatusRejected, Code: "R-4001", Description: "duplicate invoice number"},
	}}
	poller, h := newPollerHarness(t, client)
	ctx := context.Background()

	doc := submittedDoc(t, h, "EXT-2")
	poller.Resolve(ctx)

	stored, err := h.Store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusRejected, stored.Status)
	assert.Equal(t, "R-4001", stored.AuthorityCode)
}

func TestPoller_PendingSubmission_LeftAlone(t *testing.T) {
	// GIVEN: The authority still reports the submission as pending
	// WHEN: Polling
	// THEN: The document stays in submitted for the next tick

	client := &scriptedClient{status: map[string]authority.StatusResult{
		"EXT-3": {State: authority.StatusPending},
	}}
	poller, h := newPollerHarness(t, client)
	ctx := context.Background()

	doc := submittedDoc(t, h, "EXT-3")
	poller.Resolve(ctx)

	stored, err := h.Store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusSubmitted, stored.Status)
}

func TestPoller_QueryFailure_LeavesDocumentSubmitted(t *testing.T) {
	// GIVEN: The status endpoint is down
	// WHEN: Polling
	// THEN: No state change; the next tick retries

	client := &scriptedClient{err: fiscal.ErrAuthorityUnavailable}
	poller, h := newPollerHarness(t, client)
	ctx := context.Background()

	doc := submittedDoc(t, h, "EXT-4")
	poller.Resolve(ctx)

	stored, err := h.Store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusSubmitted, stored.Status)
}

func TestPoller_MixedBatch_ResolvesIndependently(t *testing.T) {
	// GIVEN: Several submitted documents in different authority states
	// WHEN: One polling pass
	// THEN: Each document lands in its own final (or unchanged) state

	client := &scriptedClient{status: map[string]authority.StatusResult{
		"EXT-A": {State: authority.StatusAccepted, Code: "R-0000"},
		"EXT-B": {State: authority.StatusRejected, Code: "R-4001"},
		"EXT-C": {State: authority.StatusPending},
	}}
	poller, h := newPollerHarness(t, client)
	ctx := context.Background()

	docA := submittedDoc(t, h, "EXT-A")
	docB := submittedDoc(t, h, "EXT-B")
	docC := submittedDoc(t, h, "EXT-C")

	poller.Resolve(ctx)

	for _, tc := range []struct {
		doc  *fiscal.FiscalDocument
		want fiscal.Status
	}{
		{docA, fiscal.StatusAccepted},
		{docB, fiscal.StatusRejected},
		{docC, fiscal.StatusSubmitted},
	} {
		stored, err := h.Store.GetDocument(ctx, tc.doc.ID)
		require.NoError(t, err)
		assert.Equal(t, tc.want, stored.Status, "document %s", tc.doc.ID)
	}
}

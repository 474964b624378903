/*
poller.go - Asynchronous status resolution

PURPOSE:
  The authority's synchronous response is only an "accepted for processing"
  acknowledgment. The poller periodically queries the status of every
  document sitting in submitted and drives the final transition:

    submitted -> accepted   authority registered the document
    submitted -> rejected   authority refused it (terminal)

  Poll failures leave the document in submitted; the next tick retries.
  Callers never block on this - they observe the document's state.

DESIGN:
  - Background goroutine with a configurable tick interval
  - Stop channel + WaitGroup for clean shutdown
  - One status query per pending document per tick
*/
package submit

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/arvo/fiscal-engine/authority"
	"github.com/arvo/fiscal-engine/fiscal"
)

// StatusPoller resolves submitted documents to their final status.
type StatusPoller struct {
	Documents fiscal.DocumentStore
	Tenants   fiscal.TenantStore
	Lifecycle *fiscal.Lifecycle
	Clients   authority.Selector
	Interval  time.Duration

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewStatusPoller(docs fiscal.DocumentStore, tenants fiscal.TenantStore, lc *fiscal.Lifecycle, clients authority.Selector) *StatusPoller {
	return &StatusPoller{
		Documents: docs,
		Tenants:   tenants,
		Lifecycle: lc,
		Clients:   clients,
		Interval:  30 * time.Second,
		stop:      make(chan struct{}),
	}
}

// Start begins the polling loop.
func (sp *StatusPoller) Start() {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	sp.ticker = time.NewTicker(sp.Interval)
	sp.wg.Add(1)
	go sp.run()
	log.Printf("[Poller] started with interval %v", sp.Interval)
}

// Stop halts the polling loop and waits for the current pass to finish.
func (sp *StatusPoller) Stop() {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.ticker != nil {
		sp.ticker.Stop()
		close(sp.stop)
		sp.wg.Wait()
		sp.ticker = nil
		log.Println("[Poller] stopped")
	}
}

func (sp *StatusPoller) run() {
	defer sp.wg.Done()
	for {
		select {
		case <-sp.ticker.C:
			sp.Resolve(context.Background())
		case <-sp.stop:
			return
		}
	}
}

// Resolve performs one polling pass over every submitted document. Exposed
// for tests and the admin surface.
func (sp *StatusPoller) Resolve(ctx context.Context) {
	docs, err := sp.Documents.ListByStatus(ctx, "", fiscal.StatusSubmitted)
	if err != nil {
		log.Printf("[Poller] listing submitted documents: %v", err)
		return
	}

	resolved := 0
	for _, doc := range docs {
		if err := sp.resolveOne(ctx, doc); err != nil {
			log.Printf("[Poller] %s: %v", doc.ID, err)
			continue
		}
		resolved++
	}
	if len(docs) > 0 {
		log.Printf("[Poller] pass complete: %d/%d resolved", resolved, len(docs))
	}
}

func (sp *StatusPoller) resolveOne(ctx context.Context, doc *fiscal.FiscalDocument) error {
	tenant, err := sp.Tenants.GetTenant(ctx, doc.TenantID)
	if err != nil {
		return err
	}
	client := sp.Clients.For(tenant)

	callCtx, cancel := context.WithTimeout(ctx, authority.DefaultTimeout)
	status, err := client.QueryStatus(callCtx, doc.ExternalID, authority.CredentialsFor(tenant))
	cancel()
	if err != nil {
		// Leave the document in submitted; the next tick retries.
		return err
	}

	switch status.State {
	case authority.StatusAccepted:
		return sp.Lifecycle.MarkAccepted(ctx, doc, status.Code)
	case authority.StatusRejected:
		return sp.Lifecycle.MarkRejected(ctx, doc, status.Code, status.Description)
	default:
		return nil // still pending
	}
}

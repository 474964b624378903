// Package store provides in-memory implementations of the fiscal
// persistence contracts, for testing and development.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/arvo/fiscal-engine/fiscal"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements DocumentStore, AttemptStore, AuditLog, SeriesStore and
// TenantStore. Attempt and audit slices are append-only: nothing in this
// type ever rewrites or removes an element.
type Memory struct {
	mu        sync.RWMutex
	documents map[fiscal.DocumentID]*fiscal.FiscalDocument
	attempts  map[fiscal.DocumentID][]fiscal.SubmissionAttempt
	audit     []fiscal.AuditEntry
	sequences map[seriesKey]int64
	tenants   map[fiscal.TenantID]fiscal.TenantConfig
}

type seriesKey struct {
	Tenant fiscal.TenantID
	Series string
}

func NewMemory() *Memory {
	return &Memory{
		documents: make(map[fiscal.DocumentID]*fiscal.FiscalDocument),
		attempts:  make(map[fiscal.DocumentID][]fiscal.SubmissionAttempt),
		sequences: make(map[seriesKey]int64),
		tenants:   make(map[fiscal.TenantID]fiscal.TenantConfig),
	}
}

// =============================================================================
// DOCUMENT STORE
// =============================================================================

func (m *Memory) CreateDocument(_ context.Context, doc *fiscal.FiscalDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.documents[doc.ID]; exists {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	m.documents[doc.ID] = cloneDoc(doc)
	return nil
}

func (m *Memory) GetDocument(_ context.Context, id fiscal.DocumentID) (*fiscal.FiscalDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, fiscal.ErrDocumentNotFound
	}
	return cloneDoc(doc), nil
}

// UpdateDraft rewrites mutable attributes. The locked check happens against
// the STORED status, not the caller's copy, so a stale caller cannot slip a
// mutation past the lock.
func (m *Memory) UpdateDraft(_ context.Context, doc *fiscal.FiscalDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.documents[doc.ID]
	if !ok {
		return fiscal.ErrDocumentNotFound
	}
	if current.Status.Locked() {
		return fiscal.ErrImmutable
	}
	cp := cloneDoc(doc)
	cp.Status = current.Status // status changes only via Transition
	cp.SequenceNumber = current.SequenceNumber
	m.documents[doc.ID] = cp
	return nil
}

func (m *Memory) Transition(_ context.Context, id fiscal.DocumentID, from, to fiscal.Status, patch fiscal.TransitionPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return fiscal.ErrDocumentNotFound
	}
	if doc.Status != from {
		return fiscal.ErrConcurrencyConflict
	}
	doc.Status = to
	// Patch fields are write-once: a value already on the document is never
	// rewritten, even if a later transition carries a new one.
	if patch.SignedHash != nil && doc.SignedHash == "" {
		doc.SignedHash = *patch.SignedHash
	}
	if patch.ExternalID != nil && doc.ExternalID == "" {
		doc.ExternalID = *patch.ExternalID
	}
	if patch.AuthorityCode != nil && doc.AuthorityCode == "" {
		doc.AuthorityCode = *patch.AuthorityCode
	}
	if patch.SequenceNumber != nil && doc.SequenceNumber == 0 {
		doc.SequenceNumber = *patch.SequenceNumber
	}
	return nil
}

func (m *Memory) ListByStatus(_ context.Context, tenantID fiscal.TenantID, status fiscal.Status) ([]*fiscal.FiscalDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*fiscal.FiscalDocument
	for _, doc := range m.documents {
		if doc.Status != status {
			continue
		}
		if tenantID != "" && doc.TenantID != tenantID {
			continue
		}
		result = append(result, cloneDoc(doc))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func cloneDoc(doc *fiscal.FiscalDocument) *fiscal.FiscalDocument {
	cp := *doc
	cp.ValidationErrors = append([]string(nil), doc.ValidationErrors...)
	return &cp
}

// =============================================================================
// ATTEMPT STORE - Append-only
// =============================================================================

func (m *Memory) AppendAttempt(_ context.Context, attempt fiscal.SubmissionAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[attempt.DocumentID] = append(m.attempts[attempt.DocumentID], attempt)
	return nil
}

func (m *Memory) Attempts(_ context.Context, id fiscal.DocumentID) ([]fiscal.SubmissionAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := append([]fiscal.SubmissionAttempt(nil), m.attempts[id]...)
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result, nil
}

// =============================================================================
// AUDIT LOG - Append-only
// =============================================================================

func (m *Memory) Record(_ context.Context, entry fiscal.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) Query(_ context.Context, filter fiscal.AuditFilter) ([]fiscal.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []fiscal.AuditEntry
	for _, e := range m.audit {
		if filter.TenantID != nil && e.TenantID != *filter.TenantID {
			continue
		}
		if filter.DocumentID != nil && e.DocumentID != *filter.DocumentID {
			continue
		}
		if filter.Actor != nil && e.Actor != *filter.Actor {
			continue
		}
		if filter.From != nil && e.At.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.At.After(*filter.To) {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

// =============================================================================
// SERIES STORE - Gapless per-tenant numbering
// =============================================================================

func (m *Memory) NextSequence(_ context.Context, tenantID fiscal.TenantID, series string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := seriesKey{Tenant: tenantID, Series: series}
	m.sequences[k]++
	return m.sequences[k], nil
}

// =============================================================================
// TENANT STORE
// =============================================================================

func (m *Memory) SaveTenant(_ context.Context, cfg fiscal.TenantConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[cfg.ID] = cfg
	return nil
}

func (m *Memory) GetTenant(_ context.Context, id fiscal.TenantID) (*fiscal.TenantConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.tenants[id]
	if !ok {
		return nil, fiscal.ErrTenantNotFound
	}
	return &cfg, nil
}

func (m *Memory) ListTenants(_ context.Context) ([]fiscal.TenantConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]fiscal.TenantConfig, 0, len(m.tenants))
	for _, cfg := range m.tenants {
		result = append(result, cfg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// audit.go - Append-only audit log contract.
//
// Every state transition and every external-communication attempt is
// recorded here, including failed and rejected ones. The interface has no
// update or delete operation: removing the capability, not restricting it.
// If an audit write fails, the operation that triggered it fails too - a
// state change must never proceed unaudited.
package fiscal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ActorType string

const (
	ActorSystem ActorType = "system"
	ActorUser   ActorType = "user"
)

// AuditEntry records one lifecycle event. Never updated, never deleted, by
// any role.
type AuditEntry struct {
	ID         string
	At         time.Time
	TenantID   TenantID
	DocumentID DocumentID
	Actor      string
	ActorType  ActorType
	FromState  Status
	ToState    Status
	Cause      string
}

// NewAuditEntry fills in identity and timestamp for a transition record.
func NewAuditEntry(tenantID TenantID, docID DocumentID, actor string, actorType ActorType, from, to Status, cause string) AuditEntry {
	return AuditEntry{
		ID:         uuid.NewString(),
		At:         time.Now().UTC(),
		TenantID:   tenantID,
		DocumentID: docID,
		Actor:      actor,
		ActorType:  actorType,
		FromState:  from,
		ToState:    to,
		Cause:      cause,
	}
}

// AuditLog stores audit entries. Append-only: no update, no delete.
type AuditLog interface {
	Record(ctx context.Context, entry AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// AuditFilter narrows a Query. Nil fields match everything.
type AuditFilter struct {
	TenantID   *TenantID
	DocumentID *DocumentID
	Actor      *string
	From       *time.Time
	To         *time.Time
}

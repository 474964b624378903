/*
Package authority abstracts the external tax-authority endpoint.

PURPOSE:
  The engine never talks to the wire directly: it depends on the Client
  capability defined here. Two implementations ship with the engine:

    Simulated - deterministic, content-derived results with artificial
                latency. For tests and environments without access to the
                real authority API.
    Live      - real network I/O against the tenant's configured endpoint.

  Both honor the same contract: same error kinds, same latency order of
  magnitude, so switching a tenant between them requires no caller changes.
  Selection is per-tenant configuration, never hard-coded.

ERROR MAPPING:
  Transport failures and timeouts  -> fiscal.ErrAuthorityUnavailable
  Legal rejection by the authority -> fiscal.RejectionError (terminal)

SEE ALSO:
  - submit/worker.go: The only caller of Submit in the engine
  - submit/poller.go: Resolves pending submissions via QueryStatus
*/
package authority

import (
	"context"
	"time"

	"github.com/arvo/fiscal-engine/fiscal"
)

// Credentials identify a tenant against the authority endpoint.
type Credentials struct {
	Endpoint string
	APIKey   string
	CertRef  string
}

// CredentialsFor extracts a tenant's authority credentials from its config.
func CredentialsFor(cfg *fiscal.TenantConfig) Credentials {
	return Credentials{Endpoint: cfg.Endpoint, APIKey: cfg.APIKey, CertRef: cfg.CertRef}
}

// SubmissionResult is the synchronous outcome of a submission: an
// "accepted for processing" acknowledgment, not the final legal decision.
type SubmissionResult struct {
	Accepted   bool
	ExternalID string
	Timestamp  time.Time
}

// StatusState is the authority-side processing state of a submission.
type StatusState string

const (
	StatusPending  StatusState = "pending"
	StatusAccepted StatusState = "accepted"
	StatusRejected StatusState = "rejected"
)

// StatusResult is the outcome of a status poll.
type StatusResult struct {
	State       StatusState
	Code        string
	Description string
}

// Client is the authority capability. Every call is bounded by the context;
// a timeout maps to fiscal.ErrAuthorityUnavailable, never to silent success
// or failure.
type Client interface {
	// Submit dispatches a signed payload. A nil error with Accepted=true
	// means the authority acknowledged receipt and assigned ExternalID.
	Submit(ctx context.Context, payload string, creds Credentials) (SubmissionResult, error)

	// QueryStatus polls the processing state of an earlier submission.
	QueryStatus(ctx context.Context, externalID string, creds Credentials) (StatusResult, error)

	// TestConnection verifies the credentials reach the endpoint.
	TestConnection(ctx context.Context, creds Credentials) error
}

// Selector picks the Client implementation for a tenant based on its
// configured mode.
type Selector struct {
	Simulated Client
	Live      Client
}

// For returns the client matching the tenant's mode, defaulting to the
// simulated implementation for unset or unknown modes.
func (s Selector) For(cfg *fiscal.TenantConfig) Client {
	if cfg != nil && cfg.Mode == fiscal.ModeLive {
		return s.Live
	}
	return s.Simulated
}

// simulated.go - Deterministic stand-in for the authority endpoint.
//
// Results are derived from the submitted content: the same payload and
// credentials always produce the same external id and the same outcome,
// which makes end-to-end tests repeatable without live network calls.
// Payloads may embed directives to exercise the failure paths:
//
//	SIMULATE-REJECT      -> legal rejection (terminal)
//	SIMULATE-UNAVAILABLE -> transport failure (retryable)
package authority

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/arvo/fiscal-engine/fiscal"
)

// Simulated implements Client without network I/O.
type Simulated struct {
	// Latency is the artificial delay per call, matching the order of
	// magnitude of the live endpoint. Zero means no delay (unit tests).
	Latency time.Duration

	// Now is swappable for tests.
	Now func() time.Time
}

func NewSimulated() *Simulated {
	return &Simulated{
		Latency: 100 * time.Millisecond,
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Simulated) Submit(ctx context.Context, payload string, creds Credentials) (SubmissionResult, error) {
	if err := s.sleep(ctx); err != nil {
		return SubmissionResult{}, fmt.Errorf("%w: %v", fiscal.ErrAuthorityUnavailable, err)
	}

	if strings.Contains(payload, "SIMULATE-UNAVAILABLE") {
		return SubmissionResult{}, fmt.Errorf("%w: simulated endpoint outage", fiscal.ErrAuthorityUnavailable)
	}

	externalID := DeriveExternalID(payload, creds.APIKey)

	if strings.Contains(payload, "SIMULATE-REJECT") {
		return SubmissionResult{}, &RejectionError{
			ExternalID: externalID,
			Code:       "SIM-4001",
			Reason:     "simulated business rejection",
		}
	}

	return SubmissionResult{
		Accepted:   true,
		ExternalID: externalID,
		Timestamp:  s.Now(),
	}, nil
}

func (s *Simulated) QueryStatus(ctx context.Context, externalID string, creds Credentials) (StatusResult, error) {
	if err := s.sleep(ctx); err != nil {
		return StatusResult{}, fmt.Errorf("%w: %v", fiscal.ErrAuthorityUnavailable, err)
	}
	// Anything the simulator acknowledged is considered processed and
	// accepted; rejections already failed at Submit time.
	return StatusResult{
		State:       StatusAccepted,
		Code:        "SIM-0000",
		Description: "registered",
	}, nil
}

func (s *Simulated) TestConnection(ctx context.Context, creds Credentials) error {
	if err := s.sleep(ctx); err != nil {
		return fmt.Errorf("%w: %v", fiscal.ErrAuthorityUnavailable, err)
	}
	if creds.APIKey == "" {
		return fmt.Errorf("%w: missing api key", fiscal.ErrAuthorityUnavailable)
	}
	return nil
}

func (s *Simulated) sleep(ctx context.Context) error {
	if s.Latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(s.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeriveExternalID produces the content-derived identifier the simulator
// assigns: a SHA-256 over payload and credentials, formatted like the real
// authority's reference numbers.
func DeriveExternalID(payload, apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey + "\x00" + payload))
	return "SIM-" + strings.ToUpper(hex.EncodeToString(sum[:8]))
}

// RejectionError aliases the fiscal error type so callers match one kind
// regardless of implementation.
type RejectionError = fiscal.RejectionError

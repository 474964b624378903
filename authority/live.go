// live.go - Real network implementation of the authority Client.
//
// The wire format is a plain JSON envelope; the actual schema work
// (XML, XAdES signatures) happens upstream in the signing collaborator,
// so this client only moves opaque signed payloads.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arvo/fiscal-engine/fiscal"
)

// DefaultTimeout bounds every authority call. A timeout is always treated
// as AuthorityUnavailable so the attempt is recorded and retried.
const DefaultTimeout = 15 * time.Second

// Live implements Client over HTTP.
type Live struct {
	HTTP *http.Client
}

func NewLive() *Live {
	return &Live{HTTP: &http.Client{Timeout: DefaultTimeout}}
}

type submitRequest struct {
	Payload string `json:"payload"`
}

type submitResponse struct {
	ExternalID  string `json:"externalId"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

type statusResponse struct {
	State       string `json:"state"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (l *Live) Submit(ctx context.Context, payload string, creds Credentials) (SubmissionResult, error) {
	body, err := json.Marshal(submitRequest{Payload: payload})
	if err != nil {
		return SubmissionResult{}, fmt.Errorf("%w: marshal request: %v", fiscal.ErrInternal, err)
	}

	resp, err := l.do(ctx, http.MethodPost, creds.Endpoint+"/submissions", creds, bytes.NewReader(body))
	if err != nil {
		return SubmissionResult{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return SubmissionResult{}, fmt.Errorf("%w: authority returned %d", fiscal.ErrAuthorityUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var sr submitResponse
		decodeBody(resp.Body, &sr)
		return SubmissionResult{}, &fiscal.RejectionError{
			ExternalID: sr.ExternalID,
			Code:       nonEmpty(sr.Code, fmt.Sprintf("HTTP-%d", resp.StatusCode)),
			Reason:     nonEmpty(sr.Description, "rejected by authority"),
		}
	}

	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return SubmissionResult{}, fmt.Errorf("%w: decode response: %v", fiscal.ErrAuthorityUnavailable, err)
	}
	return SubmissionResult{Accepted: true, ExternalID: sr.ExternalID, Timestamp: time.Now().UTC()}, nil
}

func (l *Live) QueryStatus(ctx context.Context, externalID string, creds Credentials) (StatusResult, error) {
	resp, err := l.do(ctx, http.MethodGet, creds.Endpoint+"/submissions/"+externalID, creds, nil)
	if err != nil {
		return StatusResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return StatusResult{}, fmt.Errorf("%w: status query returned %d", fiscal.ErrAuthorityUnavailable, resp.StatusCode)
	}

	var sr statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return StatusResult{}, fmt.Errorf("%w: decode status: %v", fiscal.ErrAuthorityUnavailable, err)
	}

	result := StatusResult{Code: sr.Code, Description: sr.Description}
	switch sr.State {
	case "accepted", "registered":
		result.State = StatusAccepted
	case "rejected":
		result.State = StatusRejected
	default:
		result.State = StatusPending
	}
	return result, nil
}

func (l *Live) TestConnection(ctx context.Context, creds Credentials) error {
	resp, err := l.do(ctx, http.MethodGet, creds.Endpoint+"/ping", creds, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ping returned %d", fiscal.ErrAuthorityUnavailable, resp.StatusCode)
	}
	return nil
}

// do issues the request with credentials attached. Every transport-level
// failure, including context timeouts, maps to AuthorityUnavailable.
func (l *Live) do(ctx context.Context, method, url string, creds Credentials, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", fiscal.ErrInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)

	resp, err := l.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fiscal.ErrAuthorityUnavailable, err)
	}
	return resp, nil
}

func decodeBody(r io.Reader, v any) {
	// Body may be empty or non-JSON on error paths; the caller falls back
	// to HTTP status information.
	_ = json.NewDecoder(r).Decode(v)
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

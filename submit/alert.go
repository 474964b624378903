// alert.go - Observable alerting for dead-lettered documents.
//
// Exhausting the retry budget must raise an alert, not merely log: a
// document stuck in terminal error requires manual remediation and is never
// re-queued automatically.
package submit

import (
	"context"
	"log"

	"github.com/arvo/fiscal-engine/fiscal"
)

// DeadLetterAlert describes a document that exhausted its retry budget.
type DeadLetterAlert struct {
	DocumentID fiscal.DocumentID
	TenantID   fiscal.TenantID
	Attempts   int
	Cause      string
}

// Alerter receives dead-letter notifications. Implementations fan out to
// whatever the operator watches (pager, ops channel, ticket queue).
type Alerter interface {
	Alert(ctx context.Context, alert DeadLetterAlert)
}

// LogAlerter is the minimal Alerter: loud log line with a stable prefix
// operators can route on.
type LogAlerter struct{}

func (LogAlerter) Alert(_ context.Context, a DeadLetterAlert) {
	log.Printf("[DeadLetter] ALERT document=%s tenant=%s attempts=%d cause=%q - manual intervention required",
		a.DocumentID, a.TenantID, a.Attempts, a.Cause)
}

// CollectAlerter records alerts in memory. For tests and the admin surface.
type CollectAlerter struct {
	ch chan DeadLetterAlert
}

func NewCollectAlerter(capacity int) *CollectAlerter {
	if capacity <= 0 {
		capacity = 64
	}
	return &CollectAlerter{ch: make(chan DeadLetterAlert, capacity)}
}

func (c *CollectAlerter) Alert(_ context.Context, a DeadLetterAlert) {
	select {
	case c.ch <- a:
	default:
	}
}

// Alerts exposes the received alerts for consumption.
func (c *CollectAlerter) Alerts() <-chan DeadLetterAlert {
	return c.ch
}

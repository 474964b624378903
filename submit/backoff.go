// backoff.go - Exponential backoff with jitter for submission retries.
package submit

import (
	"math/rand"
	"time"
)

// BackoffPolicy computes the delay before a retry attempt.
type BackoffPolicy struct {
	Base   time.Duration // delay before the first retry
	Max    time.Duration // cap applied before jitter
	Jitter float64       // fraction of the delay randomized, e.g. 0.2
}

// DefaultBackoff doubles from 2s and caps at 2 minutes.
var DefaultBackoff = BackoffPolicy{
	Base:   2 * time.Second,
	Max:    2 * time.Minute,
	Jitter: 0.2,
}

// Delay returns the backoff before retry number `attempt` (1-based count of
// attempts already failed). Jitter spreads concurrent retries so a burst of
// failures does not hammer the authority in lockstep.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.Max {
			d = p.Max
			break
		}
	}
	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d = time.Duration(float64(d) - spread/2 + rand.Float64()*spread)
	}
	return d
}

package connection

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff yields reconnection delays: exponential with jitter, capped, and
// never shorter than the previous delay until Reset.
type Backoff struct {
	exp  *backoff.ExponentialBackOff
	cap  time.Duration
	last time.Duration
}

// NewBackoff creates a backoff doubling from base up to max. jitter is the
// randomization factor in [0, 1).
func NewBackoff(base, max time.Duration, jitter float64, clock backoff.Clock) *Backoff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = base
	exp.Multiplier = 2
	exp.RandomizationFactor = jitter
	exp.MaxInterval = max
	exp.MaxElapsedTime = 0
	if clock != nil {
		exp.Clock = clock
	}
	exp.Reset()
	return &Backoff{exp: exp, cap: max}
}

// Next returns the delay before the next attempt.
func (b *Backoff) Next() time.Duration {
	d := b.exp.NextBackOff()
	if d == backoff.Stop || d > b.cap {
		d = b.cap
	}
	if d < b.last {
		d = b.last
	}
	b.last = d
	return d
}

// Reset starts the sequence over.
func (b *Backoff) Reset() {
	b.exp.Reset()
	b.last = 0
}

package connection

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultBackoffBase = 2 * time.Second
	DefaultBackoffMax  = 60 * time.Second

	// jitterFactor spreads each delay over [0.5x, 1.5x], clamped to max.
	jitterFactor = 0.5
)

// Backoff yields min(base*2^attempt, max) delays, optionally jittered, and
// counts consecutive failures since the last Reset. It is not safe for
// concurrent use; the Manager only touches it from Run.
type Backoff struct {
	exp     *backoff.ExponentialBackOff
	max     time.Duration
	attempt int
}

func NewBackoff(base, max time.Duration, jitter bool) *Backoff {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if max < base {
		max = base
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = base
	exp.MaxInterval = max
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	if jitter {
		exp.RandomizationFactor = jitterFactor
	}
	exp.Reset()
	return &Backoff{exp: exp, max: max}
}

// Next records a failure and returns how long to wait before retrying.
func (b *Backoff) Next() time.Duration {
	b.attempt++
	// The library jitters after capping at MaxInterval.
	return min(b.exp.NextBackOff(), b.max)
}

// Attempt is the number of failures since the last Reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}

func (b *Backoff) Reset() {
	b.attempt = 0
	b.exp.Reset()
}

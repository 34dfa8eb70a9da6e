package shipper

import (
	"math/rand"
	"time"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMultiplier = 2.0
)

// Backoff implements truncated exponential backoff with jitter.
type Backoff struct {
	current time.Duration
	max     time.Duration
}

// NewBackoff returns a Backoff capped at max.
func NewBackoff(max time.Duration) *Backoff {
	if max < backoffInitial {
		max = backoffInitial
	}
	return &Backoff{current: backoffInitial, max: max}
}

// Next returns the current backoff duration and advances the internal state.
func (b *Backoff) Next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}
	if d > b.max {
		d = b.max
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Reset starts the sequence over.
func (b *Backoff) Reset() {
	b.current = backoffInitial
}

// SetMax changes the ceiling, e.g. after a config reload.
func (b *Backoff) SetMax(max time.Duration) {
	if max < backoffInitial {
		max = backoffInitial
	}
	b.max = max
	if b.current > max {
		b.current = max
	}
}

package feed

import (
	"math/rand"
	"time"
)

// Backoff defines reconnect delay growth between failed attempts.
type Backoff struct {
	// Min is the delay after the first failure.
	Min time.Duration
	// Max caps the delay growth.
	Max time.Duration
	// Jitter adds randomization as a fraction of the delay (0-1).
	Jitter float64
}

// DefaultBackoff matches the upstream feed defaults: 1s doubling to 30s.
func DefaultBackoff() Backoff {
	return Backoff{
		Min: time.Second,
		Max: 30 * time.Second,
	}
}

// Next returns the delay for the given consecutive-failure attempt (1-based).
// The delay doubles each attempt until it reaches Max.
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	min := b.Min
	if min <= 0 {
		min = time.Second
	}
	max := b.Max
	if max <= 0 {
		max = 30 * time.Second
	}

	wait := min
	for i := 1; i < attempt; i++ {
		next := wait * 2
		if next > max {
			wait = max
			break
		}
		wait = next
	}

	if b.Jitter <= 0 {
		return wait
	}
	jitter := b.Jitter
	if jitter > 1 {
		jitter = 1
	}
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}

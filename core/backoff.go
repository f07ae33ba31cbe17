package core

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy computes the delay before retry attempt n. The queue and the
// outbox delivery loop share this one implementation with their own
// parameters, so the curves stay consistent and capped.
type BackoffPolicy struct {
	Initial time.Duration
	Max     time.Duration
	// Jitter adds up to this fraction of the computed delay (0 disables it).
	Jitter float64
	// rand is injectable so tests stay deterministic.
	rand func() float64
}

func NewBackoffPolicy(initial, max time.Duration, jitter float64) BackoffPolicy {
	if initial <= 0 {
		initial = time.Second
	}
	if max <= 0 {
		max = 5 * time.Minute
	}
	if jitter < 0 {
		jitter = 0
	}
	return BackoffPolicy{
		Initial: initial,
		Max:     max,
		Jitter:  jitter,
		rand:    rand.Float64,
	}
}

// NextDelay returns the delay after `attempt` completed attempts. The base
// curve is Initial * 2^attempt; jitter only ever adds, so the sequence stays
// monotone in expectation and never exceeds Max.
func (p BackoffPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 5 * time.Minute
	}

	base := float64(initial) * math.Pow(2, float64(attempt))
	if base < 0 || base > float64(maximum) {
		return maximum
	}

	delay := time.Duration(base)
	if p.Jitter > 0 {
		random := p.rand
		if random == nil {
			random = rand.Float64
		}
		delay += time.Duration(random() * p.Jitter * base)
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

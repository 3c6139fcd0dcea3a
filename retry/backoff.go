// Package retry implements the bounded, jittered exponential backoff used
// by the Fallback Service's per-candidate retry loop (spec §4.8, §8
// invariant 8), grounded on the teacher's llm/retry/backoff.go policy
// shape but pared down to the one formula the spec pins: delay(k) in
// [base*2^(k-1), base*2^(k-1)+jitter], capped at maxDelay.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Policy tunes the backoff curve for one Fallback Service retry loop.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Jitter bounds the random component added to each delay; zero disables
	// jitter entirely (delay(k) == base*2^(k-1), still capped at MaxDelay).
	Jitter time.Duration
}

// DefaultPolicy mirrors the teacher's DefaultRetryPolicy defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Jitter:     250 * time.Millisecond,
	}
}

// Backoff returns the delay to sleep before retry attempt k (1-indexed: the
// delay before the *second* call overall). It is deterministic given a
// caller-supplied rng so tests can assert the exact bound without flaking;
// pass nil to use the package's own source.
func Backoff(p Policy, attempt int, rng *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	exp := math.Pow(2, float64(attempt-1))
	delay := time.Duration(float64(base) * exp)

	if p.Jitter > 0 {
		if rng == nil {
			delay += time.Duration(rand.Int64N(int64(p.Jitter) + 1))
		} else {
			delay += time.Duration(rng.Int64N(int64(p.Jitter) + 1))
		}
	}

	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

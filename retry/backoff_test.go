package retry

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffWithinBounds(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second, Jitter: 50 * time.Millisecond}
	rng := rand.New(rand.NewPCG(1, 2))

	for attempt := 1; attempt <= 6; attempt++ {
		d := Backoff(p, attempt, rng)
		lower := time.Duration(float64(p.BaseDelay) * pow2(attempt-1))
		upper := lower + p.Jitter
		if upper > p.MaxDelay {
			upper = p.MaxDelay
		}
		assert.GreaterOrEqualf(t, d, lower, "attempt %d", attempt)
		assert.LessOrEqualf(t, d, upper, "attempt %d", attempt)
		assert.LessOrEqual(t, d, p.MaxDelay)
	}
}

func TestBackoffCapsAtMaxDelay(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 2 * time.Second, Jitter: time.Second}
	d := Backoff(p, 10, rand.New(rand.NewPCG(3, 4)))
	require.LessOrEqual(t, d, p.MaxDelay)
}

func TestBackoffZeroAttemptClampsToOne(t *testing.T) {
	p := DefaultPolicy()
	a := Backoff(p, 0, rand.New(rand.NewPCG(5, 6)))
	b := Backoff(p, 1, rand.New(rand.NewPCG(5, 6)))
	assert.Equal(t, b, a)
}

func pow2(n int) float64 {
	r := 1.0
	for i := 0; i < n; i++ {
		r *= 2
	}
	return r
}

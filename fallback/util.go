package fallback

import (
	"hash/fnv"
	"strconv"
)

func itoa(n int) string {
	return strconv.Itoa(n)
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// seedFromString derives a deterministic PRNG seed from s so two calls with
// identical (prompt, model) see the same jitter sequence in tests, while
// different prompts/models don't collide on attempt-for-attempt jitter.
func seedFromString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

package circuitbreaker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOrCreate_Idempotent(t *testing.T) {
	r := NewRegistry(DefaultConfig(), nil)
	b1 := r.GetOrCreate("openai:gpt-4", Config{})
	b2 := r.GetOrCreate("openai:gpt-4", Config{})
	require.Same(t, b1, b2)
}

func TestRegistry_GetOrCreate_DistinctIDs(t *testing.T) {
	r := NewRegistry(DefaultConfig(), nil)
	b1 := r.GetOrCreate("openai:gpt-4", Config{})
	b2 := r.GetOrCreate("anthropic:claude", Config{})
	assert.NotSame(t, b1, b2)
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry(DefaultConfig(), nil)
	r.GetOrCreate("a", Config{})
	r.GetOrCreate("b", Config{})

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, StateClosed, snap["a"])
	assert.Equal(t, StateClosed, snap["b"])
}

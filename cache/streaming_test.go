package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamCache_CompleteStreamReplays(t *testing.T) {
	sc := NewStreamCache(time.Second)
	appendChunk, finish := sc.SetStream("k1")

	appendChunk("hel")
	appendChunk("lo")
	finish()

	ch, ok := sc.GetStream("k1")
	require.True(t, ok)

	var full string
	for c := range ch {
		full += c
	}
	assert.Equal(t, "hello", full)
}

func TestStreamCache_IncompleteStreamNotReturned(t *testing.T) {
	sc := NewStreamCache(time.Second)
	appendChunk, _ := sc.SetStream("k1")
	appendChunk("partial")

	_, ok := sc.GetStream("k1")
	assert.False(t, ok, "a still-Building entry must not be returned by GetStream")
}

func TestStreamCache_MissingKey(t *testing.T) {
	sc := NewStreamCache(time.Second)
	_, ok := sc.GetStream("nope")
	assert.False(t, ok)
}

func TestStreamCache_GraceWindowEvictsIncomplete(t *testing.T) {
	sc := NewStreamCache(10 * time.Millisecond)
	appendChunk, _ := sc.SetStream("k1")
	appendChunk("partial")

	time.Sleep(30 * time.Millisecond)

	sc.mu.Lock()
	_, stillTracked := sc.entries["k1"]
	sc.mu.Unlock()
	assert.False(t, stillTracked, "an incomplete stream must be evicted after the grace window")
}

func TestStreamCache_FinishAfterEvictionIsNoop(t *testing.T) {
	sc := NewStreamCache(5 * time.Millisecond)
	appendChunk, finish := sc.SetStream("k1")
	appendChunk("x")
	time.Sleep(15 * time.Millisecond)

	assert.NotPanics(t, finish)
}

func TestStreamCache_Delete(t *testing.T) {
	sc := NewStreamCache(time.Second)
	_, finish := sc.SetStream("k1")
	finish()
	sc.Delete("k1")

	_, ok := sc.GetStream("k1")
	assert.False(t, ok)
}

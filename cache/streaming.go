package cache

import (
	"sync"
	"time"
)

// streamState is the streaming cache entry lifecycle (spec §4.4, §4.10
// "Three explicit state machines"): a stream starts Building as chunks
// arrive, becomes Complete when the producer finalises it, and is Evicted
// after a short grace window if never completed (a producer crash or
// cancellation must not leave a half-written entry servable forever).
type streamState int

const (
	streamBuilding streamState = iota
	streamComplete
	streamEvicted
)

// streamEntry accumulates an in-flight or finished stream's chunks.
type streamEntry struct {
	mu       sync.Mutex
	state    streamState
	chunks   []string
	waiters  []chan string
	complete chan struct{}
}

func newStreamEntry() *streamEntry {
	return &streamEntry{complete: make(chan struct{})}
}

// append adds a chunk and fans it out to any live replay subscribers.
func (s *streamEntry) append(chunk string) {
	s.mu.Lock()
	s.chunks = append(s.chunks, chunk)
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, w := range waiters {
		w <- chunk
		close(w)
	}
}

func (s *streamEntry) finish() {
	s.mu.Lock()
	if s.state == streamComplete {
		s.mu.Unlock()
		return
	}
	s.state = streamComplete
	s.mu.Unlock()
	close(s.complete)
}

// StreamCache stores in-flight and finished streaming responses, keyed the
// same way as the non-streaming Cache (spec §4.4 "Streaming cache").
type StreamCache struct {
	mu          sync.Mutex
	entries     map[string]*streamEntry
	graceWindow time.Duration
}

// NewStreamCache builds a StreamCache; graceWindow bounds how long an
// incomplete stream is retained before a timer started by SetStream evicts
// it (default 30s when graceWindow <= 0).
func NewStreamCache(graceWindow time.Duration) *StreamCache {
	if graceWindow <= 0 {
		graceWindow = 30 * time.Second
	}
	return &StreamCache{entries: make(map[string]*streamEntry), graceWindow: graceWindow}
}

// SetStream registers key as Building and returns append/finish callbacks
// for the producer to drive as chunks arrive from the upstream adapter.
func (sc *StreamCache) SetStream(key string) (appendChunk func(string), finish func()) {
	entry := newStreamEntry()

	sc.mu.Lock()
	sc.entries[key] = entry
	sc.mu.Unlock()

	timer := time.AfterFunc(sc.graceWindow, func() {
		entry.mu.Lock()
		incomplete := entry.state == streamBuilding
		if incomplete {
			entry.state = streamEvicted
		}
		entry.mu.Unlock()
		if incomplete {
			sc.mu.Lock()
			delete(sc.entries, key)
			sc.mu.Unlock()
		}
	})

	return entry.append, func() {
		timer.Stop()
		entry.finish()
	}
}

// GetStream returns a channel replaying key's chunks in order if a
// Complete entry exists for it; ok is false for a missing, still-Building,
// or evicted entry (spec: "Incomplete streams are not returned on Get").
func (sc *StreamCache) GetStream(key string) (<-chan string, bool) {
	sc.mu.Lock()
	entry, ok := sc.entries[key]
	sc.mu.Unlock()
	if !ok {
		return nil, false
	}

	entry.mu.Lock()
	state := entry.state
	chunks := append([]string(nil), entry.chunks...)
	entry.mu.Unlock()

	if state != streamComplete {
		return nil, false
	}

	out := make(chan string, len(chunks))
	for _, c := range chunks {
		out <- c
	}
	close(out)
	return out, true
}

// Delete removes key's streaming entry, if any.
func (sc *StreamCache) Delete(key string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.entries, key)
}

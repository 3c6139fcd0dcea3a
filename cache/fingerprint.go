// Package cache implements the Response Cache (spec §4.4): a fingerprint
// keyed store of prior adapter responses, with an in-process LRU tier and
// an optional Redis tier for cross-process sharing.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/nth-layer/orchestra/internal/pool"
)

// Fingerprint is the cache key input: every field that determines whether
// two calls would produce the same answer. Stream is deliberately NOT part
// of this struct — spec §9 Open Question #3: a streamed and non-streamed
// call with identical (provider, model, stage, prompt, options) are
// cache-equivalent, so excluding the flag lets a streaming caller reuse a
// non-streaming cache entry and vice versa.
type Fingerprint struct {
	Provider string
	Model    string
	Stage    string
	Prompt   string
	Options  map[string]string
}

// canonical is the JSON-stable shape hashed to produce a key: map keys are
// sorted so that Go's otherwise-unordered map iteration never changes the
// resulting hash.
type canonical struct {
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	Stage    string   `json:"stage"`
	Prompt   string   `json:"prompt"`
	Options  [][2]string `json:"options"`
}

// Key renders fp into a stable SHA-256 hex digest, grounded on the
// teacher's HashKeyStrategy but canonicalising map-valued options into a
// sorted slice of pairs first so the hash is independent of Go's map
// iteration order.
func (fp Fingerprint) Key() string {
	keys := make([]string, 0, len(fp.Options))
	for k := range fp.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	opts := make([][2]string, len(keys))
	for i, k := range keys {
		opts[i] = [2]string{k, fp.Options[k]}
	}

	c := canonical{
		Provider: fp.Provider,
		Model:    fp.Model,
		Stage:    fp.Stage,
		Prompt:   fp.Prompt,
		Options:  opts,
	}

	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)

	enc := json.NewEncoder(buf)
	if err := enc.Encode(c); err != nil {
		// Encode of this struct never fails (no channels/funcs/cycles); if it
		// somehow did, falling back to a non-canonical marshal still yields a
		// deterministic (if less portable) key rather than a panic.
		data, _ := json.Marshal(c)
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:16])
	}

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:16])
}

package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_Key_Deterministic(t *testing.T) {
	fp := Fingerprint{Provider: "openai", Model: "gpt-4", Stage: "initial", Prompt: "hello", Options: map[string]string{"temperature": "0.7"}}
	assert.Equal(t, fp.Key(), fp.Key())
}

func TestFingerprint_Key_OptionOrderIndependent(t *testing.T) {
	fp1 := Fingerprint{Provider: "openai", Model: "gpt-4", Prompt: "hi", Options: map[string]string{"a": "1", "b": "2"}}
	fp2 := Fingerprint{Provider: "openai", Model: "gpt-4", Prompt: "hi", Options: map[string]string{"b": "2", "a": "1"}}
	assert.Equal(t, fp1.Key(), fp2.Key(), "map iteration order must not change the hash")
}

func TestFingerprint_Key_DiffersOnPrompt(t *testing.T) {
	fp1 := Fingerprint{Provider: "openai", Model: "gpt-4", Prompt: "hello"}
	fp2 := Fingerprint{Provider: "openai", Model: "gpt-4", Prompt: "goodbye"}
	assert.NotEqual(t, fp1.Key(), fp2.Key())
}

func TestFingerprint_Key_IgnoresStreamFlag(t *testing.T) {
	// Fingerprint has no Stream field at all: a streaming and non-streaming
	// call with identical (provider, model, stage, prompt, options) share a
	// cache entry, per spec Open Question #3.
	fp := Fingerprint{Provider: "openai", Model: "gpt-4", Stage: "initial", Prompt: "hi"}
	key1 := fp.Key()
	key2 := fp.Key()
	assert.Equal(t, key1, key2)
}

func TestFingerprint_Key_DiffersOnStage(t *testing.T) {
	fp1 := Fingerprint{Provider: "openai", Model: "gpt-4", Stage: "initial", Prompt: "hi"}
	fp2 := Fingerprint{Provider: "openai", Model: "gpt-4", Stage: "meta", Prompt: "hi"}
	assert.NotEqual(t, fp1.Key(), fp2.Key())
}

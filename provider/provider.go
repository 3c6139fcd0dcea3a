// Package provider implements the uniform adapter façade over individual LLM
// vendor protocols (spec §4.1). Every adapter — regardless of vendor —
// speaks the same Adapter interface; vendor-specific wire formats are
// translated internally by each adapter.
package provider

import (
	"context"

	"github.com/nth-layer/orchestra/engine"
)

// StreamChunk is one piece of a streaming generation.
type StreamChunk struct {
	Content string
	Done    bool
	Err     error
}

// Capabilities describes what an adapter instance can do.
type Capabilities struct {
	Name               string
	SupportsStreaming  bool
	SupportsEmbeddings bool
	SupportsVision     bool
	MaxTokens          int
}

// Adapter is the uniform façade every vendor backend implements (spec §4.1).
type Adapter interface {
	// Generate returns the full completion for prompt, or a *engine.Error.
	Generate(ctx context.Context, prompt string, opts engine.GenerateOptions) (string, error)

	// StreamGenerate returns a channel of chunks that, concatenated, equal
	// what Generate would return for the same inputs. The channel is closed
	// when the stream ends or ctx is cancelled.
	StreamGenerate(ctx context.Context, prompt string, opts engine.GenerateOptions) (<-chan StreamChunk, error)

	// GetEmbedding returns a vector embedding for text, or ErrNotSupported.
	GetEmbedding(ctx context.Context, text string) ([]float32, error)

	// IsAvailable is a cheap local check: credentials present, client built.
	IsAvailable() bool

	// Capabilities describes this adapter instance's feature set.
	Capabilities() Capabilities

	// Name is the adapter's identifying string, used in error/metric labels.
	Name() string
}

package provider

import (
	"time"

	"go.uber.org/zap"
)

// MistralConfig parameterises the Mistral adapter.
type MistralConfig struct {
	APIKey       string
	APIBase      string // default "https://api.mistral.ai"
	DefaultModel string
	MaxTokens    int
	Timeout      time.Duration
}

// NewMistral builds an Adapter for Mistral's OpenAI-compatible chat API.
func NewMistral(cfg MistralConfig, logger *zap.Logger) *Base {
	base := cfg.APIBase
	if base == "" {
		base = "https://api.mistral.ai"
	}
	return New(Config{
		ProviderName:   "mistral",
		APIKey:         cfg.APIKey,
		APIBase:        base,
		DefaultModel:   cfg.DefaultModel,
		MaxTokens:      cfg.MaxTokens,
		Timeout:        cfg.Timeout,
		ChatPath:       "/v1/chat/completions",
		EmbeddingsPath: "/v1/embeddings",
	}, logger)
}

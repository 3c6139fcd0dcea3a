package provider

import (
	"time"

	"go.uber.org/zap"
)

// OpenAIConfig parameterises the OpenAI adapter.
type OpenAIConfig struct {
	APIKey       string
	APIBase      string // default "https://api.openai.com"
	DefaultModel string
	MaxTokens    int
	Timeout      time.Duration
}

// NewOpenAI builds an Adapter for OpenAI's native chat completions API,
// which is itself the protocol every other "compatible" vendor imitates.
func NewOpenAI(cfg OpenAIConfig, logger *zap.Logger) *Base {
	base := cfg.APIBase
	if base == "" {
		base = "https://api.openai.com"
	}
	return New(Config{
		ProviderName:   "openai",
		APIKey:         cfg.APIKey,
		APIBase:        base,
		DefaultModel:   cfg.DefaultModel,
		MaxTokens:      cfg.MaxTokens,
		Timeout:        cfg.Timeout,
		ChatPath:       "/v1/chat/completions",
		EmbeddingsPath: "/v1/embeddings",
		SupportsVision: true,
	}, logger)
}

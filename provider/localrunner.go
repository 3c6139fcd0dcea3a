package provider

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LocalRunnerConfig parameterises an adapter for a loopback model server
// (e.g. an Ollama or llama.cpp server) exposing an OpenAI-compatible API.
// Unlike the hosted vendors, a missing API key does not make the adapter
// unavailable: most local runners accept unauthenticated requests.
type LocalRunnerConfig struct {
	APIBase      string // default "http://localhost:11434"
	APIKey       string // optional
	DefaultModel string
	MaxTokens    int
	Timeout      time.Duration
}

// localRunner wraps Base to relax the availability check: APIKey is optional.
type localRunner struct {
	*Base
}

func (l *localRunner) IsAvailable() bool {
	return l.Base != nil
}

// NewLocalRunner builds an Adapter for a self-hosted, loopback-reachable
// model server (spec §3: ProviderLocalRunner).
func NewLocalRunner(cfg LocalRunnerConfig, logger *zap.Logger) Adapter {
	base := cfg.APIBase
	if base == "" {
		base = "http://localhost:11434"
	}
	apiKey := cfg.APIKey
	var buildHeaders func(string) http.Header
	if apiKey == "" {
		// Base rejects calls with an empty key, so a placeholder stands in
		// for it and requests are sent without an Authorization header.
		apiKey = "unauthenticated"
		buildHeaders = func(string) http.Header {
			h := make(http.Header)
			h.Set("Content-Type", "application/json")
			return h
		}
	}
	b := New(Config{
		ProviderName: "local_runner",
		APIKey:       apiKey,
		APIBase:      base,
		DefaultModel: cfg.DefaultModel,
		MaxTokens:    cfg.MaxTokens,
		Timeout:      cfg.Timeout,
		ChatPath:     "/v1/chat/completions",
		BuildHeaders: buildHeaders,
	}, logger)
	return &localRunner{Base: b}
}

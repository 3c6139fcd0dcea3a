package provider

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// CustomConfig parameterises an operator-supplied OpenAI-compatible endpoint
// (spec §3: ProviderCustom), e.g. an internal gateway or a self-hosted model
// server that mimics the /v1/chat/completions shape.
type CustomConfig struct {
	Name         string
	APIKey       string
	APIBase      string
	DefaultModel string
	ChatPath     string
	MaxTokens    int
	Timeout      time.Duration
	AuthHeader   string // e.g. "X-Api-Key"; empty means "Authorization: Bearer"
}

// NewCustom builds an Adapter for an arbitrary OpenAI-compatible endpoint
// under operator control.
func NewCustom(cfg CustomConfig, logger *zap.Logger) *Base {
	name := cfg.Name
	if name == "" {
		name = "custom"
	}

	var buildHeaders func(string) http.Header
	if cfg.AuthHeader != "" {
		header := cfg.AuthHeader
		buildHeaders = func(apiKey string) http.Header {
			h := make(http.Header)
			h.Set("Content-Type", "application/json")
			h.Set(header, apiKey)
			return h
		}
	}

	return New(Config{
		ProviderName:  name,
		APIKey:        cfg.APIKey,
		APIBase:       cfg.APIBase,
		DefaultModel:  cfg.DefaultModel,
		MaxTokens:     cfg.MaxTokens,
		Timeout:       cfg.Timeout,
		ChatPath:      cfg.ChatPath,
		BuildHeaders:  buildHeaders,
	}, logger)
}

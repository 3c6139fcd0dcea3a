package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nth-layer/orchestra/engine"
	"github.com/nth-layer/orchestra/internal/tlsutil"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// GoogleConfig parameterises the Gemini adapter.
type GoogleConfig struct {
	APIKey       string
	APIBase      string // default "https://generativelanguage.googleapis.com"
	DefaultModel string
	MaxTokens    int
	Timeout      time.Duration
}

// Google implements Adapter for Gemini's generateContent API, which
// authenticates via an api-key query parameter rather than a header.
type Google struct {
	cfg     GoogleConfig
	client  *http.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

func NewGoogle(cfg GoogleConfig, logger *zap.Logger) *Google {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIBase == "" {
		cfg.APIBase = "https://generativelanguage.googleapis.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &Google{
		cfg:     cfg,
		client:  tlsutil.SecureHTTPClient(cfg.Timeout),
		logger:  logger.With(zap.String("provider", "google")),
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
}

func (g *Google) Name() string { return "google" }

func (g *Google) IsAvailable() bool { return g.cfg.APIKey != "" }

func (g *Google) Capabilities() Capabilities {
	return Capabilities{
		Name:               "google",
		SupportsStreaming:  true,
		SupportsEmbeddings: true,
		SupportsVision:     true,
		MaxTokens:          g.cfg.MaxTokens,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate   `json:"candidates"`
	UsageMetadata geminiUsageMetadata `json:"usageMetadata"`
}

func (g *Google) url(path string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:%s?key=%s",
		strings.TrimRight(g.cfg.APIBase, "/"), g.cfg.DefaultModel, path, g.cfg.APIKey)
}

func (g *Google) Generate(ctx context.Context, prompt string, opts engine.GenerateOptions) (string, error) {
	if !g.IsAvailable() {
		return "", engine.NewError(engine.ErrUnauthorized, "missing api key").WithProvider("google").WithRetryable(false)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return "", engine.NewError(engine.ErrCancelled, "rate limit wait cancelled").WithCause(err).WithProvider("google")
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.cfg.MaxTokens
	}
	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: maxTokens,
			Temperature:     opts.Temperature,
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", engine.NewError(engine.ErrInternal, "marshal request").WithCause(err).WithProvider("google")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url("generateContent"), bytes.NewReader(body))
	if err != nil {
		return "", engine.NewError(engine.ErrInternal, "build request").WithCause(err).WithProvider("google")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", engine.NewError(engine.ErrTimeout, "request timed out").WithCause(err).WithProvider("google")
		}
		return "", engine.NewError(engine.ErrProviderUnavailable, "request failed").WithCause(err).WithProvider("google")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		mapped := mapHTTPError(resp.StatusCode, readErrorBody(resp.Body), "google")
		g.logger.Warn("provider call failed", zap.Int("status", resp.StatusCode), zap.String("code", string(mapped.Code)))
		return "", mapped
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", engine.NewError(engine.ErrInternal, "decode response").WithCause(err).WithProvider("google")
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", engine.NewError(engine.ErrProviderUnavailable, "empty candidates").WithProvider("google").WithRetryable(true)
	}
	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

// StreamGenerate falls back to a single-chunk emission of the full response,
// since Gemini's streaming endpoint uses a distinct SSE envelope not worth
// special-casing for this adapter; callers needing true incremental tokens
// should prefer OpenAI or Anthropic.
func (g *Google) StreamGenerate(ctx context.Context, prompt string, opts engine.GenerateOptions) (<-chan StreamChunk, error) {
	full, err := g.Generate(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	out := make(chan StreamChunk, 2)
	out <- StreamChunk{Content: full}
	out <- StreamChunk{Done: true}
	close(out)
	return out, nil
}

type geminiEmbedContentRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiEmbedContentResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

func (g *Google) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	if !g.IsAvailable() {
		return nil, engine.NewError(engine.ErrUnauthorized, "missing api key").WithProvider("google").WithRetryable(false)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, engine.NewError(engine.ErrCancelled, "rate limit wait cancelled").WithCause(err).WithProvider("google")
	}

	reqBody := geminiEmbedContentRequest{
		Model:   "models/" + g.cfg.DefaultModel,
		Content: geminiContent{Parts: []geminiPart{{Text: text}}},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, engine.NewError(engine.ErrInternal, "marshal request").WithCause(err).WithProvider("google")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url("embedContent"), bytes.NewReader(body))
	if err != nil {
		return nil, engine.NewError(engine.ErrInternal, "build request").WithCause(err).WithProvider("google")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, engine.NewError(engine.ErrTimeout, "request timed out").WithCause(err).WithProvider("google")
		}
		return nil, engine.NewError(engine.ErrProviderUnavailable, "request failed").WithCause(err).WithProvider("google")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, readErrorBody(resp.Body), "google")
	}

	var parsed geminiEmbedContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, engine.NewError(engine.ErrInternal, "decode embedding response").WithCause(err).WithProvider("google")
	}
	return parsed.Embedding.Values, nil
}

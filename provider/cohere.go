package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/nth-layer/orchestra/engine"
	"github.com/nth-layer/orchestra/internal/tlsutil"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CohereConfig parameterises the Cohere adapter.
type CohereConfig struct {
	APIKey       string
	APIBase      string // default "https://api.cohere.com"
	DefaultModel string
	EmbedModel   string // default "embed-english-v3.0"
	MaxTokens    int
	Timeout      time.Duration
}

// Cohere implements Adapter over Cohere's /v1/chat and /v1/embed endpoints,
// both of which have envelopes distinct enough from the OpenAI shape to
// warrant their own adapter rather than reuse of Base.
type Cohere struct {
	cfg     CohereConfig
	client  *http.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

func NewCohere(cfg CohereConfig, logger *zap.Logger) *Cohere {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.cohere.com"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "embed-english-v3.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &Cohere{
		cfg:     cfg,
		client:  tlsutil.SecureHTTPClient(cfg.Timeout),
		logger:  logger.With(zap.String("provider", "cohere")),
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
}

func (c *Cohere) Name() string { return "cohere" }

func (c *Cohere) IsAvailable() bool { return c.cfg.APIKey != "" }

func (c *Cohere) Capabilities() Capabilities {
	return Capabilities{
		Name:               "cohere",
		SupportsStreaming:  false,
		SupportsEmbeddings: true,
		SupportsVision:     false,
		MaxTokens:          c.cfg.MaxTokens,
	}
}

type cohereChatRequest struct {
	Model       string  `json:"model"`
	Message     string  `json:"message"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type cohereChatResponse struct {
	Text string `json:"text"`
	Meta struct {
		Tokens struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"tokens"`
	} `json:"meta"`
}

func (c *Cohere) request(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, engine.NewError(engine.ErrCancelled, "rate limit wait cancelled").WithCause(err).WithProvider("cohere")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, engine.NewError(engine.ErrInternal, "marshal request").WithCause(err).WithProvider("cohere")
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.APIBase, "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, engine.NewError(engine.ErrInternal, "build request").WithCause(err).WithProvider("cohere")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, engine.NewError(engine.ErrTimeout, "request timed out").WithCause(err).WithProvider("cohere")
		}
		return nil, engine.NewError(engine.ErrProviderUnavailable, "request failed").WithCause(err).WithProvider("cohere")
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		mapped := mapHTTPError(resp.StatusCode, readErrorBody(resp.Body), "cohere")
		c.logger.Warn("provider call failed", zap.Int("status", resp.StatusCode), zap.String("code", string(mapped.Code)))
		return nil, mapped
	}
	return resp, nil
}

func (c *Cohere) Generate(ctx context.Context, prompt string, opts engine.GenerateOptions) (string, error) {
	if !c.IsAvailable() {
		return "", engine.NewError(engine.ErrUnauthorized, "missing api key").WithProvider("cohere").WithRetryable(false)
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	resp, err := c.request(ctx, http.MethodPost, "/v1/chat", cohereChatRequest{
		Model:       c.cfg.DefaultModel,
		Message:     prompt,
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed cohereChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", engine.NewError(engine.ErrInternal, "decode response").WithCause(err).WithProvider("cohere")
	}
	return parsed.Text, nil
}

// StreamGenerate emits the full response as a single chunk; Cohere's
// streamed-events envelope is not worth special-casing for this adapter.
func (c *Cohere) StreamGenerate(ctx context.Context, prompt string, opts engine.GenerateOptions) (<-chan StreamChunk, error) {
	full, err := c.Generate(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	out := make(chan StreamChunk, 2)
	out <- StreamChunk{Content: full}
	out <- StreamChunk{Done: true}
	close(out)
	return out, nil
}

type cohereEmbedRequest struct {
	Texts     []string `json:"texts"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
}

type cohereEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (c *Cohere) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	if !c.IsAvailable() {
		return nil, engine.NewError(engine.ErrUnauthorized, "missing api key").WithProvider("cohere").WithRetryable(false)
	}
	resp, err := c.request(ctx, http.MethodPost, "/v1/embed", cohereEmbedRequest{
		Texts:     []string{text},
		Model:     c.cfg.EmbedModel,
		InputType: "search_document",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed cohereEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, engine.NewError(engine.ErrInternal, "decode embedding response").WithCause(err).WithProvider("cohere")
	}
	if len(parsed.Embeddings) == 0 {
		return nil, engine.NewError(engine.ErrProviderUnavailable, "empty embeddings").WithProvider("cohere").WithRetryable(true)
	}
	return parsed.Embeddings[0], nil
}

package provider

import (
	"bufio"
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

// Config parameterises a Base adapter for any vendor whose wire protocol is
// OpenAI-shaped (/v1/chat/completions with {model,messages,max_tokens,
// temperature,stream}). Vendor-specific adapters embed *Base and override
// only what differs (header construction, endpoint paths, response shape).
type Config struct {
	ProviderName     string
	APIKey           string
	APIBase          string
	DefaultModel     string
	Timeout          time.Duration
	ChatPath         string // default "/v1/chat/completions"
	EmbeddingsPath   string // empty disables GetEmbedding support
	RateLimitSeconds float64
	MaxTokens        int
	SupportsVision   bool

	// BuildHeaders lets a vendor override auth header construction; default
	// is "Authorization: Bearer <apiKey>".
	BuildHeaders func(apiKey string) http.Header
}

// Base implements Adapter for any OpenAI-compatible HTTP chat endpoint. It is
// the template every vendor-specific adapter in this package embeds,
// grounded on the teacher's openaicompat.Provider.
type Base struct {
	cfg     Config
	client  *http.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

// New builds a Base adapter, applying defaults for any zero-valued Config
// fields the way the teacher's openaicompat.New does.
func New(cfg Config, logger *zap.Logger) *Base {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ChatPath == "" {
		cfg.ChatPath = "/v1/chat/completions"
	}
	if cfg.RateLimitSeconds <= 0 {
		cfg.RateLimitSeconds = 0.5
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	rl := rate.Every(time.Duration(cfg.RateLimitSeconds * float64(time.Second)))

	return &Base{
		cfg:     cfg,
		client:  tlsutil.SecureHTTPClient(cfg.Timeout),
		logger:  logger.With(zap.String("provider", cfg.ProviderName)),
		limiter: rate.NewLimiter(rl, 1),
	}
}

func (b *Base) Name() string { return b.cfg.ProviderName }

func (b *Base) Capabilities() Capabilities {
	return Capabilities{
		Name:               b.cfg.ProviderName,
		SupportsStreaming:  true,
		SupportsEmbeddings: b.cfg.EmbeddingsPath != "",
		SupportsVision:     b.cfg.SupportsVision,
		MaxTokens:          b.cfg.MaxTokens,
	}
}

func (b *Base) IsAvailable() bool {
	return b.cfg.APIKey != "" && b.cfg.APIBase != ""
}

func (b *Base) endpoint(path string) string {
	return strings.TrimRight(b.cfg.APIBase, "/") + path
}

func (b *Base) buildHeaders() http.Header {
	if b.cfg.BuildHeaders != nil {
		return b.cfg.BuildHeaders(b.cfg.APIKey)
	}
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Authorization", "Bearer "+b.cfg.APIKey)
	return h
}

func (b *Base) waitRateLimit(ctx context.Context) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return engine.NewError(engine.ErrCancelled, "rate limit wait cancelled").WithCause(err)
	}
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	Delta        chatMessage `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

func (b *Base) buildRequest(prompt string, opts engine.GenerateOptions, stream bool) chatRequest {
	model := b.cfg.DefaultModel
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = b.cfg.MaxTokens
	}
	return chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		Stream:      stream,
	}
}

func (b *Base) doJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, engine.NewError(engine.ErrInternal, "marshal request").WithCause(err).WithProvider(b.cfg.ProviderName)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return nil, engine.NewError(engine.ErrInternal, "build request").WithCause(err).WithProvider(b.cfg.ProviderName)
	}
	req.Header = b.buildHeaders()

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, engine.NewError(engine.ErrTimeout, "request timed out").WithCause(err).WithProvider(b.cfg.ProviderName)
		}
		return nil, engine.NewError(engine.ErrProviderUnavailable, "request failed").WithCause(err).WithProvider(b.cfg.ProviderName)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		mapped := mapHTTPError(resp.StatusCode, readErrorBody(resp.Body), b.cfg.ProviderName)
		b.logger.Warn("provider call failed", zap.Int("status", resp.StatusCode), zap.String("code", string(mapped.Code)))
		return nil, mapped
	}
	return resp, nil
}

// Generate implements Adapter.Generate over the OpenAI-compatible chat endpoint.
func (b *Base) Generate(ctx context.Context, prompt string, opts engine.GenerateOptions) (string, error) {
	if !b.IsAvailable() {
		return "", engine.NewError(engine.ErrUnauthorized, "missing api key or base url").WithProvider(b.cfg.ProviderName).WithRetryable(false)
	}
	if err := b.waitRateLimit(ctx); err != nil {
		return "", err
	}

	req := b.buildRequest(prompt, opts, false)
	resp, err := b.doJSON(ctx, b.cfg.ChatPath, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", engine.NewError(engine.ErrInternal, "decode response").WithCause(err).WithProvider(b.cfg.ProviderName)
	}
	if len(parsed.Choices) == 0 {
		return "", engine.NewError(engine.ErrProviderUnavailable, "empty choices").WithProvider(b.cfg.ProviderName).WithRetryable(true)
	}
	return parsed.Choices[0].Message.Content, nil
}

// StreamGenerate implements Adapter.StreamGenerate by parsing an SSE body of
// OpenAI-compatible delta chunks, grounded on the teacher's StreamSSE helper.
func (b *Base) StreamGenerate(ctx context.Context, prompt string, opts engine.GenerateOptions) (<-chan StreamChunk, error) {
	if !b.IsAvailable() {
		return nil, engine.NewError(engine.ErrUnauthorized, "missing api key or base url").WithProvider(b.cfg.ProviderName).WithRetryable(false)
	}
	if err := b.waitRateLimit(ctx); err != nil {
		return nil, err
	}

	req := b.buildRequest(prompt, opts, true)
	resp, err := b.doJSON(ctx, b.cfg.ChatPath, req)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				select {
				case out <- StreamChunk{Done: true}:
				case <-ctx.Done():
				}
				return
			}

			var chunk chatResponse
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			c := chunk.Choices[0]
			select {
			case out <- StreamChunk{Content: c.Delta.Content, Done: c.FinishReason != ""}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// GetEmbedding implements Adapter.GetEmbedding when EmbeddingsPath is set;
// otherwise it fails with ErrNotSupported per spec §4.1.
func (b *Base) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	if b.cfg.EmbeddingsPath == "" {
		return nil, engine.NewError(engine.ErrNotSupported, fmt.Sprintf("%s does not support embeddings", b.cfg.ProviderName)).WithRetryable(false)
	}
	if !b.IsAvailable() {
		return nil, engine.NewError(engine.ErrUnauthorized, "missing api key or base url").WithProvider(b.cfg.ProviderName).WithRetryable(false)
	}
	if err := b.waitRateLimit(ctx); err != nil {
		return nil, err
	}

	resp, err := b.doJSON(ctx, b.cfg.EmbeddingsPath, embeddingRequest{Model: b.cfg.DefaultModel, Input: text})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, engine.NewError(engine.ErrInternal, "decode embedding response").WithCause(err).WithProvider(b.cfg.ProviderName)
	}
	if len(parsed.Data) == 0 {
		return nil, engine.NewError(engine.ErrProviderUnavailable, "empty embedding data").WithProvider(b.cfg.ProviderName).WithRetryable(true)
	}
	return parsed.Data[0].Embedding, nil
}

package provider

import (
	"bufio"
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

// AnthropicConfig parameterises the Anthropic adapter.
type AnthropicConfig struct {
	APIKey       string
	APIBase      string // default "https://api.anthropic.com"
	DefaultModel string
	MaxTokens    int
	Timeout      time.Duration
	APIVersion   string // default "2023-06-01"
}

// Anthropic implements Adapter for Claude's Messages API, which differs from
// the OpenAI-compatible shape enough (auth header, envelope, no embeddings)
// that it is not built on Base.
type Anthropic struct {
	cfg     AnthropicConfig
	client  *http.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

// NewAnthropic builds an Adapter for Anthropic's Messages API.
func NewAnthropic(cfg AnthropicConfig, logger *zap.Logger) *Anthropic {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.anthropic.com"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2023-06-01"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &Anthropic{
		cfg:     cfg,
		client:  tlsutil.SecureHTTPClient(cfg.Timeout),
		logger:  logger.With(zap.String("provider", "anthropic")),
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) IsAvailable() bool { return a.cfg.APIKey != "" }

func (a *Anthropic) Capabilities() Capabilities {
	return Capabilities{
		Name:               "anthropic",
		SupportsStreaming:  true,
		SupportsEmbeddings: false,
		SupportsVision:     true,
		MaxTokens:          a.cfg.MaxTokens,
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Usage   anthropicUsage          `json:"usage"`
	Error   *anthropicErrorBody     `json:"error"`
}

type anthropicErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

func (a *Anthropic) do(ctx context.Context, reqBody anthropicRequest) (*http.Response, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, engine.NewError(engine.ErrCancelled, "rate limit wait cancelled").WithCause(err).WithProvider("anthropic")
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, engine.NewError(engine.ErrInternal, "marshal request").WithCause(err).WithProvider("anthropic")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(a.cfg.APIBase, "/")+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, engine.NewError(engine.ErrInternal, "build request").WithCause(err).WithProvider("anthropic")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.cfg.APIKey)
	req.Header.Set("anthropic-version", a.cfg.APIVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, engine.NewError(engine.ErrTimeout, "request timed out").WithCause(err).WithProvider("anthropic")
		}
		return nil, engine.NewError(engine.ErrProviderUnavailable, "request failed").WithCause(err).WithProvider("anthropic")
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		mapped := mapHTTPError(resp.StatusCode, readErrorBody(resp.Body), "anthropic")
		a.logger.Warn("provider call failed", zap.Int("status", resp.StatusCode), zap.String("code", string(mapped.Code)))
		return nil, mapped
	}
	return resp, nil
}

func (a *Anthropic) Generate(ctx context.Context, prompt string, opts engine.GenerateOptions) (string, error) {
	if !a.IsAvailable() {
		return "", engine.NewError(engine.ErrUnauthorized, "missing api key").WithProvider("anthropic").WithRetryable(false)
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.cfg.MaxTokens
	}
	resp, err := a.do(ctx, anthropicRequest{
		Model:     a.cfg.DefaultModel,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", engine.NewError(engine.ErrInternal, "decode response").WithCause(err).WithProvider("anthropic")
	}
	if parsed.Error != nil {
		return "", engine.NewError(engine.ErrProviderUnavailable, parsed.Error.Message).WithProvider("anthropic").WithRetryable(true)
	}
	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

func (a *Anthropic) StreamGenerate(ctx context.Context, prompt string, opts engine.GenerateOptions) (<-chan StreamChunk, error) {
	if !a.IsAvailable() {
		return nil, engine.NewError(engine.ErrUnauthorized, "missing api key").WithProvider("anthropic").WithRetryable(false)
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.cfg.MaxTokens
	}
	resp, err := a.do(ctx, anthropicRequest{
		Model:     a.cfg.DefaultModel,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
		Stream:    true,
	})
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
			line, rerr := reader.ReadString('\n')
			if rerr != nil {
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

			var ev anthropicStreamEvent
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				continue
			}
			switch ev.Type {
			case "content_block_delta":
				select {
				case out <- StreamChunk{Content: ev.Delta.Text}:
				case <-ctx.Done():
					return
				}
			case "message_stop":
				select {
				case out <- StreamChunk{Done: true}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()
	return out, nil
}

// GetEmbedding is not part of Anthropic's API surface.
func (a *Anthropic) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, engine.NewError(engine.ErrNotSupported, "anthropic does not support embeddings").WithProvider("anthropic").WithRetryable(false)
}

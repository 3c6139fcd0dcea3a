// Package fallback implements the Fallback Service (spec §4.8): the
// reliability envelope wrapping a single logical generate call with cache
// lookup, ordered provider-candidate cascade, per-candidate circuit
// breaking and retry with backoff, and cache/mock last resort.
package fallback

import (
	"context"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/nth-layer/orchestra/cache"
	"github.com/nth-layer/orchestra/circuitbreaker"
	"github.com/nth-layer/orchestra/engine"
	"github.com/nth-layer/orchestra/internal/metrics"
	"github.com/nth-layer/orchestra/provider"
	"github.com/nth-layer/orchestra/retry"

	"go.uber.org/zap"
)

// CandidateResolver returns the ordered list of modelIDs to try for a
// logical modelID, most-preferred first. The default resolver tries the
// requested model alone, then falls back to the registry's Prioritized
// order (spec §4.8 step 2: "explicit mapping, then priority order").
type CandidateResolver func(registry *provider.Registry, modelID string) []string

// DefaultCandidateResolver implements the fallback described above.
func DefaultCandidateResolver(registry *provider.Registry, modelID string) []string {
	seen := map[string]bool{modelID: true}
	out := []string{modelID}
	for _, cfg := range registry.Prioritized() {
		if seen[cfg.ModelID] {
			continue
		}
		seen[cfg.ModelID] = true
		out = append(out, cfg.ModelID)
	}
	return out
}

// Config tunes a Service instance.
type Config struct {
	MaxRetries   int
	RetryPolicy  retry.Policy
	CacheTTL     time.Duration
	MockFallback bool
	SkipBreaker  bool // test-only: bypass circuit breakers entirely
	Resolver     CandidateResolver

	// Metrics, if set, records cache hits/misses and provider call outcomes
	// into the engine-wide Prometheus collector (spec §10 ambient metrics).
	// Nil is a valid no-op value; tests and library callers need not set it.
	Metrics *metrics.Collector
}

// DefaultConfig mirrors the spec §4.8 defaults (maxRetries driven by
// retry.DefaultPolicy, mock fallback enabled).
func DefaultConfig() Config {
	return Config{
		MaxRetries:   retry.DefaultPolicy().MaxRetries,
		RetryPolicy:  retry.DefaultPolicy(),
		CacheTTL:     1 * time.Hour,
		MockFallback: true,
		Resolver:     DefaultCandidateResolver,
	}
}

// Service wraps provider.Registry adapters with the full reliability
// envelope described in spec §4.8.
type Service struct {
	cfg       Config
	registry  *provider.Registry
	breakers  *circuitbreaker.Registry
	cache     *cache.Cache
	streams   *cache.StreamCache
	mock      provider.Adapter
	logger    *zap.Logger
}

// New builds a Service. mock may be nil, in which case MockFallback is
// forced off regardless of cfg.
func New(cfg Config, registry *provider.Registry, breakers *circuitbreaker.Registry, c *cache.Cache, streams *cache.StreamCache, mock provider.Adapter, logger *zap.Logger) *Service {
	if cfg.Resolver == nil {
		cfg.Resolver = DefaultCandidateResolver
	}
	if cfg.RetryPolicy == (retry.Policy{}) {
		cfg.RetryPolicy = retry.DefaultPolicy()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = cfg.RetryPolicy.MaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if mock == nil {
		cfg.MockFallback = false
	}
	return &Service{cfg: cfg, registry: registry, breakers: breakers, cache: c, streams: streams, mock: mock, logger: logger}
}

func fingerprintFor(cfg engine.ModelConfig, stage, prompt string, opts engine.GenerateOptions) cache.Fingerprint {
	return cache.Fingerprint{
		Provider: string(cfg.Provider),
		Model:    cfg.ModelID,
		Stage:    stage,
		Prompt:   prompt,
		Options: map[string]string{
			"max_tokens":  itoa(opts.MaxTokens),
			"temperature": ftoa(opts.Temperature),
		},
	}
}

// Generate runs the full cascade for modelID and returns a ModelResponse
// carrying the winning candidate's content (spec §4.8).
func (s *Service) Generate(ctx context.Context, modelID, prompt string, opts engine.GenerateOptions) (engine.ModelResponse, error) {
	start := time.Now()

	_, requestedCfg, ok := s.registry.Get(modelID)
	if !ok {
		return engine.ModelResponse{}, engine.NewError(engine.ErrBadRequest, "unknown model "+modelID).WithModel(modelID)
	}

	fp := fingerprintFor(requestedCfg, opts.Stage, prompt, opts)
	key := fp.Key()

	if !opts.SkipCache && s.cache != nil {
		if payload, err := s.cache.Get(ctx, key); err == nil {
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.RecordCacheHit("local")
			}
			return engine.ModelResponse{
				Model:      modelID,
				Content:    payload,
				Prompt:     prompt,
				Timestamp:  time.Now(),
				TokensUsed: engine.EstimateTokens(payload),
				Cached:     true,
			}, nil
		}
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RecordCacheMiss("local")
		}
	}

	candidates := s.cfg.Resolver(s.registry, modelID)

	var lastErr error
	for _, candidateID := range candidates {
		adapter, cfg, ok := s.registry.Get(candidateID)
		if !ok {
			continue
		}

		callStart := time.Now()
		breaker := s.breakerFor(cfg)
		content, err := s.callWithRetry(ctx, breaker, adapter, cfg, prompt, opts)
		if s.cfg.Metrics != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			tokens := engine.EstimateTokens(content)
			s.cfg.Metrics.RecordProviderCall(string(cfg.Provider), cfg.ModelID, status, time.Since(callStart), engine.EstimateTokens(prompt), tokens)
		}
		if err == nil {
			resp := engine.ModelResponse{
				Model:      modelID,
				Content:    content,
				Prompt:     prompt,
				Timestamp:  time.Now(),
				TokensUsed: engine.EstimateTokens(content),
				LatencyMs:  time.Since(start).Milliseconds(),
			}
			if s.cache != nil {
				ttl := s.cfg.CacheTTL
				_ = s.cache.SetWithTTL(ctx, key, content, ttl)
			}
			return resp, nil
		}
		lastErr = err
	}

	if s.cfg.MockFallback && s.mock != nil {
		content, err := s.mock.Generate(ctx, prompt, opts)
		if err == nil {
			return engine.ModelResponse{
				Model:      modelID,
				Content:    content,
				Prompt:     prompt,
				Timestamp:  time.Now(),
				TokensUsed: engine.EstimateTokens(content),
				LatencyMs:  time.Since(start).Milliseconds(),
				Fallback:   true,
			}, nil
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = engine.NewError(engine.ErrProviderUnavailable, "no candidates available for "+modelID).WithModel(modelID)
	}
	return engine.ModelResponse{}, lastErr
}

// breakerFor returns this candidate's breaker, bypassed entirely when
// cfg.SkipBreaker is set (used by tests exercising the retry loop alone).
func (s *Service) breakerFor(cfg engine.ModelConfig) *circuitbreaker.Breaker {
	if s.cfg.SkipBreaker || s.breakers == nil {
		return nil
	}
	return s.breakers.GetOrCreate(string(cfg.Provider)+":"+cfg.ModelID, circuitbreaker.Config{})
}

// callWithRetry executes one candidate's retry loop (spec §4.8 step 3b):
// retryable failures backoff and retry up to MaxRetries; non-retryable
// failures break the inner loop immediately, moving to the next candidate.
func (s *Service) callWithRetry(ctx context.Context, breaker *circuitbreaker.Breaker, adapter provider.Adapter, cfg engine.ModelConfig, prompt string, opts engine.GenerateOptions) (string, error) {
	callTimeout := opts.Timeout
	if callTimeout <= 0 || (cfg.Timeout > 0 && cfg.Timeout < callTimeout) {
		callTimeout = cfg.Timeout
	}

	call := func(ctx context.Context) (string, error) {
		callCtx := ctx
		var cancel context.CancelFunc
		if callTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, callTimeout)
			defer cancel()
		}
		return adapter.Generate(callCtx, prompt, opts)
	}

	rng := rand.New(rand.NewPCG(seedFromString(prompt+cfg.ModelID), 0))

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		var content string
		var err error
		if breaker != nil {
			content, err = circuitbreaker.CallWithResultTyped(breaker, ctx, call)
		} else {
			content, err = call(ctx)
		}
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !engine.IsRetryable(err) {
			return "", err
		}
		if attempt == s.cfg.MaxRetries {
			break
		}
		delay := retry.Backoff(s.cfg.RetryPolicy, attempt+1, rng)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", engine.NewError(engine.ErrCancelled, "cancelled during backoff").WithCause(ctx.Err())
		}
	}
	return "", lastErr
}

// StreamGenerate runs the same candidate cascade for a streaming call. A
// cached or mock-fallback result is delivered as a single chunk (spec
// §4.8 "For streaming calls...").
func (s *Service) StreamGenerate(ctx context.Context, modelID, prompt string, opts engine.GenerateOptions) (<-chan provider.StreamChunk, error) {
	_, requestedCfg, ok := s.registry.Get(modelID)
	if !ok {
		return nil, engine.NewError(engine.ErrBadRequest, "unknown model "+modelID).WithModel(modelID)
	}

	fp := fingerprintFor(requestedCfg, opts.Stage, prompt, opts)
	key := fp.Key()

	if !opts.SkipCache && s.streams != nil {
		if ch, ok := s.streams.GetStream(key); ok {
			out := make(chan provider.StreamChunk, 2)
			go func() {
				defer close(out)
				var full strings.Builder
				for c := range ch {
					full.WriteString(c)
				}
				out <- provider.StreamChunk{Content: full.String()}
				out <- provider.StreamChunk{Done: true}
			}()
			return out, nil
		}
	}

	candidates := s.cfg.Resolver(s.registry, modelID)
	var lastErr error
	for _, candidateID := range candidates {
		adapter, cfg, ok := s.registry.Get(candidateID)
		if !ok {
			continue
		}
		breaker := s.breakerFor(cfg)

		var upstream <-chan provider.StreamChunk
		var err error
		call := func(ctx context.Context) (struct{}, error) {
			upstream, err = adapter.StreamGenerate(ctx, prompt, opts)
			return struct{}{}, err
		}
		if breaker != nil {
			_, err = circuitbreaker.CallWithResultTyped(breaker, ctx, call)
		} else {
			_, err = call(ctx)
		}
		if err != nil {
			lastErr = err
			continue
		}
		return s.relayAndCache(key, upstream), nil
	}

	if s.cfg.MockFallback && s.mock != nil {
		content, err := s.mock.Generate(ctx, prompt, opts)
		if err == nil {
			out := make(chan provider.StreamChunk, 2)
			out <- provider.StreamChunk{Content: content}
			out <- provider.StreamChunk{Done: true}
			close(out)
			return out, nil
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = engine.NewError(engine.ErrProviderUnavailable, "no candidates available for "+modelID).WithModel(modelID)
	}
	return nil, lastErr
}

// relayAndCache forwards upstream chunks to the caller while simultaneously
// recording them into the StreamCache, finalising it once the upstream
// channel closes.
func (s *Service) relayAndCache(key string, upstream <-chan provider.StreamChunk) <-chan provider.StreamChunk {
	out := make(chan provider.StreamChunk)

	var appendChunk func(string)
	var finish func()
	if s.streams != nil {
		appendChunk, finish = s.streams.SetStream(key)
	}

	go func() {
		defer close(out)
		if finish != nil {
			defer finish()
		}
		for chunk := range upstream {
			if chunk.Content != "" && appendChunk != nil {
				appendChunk(chunk.Content)
			}
			out <- chunk
		}
	}()

	return out
}

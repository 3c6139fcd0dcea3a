package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/nth-layer/orchestra/cache"
	"github.com/nth-layer/orchestra/circuitbreaker"
	"github.com/nth-layer/orchestra/config"
	"github.com/nth-layer/orchestra/engine"
	"github.com/nth-layer/orchestra/fallback"
	"github.com/nth-layer/orchestra/internal/metrics"
	"github.com/nth-layer/orchestra/internal/telemetry"
	"github.com/nth-layer/orchestra/orchestrator"
	"github.com/nth-layer/orchestra/pattern"
	"github.com/nth-layer/orchestra/resource"
	"github.com/nth-layer/orchestra/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "orchestrator:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath   = flag.String("config", "", "optional YAML config file")
		promptFlag   = flag.String("prompt", "", "prompt text; reads stdin if empty")
		patternFlag  = flag.String("pattern", "gut", "pattern name to run (ignored with -analysis)")
		analysisFlag = flag.String("analysis", "", "analysis mode: quick, deep, compare, confidence")
		streamFlag   = flag.Bool("stream", false, "stream the lead model's first stage to stderr as it generates")
		modelsFlag   = flag.String("models", "", "comma-separated model ids to restrict to; empty means all registered")
		timeoutFlag  = flag.Duration("timeout", 2*time.Minute, "overall deadline for the run")
	)
	flag.Parse()

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	telemetryProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := telemetryProviders.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	prompt, err := resolvePrompt(*promptFlag)
	if err != nil {
		return err
	}
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("no prompt given: pass -prompt or pipe text on stdin")
	}

	registry, err := buildRegistry(logger)
	if err != nil {
		return fmt.Errorf("build provider registry: %w", err)
	}

	collector := metrics.NewCollector("orchestra", logger)

	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{
		Threshold:    cfg.CircuitBreaker.Threshold,
		Timeout:      cfg.CircuitBreaker.Timeout,
		ResetTimeout: cfg.CircuitBreaker.ResetTimeout,
		OnStateChange: func(from, to circuitbreaker.State) {
			label := map[circuitbreaker.State]string{
				circuitbreaker.StateClosed:   "closed",
				circuitbreaker.StateOpen:     "open",
				circuitbreaker.StateHalfOpen: "half_open",
			}[to]
			collector.RecordBreakerTransition("default", label)
		},
	}, logger)

	cacheCfg := cache.Config{
		LocalMaxSize: cfg.Cache.LocalMaxSize,
		DefaultTTL:   cfg.Cache.DefaultTTL,
		Enabled:      cfg.Cache.Enabled,
	}
	if cfg.Cache.RedisAddr != "" {
		cacheCfg.Redis = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr, DB: cfg.Cache.RedisDB})
	}
	respCache := cache.New(cacheCfg, logger)
	streamCache := cache.NewStreamCache(5 * time.Second)

	var mockAdapter = buildMockFallback()
	if !cfg.Fallback.MockFallback {
		mockAdapter = nil
	}

	fb := fallback.New(fallback.Config{
		MaxRetries:   cfg.Fallback.MaxRetries,
		RetryPolicy:  retry.Policy{MaxRetries: cfg.Fallback.MaxRetries, BaseDelay: cfg.Fallback.BaseDelay, MaxDelay: cfg.Fallback.MaxDelay},
		CacheTTL:     cfg.Fallback.CacheTTL,
		MockFallback: cfg.Fallback.MockFallback,
		Metrics:      collector,
	}, registry, breakers, respCache, streamCache, mockAdapter, logger)

	patterns := pattern.NewLibrary()

	optimiser := resource.New(resource.Config{
		MonitoringInterval: cfg.Resource.MonitoringInterval,
		CooldownSeconds:    cfg.Resource.CooldownSeconds,
		MinConcurrency:     cfg.Resource.MinConcurrency,
		MaxConcurrency:     cfg.Resource.MaxConcurrency,
		DiskPath:           cfg.Resource.DiskPath,
	}, logger)
	optimiserCtx, stopOptimiser := context.WithCancel(context.Background())
	defer stopOptimiser()
	optimiser.Start(optimiserCtx)

	actions, subID := optimiser.Subscribe(4)
	defer optimiser.Unsubscribe(subID)
	go watchConcurrency(optimiserCtx, optimiser, actions, collector)

	engineInstance := orchestrator.New(orchestrator.Config{
		EvaluatorModel: cfg.Evaluator.Model,
		Collector:      collector,
	}, registry, fb, patterns, optimiser, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	var models []string
	if *modelsFlag != "" {
		models = strings.Split(*modelsFlag, ",")
		for i := range models {
			models[i] = strings.TrimSpace(models[i])
		}
	}

	result, err := dispatch(ctx, engineInstance, prompt, *patternFlag, *analysisFlag, models, *streamFlag)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func dispatch(ctx context.Context, e *orchestrator.Engine, prompt, patternName, analysisMode string, models []string, stream bool) (any, error) {
	if analysisMode != "" {
		result, err := e.ProcessWithAnalysisMode(ctx, prompt, analysisMode, models)
		if err != nil {
			return nil, fmt.Errorf("process with analysis mode %q: %w", analysisMode, err)
		}
		return result, nil
	}

	if stream {
		updates, err := e.StreamProcess(ctx, prompt, patternName, models)
		if err != nil {
			return nil, fmt.Errorf("stream process: %w", err)
		}
		for u := range updates {
			if u.Content != "" {
				fmt.Fprint(os.Stderr, u.Content)
			}
			if u.Done {
				fmt.Fprintf(os.Stderr, "\n[stage %q done, %d%%]\n", u.Stage, u.Progress)
			}
		}
		return map[string]string{"status": "streamed to stderr"}, nil
	}

	result, err := e.Process(ctx, prompt, patternName, orchestrator.Options{Models: models, EvaluateQuality: true})
	if err != nil {
		return nil, fmt.Errorf("process: %w", err)
	}
	return result, nil
}

// watchConcurrency mirrors the Resource Optimiser's adaptive concurrency
// value into the Prometheus gauge every time an OptimizationAction fires,
// plus once up front so the gauge isn't left at zero before the first
// adjustment.
func watchConcurrency(ctx context.Context, o *resource.Optimiser, actions <-chan engine.OptimizationAction, collector *metrics.Collector) {
	collector.SetConcurrency(int(o.CurrentConcurrency()))
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-actions:
			if !ok {
				return
			}
			collector.SetConcurrency(int(o.CurrentConcurrency()))
		}
	}
}

func resolvePrompt(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	stat, err := os.Stdin.Stat()
	if err != nil {
		return "", nil
	}
	if stat.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	data, err := io.ReadAll(bufio.NewReader(os.Stdin))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

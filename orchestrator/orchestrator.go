// Package orchestrator implements the Orchestrator Core (spec §4.9): it
// composes the Adapter Registry, Fallback Service, Pattern Library,
// Strategy Selector, Progress Tracker and Resource Optimiser into
// multi-stage pattern runs.
package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nth-layer/orchestra/circuitbreaker"
	"github.com/nth-layer/orchestra/engine"
	"github.com/nth-layer/orchestra/fallback"
	"github.com/nth-layer/orchestra/internal/metrics"
	"github.com/nth-layer/orchestra/pattern"
	"github.com/nth-layer/orchestra/progress"
	"github.com/nth-layer/orchestra/provider"
	"github.com/nth-layer/orchestra/resource"
	"github.com/nth-layer/orchestra/strategy"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config tunes an Engine instance.
type Config struct {
	// EvaluatorModel names the adapter used for quality evaluation (spec
	// §4.9.1). Empty means "pick automatically": prefer an OpenAI-family
	// model, else the first available registered model.
	EvaluatorModel string

	// Collector, if set, records per-stage duration into the engine-wide
	// Prometheus collector (spec §10 ambient metrics). Nil is a valid
	// no-op value.
	Collector *metrics.Collector
}

// Engine owns every component it composes and holds no process-wide
// mutable state (spec §9 "Global registries/singletons -> explicit
// engine"): every test constructs a fresh Engine.
type Engine struct {
	cfg       Config
	registry  *provider.Registry
	fallback  *fallback.Service
	patterns  *pattern.Library
	optimiser *resource.Optimiser
	logger    *zap.Logger

	qualityBreakers *circuitbreaker.Registry

	mu      sync.Mutex
	metrics map[string]*ModelMetrics
}

// New builds an Engine from its already-constructed collaborators. Callers
// assemble registry/fallback/patterns/optimiser themselves (see cmd/
// orchestrator for a worked example) so tests can substitute fakes freely.
func New(cfg Config, registry *provider.Registry, fb *fallback.Service, patterns *pattern.Library, optimiser *resource.Optimiser, logger *zap.Logger) *Engine {
	if patterns == nil {
		patterns = pattern.NewLibrary()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:             cfg,
		registry:        registry,
		fallback:        fb,
		patterns:        patterns,
		optimiser:       optimiser,
		logger:          logger,
		qualityBreakers: circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig(), logger),
		metrics:         make(map[string]*ModelMetrics),
	}
}

// configsFor resolves registry configs for the given model ids, skipping
// any id the registry doesn't know (e.g. supplied by a caller who made a
// typo) rather than failing the whole request.
func (e *Engine) configsFor(ids []string) []engine.ModelConfig {
	out := make([]engine.ModelConfig, 0, len(ids))
	for _, id := range ids {
		if _, cfg, ok := e.registry.Get(id); ok {
			out = append(out, cfg)
		}
	}
	return out
}

// planModels resolves the effective model list and per-stage dispatch plan
// for one Process call. With no explicit Strategy, every registered model
// (or the caller's explicit list) runs fully in parallel with no early
// stop — spec §4.9's "all" selection strategy. With a Strategy set, the
// Strategy Selector (spec §4.10) narrows/orders the list and may request
// early-stop (MinResponses) or sequential (Waterfall/CostOptimised) mode.
func (e *Engine) planModels(requested []string, prompt string, opts Options) (models []string, plan strategy.Plan) {
	var configs []engine.ModelConfig
	if len(requested) > 0 {
		configs = e.configsFor(requested)
	} else {
		configs = e.registry.Prioritized()
	}

	if opts.Strategy == "" {
		ids := make([]string, len(configs))
		for i, c := range configs {
			ids[i] = c.ModelID
		}
		sort.Strings(ids)
		return ids, strategy.Plan{Models: ids}
	}

	plan = strategy.Select(opts.Strategy, configs, engine.EstimateTokens(prompt), opts.Hints)
	return plan.Models, plan
}

func (e *Engine) concurrencyLimit(nModels int) int {
	if e.optimiser == nil {
		return nModels
	}
	limit := int(e.optimiser.CurrentConcurrency())
	if limit <= 0 {
		limit = nModels
	}
	if limit > nModels {
		limit = nModels
	}
	if limit <= 0 {
		limit = 1
	}
	return limit
}

// Process runs the full named pattern against the selected models, one
// stage at a time, and returns the structured result (spec §4.9).
func (e *Engine) Process(ctx context.Context, prompt, patternName string, opts Options) (Result, error) {
	models, plan := e.planModels(opts.Models, prompt, opts)

	if patternName == "" {
		patternName = plan.Pattern
	}
	if patternName == "" {
		patternName = "gut"
	}
	pat, ok := e.patterns.Get(patternName)
	if !ok {
		return Result{}, engine.NewError(engine.ErrBadRequest, "unknown pattern "+patternName)
	}

	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	tracker := progress.New()
	for _, m := range models {
		tracker.Update(m, pat.Stages[0], engine.StatusPending, "")
	}

	result := Result{
		Pattern:        patternName,
		Stages:         make(map[string]StageResult),
		OriginalPrompt: prompt,
	}

	history := pattern.History{}
	prevStage := ""

	for _, stage := range pat.Stages {
		tmpl := pat.Templates[stage]
		stageResult := e.runStage(ctx, patternName, prompt, stage, tmpl, history, prevStage, models, opts, plan, tracker)
		result.Stages[stage] = stageResult
		prevStage = stage
	}

	result.Progress = snapshotStatuses(tracker)
	result.Best = pickBest(result, pat.Stages)
	return result, nil
}

// runStage implements the per-stage algorithm of spec §4.9: render each
// model's prompt from StageContext, dispatch through the Fallback Service
// under a semaphore sized by the Resource Optimiser, push progress as
// responses arrive, and record the stage's response map. When plan.
// Sequential is set (Waterfall/CostOptimised), candidates are tried one at
// a time in plan order, stopping at the first success. When plan.
// MinResponses > 0, dispatch stays concurrent and, once that many models
// have succeeded, the remaining in-flight dispatches are cancelled; the
// stage returns after they have exited.
func (e *Engine) runStage(ctx context.Context, patternName, originalPrompt, stage, tmpl string, history pattern.History, prevStage string, models []string, opts Options, plan strategy.Plan, tracker *progress.Tracker) StageResult {
	sr := StageResult{
		Responses: make(map[string]string),
		Metadata:  make(map[string]StageMetadata),
	}
	if e.fallback == nil || len(models) == 0 {
		sr.Error = "no fallback service or no models selected"
		return sr
	}

	if e.cfg.Collector != nil {
		stageStart := time.Now()
		defer func() { e.cfg.Collector.RecordStageDuration(patternName, stage, time.Since(stageStart)) }()
	}

	var historyMu sync.Mutex

	dispatch := func(dispatchCtx context.Context, model string) (string, StageMetadata, bool) {
		tracker.Update(model, stage, engine.StatusStarted, "")

		historyMu.Lock()
		modelCtx := pattern.BuildStageContext(originalPrompt, history, prevStage, model)
		historyMu.Unlock()
		rendered := pattern.Render(tmpl, modelCtx)

		genOpts := engine.GenerateOptions{
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
			SkipCache:   opts.SkipCache,
			Stage:       stage,
		}

		tracker.Update(model, stage, engine.StatusInProgress, "")
		resp, err := e.fallback.Generate(dispatchCtx, model, rendered, genOpts)
		if err != nil {
			tracker.Update(model, stage, engine.StatusFailed, err.Error())
			e.recordFailure(model)
			return "", StageMetadata{Error: err.Error()}, false
		}

		quality := engine.QualityMetrics{}
		if opts.EvaluateQuality {
			quality = e.evaluateQuality(dispatchCtx, resp)
		}
		historyMu.Lock()
		history.Record(stage, model, resp.Content)
		historyMu.Unlock()
		tracker.Update(model, stage, engine.StatusCompleted, "")
		e.recordSuccess(model, resp, quality)
		return resp.Content, StageMetadata{
			Tokens:    resp.TokensUsed,
			LatencyMs: resp.LatencyMs,
			Quality:   quality,
			Cached:    resp.Cached,
			Fallback:  resp.Fallback,
		}, true
	}

	if plan.Sequential {
		for _, model := range models {
			content, meta, ok := dispatch(ctx, model)
			sr.Metadata[model] = meta
			if ok {
				sr.Responses[model] = content
				break
			}
		}
		if len(sr.Responses) == 0 {
			sr.Error = "zero successful responses in stage " + stage
		}
		return sr
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(e.concurrencyLimit(len(models)))

	var mu sync.Mutex
	var cancelOnce sync.Once
	successCount := 0

	for _, model := range models {
		model := model
		g.Go(func() error {
			content, meta, ok := dispatch(gctx, model)

			mu.Lock()
			sr.Metadata[model] = meta
			if ok {
				sr.Responses[model] = content
				successCount++
				if plan.MinResponses > 0 && successCount >= plan.MinResponses {
					cancelOnce.Do(cancel)
				}
			}
			mu.Unlock()
			// Never return a non-nil error: a single model's failure must
			// not cancel its siblings' in-flight calls. Only the
			// MinResponses early-stop above is allowed to cancel the group.
			return nil
		})
	}
	_ = g.Wait()

	if len(sr.Responses) == 0 {
		sr.Error = "zero successful responses in stage " + stage
	}
	return sr
}

func snapshotStatuses(t *progress.Tracker) map[string]map[string]engine.ProgressStatus {
	snap := t.Snapshot()
	out := make(map[string]map[string]engine.ProgressStatus, len(snap))
	for stage, models := range snap {
		row := make(map[string]engine.ProgressStatus, len(models))
		for model, u := range models {
			row[model] = u.Status
		}
		out[stage] = row
	}
	return out
}

// pickBest selects the "best" single answer from the last stage pattern
// actually ran: highest average quality if any was evaluated, else the
// alphabetically-first model's answer for determinism.
func pickBest(result Result, stages []string) string {
	if len(stages) == 0 {
		return ""
	}
	last := stages[len(stages)-1]
	sr, ok := result.Stages[last]
	if !ok || len(sr.Responses) == 0 {
		return ""
	}

	models := make([]string, 0, len(sr.Responses))
	for m := range sr.Responses {
		models = append(models, m)
	}
	sort.Strings(models)

	best := models[0]
	bestQuality := sr.Metadata[best].Quality.Average()
	for _, m := range models[1:] {
		if q := sr.Metadata[m].Quality.Average(); q > bestQuality {
			best = m
			bestQuality = q
		}
	}
	return sr.Responses[best]
}

// Metrics returns a snapshot of every model's rolling bookkeeping (spec
// §4.9 "Tokens/quality bookkeeping").
func (e *Engine) Metrics() map[string]ModelMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]ModelMetrics, len(e.metrics))
	for k, v := range e.metrics {
		out[k] = *v
	}
	return out
}

func (e *Engine) recordSuccess(model string, resp engine.ModelResponse, q engine.QualityMetrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.metricsFor(model)
	m.TokensUsed += int64(resp.TokensUsed)
	m.SuccessCount++
	n := float64(m.SuccessCount)
	m.AvgLatencyMs = m.AvgLatencyMs + (float64(resp.LatencyMs)-m.AvgLatencyMs)/n
	m.AvgQuality = m.AvgQuality + (q.Average()-m.AvgQuality)/n
}

func (e *Engine) recordFailure(model string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metricsFor(model).FailureCount++
}

func (e *Engine) metricsFor(model string) *ModelMetrics {
	m, ok := e.metrics[model]
	if !ok {
		m = &ModelMetrics{}
		e.metrics[model] = m
	}
	return m
}

package orchestrator

import (
	"context"
	"sort"

	"github.com/nth-layer/orchestra/engine"
	"github.com/nth-layer/orchestra/strategy"
)

// AnalysisMode is a preset bundle of (pattern, selection strategy,
// quality-eval flag, cache flag) — spec §4.9 "processWithAnalysisMode" and
// the GLOSSARY's "Analysis mode" entry.
type AnalysisMode struct {
	Name            string
	Pattern         string
	Strategy        strategy.Strategy
	EvaluateQuality bool
	SkipCache       bool
}

// analysisModes is the canonical preset table. "quick" favors a fast single
// round with no critique; "deep" runs the full multi-round perspective
// pattern with quality scoring; "compare" runs the comparative pattern
// specifically to produce a synthesized "ultra" answer.
var analysisModes = map[string]AnalysisMode{
	"quick": {
		Name:            "quick",
		Pattern:         "gut",
		Strategy:        strategy.SpeedOptimised,
		EvaluateQuality: false,
	},
	"deep": {
		Name:            "deep",
		Pattern:         "perspective",
		Strategy:        strategy.QualityOptimised,
		EvaluateQuality: true,
	},
	"compare": {
		Name:            "compare",
		Pattern:         "comparative",
		Strategy:        strategy.Balanced,
		EvaluateQuality: true,
	},
	"confidence": {
		Name:            "confidence",
		Pattern:         "confidence",
		Strategy:        strategy.Parallel,
		EvaluateQuality: false,
	},
}

// AnalysisModes returns every registered preset name, alphabetically.
func AnalysisModes() []string {
	out := make([]string, 0, len(analysisModes))
	for name := range analysisModes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ProcessWithAnalysisMode runs Process using modeName's preset bundle
// (spec §4.9).
func (e *Engine) ProcessWithAnalysisMode(ctx context.Context, prompt, modeName string, models []string) (Result, error) {
	mode, ok := analysisModes[modeName]
	if !ok {
		return Result{}, engine.NewError(engine.ErrBadRequest, "unknown analysis mode "+modeName)
	}
	opts := Options{
		Models:          models,
		Strategy:        mode.Strategy,
		EvaluateQuality: mode.EvaluateQuality,
		SkipCache:       mode.SkipCache,
	}
	return e.Process(ctx, prompt, mode.Pattern, opts)
}

// QuickAnalyze is a convenience wrapper returning the ultra stage's best
// single answer, or the last stage present if the pattern has no ultra
// stage (spec §4.9).
func (e *Engine) QuickAnalyze(ctx context.Context, prompt, analysisType string) (string, error) {
	result, err := e.ProcessWithAnalysisMode(ctx, prompt, analysisType, nil)
	if err != nil {
		return "", err
	}
	if sr, ok := result.Stages["ultra"]; ok && len(sr.Responses) > 0 {
		return bestOf(sr), nil
	}
	return result.Best, nil
}

func bestOf(sr StageResult) string {
	models := make([]string, 0, len(sr.Responses))
	for m := range sr.Responses {
		models = append(models, m)
	}
	sort.Strings(models)
	if len(models) == 0 {
		return ""
	}
	best := models[0]
	bestQ := sr.Metadata[best].Quality.Average()
	for _, m := range models[1:] {
		if q := sr.Metadata[m].Quality.Average(); q > bestQ {
			best = m
			bestQ = q
		}
	}
	return sr.Responses[best]
}

// ComparisonMetrics summarizes one analysis type's run for CompareAnalyses.
type ComparisonMetrics struct {
	Pattern       string
	TotalTokens   int
	StageCount    int
	SuccessCount  int
	FailureCount  int
	BestAnswer    string
}

// CompareAnalyses runs several analysis modes against the same prompt and
// reports comparative metrics for each (spec §4.9).
func (e *Engine) CompareAnalyses(ctx context.Context, prompt string, types []string) (map[string]ComparisonMetrics, error) {
	out := make(map[string]ComparisonMetrics, len(types))
	for _, t := range types {
		result, err := e.ProcessWithAnalysisMode(ctx, prompt, t, nil)
		if err != nil {
			out[t] = ComparisonMetrics{Pattern: t}
			continue
		}

		var cm ComparisonMetrics
		cm.Pattern = result.Pattern
		cm.StageCount = len(result.Stages)
		cm.BestAnswer = result.Best
		for _, sr := range result.Stages {
			cm.SuccessCount += len(sr.Responses)
			for _, meta := range sr.Metadata {
				cm.TotalTokens += meta.Tokens
				if meta.Error != "" {
					cm.FailureCount++
				}
			}
		}
		out[t] = cm
	}
	return out, nil
}

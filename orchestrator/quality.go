package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nth-layer/orchestra/circuitbreaker"
	"github.com/nth-layer/orchestra/engine"
)

const qualityCritiqueTemplate = `Rate the following model response on four axes, each a float in [0,1]: coherence, technicalDepth, strategicValue, uniqueness.

Response to rate:
%s

Reply with ONLY a JSON object of the exact shape:
{"coherence": <float>, "technicalDepth": <float>, "strategicValue": <float>, "uniqueness": <float>}`

type qualityJSON struct {
	Coherence      float64 `json:"coherence"`
	TechnicalDepth float64 `json:"technicalDepth"`
	StrategicValue float64 `json:"strategicValue"`
	Uniqueness     float64 `json:"uniqueness"`
}

// pickEvaluatorModel resolves the model id to prompt for a critique (spec
// §4.9.1): the configured override if registered, else an OpenAI-family
// model, else the first available registered model. Returns "" if the
// registry is empty.
func (e *Engine) pickEvaluatorModel() string {
	if e.cfg.EvaluatorModel != "" {
		if _, _, ok := e.registry.Get(e.cfg.EvaluatorModel); ok {
			return e.cfg.EvaluatorModel
		}
	}

	configs := e.registry.Prioritized()
	for _, c := range configs {
		if c.Provider == engine.ProviderOpenAI {
			return c.ModelID
		}
	}
	if len(configs) > 0 {
		return configs[0].ModelID
	}
	return ""
}

// evaluateQuality runs the quality evaluator sub-routine (spec §4.9.1):
// prompt a designated evaluator model for a structured critique. An
// unavailable evaluator (no model registered, breaker open, unparseable
// output) yields zeroed QualityMetrics without failing the enclosing
// request (spec §9 Open Question #2) — it also runs behind its own breaker
// so a consistently-broken evaluator trips independently of the model
// being evaluated.
func (e *Engine) evaluateQuality(ctx context.Context, resp engine.ModelResponse) engine.QualityMetrics {
	modelID := e.pickEvaluatorModel()
	if modelID == "" || e.fallback == nil {
		return engine.QualityMetrics{}
	}

	breaker := e.qualityBreakerFor(modelID)
	prompt := fmt.Sprintf(qualityCritiqueTemplate, resp.Content)

	call := func(ctx context.Context) (string, error) {
		evalResp, err := e.fallback.Generate(ctx, modelID, prompt, engine.GenerateOptions{Stage: "quality_eval"})
		if err != nil {
			return "", err
		}
		return evalResp.Content, nil
	}

	var raw string
	var err error
	if breaker != nil {
		raw, err = circuitbreaker.CallWithResultTyped(breaker, ctx, call)
	} else {
		raw, err = call(ctx)
	}
	if err != nil {
		return engine.QualityMetrics{}
	}

	return parseQualityJSON(raw)
}

func (e *Engine) qualityBreakerFor(modelID string) *circuitbreaker.Breaker {
	if e.qualityBreakers == nil {
		return nil
	}
	return e.qualityBreakers.GetOrCreate("quality_eval_"+modelID, circuitbreaker.Config{})
}

// parseQualityJSON extracts the critique JSON object from raw (which may
// be wrapped in prose or a code fence) and clamps every score to [0,1].
// Unparseable input returns zeroed QualityMetrics.
func parseQualityJSON(raw string) engine.QualityMetrics {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end < start {
		return engine.QualityMetrics{}
	}

	var parsed qualityJSON
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return engine.QualityMetrics{}
	}

	return engine.QualityMetrics{
		Coherence:      clamp01(parsed.Coherence),
		TechnicalDepth: clamp01(parsed.TechnicalDepth),
		StrategicValue: clamp01(parsed.StrategicValue),
		Uniqueness:     clamp01(parsed.Uniqueness),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

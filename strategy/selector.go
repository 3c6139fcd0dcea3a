// Package strategy implements the Strategy Selector (spec §4.10): maps a
// logical strategy name to a concrete execution Plan (which models to
// dispatch, how many successes are enough, and how candidates are ordered).
package strategy

import (
	"math/rand/v2"
	"sort"

	"github.com/nth-layer/orchestra/engine"
)

// Strategy names the execution mode to plan for.
type Strategy string

const (
	Simple            Strategy = "simple"
	Parallel          Strategy = "parallel"
	Waterfall         Strategy = "waterfall"
	Balanced          Strategy = "balanced"
	QualityOptimised  Strategy = "quality_optimised"
	SpeedOptimised    Strategy = "speed_optimised"
	CostOptimised     Strategy = "cost_optimised"
	Adaptive          Strategy = "adaptive"
)

// Plan is what the Orchestrator actually executes for one request.
type Plan struct {
	Strategy     Strategy
	Models       []string // ordered; for Waterfall/CostOptimised this is try-order
	MinResponses int      // 0 means "wait for all"
	Pattern      string   // suggested pattern override, "" to keep caller's choice
	Sequential   bool     // true for Waterfall/CostOptimised: try one at a time
}

// Hints carries the signals Adaptive uses to pick a concrete strategy.
type Hints struct {
	PromptLength    int
	SystemLoad      float64 // 0..1, from the Resource Optimiser
	PreferSpeed     bool
	PreferQuality   bool
	PreferCost      bool
}

// perTokenCost is a static, rough USD-per-1K-tokens coefficient table used
// only for ordering candidates in CostOptimised — it never calls the
// network, matching spec §4.10's "rough function... using a static
// coefficient table".
var perTokenCost = map[engine.ProviderKind]float64{
	engine.ProviderOpenAI:      0.01,
	engine.ProviderAnthropic:   0.008,
	engine.ProviderGoogle:      0.005,
	engine.ProviderCohere:      0.003,
	engine.ProviderMistral:     0.002,
	engine.ProviderCustom:      0.005,
	engine.ProviderLocalRunner: 0.0,
	engine.ProviderMock:        0.0,
}

// EstimateCost returns a rough per-call cost for cfg given promptTokens,
// used only to order CostOptimised candidates ascending.
func EstimateCost(cfg engine.ModelConfig, promptTokens int) float64 {
	coeff, ok := perTokenCost[cfg.Provider]
	if !ok {
		coeff = 0.005
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return coeff * float64(promptTokens+maxTokens) / 1000
}

// Select builds a Plan for strategy given the registry's candidate configs
// (already filtered to whatever the caller's model selection narrowed to)
// and hints for Adaptive.
func Select(s Strategy, configs []engine.ModelConfig, promptTokens int, hints Hints) Plan {
	if s == Adaptive {
		s = resolveAdaptive(hints)
	}

	ids := modelIDs(configs)

	switch s {
	case Simple:
		return Plan{Strategy: Simple, Models: ids}
	case Parallel:
		return Plan{Strategy: Parallel, Models: ids, MinResponses: 1}
	case Waterfall:
		return Plan{Strategy: Waterfall, Models: byWeightDesc(configs), Sequential: true}
	case Balanced:
		return Plan{Strategy: Balanced, Models: ids, MinResponses: min(2, len(ids))}
	case QualityOptimised:
		return Plan{Strategy: QualityOptimised, Models: ids, Pattern: "comparative"}
	case SpeedOptimised:
		return Plan{Strategy: SpeedOptimised, Models: ids, MinResponses: min(1, len(ids))}
	case CostOptimised:
		return Plan{Strategy: CostOptimised, Models: byCostAsc(configs, promptTokens), Sequential: true}
	default:
		return Plan{Strategy: Simple, Models: ids}
	}
}

func resolveAdaptive(h Hints) Strategy {
	switch {
	case h.PreferCost:
		return CostOptimised
	case h.PreferQuality:
		return QualityOptimised
	case h.PreferSpeed || h.SystemLoad >= 0.8:
		return SpeedOptimised
	case h.PromptLength > 4000:
		return Waterfall
	default:
		return Balanced
	}
}

// SelectModels implements the four model-selection strategies from spec
// §4.9 ("all", "best", "weighted", "random"), applied on top of whatever
// the caller already narrowed `configs` to via explicit model ids or tags.
// Ties are always broken alphabetically by ModelID for determinism.
type SelectionMode string

const (
	SelectAll      SelectionMode = "all"
	SelectBest     SelectionMode = "best"
	SelectWeighted SelectionMode = "weighted"
	SelectRandom   SelectionMode = "random"
)

// SelectModels narrows configs to the ids chosen by mode. maxWorkers bounds
// "best" (top-k by weight) and "random" (subset size); zero/negative means
// "no limit" for every mode but random, which then defaults to all.
func SelectModels(mode SelectionMode, configs []engine.ModelConfig, maxWorkers int, rng *rand.Rand) []string {
	sorted := byWeightDesc(configs)

	switch mode {
	case SelectBest:
		k := maxWorkers
		if k <= 0 || k > len(sorted) {
			k = len(sorted)
		}
		return sorted[:k]
	case SelectWeighted:
		return sorted
	case SelectRandom:
		k := maxWorkers
		if k <= 0 || k > len(sorted) {
			k = len(sorted)
		}
		if rng == nil {
			rng = rand.New(rand.NewPCG(1, 1))
		}
		shuffled := append([]string(nil), sorted...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		picked := shuffled[:k]
		sort.Strings(picked)
		return picked
	default: // SelectAll
		ids := modelIDs(configs)
		sort.Strings(ids)
		return ids
	}
}

func modelIDs(configs []engine.ModelConfig) []string {
	out := make([]string, len(configs))
	for i, c := range configs {
		out[i] = c.ModelID
	}
	sort.Strings(out)
	return out
}

func byWeightDesc(configs []engine.ModelConfig) []string {
	cp := append([]engine.ModelConfig(nil), configs...)
	sort.SliceStable(cp, func(i, j int) bool {
		if cp[i].Weight != cp[j].Weight {
			return cp[i].Weight > cp[j].Weight
		}
		return cp[i].ModelID < cp[j].ModelID
	})
	out := make([]string, len(cp))
	for i, c := range cp {
		out[i] = c.ModelID
	}
	return out
}

func byCostAsc(configs []engine.ModelConfig, promptTokens int) []string {
	cp := append([]engine.ModelConfig(nil), configs...)
	sort.SliceStable(cp, func(i, j int) bool {
		ci, cj := EstimateCost(cp[i], promptTokens), EstimateCost(cp[j], promptTokens)
		if ci != cj {
			return ci < cj
		}
		return cp[i].ModelID < cp[j].ModelID
	})
	out := make([]string, len(cp))
	for i, c := range cp {
		out[i] = c.ModelID
	}
	return out
}

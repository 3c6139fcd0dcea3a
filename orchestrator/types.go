package orchestrator

import (
	"time"

	"github.com/nth-layer/orchestra/engine"
	"github.com/nth-layer/orchestra/strategy"
)

// Options carries one Process call's overrides (spec §6 request shape).
type Options struct {
	Models          []string
	MaxTokens       int
	Temperature     float64
	SkipCache       bool
	Deadline        time.Duration
	EvaluateQuality bool

	// Strategy, if set, routes model selection and stage dispatch through
	// the Strategy Selector (spec §4.10) instead of the plain "all models,
	// wait for everyone" default.
	Strategy strategy.Strategy
	Hints    strategy.Hints
}

// StageMetadata is one model's bookkeeping for one stage.
type StageMetadata struct {
	Tokens    int
	LatencyMs int64
	Quality   engine.QualityMetrics
	Cached    bool
	Fallback  bool
	Error     string
}

// StageResult is one stage's outcome across every selected model (spec §6).
type StageResult struct {
	Responses map[string]string
	Metadata  map[string]StageMetadata
	Error     string
}

// Result is the Orchestrator's response shape (spec §6).
type Result struct {
	Pattern        string
	Stages         map[string]StageResult
	Progress       map[string]map[string]engine.ProgressStatus
	OriginalPrompt string
	Best           string // selected "best" answer, if requested
}

// StreamUpdate is one event of a streamed Process call (spec §6).
type StreamUpdate struct {
	Model    string
	Stage    string
	Content  string
	Done     bool
	Progress int
	Cached   bool
	Pattern  string
}

// ModelMetrics is the rolling per-model bookkeeping exposed by Metrics()
// (spec §4.9 "Tokens/quality bookkeeping").
type ModelMetrics struct {
	TokensUsed      int64
	AvgLatencyMs    float64
	AvgQuality      float64
	SuccessCount    int64
	FailureCount    int64
}

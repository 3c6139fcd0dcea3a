package engine

import "time"

// ProviderKind enumerates the vendor backends a ModelConfig can resolve to.
// New providers are added here at compile time (spec §9: dynamic plug-in
// import is replaced by a static enum + factory).
type ProviderKind string

const (
	ProviderOpenAI      ProviderKind = "openai"
	ProviderAnthropic   ProviderKind = "anthropic"
	ProviderGoogle      ProviderKind = "google"
	ProviderCohere      ProviderKind = "cohere"
	ProviderMistral     ProviderKind = "mistral"
	ProviderCustom      ProviderKind = "custom"
	ProviderMock        ProviderKind = "mock"
	ProviderLocalRunner ProviderKind = "local_runner"
)

// ModelConfig describes one callable backend.
type ModelConfig struct {
	Provider    ProviderKind
	ModelID     string
	APIKey      string
	APIBase     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	Weight      float64
	IsPrimary   bool
	Tags        map[string]bool

	// RateLimitSeconds is the minimum spacing between successive calls on
	// this adapter instance. Zero means the adapter default (0.5s) applies.
	RateLimitSeconds float64
}

// Validate enforces the invariants from spec §3: weight >= 0, temperature in
// [0,2], timeout > 0. Primary uniqueness is checked at registry level since
// it is a cross-config invariant.
func (c ModelConfig) Validate() error {
	if c.Weight < 0 {
		return NewError(ErrBadRequest, "weight must be >= 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return NewError(ErrBadRequest, "temperature must be in [0,2]")
	}
	if c.Timeout <= 0 {
		return NewError(ErrBadRequest, "timeout must be > 0")
	}
	return nil
}

// QualityMetrics are four scores in [0,1] plus their average.
type QualityMetrics struct {
	Coherence       float64
	TechnicalDepth  float64
	StrategicValue  float64
	Uniqueness      float64
}

// Average returns the mean of the four component scores.
func (q QualityMetrics) Average() float64 {
	return (q.Coherence + q.TechnicalDepth + q.StrategicValue + q.Uniqueness) / 4
}

// ModelResponse is one adapter's answer within a stage.
type ModelResponse struct {
	Model      string
	Content    string
	Prompt     string
	Timestamp  time.Time
	TokensUsed int
	Quality    QualityMetrics
	LatencyMs  int64
	Cached     bool
	Fallback   bool
}

// EstimateTokens approximates token count from word count when a provider
// does not report usage (spec §3: tokensUsed ≈ words(content)/0.75).
func EstimateTokens(content string) int {
	words := 0
	inWord := false
	for _, r := range content {
		isSpace := r == ' ' || r == '\n' || r == '\t' || r == '\r'
		if !isSpace && !inWord {
			words++
			inWord = true
		} else if isSpace {
			inWord = false
		}
	}
	return int(float64(words) / 0.75)
}

// Pattern is a named, ordered stage pipeline with per-stage prompt templates.
type Pattern struct {
	Name      string
	Stages    []string
	Templates map[string]string
}

// Validate enforces spec §3: non-empty stages, first stage "initial", every
// declared stage has a template.
func (p Pattern) Validate() error {
	if len(p.Stages) == 0 {
		return NewError(ErrBadRequest, "pattern "+p.Name+" has no stages")
	}
	if p.Stages[0] != "initial" {
		return NewError(ErrBadRequest, "pattern "+p.Name+" must start with stage \"initial\"")
	}
	for _, s := range p.Stages {
		if _, ok := p.Templates[s]; !ok {
			return NewError(ErrBadRequest, "pattern "+p.Name+" missing template for stage "+s)
		}
	}
	return nil
}

// ProgressStatus is one (model,stage) pair's lifecycle state.
type ProgressStatus string

const (
	StatusPending    ProgressStatus = "Pending"
	StatusStarted    ProgressStatus = "Started"
	StatusInProgress ProgressStatus = "InProgress"
	StatusRetrying   ProgressStatus = "Retrying"
	StatusCompleted  ProgressStatus = "Completed"
	StatusFailed     ProgressStatus = "Failed"
	StatusCancelled  ProgressStatus = "Cancelled"
)

// Terminal reports whether the status will not change further.
func (s ProgressStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ProgressUpdate is one event delivered to progress subscribers.
type ProgressUpdate struct {
	Model   string
	Stage   string
	Status  ProgressStatus
	Message string
	Ts      time.Time
}

// ResourceMetrics is one sample of the host's resource utilization.
type ResourceMetrics struct {
	CPUPercent  float64
	MemPercent  float64
	MemUsedMB   float64
	MemAvailMB  float64
	DiskPercent float64
	NetConns    int
	Ts          time.Time
}

// ResourceLevel classifies a single metric against configured thresholds.
type ResourceLevel string

const (
	LevelOptimal  ResourceLevel = "Optimal"
	LevelWarning  ResourceLevel = "Warning"
	LevelCritical ResourceLevel = "Critical"
)

// OptimizationAction is an action the Resource Optimiser can trigger.
type OptimizationAction string

const (
	ActionReduceConcurrency   OptimizationAction = "ReduceConcurrency"
	ActionIncreaseConcurrency OptimizationAction = "IncreaseConcurrency"
	ActionClearCache          OptimizationAction = "ClearCache"
	ActionForceGC             OptimizationAction = "ForceGC"
)

// GenerateOptions carries the per-call tunables an adapter or the Fallback
// Service needs. Zero values mean "use the ModelConfig default".
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	SkipCache   bool
	Stage       string
}

// StageContext is the mapping built before rendering a stage's template
// (spec §3). original_prompt is always present; after the first stage it
// also carries per-model and aggregate responses from prior stages.
type StageContext map[string]string

// NewStageContext seeds a context with just the original prompt, as used
// for the pattern's first ("initial") stage.
func NewStageContext(originalPrompt string) StageContext {
	return StageContext{"original_prompt": originalPrompt}
}

package circuitbreaker

import (
	"sync"

	"go.uber.org/zap"
)

// Registry lazily creates and caches one Breaker per id, grounded on the
// teacher's per-provider breaker map in llm/resilience.go.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	logger   *zap.Logger
	breakers map[string]*Breaker
}

// NewRegistry builds a Registry; every breaker it creates uses cfg as a
// default unless overridden via GetOrCreate.
func NewRegistry(cfg Config, logger *zap.Logger) *Registry {
	return &Registry{cfg: cfg, logger: logger, breakers: make(map[string]*Breaker)}
}

// GetOrCreate returns the existing breaker for id, or creates one with cfg
// (falling back to the registry default when cfg is the zero value).
func (r *Registry) GetOrCreate(id string, cfg Config) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[id]; ok {
		return b
	}
	if cfg.Threshold == 0 && cfg.Timeout == 0 && cfg.ResetTimeout == 0 && cfg.OnStateChange == nil {
		cfg = r.cfg
	}
	b := New(id, cfg, r.logger)
	r.breakers[id] = b
	return b
}

// Snapshot returns the current state of every known breaker, keyed by id.
func (r *Registry) Snapshot() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.breakers))
	for id, b := range r.breakers {
		out[id] = b.State()
	}
	return out
}

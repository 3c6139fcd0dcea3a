package provider

import (
	"sort"
	"sync"

	"github.com/nth-layer/orchestra/engine"
)

// Registry holds every registered Adapter, keyed by the ModelConfig's
// ModelID. It is the Adapter Registry/Factory of spec §4.2: adapters are
// registered once at startup and looked up by model id, tag, or capability
// thereafter. Reads take a snapshot under RLock; mutation rebuilds the
// snapshot under Lock (copy-on-write), so concurrent lookups never block
// on each other.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]entry
}

type entry struct {
	config  engine.ModelConfig
	adapter Adapter
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]entry)}
}

// Register adds or replaces the adapter for cfg.ModelID.
func (r *Registry) Register(cfg engine.ModelConfig, adapter Adapter) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.ModelID == "" {
		return engine.NewError(engine.ErrBadRequest, "model id must not be empty")
	}
	if adapter == nil {
		return engine.NewError(engine.ErrBadRequest, "adapter must not be nil").WithModel(cfg.ModelID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	next := make(map[string]entry, len(r.adapters)+1)
	for k, v := range r.adapters {
		next[k] = v
	}
	next[cfg.ModelID] = entry{config: cfg, adapter: adapter}
	r.adapters = next
	return nil
}

// Deregister removes the adapter for modelID, if present.
func (r *Registry) Deregister(modelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[modelID]; !ok {
		return
	}
	next := make(map[string]entry, len(r.adapters))
	for k, v := range r.adapters {
		if k != modelID {
			next[k] = v
		}
	}
	r.adapters = next
}

// Get returns the adapter and config registered for modelID.
func (r *Registry) Get(modelID string) (Adapter, engine.ModelConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.adapters[modelID]
	if !ok {
		return nil, engine.ModelConfig{}, false
	}
	return e.adapter, e.config, true
}

// ListByTag returns every ModelConfig with tags[tag] == true.
func (r *Registry) ListByTag(tag string) []engine.ModelConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []engine.ModelConfig
	for _, e := range r.adapters {
		if e.config.Tags[tag] {
			out = append(out, e.config)
		}
	}
	sortConfigsByModelID(out)
	return out
}

// ListByCapability returns every ModelConfig whose adapter reports want.
func (r *Registry) ListByCapability(want func(Capabilities) bool) []engine.ModelConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []engine.ModelConfig
	for _, e := range r.adapters {
		if want(e.adapter.Capabilities()) {
			out = append(out, e.config)
		}
	}
	sortConfigsByModelID(out)
	return out
}

// Prioritized returns every registered ModelConfig with primaries first,
// each tier ordered by descending weight then ascending ModelID, grounded
// on the teacher's factory priority resolution.
func (r *Registry) Prioritized() []engine.ModelConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]engine.ModelConfig, 0, len(r.adapters))
	for _, e := range r.adapters {
		out = append(out, e.config)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].ModelID < out[j].ModelID
	})
	return out
}

// All returns every (adapter, config) pair, ordered by ModelID.
func (r *Registry) All() []struct {
	Adapter Adapter
	Config  engine.ModelConfig
} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]struct {
		Adapter Adapter
		Config  engine.ModelConfig
	}, 0, len(r.adapters))
	for _, e := range r.adapters {
		out = append(out, struct {
			Adapter Adapter
			Config  engine.ModelConfig
		}{Adapter: e.adapter, Config: e.config})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Config.ModelID < out[j].Config.ModelID })
	return out
}

func sortConfigsByModelID(cfgs []engine.ModelConfig) {
	sort.SliceStable(cfgs, func(i, j int) bool { return cfgs[i].ModelID < cfgs[j].ModelID })
}

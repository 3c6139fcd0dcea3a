// Package resource implements the Resource Optimiser (spec §4.6): periodic
// host resource sampling, level classification, and adaptive dispatch
// concurrency.
package resource

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nth-layer/orchestra/engine"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"go.uber.org/zap"
)

// Thresholds configures the Optimal/Warning/Critical cutpoints, all as
// percentages in [0,100].
type Thresholds struct {
	CPUWarning  float64
	CPUCritical float64
	MemWarning  float64
	MemCritical float64
	DiskWarning  float64
	DiskCritical float64

	// CPUScaleUp is the ceiling below which IncreaseConcurrency may fire.
	CPUScaleUp float64
}

// DefaultThresholds mirrors common operational defaults: warning at 70-80%
// and critical at 90-95%, depending on the resource.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUWarning: 70, CPUCritical: 90,
		MemWarning: 75, MemCritical: 90,
		DiskWarning: 80, DiskCritical: 95,
		CPUScaleUp: 40,
	}
}

// Config tunes an Optimiser.
type Config struct {
	MonitoringInterval time.Duration // default 30s
	CooldownSeconds    int           // min seconds between concurrency adjustments; default 10
	MinConcurrency     int64         // default 1
	MaxConcurrency     int64         // default 32
	DiskPath           string        // default "/"
	Thresholds         Thresholds
}

// DefaultConfig returns the spec's §4.6 defaults.
func DefaultConfig() Config {
	return Config{
		MonitoringInterval: 30 * time.Second,
		CooldownSeconds:    10,
		MinConcurrency:     1,
		MaxConcurrency:     32,
		DiskPath:           "/",
		Thresholds:         DefaultThresholds(),
	}
}

// Optimiser samples host resources on an interval, classifies them, and
// exposes an adaptively-sized concurrency value for the Orchestrator's
// dispatch semaphore.
type Optimiser struct {
	cfg    Config
	logger *zap.Logger

	current atomic.Int64 // currentConcurrency

	mu             sync.RWMutex
	latest         engine.ResourceMetrics
	lastAdjustment time.Time

	subMu       sync.Mutex
	subscribers map[int]chan engine.OptimizationAction
	nextSubID   int

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an Optimiser; Start must be called to begin sampling.
func New(cfg Config, logger *zap.Logger) *Optimiser {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MonitoringInterval <= 0 {
		cfg.MonitoringInterval = 30 * time.Second
	}
	if cfg.CooldownSeconds <= 0 {
		cfg.CooldownSeconds = 10
	}
	if cfg.MinConcurrency <= 0 {
		cfg.MinConcurrency = 1
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 32
	}
	if cfg.MaxConcurrency < cfg.MinConcurrency {
		cfg.MaxConcurrency = cfg.MinConcurrency
	}
	if cfg.DiskPath == "" {
		cfg.DiskPath = "/"
	}

	o := &Optimiser{
		cfg:         cfg,
		logger:      logger,
		subscribers: make(map[int]chan engine.OptimizationAction),
	}
	o.current.Store(cfg.MaxConcurrency)
	return o
}

// Start launches the sampling loop in its own goroutine; it stops when ctx
// is cancelled or Stop is called.
func (o *Optimiser) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})

	go func() {
		defer close(o.done)
		ticker := time.NewTicker(o.cfg.MonitoringInterval)
		defer ticker.Stop()

		o.sample(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.sample(ctx)
			}
		}
	}()
}

// Stop halts the sampling loop and waits for it to exit.
func (o *Optimiser) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	if o.done != nil {
		<-o.done
	}
}

func (o *Optimiser) sample(ctx context.Context) {
	m := o.collect(ctx)

	o.mu.Lock()
	o.latest = m
	o.mu.Unlock()

	o.evaluate(m)
}

func (o *Optimiser) collect(ctx context.Context) engine.ResourceMetrics {
	m := engine.ResourceMetrics{Ts: time.Now()}

	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
		m.CPUPercent = pcts[0]
	} else if err != nil {
		o.logger.Warn("cpu sample failed", zap.Error(err))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		m.MemPercent = vm.UsedPercent
		m.MemUsedMB = float64(vm.Used) / (1024 * 1024)
		m.MemAvailMB = float64(vm.Available) / (1024 * 1024)
	} else {
		o.logger.Warn("mem sample failed", zap.Error(err))
	}

	if du, err := disk.UsageWithContext(ctx, o.cfg.DiskPath); err == nil {
		m.DiskPercent = du.UsedPercent
	} else {
		o.logger.Warn("disk sample failed", zap.Error(err), zap.String("path", o.cfg.DiskPath))
	}

	if conns, err := net.ConnectionsWithContext(ctx, "all"); err == nil {
		m.NetConns = len(conns)
	}

	return m
}

// CurrentMetrics returns the most recent sample without blocking on the
// sampling goroutine.
func (o *Optimiser) CurrentMetrics() engine.ResourceMetrics {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.latest
}

// Level classifies value against warning/critical thresholds.
func Level(value, warning, critical float64) engine.ResourceLevel {
	switch {
	case value >= critical:
		return engine.LevelCritical
	case value >= warning:
		return engine.LevelWarning
	default:
		return engine.LevelOptimal
	}
}

func (o *Optimiser) evaluate(m engine.ResourceMetrics) {
	cpuLevel := Level(m.CPUPercent, o.cfg.Thresholds.CPUWarning, o.cfg.Thresholds.CPUCritical)
	memLevel := Level(m.MemPercent, o.cfg.Thresholds.MemWarning, o.cfg.Thresholds.MemCritical)

	if time.Since(o.lastAdjustment) < time.Duration(o.cfg.CooldownSeconds)*time.Second {
		return
	}

	var actions []engine.OptimizationAction

	switch {
	case cpuLevel == engine.LevelCritical:
		actions = append(actions, engine.ActionReduceConcurrency)
	case m.CPUPercent <= o.cfg.Thresholds.CPUScaleUp && m.MemPercent < 70:
		actions = append(actions, engine.ActionIncreaseConcurrency)
	}

	if memLevel == engine.LevelCritical {
		actions = append(actions, engine.ActionClearCache, engine.ActionForceGC)
	}

	if len(actions) == 0 {
		return
	}

	o.lastAdjustment = time.Now()
	for _, a := range actions {
		o.apply(a)
		o.publish(a)
	}
}

func (o *Optimiser) apply(action engine.OptimizationAction) {
	switch action {
	case engine.ActionReduceConcurrency:
		o.adjustConcurrency(-1)
	case engine.ActionIncreaseConcurrency:
		o.adjustConcurrency(1)
	}
}

func (o *Optimiser) adjustConcurrency(delta int64) {
	for {
		cur := o.current.Load()
		next := cur + delta
		if next < o.cfg.MinConcurrency {
			next = o.cfg.MinConcurrency
		}
		if next > o.cfg.MaxConcurrency {
			next = o.cfg.MaxConcurrency
		}
		if next == cur {
			return
		}
		if o.current.CompareAndSwap(cur, next) {
			o.logger.Info("adjusted concurrency", zap.Int64("from", cur), zap.Int64("to", next))
			return
		}
	}
}

// CurrentConcurrency returns the adaptively-sized dispatch limit the
// Orchestrator should use to size its semaphore.
func (o *Optimiser) CurrentConcurrency() int64 {
	return o.current.Load()
}

// Subscribe returns a channel of future OptimizationActions, in the same
// channel-delivery style as the Progress Tracker (spec §4.6).
func (o *Optimiser) Subscribe(buffer int) (<-chan engine.OptimizationAction, int) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan engine.OptimizationAction, buffer)

	o.subMu.Lock()
	id := o.nextSubID
	o.nextSubID++
	o.subscribers[id] = ch
	o.subMu.Unlock()

	return ch, id
}

// Unsubscribe removes a subscription registered by Subscribe.
func (o *Optimiser) Unsubscribe(id int) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	delete(o.subscribers, id)
}

func (o *Optimiser) publish(action engine.OptimizationAction) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for _, ch := range o.subscribers {
		select {
		case ch <- action:
		default:
		}
	}
}

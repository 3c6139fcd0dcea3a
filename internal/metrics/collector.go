// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector groups the Prometheus vectors the engine records during a run.
type Collector struct {
	providerCallsTotal   *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec
	tokensUsedTotal      *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	breakerTransitions *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec

	concurrencyCurrent prometheus.Gauge

	stageDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector builds and registers the engine's metric vectors under namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.providerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Total number of provider adapter calls",
		},
		[]string{"provider", "model", "status"},
	)

	c.providerCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Provider adapter call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.tokensUsedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_used_total",
			Help:      "Total number of tokens consumed, by kind",
		},
		[]string{"provider", "model", "kind"}, // kind: prompt, completion
	)

	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of response cache hits",
		},
		[]string{"tier"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of response cache misses",
		},
		[]string{"tier"},
	)

	c.breakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"provider", "to_state"},
	)

	c.breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Current circuit breaker state (0=closed, 1=half_open, 2=open)",
		},
		[]string{"provider"},
	)

	c.concurrencyCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "concurrency_current",
			Help:      "Current adaptive concurrency limit",
		},
	)

	c.stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Orchestrator stage duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"pattern", "stage"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordProviderCall records one adapter call's outcome, duration and token usage.
func (c *Collector) RecordProviderCall(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.providerCallsTotal.WithLabelValues(provider, model, status).Inc()
	c.providerCallDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.tokensUsedTotal.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.tokensUsedTotal.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// RecordCacheHit records a response cache hit on the given tier ("local" or "redis").
func (c *Collector) RecordCacheHit(tier string) {
	c.cacheHits.WithLabelValues(tier).Inc()
}

// RecordCacheMiss records a response cache miss on the given tier.
func (c *Collector) RecordCacheMiss(tier string) {
	c.cacheMisses.WithLabelValues(tier).Inc()
}

// RecordBreakerTransition records a circuit breaker moving to toState for provider.
func (c *Collector) RecordBreakerTransition(provider, toState string) {
	c.breakerTransitions.WithLabelValues(provider, toState).Inc()
	var v float64
	switch toState {
	case "half_open":
		v = 1
	case "open":
		v = 2
	}
	c.breakerState.WithLabelValues(provider).Set(v)
}

// SetConcurrency reports the current adaptive concurrency limit.
func (c *Collector) SetConcurrency(n int) {
	c.concurrencyCurrent.Set(float64(n))
}

// RecordStageDuration records how long one pattern stage took to complete.
func (c *Collector) RecordStageDuration(pattern, stage string, duration time.Duration) {
	c.stageDuration.WithLabelValues(pattern, stage).Observe(duration.Seconds())
}

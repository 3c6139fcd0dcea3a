/*
Package metrics provides Prometheus-based instrumentation for the
orchestration engine: provider calls, cache hits/misses, circuit breaker
state transitions, and adaptive concurrency.

# Core types

  - Collector: holds the CounterVec/HistogramVec/GaugeVec instances,
    registered once per process via promauto, grouped by concern.

# Coverage

  - Provider calls: total count and duration by provider/model/status.
  - Cache: hit/miss counts by tier (local, redis).
  - Circuit breaker: state transition counts by provider and target state.
  - Concurrency: current adaptive dispatch limit as a gauge.
*/
package metrics

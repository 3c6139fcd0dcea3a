package config

import "time"

// DefaultConfig returns the engine's out-of-the-box tunables: every section
// matches its component's own DefaultConfig()/DefaultThresholds() so a
// caller loading no file and setting no env vars gets identical behavior to
// constructing each component with nil options.
func DefaultConfig() *Config {
	return &Config{
		Cache:          DefaultCacheConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Resource:       DefaultResourceConfig(),
		Fallback:       DefaultFallbackConfig(),
		Evaluator:      EvaluatorConfig{},
		Log:            DefaultLogConfig(),
		Telemetry:      DefaultTelemetryConfig(),
	}
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		LocalMaxSize: 1000,
		DefaultTTL:   1 * time.Hour,
		Enabled:      true,
	}
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:    5,
		Timeout:      30 * time.Second,
		ResetTimeout: 60 * time.Second,
	}
}

func DefaultResourceConfig() ResourceConfig {
	return ResourceConfig{
		MonitoringInterval: 30 * time.Second,
		CooldownSeconds:    10,
		MinConcurrency:     1,
		MaxConcurrency:     32,
		DiskPath:           "/",
	}
}

func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		MaxRetries:   3,
		BaseDelay:    1 * time.Second,
		MaxDelay:     30 * time.Second,
		CacheTTL:     1 * time.Hour,
		MockFallback: true,
	}
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "orchestra",
		SampleRate:   0.1,
	}
}

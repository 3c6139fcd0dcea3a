package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the engine's complete tunable surface (spec §10). Per-provider
// credentials are deliberately absent: the factory reads those straight
// from <PROVIDER>_API_KEY/<PROVIDER>_API_BASE rather than through this
// struct.
type Config struct {
	Cache          CacheConfig          `yaml:"cache" env:"CACHE"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" env:"CIRCUIT_BREAKER"`
	Resource       ResourceConfig       `yaml:"resource" env:"RESOURCE"`
	Fallback       FallbackConfig       `yaml:"fallback" env:"FALLBACK"`
	Evaluator      EvaluatorConfig      `yaml:"evaluator" env:"EVALUATOR"`
	Log            LogConfig            `yaml:"log" env:"LOG"`
	Telemetry      TelemetryConfig      `yaml:"telemetry" env:"TELEMETRY"`
}

// CacheConfig tunes the Response Cache (spec §4.4).
type CacheConfig struct {
	LocalMaxSize int           `yaml:"local_max_size" env:"LOCAL_MAX_SIZE"`
	DefaultTTL   time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	RedisAddr    string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisDB      int           `yaml:"redis_db" env:"REDIS_DB"`
}

// CircuitBreakerConfig tunes the default breaker every provider/model pair
// gets from circuitbreaker.Registry (spec §4.3).
type CircuitBreakerConfig struct {
	Threshold    int           `yaml:"threshold" env:"THRESHOLD"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
	ResetTimeout time.Duration `yaml:"reset_timeout" env:"RESET_TIMEOUT"`
}

// ResourceConfig tunes the Resource Optimiser (spec §4.6).
type ResourceConfig struct {
	MonitoringInterval time.Duration `yaml:"monitoring_interval" env:"MONITORING_INTERVAL"`
	CooldownSeconds    int           `yaml:"cooldown_seconds" env:"COOLDOWN_SECONDS"`
	MinConcurrency     int64         `yaml:"min_concurrency" env:"MIN_CONCURRENCY"`
	MaxConcurrency     int64         `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
	DiskPath           string        `yaml:"disk_path" env:"DISK_PATH"`
}

// FallbackConfig tunes the Fallback Service's retry/cache envelope (spec
// §4.8).
type FallbackConfig struct {
	MaxRetries   int           `yaml:"max_retries" env:"MAX_RETRIES"`
	BaseDelay    time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	MockFallback bool          `yaml:"mock_fallback" env:"MOCK_FALLBACK"`
}

// EvaluatorConfig tunes the Quality Evaluator sub-routine (spec §4.9.1).
type EvaluatorConfig struct {
	Model string `yaml:"model" env:"MODEL"`
}

// LogConfig tunes the zap logger used throughout the engine.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig tunes the optional OpenTelemetry tracer provider
// (internal/telemetry). Disabled by default so the engine never requires an
// OTLP collector to run (spec §10).
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader loads a Config with defaults -> YAML file -> environment variable
// precedence, Builder-style, grounded on the teacher's config.Loader.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader returns a Loader with the engine's default env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "ENGINE"}
}

// WithConfigPath sets the optional YAML file to load before env overrides.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix (default "ENGINE").
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator registers a validation hook run after load.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the final Config.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks v's fields by their "env" tag, recursing into
// nested structs and joining prefixes with "_" (ENGINE_CACHE_ENABLED, ...).
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		raw, ok := os.LookupEnv(envKey)
		if !ok || raw == "" {
			continue
		}
		if err := setFieldValue(field, raw); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads from path, panicking on failure. Intended for cmd/ wiring
// where a bad config file should fail fast at startup.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

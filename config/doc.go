// Package config loads the engine's own tunables: cache, circuit breaker,
// resource optimiser, fallback, telemetry and log sections. Precedence is
// defaults -> YAML file -> environment variables, mirroring the teacher's
// Loader (WithConfigPath, WithEnvPrefix, Load). Per-provider credentials are
// read directly by the factory from the flat <PROVIDER>_API_KEY convention
// and are not part of this struct (spec §6).
package config

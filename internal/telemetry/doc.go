// Package telemetry wraps OpenTelemetry SDK initialization, providing a
// centralized TracerProvider for the orchestration engine. When telemetry
// is disabled, it falls back to a noop implementation and never dials an
// external collector.
package telemetry

// Package tlsutil provides centralized, hardened TLS configuration
// (TLS 1.2+, AEAD-only cipher suites) for HTTP clients and Redis
// connections used across the engine.
package tlsutil

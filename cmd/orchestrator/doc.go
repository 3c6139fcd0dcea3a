/*
Command orchestrator is the engine's executable entry point: it wires a
provider.Registry, fallback.Service, pattern.Library, resource.Optimiser
and orchestrator.Engine from config and environment variables, then runs
one Process call against stdin or a -prompt flag and prints the result as
JSON. It has no HTTP surface (out of scope per spec §1) — callers embed the
orchestrator package directly, or front this binary with their own
transport.

Usage:

	orchestrator -prompt "what should we ship next?" -pattern confidence
	orchestrator -prompt "..." -analysis deep
	echo "..." | orchestrator -pattern gut
*/
package main

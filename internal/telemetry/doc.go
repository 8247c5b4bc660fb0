// Package telemetry wires OpenTelemetry tracing and metrics for promptd.
//
// Export failures never crash the daemon: a provider that cannot be built
// leaves the global no-op provider in place and marks telemetry degraded.
package telemetry

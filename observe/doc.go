// Package observe provides the telemetry used by the dataset service.
//
// It wires OpenTelemetry tracing and metrics with pluggable exporters, a
// slog-backed structured Logger that redacts sensitive fields, and a
// Middleware that instruments dataset operations (load, metadata, payload,
// extend) with a span, counters and a log line each.
package observe

// Package observability provides a Prometheus-backed metrics extension
// for backlog. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for enqueue, start, completion, retry, failure,
// cancellation, fatal failure and recovery events.
//
// For per-attempt tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability

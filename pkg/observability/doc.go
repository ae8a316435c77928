// Package observability provides structured logging and Prometheus
// metrics for the gather service.
//
// The Logger wraps log/slog with a JSON handler and supports field
// chaining (WithField/WithFields/WithError) plus context propagation of
// request and user ids. Metrics cover the HTTP surface, the
// authorization hot path (decisions, cache hits/misses) and the cache
// invalidation failure counter that makes a widening staleness window
// detectable.
package observability

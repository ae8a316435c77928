package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzChecksTotal   *prometheus.CounterVec
	AuthzCheckDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal                  *prometheus.CounterVec
	CacheMissesTotal                *prometheus.CounterVec
	CacheErrorsTotal                *prometheus.CounterVec
	CacheInvalidationFailuresTotal  *prometheus.CounterVec
	CacheWarmupKeysSeeded           prometheus.Gauge

	// Store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec

	// Database pool metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Invite metrics
	InviteCodesCreatedTotal  prometheus.Counter
	InviteCodesRedeemedTotal prometheus.Counter
	InviteCodesRevokedTotal  prometheus.Counter
	InviteCodesExpiredTotal  prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gather_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gather_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		AuthzChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gather_authz_checks_total",
				Help: "Total number of permission checks by decision",
			},
			[]string{"namespace", "decision"},
		),
		AuthzCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gather_authz_check_duration_seconds",
				Help:    "Permission check duration in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"namespace"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gather_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"key_kind"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gather_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"key_kind"},
		),
		CacheErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gather_cache_errors_total",
				Help: "Total number of cache read/write errors (degrade to store, never fail the request)",
			},
			[]string{"operation"},
		),
		CacheInvalidationFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gather_cache_invalidation_failures_total",
				Help: "Invalidations that failed after a durable write; sustained growth widens the staleness window",
			},
			[]string{"key_kind"},
		),
		CacheWarmupKeysSeeded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gather_cache_warmup_keys_seeded",
				Help: "Number of role keys seeded by the startup warm-up pass",
			},
		),

		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gather_store_operations_total",
				Help: "Total number of durable store operations",
			},
			[]string{"operation", "status"},
		),
		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gather_store_operation_duration_seconds",
				Help:    "Durable store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gather_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gather_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		InviteCodesCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gather_invite_codes_created_total",
				Help: "Total number of invite codes created",
			},
		),
		InviteCodesRedeemedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gather_invite_codes_redeemed_total",
				Help: "Total number of invite codes redeemed",
			},
		),
		InviteCodesRevokedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gather_invite_codes_revoked_total",
				Help: "Total number of invite codes revoked",
			},
		),
		InviteCodesExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gather_invite_codes_expired_total",
				Help: "Total number of invite codes observed expired by the sweeper",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzChecksTotal,
		m.AuthzCheckDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheErrorsTotal,
		m.CacheInvalidationFailuresTotal,
		m.CacheWarmupKeysSeeded,
		m.StoreOperationsTotal,
		m.StoreOperationDuration,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.InviteCodesCreatedTotal,
		m.InviteCodesRedeemedTotal,
		m.InviteCodesRevokedTotal,
		m.InviteCodesExpiredTotal,
	)

	return m
}

// Handler returns an http.Handler serving the metrics registry.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records metrics for a completed HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveAuthzCheck records metrics for a completed permission check.
func (m *Metrics) ObserveAuthzCheck(namespace string, allowed bool, duration time.Duration) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.AuthzChecksTotal.WithLabelValues(namespace, decision).Inc()
	m.AuthzCheckDuration.WithLabelValues(namespace).Observe(duration.Seconds())
}

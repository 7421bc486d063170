package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	StoreErrorsTotal       *prometheus.CounterVec

	// Identity provider metrics
	IdentityOperationsTotal   *prometheus.CounterVec
	IdentityOperationDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Authorization metrics
	PolicyDecisionsTotal *prometheus.CounterVec
	RateLimitedTotal     *prometheus.CounterVec

	// Consistency metrics
	CounterUpdateFailuresTotal *prometheus.CounterVec
	CompensationFailuresTotal  *prometheus.CounterVec
	ReconcileRunsTotal         *prometheus.CounterVec
	ReconcileDuration          prometheus.Histogram
	ReconcileRepairsTotal      *prometheus.CounterVec

	// Audit metrics
	AuditEventsDroppedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamut_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gamut_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gamut_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gamut_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),

		// Store metrics
		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamut_store_operations_total",
				Help: "Total number of document store operations",
			},
			[]string{"operation", "backend", "status"},
		),
		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gamut_store_operation_duration_seconds",
				Help:    "Document store operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation", "backend"},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamut_store_errors_total",
				Help: "Total number of document store errors",
			},
			[]string{"operation", "backend", "error_type"},
		),

		// Identity metrics
		IdentityOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamut_identity_operations_total",
				Help: "Total number of identity provider operations",
			},
			[]string{"operation", "provider", "status"},
		),
		IdentityOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gamut_identity_operation_duration_seconds",
				Help:    "Identity provider operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "provider"},
		),

		// Cache metrics
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamut_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamut_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		// Authorization metrics
		PolicyDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamut_policy_decisions_total",
				Help: "Total number of authorization decisions",
			},
			[]string{"operation", "outcome"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamut_rate_limited_total",
				Help: "Total number of requests rejected by rate limiting",
			},
			[]string{"limiter"},
		),

		// Consistency metrics
		CounterUpdateFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamut_team_counter_update_failures_total",
				Help: "Total number of team member counter updates that failed",
			},
			[]string{"operation"},
		),
		CompensationFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamut_compensation_failures_total",
				Help: "Total number of rollback steps that failed",
			},
			[]string{"operation", "step"},
		),
		ReconcileRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamut_reconcile_runs_total",
				Help: "Total number of reconciliation runs",
			},
			[]string{"status"},
		),
		ReconcileDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gamut_reconcile_duration_seconds",
				Help:    "Reconciliation run duration in seconds",
				Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 300},
			},
		),
		ReconcileRepairsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamut_reconcile_repairs_total",
				Help: "Total number of records repaired by reconciliation",
			},
			[]string{"kind"},
		),

		// Audit metrics
		AuditEventsDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamut_audit_events_dropped_total",
				Help: "Total number of audit events that could not be written",
			},
			[]string{"sink"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.StoreOperationsTotal,
		m.StoreOperationDuration,
		m.StoreErrorsTotal,
		m.IdentityOperationsTotal,
		m.IdentityOperationDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.PolicyDecisionsTotal,
		m.RateLimitedTotal,
		m.CounterUpdateFailuresTotal,
		m.CompensationFailuresTotal,
		m.ReconcileRunsTotal,
		m.ReconcileDuration,
		m.ReconcileRepairsTotal,
		m.AuditEventsDroppedTotal,
	)

	return m
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordStoreOperation records the outcome of a document store call
func (m *Metrics) RecordStoreOperation(operation, backend string, err error, errorType string, d time.Duration) {
	if m == nil {
		return
	}
	m.StoreOperationsTotal.WithLabelValues(operation, backend, statusLabel(err)).Inc()
	m.StoreOperationDuration.WithLabelValues(operation, backend).Observe(d.Seconds())
	if err != nil {
		m.StoreErrorsTotal.WithLabelValues(operation, backend, errorType).Inc()
	}
}

// RecordIdentityOperation records the outcome of an identity provider call
func (m *Metrics) RecordIdentityOperation(operation, provider string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.IdentityOperationsTotal.WithLabelValues(operation, provider, statusLabel(err)).Inc()
	m.IdentityOperationDuration.WithLabelValues(operation, provider).Observe(d.Seconds())
}

// RecordCacheLookup records a cache hit or miss
func (m *Metrics) RecordCacheLookup(cacheType string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cacheType).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cacheType).Inc()
}

// RecordDecision records an authorization decision outcome such as allowed or denied
func (m *Metrics) RecordDecision(operation, outcome string) {
	if m == nil {
		return
	}
	m.PolicyDecisionsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordRateLimited records a request rejected by a limiter
func (m *Metrics) RecordRateLimited(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(limiter).Inc()
}

// RecordCounterFailure records a swallowed team counter update failure
func (m *Metrics) RecordCounterFailure(operation string) {
	if m == nil {
		return
	}
	m.CounterUpdateFailuresTotal.WithLabelValues(operation).Inc()
}

// RecordCompensationFailure records a rollback step that could not complete
func (m *Metrics) RecordCompensationFailure(operation, step string) {
	if m == nil {
		return
	}
	m.CompensationFailuresTotal.WithLabelValues(operation, step).Inc()
}

// RecordReconcile records a reconciliation run and the repairs it made
func (m *Metrics) RecordReconcile(err error, orphansRemoved, countersFixed int, d time.Duration) {
	if m == nil {
		return
	}
	m.ReconcileRunsTotal.WithLabelValues(statusLabel(err)).Inc()
	m.ReconcileDuration.Observe(d.Seconds())
	m.ReconcileRepairsTotal.WithLabelValues("orphan_record").Add(float64(orphansRemoved))
	m.ReconcileRepairsTotal.WithLabelValues("member_count").Add(float64(countersFixed))
}

// RecordAuditDropped records an audit event that a sink failed to persist
func (m *Metrics) RecordAuditDropped(sink string) {
	if m == nil {
		return
	}
	m.AuditEventsDroppedTotal.WithLabelValues(sink).Inc()
}

// routeLabel returns the mux path template so ids do not explode label cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// HTTPMetricsMiddleware records count, latency and sizes per route template.
// It must be installed with router.Use so the matched route is known.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snoop := httpsnoop.CaptureMetrics(next, w, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(snoop.Code)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(snoop.Duration.Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(snoop.Written))
			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, route).Observe(float64(r.ContentLength))
			}
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

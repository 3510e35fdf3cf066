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
	AuthzDecisionsTotal  *prometheus.CounterVec
	AuthzLookupErrors    prometheus.Counter
	AuthzCacheHitsTotal  prometheus.Counter
	AuthzCacheMissesTotal prometheus.Counter

	// Webhook metrics
	WebhookVerificationsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "merchantry_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "merchantry_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "merchantry_authz_decisions_total",
				Help: "Authorization verdicts by resource type and outcome",
			},
			[]string{"resource", "verdict"},
		),
		AuthzLookupErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "merchantry_authz_lookup_errors_total",
				Help: "Authorization checks that failed due to datastore errors",
			},
		),
		AuthzCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "merchantry_authz_cache_hits_total",
				Help: "Membership cache hits",
			},
		),
		AuthzCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "merchantry_authz_cache_misses_total",
				Help: "Membership cache misses",
			},
		),
		WebhookVerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "merchantry_webhook_verifications_total",
				Help: "Webhook signature verification outcomes",
			},
			[]string{"result"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "merchantry_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "merchantry_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.AuthzLookupErrors,
		m.AuthzCacheHitsTotal,
		m.AuthzCacheMissesTotal,
		m.WebhookVerificationsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns the Prometheus metrics HTTP handler for the registry
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the response status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware instruments an HTTP handler with request metrics
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()
		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

// ObserveAuthzDecision records a single authorization verdict
func (m *Metrics) ObserveAuthzDecision(resource string, allowed bool) {
	verdict := "deny"
	if allowed {
		verdict = "allow"
	}
	m.AuthzDecisionsTotal.WithLabelValues(resource, verdict).Inc()
}

// ObserveWebhookVerification records a webhook verification outcome
func (m *Metrics) ObserveWebhookVerification(ok bool) {
	result := "rejected"
	if ok {
		result = "verified"
	}
	m.WebhookVerificationsTotal.WithLabelValues(result).Inc()
}

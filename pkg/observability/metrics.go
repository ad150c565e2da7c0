package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Key-value store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec

	// Access gate metrics
	GateDecisionsTotal *prometheus.CounterVec

	// Identity metrics
	IdentityCacheTotal *prometheus.CounterVec

	// Audit log metrics
	AuditRecordsTotal  *prometheus.CounterVec
	AuditEvictedTotal  prometheus.Counter
	AuditArchivedTotal *prometheus.CounterVec
	AuditEntries       prometheus.Gauge

	// Rate limiting
	RateLimitDecisionsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "controlplane_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "controlplane_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "controlplane_kv_operations_total",
				Help: "Total number of key-value store operations",
			},
			[]string{"operation", "backend", "status"},
		),
		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "controlplane_kv_operation_duration_seconds",
				Help:    "Key-value store operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "backend"},
		),

		GateDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "controlplane_access_gate_decisions_total",
				Help: "Access gate outcomes by required tier",
			},
			[]string{"tier", "outcome"},
		),

		IdentityCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "controlplane_identity_cache_total",
				Help: "Verified identity cache lookups",
			},
			[]string{"result"},
		),

		AuditRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "controlplane_audit_records_total",
				Help: "Audit log writes by outcome",
			},
			[]string{"action", "status"},
		),
		AuditEvictedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "controlplane_audit_evicted_total",
				Help: "Audit entries deleted by retention trimming",
			},
		),
		AuditArchivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "controlplane_audit_archived_total",
				Help: "Audit archive uploads by outcome",
			},
			[]string{"status"},
		),
		AuditEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "controlplane_audit_entries",
				Help: "Audit entries retained after the last trim",
			},
		),

		RateLimitDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "controlplane_rate_limit_decisions_total",
				Help: "Rate limiter decisions by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.StoreOperationsTotal,
		m.StoreOperationDuration,
		m.GateDecisionsTotal,
		m.IdentityCacheTotal,
		m.AuditRecordsTotal,
		m.AuditEvictedTotal,
		m.AuditArchivedTotal,
		m.AuditEntries,
		m.RateLimitDecisionsTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Routes are labelled by their mux template so path parameters such as user
// ids do not explode label cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routeTemplate(r *http.Request) string {
	if current := mux.CurrentRoute(r); current != nil {
		if tmpl, err := current.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

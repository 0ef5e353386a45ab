package observability

import (
	"context"
	"database/sql"
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
	AuthzDecisionsTotal   *prometheus.CounterVec
	AuthzCheckDuration    *prometheus.HistogramVec
	AuditWriteFailures    prometheus.Counter
	ActorCacheHitsTotal   prometheus.Counter
	ActorCacheMissesTotal prometheus.Counter

	// Impersonation metrics
	ImpersonationStartsTotal     *prometheus.CounterVec
	ImpersonationSessionsActive  prometheus.Gauge
	ImpersonationTimeoutsSwept   prometheus.Counter

	// Magic link metrics
	MagicLinkRequestsTotal    *prometheus.CounterVec
	MagicLinkValidationsTotal *prometheus.CounterVec
	MagicLinkTokensSwept      prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "myscheduling_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "myscheduling_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "myscheduling_authz_decisions_total",
				Help: "Authorization decisions by outcome and reason",
			},
			[]string{"allowed", "reason"},
		),
		AuthzCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "myscheduling_authz_check_duration_seconds",
				Help:    "Permission resolution latency in seconds",
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"resource"},
		),
		AuditWriteFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "myscheduling_audit_write_failures_total",
				Help: "Authorization audit log writes that failed and were suppressed",
			},
		),
		ActorCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "myscheduling_actor_cache_hits_total",
				Help: "Actor snapshot cache hits",
			},
		),
		ActorCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "myscheduling_actor_cache_misses_total",
				Help: "Actor snapshot cache misses",
			},
		),
		ImpersonationStartsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "myscheduling_impersonation_starts_total",
				Help: "Impersonation session start attempts by outcome",
			},
			[]string{"outcome"},
		),
		ImpersonationSessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "myscheduling_impersonation_sessions_active",
				Help: "Impersonation sessions currently active",
			},
		),
		ImpersonationTimeoutsSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "myscheduling_impersonation_timeouts_swept_total",
				Help: "Impersonation sessions closed by the timeout sweep",
			},
		),
		MagicLinkRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "myscheduling_magic_link_requests_total",
				Help: "Magic link issuance requests by internal outcome",
			},
			[]string{"outcome"},
		),
		MagicLinkValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "myscheduling_magic_link_validations_total",
				Help: "Magic link validation attempts by status",
			},
			[]string{"status"},
		),
		MagicLinkTokensSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "myscheduling_magic_link_tokens_swept_total",
				Help: "Expired magic link tokens removed by the cleanup sweep",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "myscheduling_db_connections_active",
				Help: "Active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "myscheduling_db_connections_idle",
				Help: "Idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.AuthzCheckDuration,
		m.AuditWriteFailures,
		m.ActorCacheHitsTotal,
		m.ActorCacheMissesTotal,
		m.ImpersonationStartsTotal,
		m.ImpersonationSessionsActive,
		m.ImpersonationTimeoutsSwept,
		m.MagicLinkRequestsTotal,
		m.MagicLinkValidationsTotal,
		m.MagicLinkTokensSwept,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps an HTTP handler with request metrics
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// SetDBStats updates the connection-pool gauges from a pool snapshot
func (m *Metrics) SetDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// CollectDBStats refreshes the connection-pool gauges from the live
// pool every interval until ctx is cancelled. Run it on its own
// goroutine.
func (m *Metrics) CollectDBStats(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetDBStats(db.Stats())
		}
	}
}

// statusRecorder captures the response status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Package metrics exposes Prometheus collectors for logins and HTTP traffic.
package metrics

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/simple-social-auth/pkg/domain"
)

const namespace = "social_auth"

// Metrics implements auth.Metrics and instruments HTTP handlers.
type Metrics struct {
	registry *prometheus.Registry

	linksTotal       *prometheus.CounterVec
	lazyUsersTotal   prometheus.Counter
	lazyUserAttempts prometheus.Histogram
	rehashTotal      *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        prometheus.Gauge
}

// New creates the collectors on a private registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		linksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_links_total",
			Help:      "Provider link attempts by outcome.",
		}, []string{"provider", "outcome"}), // outcome: linked|rejected|conflict|error

		lazyUsersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lazy_users_created_total",
			Help:      "Guest accounts created for new sessions.",
		}),

		lazyUserAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lazy_user_attempts",
			Help:      "Username attempts needed to create a guest account.",
			Buckets:   []float64{1, 2, 3, 5, 10, 20},
		}),

		rehashTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "password_rehash_total",
			Help:      "Stored password hashes upgraded on login, by previous algorithm.",
		}, []string{"from"}),

		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests processed.",
		}, []string{"method", "route", "status"}),

		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),

		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "HTTP requests currently being served.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.linksTotal,
		m.lazyUsersTotal,
		m.lazyUserAttempts,
		m.rehashTotal,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpInflight,
	)
	return m
}

// RegisterDB adds connection pool gauges for db.
func (m *Metrics) RegisterDB(db *sql.DB, name string) error {
	err := m.registry.Register(collectors.NewDBStatsCollector(db, name))
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}

// LinkCompleted implements auth.Metrics.
func (m *Metrics) LinkCompleted(provider domain.Provider, outcome string) {
	m.linksTotal.WithLabelValues(string(provider), outcome).Inc()
}

// LazyUserCreated implements auth.Metrics.
func (m *Metrics) LazyUserCreated(attempts int) {
	m.lazyUsersTotal.Inc()
	m.lazyUserAttempts.Observe(float64(attempts))
}

// PasswordRehashed implements auth.Metrics.
func (m *Metrics) PasswordRehashed(from string) {
	m.rehashTotal.WithLabelValues(from).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts, latency and in-flight requests. The
// route label is the chi route pattern so ids never become label values.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInflight.Inc()
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		defer func() {
			m.httpInflight.Dec()
			method := strings.ToUpper(r.Method)
			route := routePattern(r)
			m.httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		}()

		next.ServeHTTP(rec, r)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Package metrics exposes prometheus collectors for the API and worker.
package metrics

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"clinic/internal/core"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clinic"

// Collector owns a private registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	dbQueries     *prometheus.CounterVec
	dbDuration    *prometheus.HistogramVec
	events        *prometheus.CounterVec
	rateLimitHits prometheus.Counter
	ledgerRows    *prometheus.CounterVec
}

// New registers every collector plus the go and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		dbQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_queries_total",
				Help:      "Total number of storage operations",
			},
			[]string{"operation", "status"},
		),
		dbDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Storage operation duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"operation"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_events_total",
				Help:      "Payment events published or consumed",
			},
			[]string{"event", "status"},
		),
		rateLimitHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected by the rate limiter",
		}),
		ledgerRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_rows_total",
				Help:      "Rows appended to the payments ledger",
			},
			[]string{"event", "status"},
		),
	}

	c.registry.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.dbQueries,
		c.dbDuration,
		c.events,
		c.rateLimitHits,
		c.ledgerRows,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry is exposed for tests and for registering extra collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the exposition format for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RegisterDB publishes connection pool gauges. stats is usually
// (*storage.Store).Stats.
func (c *Collector) RegisterDB(dialect string, stats func() sql.DBStats) {
	labels := prometheus.Labels{"dialect": dialect}
	gauge := func(name, help string, value func(sql.DBStats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return value(stats()) })
	}
	c.registry.MustRegister(
		gauge("db_open_connections", "Open database connections",
			func(s sql.DBStats) float64 { return float64(s.OpenConnections) }),
		gauge("db_in_use_connections", "Database connections in use",
			func(s sql.DBStats) float64 { return float64(s.InUse) }),
		gauge("db_idle_connections", "Idle database connections",
			func(s sql.DBStats) float64 { return float64(s.Idle) }),
	)
}

// ObserveQuery satisfies storage.QueryObserver.
func (c *Collector) ObserveQuery(op string, took time.Duration, err error) {
	c.dbDuration.WithLabelValues(op).Observe(took.Seconds())
	c.dbQueries.WithLabelValues(op, queryStatus(err)).Inc()
}

// queryStatus keeps expected domain outcomes apart from real failures.
func queryStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	case errors.Is(err, core.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

// ObserveEvent counts a published or consumed payment event.
func (c *Collector) ObserveEvent(event string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.events.WithLabelValues(event, status).Inc()
}

// ObserveLedgerRow counts a ledger append attempt.
func (c *Collector) ObserveLedgerRow(event string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.ledgerRows.WithLabelValues(event, status).Inc()
}

// RateLimited counts one rejected request.
func (c *Collector) RateLimited() {
	c.rateLimitHits.Inc()
}

// Middleware records count and latency per route template. It must run
// inside the mux router (Router.Use) so the matched route is known.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := routeTemplate(r)
		c.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		c.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

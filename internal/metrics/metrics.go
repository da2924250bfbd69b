// Package metrics exposes Prometheus collectors for the catalog crawler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tasksTotal                 *prometheus.CounterVec
	stageDurationSeconds       *prometheus.HistogramVec
	upstreamRequestsTotal      *prometheus.CounterVec
	batchesTotal               *prometheus.CounterVec
	batchRowsTotal             *prometheus.CounterVec
	frontierEnqueuedTotal      prometheus.Counter
	tokenRefreshesTotal        *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaySeconds      prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		tasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_tasks_total",
				Help: "Total number of crawl tasks processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_stage_duration_seconds",
				Help:    "Histogram of per-stage durations within one seed crawl.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage"},
		)

		upstreamRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_upstream_requests_total",
				Help: "Total number of catalog API requests, labeled by endpoint and status code.",
			},
			[]string{"endpoint", "code"},
		)

		batchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_batches_total",
				Help: "Total number of grouped writes, labeled by table and result.",
			},
			[]string{"table", "result"},
		)

		batchRowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_batch_rows_total",
				Help: "Total number of rows submitted through grouped writes, labeled by table.",
			},
			[]string{"table"},
		)

		frontierEnqueuedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_frontier_enqueued_total",
				Help: "Total number of neighbor ids newly inserted into the task queue.",
			},
		)

		tokenRefreshesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_token_refreshes_total",
				Help: "Total number of bearer token refreshes, labeled by result.",
			},
			[]string{"result"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_active_workers",
				Help: "Number of workers currently processing a seed.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_rate_limit_delay_seconds",
				Help:    "Histogram of upstream rate limiter wait durations.",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveTask increments the task counter for the given outcome.
func ObserveTask(outcome string) {
	Init()
	tasksTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long one orchestrator stage took.
func ObserveStage(stage string, d time.Duration) {
	Init()
	stageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveUpstream counts one catalog API response. Transport failures use code 0.
func ObserveUpstream(endpoint string, code int) {
	Init()
	upstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
}

// ObserveBatch counts one grouped write against table.
func ObserveBatch(table string, rows int, err error) {
	Init()
	result := "ok"
	if err != nil {
		result = "error"
	}
	batchesTotal.WithLabelValues(table, result).Inc()
	batchRowsTotal.WithLabelValues(table).Add(float64(rows))
}

// ObserveFrontier adds newly enqueued neighbor ids.
func ObserveFrontier(n int) {
	Init()
	if n > 0 {
		frontierEnqueuedTotal.Add(float64(n))
	}
}

// ObserveTokenRefresh counts one token refresh attempt.
func ObserveTokenRefresh(err error) {
	Init()
	result := "ok"
	if err != nil {
		result = "error"
	}
	tokenRefreshesTotal.WithLabelValues(result).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(d time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware records request count and latency labeled by the matched chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		ObserveHTTPRequest(r.Method, route, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

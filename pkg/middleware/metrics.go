package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestLabels = []string{"service", "method", "path", "status"}

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route pattern and status.",
		},
		requestLabels,
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status.",
			Buckets: prometheus.DefBuckets,
		},
		requestLabels,
	)

	httpRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		},
		[]string{"service"},
	)
)

// PrometheusMetrics records request count, latency and concurrency. The path
// label is the chi route pattern, so IDs in the URL do not create new
// series; unmatched requests are labelled "unknown". Requests to skipPaths
// (probes, the scrape endpoint) are not measured.
func PrometheusMetrics(serviceName string, skipPaths ...string) func(next http.Handler) http.Handler {
	inFlight := httpRequestsInFlight.WithLabelValues(serviceName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(skipPaths, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			inFlight.Inc()
			defer inFlight.Dec()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			route := "unknown"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			labels := prometheus.Labels{
				"service": serviceName,
				"method":  r.Method,
				"path":    route,
				"status":  strconv.Itoa(rw.statusCode),
			}
			httpRequestsTotal.With(labels).Inc()
			httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
		})
	}
}

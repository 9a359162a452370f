package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: chart payloads served from the result cache.
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "racedash_cache_hits_total",
			Help: "Total number of result cache hits.",
		},
	)

	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "racedash_cache_misses_total",
			Help: "Total number of result cache misses, expired entries included.",
		},
	)

	CacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "racedash_cache_evictions_total",
			Help: "Entries evicted because the cache exceeded its capacity.",
		},
	)

	// Histogram: backend round trips by endpoint and outcome.
	BackendRequestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "racedash_backend_request_seconds",
			Help:    "Latency of backend requests in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"endpoint", "outcome"},
	)

	// Counter: chart load state transitions, labelled by the state entered.
	ChartTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "racedash_chart_transitions_total",
			Help: "Chart load coordinator transitions by target status.",
		},
		[]string{"status"},
	)

	BatchFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "racedash_batch_failures_total",
			Help: "Failed chart fetches inside batch loads.",
		},
		[]string{"chart"},
	)

	// Histogram: session API HTTP latency in seconds.
	APILatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "racedash_api_latency_seconds",
			Help:    "HTTP request latency for the session API in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"path", "method", "status_code"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			CacheHitsTotal,
			CacheMissesTotal,
			CacheEvictionsTotal,
			BackendRequestSeconds,
			ChartTransitionsTotal,
			BatchFailuresTotal,
			APILatencySeconds,
		)
	})
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures API latency for each HTTP request. The route pattern is
// used as the path label when the router provides one, so session ids do not
// explode label cardinality.
func Middleware(pattern func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rec, r)

			path := r.URL.Path
			if pattern != nil {
				if p := pattern(r); p != "" {
					path = p
				}
			}

			APILatencySeconds.
				WithLabelValues(path, r.Method, strconv.Itoa(rec.statusCode)).
				Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

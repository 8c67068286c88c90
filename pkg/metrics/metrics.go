package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nlquery_build_info",
			Help: "Build information of nlquery",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlquery_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nlquery_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nlquery_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	IndexBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlquery_index_builds_total",
			Help: "Total number of dataset index builds",
		},
		[]string{"status"},
	)

	IndexBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nlquery_index_build_duration_seconds",
			Help:    "Duration of dataset index builds in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	IndexLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlquery_index_lookups_total",
			Help: "Total number of dataset index cache lookups",
		},
		[]string{"result"},
	)

	PipelineRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlquery_pipeline_requests_total",
			Help: "Total number of questions answered by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nlquery_pipeline_duration_seconds",
			Help:    "Duration of question answering in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlquery_llm_calls_total",
			Help: "Total number of LLM completion calls",
		},
		[]string{"provider", "status"},
	)

	ConsensusRatio = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nlquery_consensus_ratio",
			Help:    "Agreement ratio of self-consistency query generation",
			Buckets: []float64{0.34, 0.5, 0.67, 0.8, 1},
		},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

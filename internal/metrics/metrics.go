package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielkorkin/tiktok-depression-survey/internal/services"
)

// Metrics holds the HTTP and survey pipeline collectors registered on one
// registry. It implements services.SubmissionRecorder.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	submissions       *prometheus.CounterVec
	activityRejected  *prometheus.CounterVec
	scoreConversions  *prometheus.CounterVec
	encryptedChunks   prometheus.Counter
	rateLimitRejected prometheus.Counter
}

var _ services.SubmissionRecorder = (*Metrics)(nil)

// New registers every collector on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),
		submissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "submissions_total",
				Help: "Survey submissions by outcome",
			},
			[]string{"result"},
		),
		activityRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activity_rejections_total",
				Help: "Activity exports rejected, by offending field",
			},
			[]string{"field"},
		),
		scoreConversions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "score_conversions_total",
				Help: "Stored scores by scoring method",
			},
			[]string{"method"},
		),
		encryptedChunks: f.NewCounter(
			prometheus.CounterOpts{
				Name: "encrypted_chunks_total",
				Help: "Ciphertext chunks produced for activity lists",
			},
		),
		rateLimitRejected: f.NewCounter(
			prometheus.CounterOpts{
				Name: "rate_limit_rejections_total",
				Help: "Requests refused by the per-client rate limiter",
			},
		),
	}
}

// Handler serves this registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) SubmissionResult(result string) { m.submissions.WithLabelValues(result).Inc() }
func (m *Metrics) ActivityRejected(field string)  { m.activityRejected.WithLabelValues(field).Inc() }
func (m *Metrics) RateLimited()                   { m.rateLimitRejected.Inc() }

func (m *Metrics) ScoreConverted(method services.ScoreMethod) {
	m.scoreConversions.WithLabelValues(string(method)).Inc()
}

func (m *Metrics) ChunksEncrypted(n int) {
	if n > 0 {
		m.encryptedChunks.Add(float64(n))
	}
}

// Middleware counts and times requests. Paths are labelled with the chi
// route pattern so participant keys never become label values.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := routePattern(r)
		m.httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
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

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

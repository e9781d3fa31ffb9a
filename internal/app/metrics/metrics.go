package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "basesafe",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "basesafe",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "basesafe",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	poolsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "basesafe",
			Subsystem: "pools",
			Name:      "created_total",
			Help:      "Total number of pools mirrored off-chain.",
		},
		[]string{"kind"},
	)

	activitiesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "basesafe",
			Subsystem: "pools",
			Name:      "activities_recorded_total",
			Help:      "Total number of activity rows written by the reconciler.",
		},
		[]string{"kind"},
	)

	duplicateTxSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "basesafe",
			Subsystem: "pools",
			Name:      "duplicate_tx_skipped_total",
			Help:      "Activity writes skipped because the tx hash was already recorded.",
		},
	)

	pipelineOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "basesafe",
			Subsystem: "pipeline",
			Name:      "outcomes_total",
			Help:      "Terminal pipeline states per action.",
		},
		[]string{"action", "state", "reason"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		poolsCreated,
		activitiesRecorded,
		duplicateTxSkipped,
		pipelineOutcomes,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// PoolCreated counts one mirrored pool.
func PoolCreated(kind string) {
	poolsCreated.WithLabelValues(kind).Inc()
}

// ActivityRecorded counts one reconciled activity.
func ActivityRecorded(kind string) {
	activitiesRecorded.WithLabelValues(kind).Inc()
}

// DuplicateTxSkipped counts one idempotency-guard hit.
func DuplicateTxSkipped() {
	duplicateTxSkipped.Inc()
}

// PipelineOutcome counts one terminal pipeline state.
func PipelineOutcome(action, state, reason string) {
	if reason == "" {
		reason = "none"
	}
	pipelineOutcomes.WithLabelValues(action, state, reason).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	return "/" + parts[0]
}

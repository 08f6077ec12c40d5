package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"modelbridge/pkg/types"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelbridge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelbridge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "modelbridge",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
		[]string{"path"},
	)

	snapshotAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "modelbridge",
			Subsystem: "snapshot",
			Name:      "server_available",
			Help:      "1 when the last snapshot reported the local server available",
		},
	)

	snapshotLoadedModels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "modelbridge",
			Subsystem: "snapshot",
			Name:      "loaded_models",
			Help:      "Loaded model instances in the last snapshot",
		},
	)

	snapshotRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelbridge",
			Subsystem: "snapshot",
			Name:      "refresh_total",
			Help:      "Completed snapshot refreshes by availability",
		},
		[]string{"available"},
	)

	mutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelbridge",
			Subsystem: "models",
			Name:      "mutations_total",
			Help:      "Load/unload operations by outcome",
		},
		[]string{"op", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal, httpRequestDuration, httpInflight,
		snapshotAvailable, snapshotLoadedModels, snapshotRefreshTotal,
		mutationsTotal,
	)
}

// ObserveSnapshot records snapshot-derived gauges; wired as a refresher
// subscriber.
func ObserveSnapshot(s types.Snapshot) {
	if s.IsAvailable {
		snapshotAvailable.Set(1)
	} else {
		snapshotAvailable.Set(0)
	}
	snapshotLoadedModels.Set(float64(len(s.Loaded)))
	snapshotRefreshTotal.WithLabelValues(strconv.FormatBool(s.IsAvailable)).Inc()
}

// ObserveMutation records one load/unload outcome.
func ObserveMutation(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	mutationsTotal.WithLabelValues(op, outcome).Inc()
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware instruments requests for Prometheus
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := routePatternOrPath(r)
		method := r.Method
		httpInflight.WithLabelValues(path).Inc()
		defer httpInflight.WithLabelValues(path).Dec()

		sr := &statusRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sr, r)
		statusLabel := strconv.Itoa(sr.status)
		dur := time.Since(start).Seconds()
		httpRequestsTotal.WithLabelValues(path, method, statusLabel).Inc()
		httpRequestDuration.WithLabelValues(path, method, statusLabel).Observe(dur)
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

package infrastructure

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments exposed by the data API
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	DatasetRows     prometheus.Gauge
	SnapshotAge     prometheus.Gauge
}

// NewMetrics creates and registers the instrument set on a fresh registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "biblio_http_requests_total",
			Help: "Total HTTP requests served by the data API",
		}, []string{"path", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "biblio_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		DatasetRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "biblio_dataset_rows",
			Help: "Row count of the served processed dataset snapshot",
		}),
		SnapshotAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "biblio_snapshot_age_seconds",
			Help: "Age of the served snapshot since its creation timestamp",
		}),
	}
}

// Registry exposes the underlying registry for the /metrics handler
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one served request
func (m *Metrics) ObserveRequest(path string, status int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// statusRecorder captures the response status for metrics middleware
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments an http.Handler with request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.ObserveRequest(r.URL.Path, rec.status, time.Since(start))
	})
}

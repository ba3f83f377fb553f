package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Worker metrics
	WorkersActive   prometheus.Gauge
	WorkersTotal    prometheus.Counter
	MessagesTotal   *prometheus.CounterVec
	WorkerErrors    prometheus.Counter
	UnhandledErrors prometheus.Counter

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	startTime time.Time
}

// NewMetrics creates a metrics collector backed by its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry:  registry,
		startTime: time.Now(),

		WorkersActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "workerd_workers_active",
				Help: "Number of live workers",
			},
		),
		WorkersTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "workerd_workers_total",
				Help: "Total number of workers created",
			},
		),
		MessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workerd_messages_total",
				Help: "Messages crossing worker channels",
			},
			[]string{"direction"},
		),
		WorkerErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "workerd_worker_errors_total",
				Help: "Uncaught worker faults forwarded to the main side",
			},
		),
		UnhandledErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "workerd_worker_errors_unhandled_total",
				Help: "Worker faults with no registered error callback",
			},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workerd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "workerd_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "workerd_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler returns an HTTP handler serving this collector's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordWorkerStart records a worker creation.
func (m *Metrics) RecordWorkerStart() {
	m.WorkersTotal.Inc()
	m.WorkersActive.Inc()
}

// RecordWorkerStop records a worker exit.
func (m *Metrics) RecordWorkerStop() {
	m.WorkersActive.Dec()
}

// RecordMessage records one message in the given direction.
func (m *Metrics) RecordMessage(direction string) {
	m.MessagesTotal.WithLabelValues(direction).Inc()
}

// RecordWorkerError records an uncaught worker fault.
func (m *Metrics) RecordWorkerError() {
	m.WorkerErrors.Inc()
}

// RecordUnhandledError records a fault that reached the top level.
func (m *Metrics) RecordUnhandledError() {
	m.UnhandledErrors.Inc()
}

// RecordHTTPRequest records one HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transition outcomes recorded by RecordTransition.
const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics holds the Prometheus collectors for the service. Each instance owns
// its registry so tests can build as many as they need.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	changes         *prometheus.CounterVec
	feedSubscribers prometheus.Gauge
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Errors returned to clients by error code.",
		}, []string{"path", "method", "code"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "candidate_transitions_total",
			Help: "Requested candidate status transitions by outcome.",
		}, []string{"from", "to", "outcome"}),
		changes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "candidate_changes_total",
			Help: "Committed candidate writes observed on the change feed.",
		}, []string{"kind"}),
		feedSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "candidate_feed_subscribers",
			Help: "Open status stream subscriptions.",
		}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordTransition counts a transition request.
func (m *Metrics) RecordTransition(from, to, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to, outcome).Inc()
}

// RecordChange counts a change delivered by the feed.
func (m *Metrics) RecordChange(kind string) {
	if m == nil {
		return
	}
	m.changes.WithLabelValues(kind).Inc()
}

// StreamOpened tracks a new status stream.
func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.feedSubscribers.Inc()
}

// StreamClosed tracks a finished status stream.
func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.feedSubscribers.Dec()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

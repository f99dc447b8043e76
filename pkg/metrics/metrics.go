// Package metrics exposes prometheus collectors for the rewards server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rewards"

// Metrics owns a registry so several servers can coexist in one process
type Metrics struct {
	registry *prometheus.Registry

	events          *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rejections      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events emitted, by source and name.",
		}, []string{"source", "event"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Rejected operations, by operation and reason.",
		}, []string{"operation", "reason"}),
	}

	m.registry.MustRegister(
		m.events,
		m.requests,
		m.requestDuration,
		m.rejections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(route string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRejection(operation string, reason string) {
	m.rejections.WithLabelValues(operation, reason).Inc()
}

// Sink counts every event and forwards it to next
type Sink struct {
	metrics *Metrics
	next    events.ISink
}

func (m *Metrics) Sink(next events.ISink) *Sink {
	if next == nil {
		next = events.Discard{}
	}
	return &Sink{metrics: m, next: next}
}

func (s *Sink) Emit(source string, ev events.Event) {
	s.metrics.events.WithLabelValues(source, ev.EventName()).Inc()
	s.next.Emit(source, ev)
}

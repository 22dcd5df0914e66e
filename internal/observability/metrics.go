// Package observability provides Prometheus metrics and echo middleware.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StreamBuckets covers paced placeholder streams as well as slow upstream replies.
var StreamBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Metrics holds the collectors of one server instance
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal         *prometheus.CounterVec
	RequestDuration       *prometheus.HistogramVec
	StreamingConnections  prometheus.Gauge
	StreamChunksTotal     *prometheus.CounterVec
	ProviderRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors on a dedicated registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "customllm_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "customllm_request_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: StreamBuckets,
			},
			[]string{"method", "route"},
		),
		StreamingConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "customllm_streaming_connections_active",
				Help: "Active SSE streaming connections",
			},
		),
		StreamChunksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "customllm_stream_chunks_total",
				Help: "Streamed content chunks",
			},
			[]string{"provider"},
		),
		ProviderRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "customllm_provider_requests_total",
				Help: "Text generation calls by provider and outcome",
			},
			[]string{"provider", "status"},
		),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.StreamingConnections,
		m.StreamChunksTotal,
		m.ProviderRequestsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ProviderRequest counts one generation call
func (m *Metrics) ProviderRequest(provider, status string) {
	m.ProviderRequestsTotal.WithLabelValues(provider, status).Inc()
}

// StreamChunk counts one streamed content chunk
func (m *Metrics) StreamChunk(provider string) {
	m.StreamChunksTotal.WithLabelValues(provider).Inc()
}

// StreamStarted marks an SSE response in flight. The returned func ends it.
func (m *Metrics) StreamStarted() func() {
	m.StreamingConnections.Inc()
	return m.StreamingConnections.Dec
}

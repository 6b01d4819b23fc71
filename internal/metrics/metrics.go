// Package metrics exposes process-level Prometheus instrumentation for the
// router. The per-request telemetry collector stays separate; these counters
// aggregate across the process lifetime.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the router's Prometheus collectors
type Metrics struct {
	registry *prometheus.Registry

	WebhookRequests *prometheus.CounterVec
	MessageOutcomes *prometheus.CounterVec
	FanoutCalls     *prometheus.CounterVec
	FanoutDuration  prometheus.Histogram
}

// New creates and registers the router metrics on a fresh registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		WebhookRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "router_webhook_requests_total",
			Help: "Inbound webhook requests by HTTP status code.",
		}, []string{"code"}),
		MessageOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "router_messages_total",
			Help: "Per-message terminal outcomes.",
		}, []string{"status"}),
		FanoutCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "router_fanout_calls_total",
			Help: "Downstream fanout calls by result.",
		}, []string{"result"}),
		FanoutDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "router_fanout_duration_seconds",
			Help:    "Latency of downstream fanout calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Handler returns the /metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

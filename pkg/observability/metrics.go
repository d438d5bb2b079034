// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the weiche adapter.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts completed chat-completion turns by response mode
	// (stream, aggregate) and outcome (ok, error, cancelled).
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weiche_requests_total",
			Help: "Chat completion requests",
		},
		[]string{"mode", "status"},
	)

	// RequestDuration records turn duration in seconds by response mode.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weiche_request_duration_seconds",
			Help:    "Chat completion duration",
			Buckets: LLMBuckets,
		},
		[]string{"mode"},
	)

	// HTTPRequestsTotal counts HTTP requests by method, route and status
	// class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weiche_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration records HTTP request duration in seconds.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weiche_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// StreamingConnections tracks the number of active SSE responses.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "weiche_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// FragmentsTotal counts turn fragments by kind.
	FragmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weiche_fragments_total",
			Help: "Turn fragments produced",
		},
		[]string{"kind"},
	)

	// ToolExecutionsTotal counts tool executions by name and outcome.
	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weiche_tool_executions_total",
			Help: "Tool executions",
		},
		[]string{"tool", "status"},
	)

	// ToolDuration records tool execution time in seconds.
	ToolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weiche_tool_duration_seconds",
			Help:    "Tool execution duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// ProviderRequestsTotal counts model calls sent to the backend.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weiche_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "status"},
	)

	// ProviderLatency records backend stream duration in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weiche_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider"},
	)

	// ProviderTokensTotal counts tokens reported by the backend by
	// direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weiche_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "direction"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weiche_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		StreamingConnections,
		FragmentsTotal,
		ToolExecutionsTotal,
		ToolDuration,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		RateLimitRejectedTotal,
	)
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

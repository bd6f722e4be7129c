// Package metrics exposes Prometheus metrics for the gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "freedom"
	subsystem = "gateway"
)

// Request outcomes.
const (
	OutcomeOK             = "ok"
	OutcomeInvalid        = "invalid"
	OutcomeHandshakeError = "handshake_error"
	OutcomeUpstreamError  = "upstream_error"
	OutcomeStreamError    = "stream_error"
	OutcomeDisconnected   = "disconnected"
)

// Request modes.
const (
	ModeStream    = "stream"
	ModeAggregate = "aggregate"
)

// Handshake results.
const (
	HandshakeFetched = "fetched"
	HandshakeReused  = "reused"
	HandshakeFailed  = "failed"
)

// durationBuckets spans chat latencies from first token to long answers.
var durationBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Collector owns the gateway metrics and the registry they live in.
// All methods are safe for concurrent use. A nil *Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	handshakes     *prometheus.CounterVec
	fragments      *prometheus.CounterVec
	upstreamStatus *prometheus.CounterVec
}

// NewCollector creates a Collector. A nil registry gets a fresh one, which
// keeps collectors independent of the process-global default registry.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Chat completion requests by model, mode and outcome.",
			},
			[]string{"model", "mode", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "request_duration_seconds",
				Help:      "Chat completion request duration in seconds.",
				Buckets:   durationBuckets,
			},
			[]string{"model", "mode"},
		),
		handshakes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "handshakes_total",
				Help:      "Session token resolutions by result.",
			},
			[]string{"result"},
		),
		fragments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "fragments_total",
				Help:      "Content fragments relayed from the backend.",
			},
			[]string{"model"},
		),
		upstreamStatus: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "upstream_status_total",
				Help:      "Backend chat endpoint responses by HTTP status code.",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(c.requests, c.duration, c.handshakes, c.fragments, c.upstreamStatus)
	return c
}

// RecordRequest records a finished chat completion request.
func (c *Collector) RecordRequest(model, mode, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(model, mode, outcome).Inc()
	c.duration.WithLabelValues(model, mode).Observe(elapsed.Seconds())
}

// RecordHandshake records how a session token was resolved.
func (c *Collector) RecordHandshake(result string) {
	if c == nil {
		return
	}
	c.handshakes.WithLabelValues(result).Inc()
}

// RecordFragments adds n relayed fragments for model.
func (c *Collector) RecordFragments(model string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.fragments.WithLabelValues(model).Add(float64(n))
}

// RecordUpstreamStatus records the status code of a backend chat response.
func (c *Collector) RecordUpstreamStatus(code int) {
	if c == nil {
		return
	}
	c.upstreamStatus.WithLabelValues(strconv.Itoa(code)).Inc()
}

// Registry returns the registry the collector registers into.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

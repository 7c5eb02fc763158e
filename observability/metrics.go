package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "peerescrow/engine"

// Metrics groups the escrow daemon's collectors on a private registry so
// tests and multiple daemons in one process do not collide.
type Metrics struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	events      *prometheus.CounterVec
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	throttles   *prometheus.CounterVec

	// mirrored to the OTLP exporter when telemetry is enabled
	otelTransitions metric.Int64Counter
}

// NewMetrics creates and registers the escrow collectors along with the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerescrow",
			Subsystem: "engine",
			Name:      "transitions_total",
			Help:      "Escrow transitions segmented by operation and outcome kind.",
		}, []string{"op", "outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerescrow",
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Escrow events emitted after a committed transition.",
		}, []string{"type"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerescrow",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "JSON-RPC requests segmented by method and HTTP status.",
		}, []string{"method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "peerescrow",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for JSON-RPC handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerescrow",
			Subsystem: "rpc",
			Name:      "throttles_total",
			Help:      "Requests rejected before dispatch.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(
		m.transitions,
		m.events,
		m.requests,
		m.latency,
		m.throttles,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	counter, err := otel.GetMeterProvider().Meter(meterName).Int64Counter("escrow.transitions",
		metric.WithDescription("Escrow transitions segmented by operation and outcome kind."))
	if err != nil {
		counter, _ = noop.NewMeterProvider().Meter(meterName).Int64Counter("escrow.transitions")
	}
	m.otelTransitions = counter
	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordTransition counts a dispatched operation. An empty kind records a
// success.
func (m *Metrics) RecordTransition(op, kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "ok"
	}
	op = normalize(op)
	m.transitions.WithLabelValues(op, kind).Inc()
	m.otelTransitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", kind),
	))
}

// RecordEvent increments the counter for an emitted event type.
func (m *Metrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(normalize(eventType)).Inc()
}

// Observe records the outcome of a JSON-RPC request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *Metrics) Observe(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	method = normalize(method)
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle counts a rejected request. Reasons should be stable strings
// such as "rate_limit".
func (m *Metrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(normalize(reason)).Inc()
}

func normalize(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "unknown"
	}
	return label
}

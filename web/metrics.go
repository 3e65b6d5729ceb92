// ABOUTME: Prometheus metrics for agent turns, streamed events, captures, and persistence failures.
// ABOUTME: Each Server owns its registry so tests can build many servers side by side.
package web

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's collectors.
type Metrics struct {
	registry *prometheus.Registry

	turns           *prometheus.CounterVec
	turnSeconds     *prometheus.HistogramVec
	activeTurns     prometheus.Gauge
	events          *prometheus.CounterVec
	droppedLines    *prometheus.CounterVec
	captures        *prometheus.CounterVec
	captureSeconds  prometheus.Histogram
	persistFailures prometheus.Counter
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kodejam_turns_total",
			Help: "Agent turns by kind and outcome.",
		}, []string{"kind", "outcome"}),
		turnSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kodejam_turn_duration_seconds",
			Help:    "Wall time from agent launch to the final frame.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"kind"}),
		activeTurns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kodejam_active_turns",
			Help: "Agent processes currently running.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kodejam_stream_events_total",
			Help: "Normalized agent events by kind.",
		}, []string{"kind"}),
		droppedLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kodejam_stream_dropped_lines_total",
			Help: "Agent output lines dropped before normalization.",
		}, []string{"reason"}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kodejam_captures_total",
			Help: "Screenshot attempts by outcome.",
		}, []string{"outcome"}),
		captureSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kodejam_capture_duration_seconds",
			Help:    "Time spent on one screenshot attempt.",
			Buckets: prometheus.DefBuckets,
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kodejam_persist_failures_total",
			Help: "Completed turns whose transcript or build row could not be stored.",
		}),
	}
	reg.MustRegister(
		m.turns, m.turnSeconds, m.activeTurns, m.events, m.droppedLines,
		m.captures, m.captureSeconds, m.persistFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCapture implements capture.Recorder.
func (m *Metrics) ObserveCapture(outcome string, d time.Duration) {
	m.captures.WithLabelValues(outcome).Inc()
	m.captureSeconds.Observe(d.Seconds())
}

func (m *Metrics) turnStarted() {
	m.activeTurns.Inc()
}

func (m *Metrics) turnFinished(kind, outcome string, d time.Duration) {
	m.activeTurns.Dec()
	m.turns.WithLabelValues(kind, outcome).Inc()
	m.turnSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

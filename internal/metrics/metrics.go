// Package metrics exposes Prometheus counters for analysis runs and tool
// traffic. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "titanflow"

// Metrics owns a private registry so several instances (tests, embedded
// gateways) never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	// runsTotal labels: outcome ("ok", "budget", "malformed", "empty",
	// "invariant", "cancelled", "engine").
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram
	corrections prometheus.Counter

	// toolCallsTotal labels: tool, result ("ok" or "error").
	toolCallsTotal *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec

	// workerRestarts labels: reason ("timeout", "transport", "recycle", ...).
	workerRestarts *prometheus.CounterVec

	// documentsFlagged labels: pattern.
	documentsFlagged *prometheus.CounterVec
}

// New registers every collector, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Reasoning runs by outcome.",
		}, []string{"outcome"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "run_duration_seconds",
			Help:      "Wall time of one reasoning run.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		corrections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "corrections_total",
			Help:      "Runs that needed the correction follow-up.",
		}),
		toolCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Tool invocations by tool and result.",
		}, []string{"tool", "result"}),
		toolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tools",
			Name:      "call_duration_seconds",
			Help:      "Duration of one tool invocation.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"tool"}),
		workerRestarts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tools",
			Name:      "worker_restarts_total",
			Help:      "Tool-server workers replaced, by reason.",
		}, []string{"reason"}),
		documentsFlagged: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "flagged_total",
			Help:      "Documents containing instruction-like text, by matched pattern.",
		}, []string{"pattern"}),
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the exposition format for m's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RunFinished records one finished run.
func (m *Metrics) RunFinished(outcome string, corrected bool, d time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(d.Seconds())
	if corrected {
		m.corrections.Inc()
	}
}

// ToolInvoked implements toolchannel.Observer.
func (m *Metrics) ToolInvoked(tool string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.toolCallsTotal.WithLabelValues(tool, result).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// WorkerRestarted implements toolchannel.Observer.
func (m *Metrics) WorkerRestarted(reason string) {
	if m == nil {
		return
	}
	m.workerRestarts.WithLabelValues(reason).Inc()
}

// DocumentFlagged counts one document per matched injection pattern.
func (m *Metrics) DocumentFlagged(patterns []string) {
	if m == nil {
		return
	}
	for _, p := range patterns {
		m.documentsFlagged.WithLabelValues(p).Inc()
	}
}

// Package metrics exposes Prometheus metrics for the patch lifecycle and the
// safety guard.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/patchwork/internal/patcher/guard"
	"github.com/dshills/patchwork/internal/patcher/hook"
)

const namespace = "patchwork"

// Metrics holds the patchwork collectors. It implements prometheus.Collector.
type Metrics struct {
	hooksInstalled     *prometheus.CounterVec
	hooksRevoked       *prometheus.CounterVec
	hooksActive        prometheus.Gauge
	installFailures    prometheus.Counter
	resolutionFailures *prometheus.CounterVec
	guardDecisions     *prometheus.CounterVec

	// Pre-bound guard counters keep the hot path free of label lookups.
	guardAllow         prometheus.Counter
	guardBlock         prometheus.Counter
	guardFallbackAllow prometheus.Counter
	guardFallbackBlock prometheus.Counter
}

// New creates an unregistered set of metrics.
func New() *Metrics {
	m := &Metrics{
		hooksInstalled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "hooks",
				Name:      "installed_total",
				Help:      "Hooks installed, by kind",
			},
			[]string{"kind"},
		),
		hooksRevoked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "hooks",
				Name:      "revoked_total",
				Help:      "Hooks revoked, by kind",
			},
			[]string{"kind"},
		),
		hooksActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "hooks",
				Name:      "active",
				Help:      "Hooks currently installed",
			},
		),
		installFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "hooks",
				Name:      "install_failures_total",
				Help:      "Hooks whose call site refused interception",
			},
		),
		resolutionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resolve",
				Name:      "failures_total",
				Help:      "Patch targets that could not be resolved, by feature",
			},
			[]string{"feature"},
		),
		guardDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "guard",
				Name:      "decisions_total",
				Help:      "Safety guard decisions, by result and mode",
			},
			[]string{"result", "mode"},
		),
	}

	m.guardAllow = m.guardDecisions.WithLabelValues("allow", "estimate")
	m.guardBlock = m.guardDecisions.WithLabelValues("block", "estimate")
	m.guardFallbackAllow = m.guardDecisions.WithLabelValues("allow", "fallback")
	m.guardFallbackBlock = m.guardDecisions.WithLabelValues("block", "fallback")
	return m
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.hooksInstalled.Describe(ch)
	m.hooksRevoked.Describe(ch)
	m.hooksActive.Describe(ch)
	m.installFailures.Describe(ch)
	m.resolutionFailures.Describe(ch)
	m.guardDecisions.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.hooksInstalled.Collect(ch)
	m.hooksRevoked.Collect(ch)
	m.hooksActive.Collect(ch)
	m.installFailures.Collect(ch)
	m.resolutionFailures.Collect(ch)
	m.guardDecisions.Collect(ch)
}

// Register registers the metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m)
}

// Handler returns an HTTP handler serving the metrics of reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// ObserveRegistry subscribes to hook registry events.
func (m *Metrics) ObserveRegistry(reg *hook.Registry) {
	reg.OnEvent(m.RecordHookEvent)
}

// RecordHookEvent updates hook counters for one registry event.
func (m *Metrics) RecordHookEvent(ev hook.Event) {
	switch ev.Type {
	case hook.EventInstalled:
		m.hooksInstalled.WithLabelValues(ev.Kind.String()).Inc()
		m.hooksActive.Inc()
	case hook.EventRevoked:
		m.hooksRevoked.WithLabelValues(ev.Kind.String()).Inc()
		m.hooksActive.Dec()
	case hook.EventInstallFailed:
		m.installFailures.Inc()
	}
}

// RecordResolutionFailure counts a feature disabled by a failed resolution.
func (m *Metrics) RecordResolutionFailure(feature string) {
	m.resolutionFailures.WithLabelValues(feature).Inc()
}

// RecordGuardDecision counts one safety guard decision.
func (m *Metrics) RecordGuardDecision(d guard.Decision) {
	switch {
	case d.Fallback && d.Block:
		m.guardFallbackBlock.Inc()
	case d.Fallback:
		m.guardFallbackAllow.Inc()
	case d.Block:
		m.guardBlock.Inc()
	default:
		m.guardAllow.Inc()
	}
}

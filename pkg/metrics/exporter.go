// Package metrics exposes the pipeline's own operational state to
// Prometheus: queue depth by state, cascade rate and membership,
// verification outcomes, rejection strategy counts, and anomalies
// detected per skill/severity. Built on the earlier
// pkg/metrics/prometheus.go (PrometheusExporter wrapping a set of
// promauto-registered GaugeVec/CounterVec fields, reset-then-repopulate
// on each export), redirected from node/pod resource metrics to the
// self-healing pipeline's own metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rodgon/aegis/pkg/cascade"
	"github.com/rodgon/aegis/pkg/domain"
	"github.com/rodgon/aegis/pkg/queue"
	"github.com/rodgon/aegis/pkg/rejection"
	"github.com/rodgon/aegis/pkg/signals"
	"github.com/rodgon/aegis/pkg/verification"
)

// Exporter maintains the pipeline's Prometheus series. It also
// implements signals.Emitter so it can subscribe to the same event
// stream as pkg/notification and pkg/history via signals.Fanout.
type Exporter struct {
	Registry *prometheus.Registry

	queueDepth          *prometheus.GaugeVec
	cascadeInProgress   prometheus.Gauge
	cascadeRate         prometheus.Gauge
	cascadesTotal       prometheus.Counter
	anomaliesTotal      *prometheus.CounterVec
	verificationOutcome *prometheus.CounterVec
	rejectionsTotal     *prometheus.CounterVec
	healingBlockedTotal prometheus.Counter
}

// NewExporter registers every series with a dedicated registry (never
// the global default) so that building more than one Exporter — as
// every test in this package does — never panics on a duplicate
// registration.
func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Exporter{
		Registry: reg,
		queueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aegis_queue_depth",
				Help: "Number of anomalies currently held in the work queue, by state",
			},
			[]string{"state"},
		),
		cascadeInProgress: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "aegis_cascade_in_progress",
				Help: "1 if the cascade detector currently considers the system in a cascade, 0 otherwise",
			},
		),
		cascadeRate: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "aegis_cascade_anomaly_rate",
				Help: "Anomalies observed within the current cascade detection window",
			},
		),
		cascadesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aegis_cascades_detected_total",
				Help: "Total number of cascades entered",
			},
		),
		anomaliesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_anomalies_detected_total",
				Help: "Total anomalies detected, by skill and severity",
			},
			[]string{"skill", "severity"},
		),
		verificationOutcome: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_verification_outcomes_total",
				Help: "Soak-period verification outcomes, by outcome",
			},
			[]string{"outcome"},
		),
		rejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_rejections_total",
				Help: "Proposal rejections recorded, by escalation strategy",
			},
			[]string{"strategy"},
		),
		healingBlockedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aegis_healing_blocked_total",
				Help: "Total times a fingerprint was suppressed after three rejection strikes",
			},
		),
	}
}

// UpdateQueueStats sets the queue-depth gauge for every known state.
func (e *Exporter) UpdateQueueStats(s queue.Stats) {
	e.queueDepth.WithLabelValues("pending").Set(float64(s.Pending))
	e.queueDepth.WithLabelValues("claimed").Set(float64(s.Claimed))
	e.queueDepth.WithLabelValues("verifying").Set(float64(s.Verifying))
	e.queueDepth.WithLabelValues("escalated").Set(float64(s.Escalated))
	e.queueDepth.WithLabelValues("ineffective").Set(float64(s.Ineffective))
}

// UpdateCascadeStats reflects the cascade detector's current state.
func (e *Exporter) UpdateCascadeStats(s cascade.Stats) {
	if s.InCascade {
		e.cascadeInProgress.Set(1)
	} else {
		e.cascadeInProgress.Set(0)
	}
	e.cascadeRate.Set(float64(s.CurrentRate))
}

// RecordAnomaly increments the anomaly counter for the detected
// skill/severity pair.
func (e *Exporter) RecordAnomaly(a domain.Anomaly) {
	e.anomaliesTotal.WithLabelValues(string(a.Skill), string(a.Severity)).Inc()
}

// RecordCascadeDetected counts one more cascade entry.
func (e *Exporter) RecordCascadeDetected() {
	e.cascadesTotal.Inc()
}

// RecordVerificationOutcome counts a soak-period resolution.
func (e *Exporter) RecordVerificationOutcome(o verification.Outcome) {
	e.verificationOutcome.WithLabelValues(string(o)).Inc()
}

// RecordRejection counts one rejection under its escalation strategy.
func (e *Exporter) RecordRejection(strategy rejection.Strategy) {
	e.rejectionsTotal.WithLabelValues(string(strategy)).Inc()
}

// Emit implements signals.Emitter, letting the exporter subscribe to
// the same event stream pkg/notification and pkg/history do via
// signals.Fanout, instead of requiring every producer to call its
// Record* methods directly.
func (e *Exporter) Emit(category signals.Category, eventType string, payload map[string]any) {
	switch eventType {
	case signals.TypeCascadeDetected:
		e.RecordCascadeDetected()
	case signals.TypeHealingBlocked:
		e.healingBlockedTotal.Inc()
	}
}

// Package metrics exposes orchestrator metrics to Prometheus. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "interview"

type Metrics struct {
	sessionsActive    prometheus.Gauge
	sessionsTotal     *prometheus.CounterVec
	sessionsRejected  prometheus.Counter
	turnsTotal        *prometheus.CounterVec
	replyLatency      prometheus.Histogram
	plannerDecisions  *prometheus.CounterVec
	plannerDuration   prometheus.Histogram
	noResponses       *prometheus.CounterVec
	synthesisFailures prometheus.Counter
	phaseTransitions  *prometheus.CounterVec
	persistenceErrors *prometheus.CounterVec
}

// New creates the orchestrator collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of interview sessions currently running",
		}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of finished interview sessions",
		}, []string{"status", "reason"}),
		sessionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_rejected_total",
			Help:      "Sessions refused because the concurrency limit was reached",
		}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "End of turn events by how the controller handled them",
		}, []string{"disposition"}), // processed, queued, merged
		replyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_latency_seconds",
			Help:      "Time from end of candidate speech to the first interviewer audio frame",
			Buckets:   []float64{.25, .5, .75, 1, 1.5, 2, 3, 5, 8},
		}),
		plannerDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "planner_decisions_total",
			Help:      "Planner decisions by phase and source",
		}, []string{"phase", "source"}), // source: model, fallback
		plannerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "planner_duration_seconds",
			Help:      "Duration of planner calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2, 4, 8},
		}),
		noResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "no_responses_total",
			Help:      "Candidate silences by the action taken",
		}, []string{"action"}), // retry, no_answer
		synthesisFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_failures_total",
			Help:      "Interviewer lines that could not be synthesized",
		}),
		phaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Phase transitions by target phase",
		}, []string{"to", "forced"}),
		persistenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_errors_total",
			Help:      "Failed persistence calls by operation",
		}, []string{"operation"}),
	}

	for _, collector := range m.collectors() {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.sessionsActive,
		m.sessionsTotal,
		m.sessionsRejected,
		m.turnsTotal,
		m.replyLatency,
		m.plannerDecisions,
		m.plannerDuration,
		m.noResponses,
		m.synthesisFailures,
		m.phaseTransitions,
		m.persistenceErrors,
	}
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionEnded(status, reason string) {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
	m.sessionsTotal.WithLabelValues(status, reason).Inc()
}

func (m *Metrics) SessionRejected() {
	if m == nil {
		return
	}
	m.sessionsRejected.Inc()
}

func (m *Metrics) Turn(disposition string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(disposition).Inc()
}

func (m *Metrics) ReplyLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.replyLatency.Observe(d.Seconds())
}

func (m *Metrics) PlannerDecision(phase string, fallback bool, d time.Duration) {
	if m == nil {
		return
	}
	source := "model"
	if fallback {
		source = "fallback"
	}
	m.plannerDecisions.WithLabelValues(phase, source).Inc()
	m.plannerDuration.Observe(d.Seconds())
}

func (m *Metrics) NoResponse(action string) {
	if m == nil {
		return
	}
	m.noResponses.WithLabelValues(action).Inc()
}

func (m *Metrics) SynthesisFailure() {
	if m == nil {
		return
	}
	m.synthesisFailures.Inc()
}

func (m *Metrics) PhaseTransition(to string, forced bool) {
	if m == nil {
		return
	}
	label := "false"
	if forced {
		label = "true"
	}
	m.phaseTransitions.WithLabelValues(to, label).Inc()
}

func (m *Metrics) PersistenceError(operation string) {
	if m == nil {
		return
	}
	m.persistenceErrors.WithLabelValues(operation).Inc()
}

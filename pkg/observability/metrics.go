package observability

import (
	"context"
	"strconv"

	"github.com/aretw0/tabloop/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the loop controller.
type Metrics struct {
	Events        *prometheus.CounterVec
	Actions       *prometheus.CounterVec
	Executions    *prometheus.CounterVec
	ExecutionTime *prometheus.HistogramVec
	Runs          *prometheus.CounterVec
	RunIterations prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabloop_events_total",
				Help: "Lifecycle events emitted, by event name",
			},
			[]string{"event"},
		),
		Actions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabloop_actions_total",
				Help: "Classified model responses, by action kind",
			},
			[]string{"kind"},
		),
		Executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabloop_sandbox_executions_total",
				Help: "Sandbox executions, by outcome",
			},
			[]string{"succeeded"},
		),
		ExecutionTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tabloop_sandbox_duration_seconds",
				Help:    "Duration of sandbox executions",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms to ~16s
			},
			[]string{"succeeded"},
		),
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabloop_runs_total",
				Help: "Completed loop invocations, by outcome",
			},
			[]string{"success", "reason", "answer_kind"},
		),
		RunIterations: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tabloop_run_iterations",
				Help:    "Rounds used per loop invocation",
				Buckets: prometheus.LinearBuckets(1, 1, 20),
			},
		),
	}
}

// Emit implements ports.Sink by counting events.
func (m *Metrics) Emit(_ context.Context, name string, _ domain.EventPayload) error {
	m.Events.WithLabelValues(name).Inc()
	return nil
}

// Hooks returns lifecycle hooks that record actions, executions and outcomes.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnAction: func(_ context.Context, a domain.Action) {
			m.Actions.WithLabelValues(string(a.Kind)).Inc()
		},
		OnExecution: func(_ context.Context, rec domain.ExecutionRecord) {
			label := strconv.FormatBool(rec.Succeeded)
			m.Executions.WithLabelValues(label).Inc()
			m.ExecutionTime.WithLabelValues(label).Observe(rec.Elapsed.Seconds())
		},
		OnFinish: func(_ context.Context, res *domain.LoopResult) {
			m.Runs.WithLabelValues(strconv.FormatBool(res.Success), res.Reason, string(res.AnswerKind)).Inc()
			m.RunIterations.Observe(float64(res.IterationsUsed))
		},
	}
}

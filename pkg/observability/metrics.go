package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/braid/pkg/domain"
)

// StatusOK labels successful runs; failures use the error kind.
const StatusOK = "ok"

// Metrics holds the Prometheus collectors fed by lifecycle hooks.
type Metrics struct {
	Invocations *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	Appended    prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg skips registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "braid_unit_invocations_total",
				Help: "Total number of finished unit runs",
			},
			[]string{"unit", "mode", "status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "braid_unit_duration_seconds",
				Help:    "Duration of unit runs",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"unit", "mode"},
		),
		Appended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "braid_history_messages_appended_total",
			Help: "Total number of messages committed to session histories",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Invocations, m.Duration, m.Appended)
	}
	return m
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnUnitFinish: func(_ context.Context, e *domain.UnitEvent) {
			status := StatusOK
			if e.Err != nil {
				status = string(domain.KindOf(e.Err))
			}
			m.Invocations.WithLabelValues(e.Unit, string(e.Mode), status).Inc()
			m.Duration.WithLabelValues(e.Unit, string(e.Mode)).Observe(e.Duration.Seconds())
		},
		OnHistoryAppend: func(_ context.Context, e *domain.HistoryEvent) {
			m.Appended.Add(float64(e.Appended))
		},
	}
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the consent ledger and resolver.
type Metrics struct {
	EventsAppended  *prometheus.CounterVec
	Decisions       *prometheus.CounterVec
	ProjectionDrift prometheus.Counter
	AppendDuration  prometheus.Histogram
	CheckDuration   prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		EventsAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "likeness_consent_events_appended_total",
			Help: "Consent ledger events appended, by event type",
		}, []string{"event_type"}),
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "likeness_consent_decisions_total",
			Help: "Consent decisions served, by outcome",
		}, []string{"allowed", "verified"}),
		ProjectionDrift: promauto.NewCounter(prometheus.CounterOpts{
			Name: "likeness_consent_projection_drift_total",
			Help: "Verified checks where the projection disagreed with the replayed ledger",
		}),
		AppendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "likeness_consent_append_duration_seconds",
			Help:    "Duration of ledger append transactions",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		CheckDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "likeness_consent_check_duration_seconds",
			Help:    "Duration of single consent checks",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

func (m *Metrics) IncrementAppended(eventType string) {
	if m == nil {
		return
	}
	m.EventsAppended.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncrementDecision(allowed, verified bool) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(boolLabel(allowed), boolLabel(verified)).Inc()
}

func (m *Metrics) IncrementDrift() {
	if m == nil {
		return
	}
	m.ProjectionDrift.Inc()
}

// ObserveAppend records the duration of an append. Call with time.Now() at
// the start of the operation.
func (m *Metrics) ObserveAppend(start time.Time) {
	if m == nil {
		return
	}
	m.AppendDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveCheck(start time.Time) {
	if m == nil {
		return
	}
	m.CheckDuration.Observe(time.Since(start).Seconds())
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

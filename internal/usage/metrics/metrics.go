package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Recorded *prometheus.CounterVec
	Rejected *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Recorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "likeness_usage_recorded_total",
			Help: "Usage events recorded, by use type",
		}, []string{"use_type"}),
		Rejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "likeness_usage_rejected_total",
			Help: "Usage reports refused, by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) IncrementRecorded(useType string) {
	if m == nil {
		return
	}
	m.Recorded.WithLabelValues(useType).Inc()
}

func (m *Metrics) IncrementRejected(reason string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(reason).Inc()
}

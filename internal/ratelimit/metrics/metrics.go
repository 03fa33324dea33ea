package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions   *prometheus.CounterVec
	TrackedKeys prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "likeness_ratelimit_decisions_total",
			Help: "Platform rate limit decisions, by outcome",
		}, []string{"outcome"}),
		TrackedKeys: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "likeness_ratelimit_tracked_keys",
			Help: "API keys currently holding a limiter",
		}),
	}
}

func (m *Metrics) IncrementAllowed() {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues("allowed").Inc()
}

func (m *Metrics) IncrementRejected() {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues("rejected").Inc()
}

func (m *Metrics) SetTrackedKeys(n int) {
	if m == nil {
		return
	}
	m.TrackedKeys.Set(float64(n))
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	BatchSize     *prometheus.HistogramVec
	BatchItems    *prometheus.CounterVec
	BatchDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		BatchSize: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "likeness_registry_batch_size",
			Help:    "Identifiers per batch request",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
		}, []string{"operation"}),
		BatchItems: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "likeness_registry_batch_items_total",
			Help: "Batch entries answered, by operation and outcome",
		}, []string{"operation", "outcome"}),
		BatchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "likeness_registry_batch_duration_seconds",
			Help:    "Duration of batch requests",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
	}
}

func (m *Metrics) ObserveBatch(operation string, size int, start time.Time) {
	if m == nil {
		return
	}
	m.BatchSize.WithLabelValues(operation).Observe(float64(size))
	m.BatchDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) AddItems(operation, outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.BatchItems.WithLabelValues(operation, outcome).Add(float64(n))
}

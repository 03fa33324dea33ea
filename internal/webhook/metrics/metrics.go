package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery outcomes.
const (
	OutcomeDelivered   = "delivered"
	OutcomeRetry       = "retry"
	OutcomeDead        = "dead"
	OutcomeSkipped     = "skipped"
	OutcomeCircuitOpen = "circuit_open"
)

type Metrics struct {
	Enqueued         *prometheus.CounterVec
	Deliveries       *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec
	MirrorFailures   prometheus.Counter
	BreakerOpened    *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Enqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "likeness_webhook_enqueued_total",
			Help: "Events written to the webhook outbox, by event type",
		}, []string{"event_type"}),
		Deliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "likeness_webhook_deliveries_total",
			Help: "Webhook delivery attempts, by family and outcome",
		}, []string{"family", "outcome"}),
		DeliveryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "likeness_webhook_delivery_duration_seconds",
			Help:    "Time spent posting one webhook",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"family"}),
		MirrorFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "likeness_webhook_mirror_failures_total",
			Help: "Events the Kafka mirror failed to publish",
		}),
		BreakerOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "likeness_webhook_breaker_opened_total",
			Help: "Subscriber circuit breaker openings, by family",
		}, []string{"family"}),
	}
}

func (m *Metrics) IncrementEnqueued(eventType string) {
	if m == nil {
		return
	}
	m.Enqueued.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncrementDelivery(family, outcome string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(family, outcome).Inc()
}

func (m *Metrics) ObserveDelivery(family string, start time.Time) {
	if m == nil {
		return
	}
	m.DeliveryDuration.WithLabelValues(family).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementMirrorFailure() {
	if m == nil {
		return
	}
	m.MirrorFailures.Inc()
}

func (m *Metrics) IncrementBreakerOpened(family string) {
	if m == nil {
		return
	}
	m.BreakerOpened.WithLabelValues(family).Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Authentication outcomes.
const (
	ResultOK       = "ok"
	ResultMissing  = "missing"
	ResultUnknown  = "unknown"
	ResultInactive = "inactive"
	ResultExpired  = "expired"
	ResultError    = "error"
)

type Metrics struct {
	AuthAttempts   *prometheus.CounterVec
	ScopeDenials   *prometheus.CounterVec
	TouchesWritten prometheus.Counter
	TouchesDropped prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		AuthAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "likeness_apikey_auth_attempts_total",
			Help: "Platform API key authentication attempts, by result",
		}, []string{"result"}),
		ScopeDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "likeness_apikey_scope_denials_total",
			Help: "Authenticated requests rejected for a missing scope",
		}, []string{"scope"}),
		TouchesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "likeness_apikey_last_used_writes_total",
			Help: "last_used_at updates written",
		}),
		TouchesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "likeness_apikey_last_used_dropped_total",
			Help: "last_used_at updates dropped because the recorder queue was full",
		}),
	}
}

func (m *Metrics) IncrementAuth(result string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementScopeDenied(scope string) {
	if m == nil {
		return
	}
	m.ScopeDenials.WithLabelValues(scope).Inc()
}

func (m *Metrics) IncrementTouchWritten() {
	if m == nil {
		return
	}
	m.TouchesWritten.Inc()
}

func (m *Metrics) IncrementTouchDropped() {
	if m == nil {
		return
	}
	m.TouchesDropped.Inc()
}

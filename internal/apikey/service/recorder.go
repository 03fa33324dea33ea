package service

import (
	"context"
	"log/slog"
	"time"

	"likeness/internal/apikey/metrics"
	id "likeness/pkg/domain"
)

// Toucher writes last_used_at.
type Toucher interface {
	TouchLastUsed(ctx context.Context, keyID id.APIKeyID, at time.Time) error
}

// Throttle admits at most one write per key per window.
type Throttle interface {
	Acquire(ctx context.Context, keyID id.APIKeyID) (bool, error)
}

type touch struct {
	keyID id.APIKeyID
	at    time.Time
}

// TouchRecorder records key usage off the request path. Record never blocks;
// when the queue is full the touch is dropped.
type TouchRecorder struct {
	store    Toucher
	throttle Throttle
	inbox    chan touch
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewTouchRecorder(store Toucher, throttle Throttle, queueSize int, m *metrics.Metrics, logger *slog.Logger) *TouchRecorder {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TouchRecorder{
		store:    store,
		throttle: throttle,
		inbox:    make(chan touch, queueSize),
		metrics:  m,
		logger:   logger,
	}
}

func (r *TouchRecorder) Record(keyID id.APIKeyID, at time.Time) {
	select {
	case r.inbox <- touch{keyID: keyID, at: at}:
	default:
		r.metrics.IncrementTouchDropped()
	}
}

// Run drains the queue until ctx is cancelled.
func (r *TouchRecorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-r.inbox:
			r.apply(ctx, t)
		}
	}
}

func (r *TouchRecorder) apply(ctx context.Context, t touch) {
	if r.throttle != nil {
		ok, err := r.throttle.Acquire(ctx, t.keyID)
		if err != nil {
			r.logger.WarnContext(ctx, "api key touch throttle failed", "key_id", t.keyID.String(), "error", err)
			return
		}
		if !ok {
			return
		}
	}
	if err := r.store.TouchLastUsed(ctx, t.keyID, t.at); err != nil {
		r.logger.WarnContext(ctx, "failed to record api key usage", "key_id", t.keyID.String(), "error", err)
		return
	}
	r.metrics.IncrementTouchWritten()
}

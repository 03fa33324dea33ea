// Package service implements durable webhook delivery: an outbox written in
// the same unit of work as the change it announces, and a dispatcher that
// drains it with retries.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"likeness/internal/webhook/metrics"
	"likeness/internal/webhook/models"
	"likeness/pkg/requestcontext"
)

// Store is the outbox persistence port.
type Store interface {
	Enqueue(ctx context.Context, msg models.Message) error
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]models.Message, error)
	MarkDelivered(ctx context.Context, msgID uuid.UUID, attempts int, at time.Time) error
	MarkRetry(ctx context.Context, msgID uuid.UUID, attempts int, next time.Time, lastErr string) error
	MarkDead(ctx context.Context, msgID uuid.UUID, attempts int, lastErr string) error
}

// Outbox turns domain notifications into outbox rows. It satisfies the
// Notifier ports of the consent, contributor, usage and review services.
type Outbox struct {
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewOutbox(store Store, m *metrics.Metrics, logger *slog.Logger) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{store: store, metrics: m, logger: logger}
}

// Notify enqueues one event. Called inside the caller's transaction when one
// is open on ctx.
func (o *Outbox) Notify(ctx context.Context, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	now := requestcontext.Now(ctx).UTC()
	msg := models.Message{
		ID:            uuid.New(),
		EventType:     eventType,
		Payload:       body,
		EmittedAt:     now,
		Status:        models.StatusPending,
		NextAttemptAt: now,
	}
	if err := o.store.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	o.metrics.IncrementEnqueued(eventType)
	o.logger.DebugContext(ctx, "webhook enqueued",
		"event_id", msg.ID.String(),
		"event_type", eventType,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

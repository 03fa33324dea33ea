package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"likeness/internal/webhook/models"
	"likeness/pkg/platform/sentinel"
)

// InMemory is the outbox for single-process deployments. Rows live until the
// process exits.
type InMemory struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Message
}

func NewInMemory() *InMemory {
	return &InMemory{rows: make(map[uuid.UUID]*models.Message)}
}

func (s *InMemory) Enqueue(_ context.Context, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[msg.ID]; ok {
		return sentinel.ErrConflict
	}
	msg.Payload = slices.Clone(msg.Payload)
	s.rows[msg.ID] = &msg
	return nil
}

// ClaimDue returns up to limit pending rows due at now, oldest first, and
// pushes their next attempt to now+lease so a concurrent claim skips them.
func (s *InMemory) ClaimDue(_ context.Context, now time.Time, limit int, lease time.Duration) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*models.Message
	for _, m := range s.rows {
		if m.Status == models.StatusPending && !m.NextAttemptAt.After(now) {
			due = append(due, m)
		}
	}
	slices.SortFunc(due, func(a, b *models.Message) int {
		if c := a.NextAttemptAt.Compare(b.NextAttemptAt); c != 0 {
			return c
		}
		return a.EmittedAt.Compare(b.EmittedAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]models.Message, 0, len(due))
	for _, m := range due {
		m.NextAttemptAt = now.Add(lease)
		out = append(out, *m)
	}
	return out, nil
}

func (s *InMemory) MarkDelivered(_ context.Context, msgID uuid.UUID, attempts int, at time.Time) error {
	return s.update(msgID, func(m *models.Message) {
		m.Status = models.StatusDelivered
		m.Attempts = attempts
		m.DeliveredAt = &at
		m.LastError = ""
	})
}

func (s *InMemory) MarkRetry(_ context.Context, msgID uuid.UUID, attempts int, next time.Time, lastErr string) error {
	return s.update(msgID, func(m *models.Message) {
		m.Attempts = attempts
		m.NextAttemptAt = next
		m.LastError = lastErr
	})
}

func (s *InMemory) MarkDead(_ context.Context, msgID uuid.UUID, attempts int, lastErr string) error {
	return s.update(msgID, func(m *models.Message) {
		m.Status = models.StatusDead
		m.Attempts = attempts
		m.LastError = lastErr
	})
}

func (s *InMemory) Get(_ context.Context, msgID uuid.UUID) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[msgID]
	if !ok {
		return models.Message{}, sentinel.ErrNotFound
	}
	return *m, nil
}

// CountByStatus reports the number of rows per status.
func (s *InMemory) CountByStatus(_ context.Context) (map[models.Status]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[models.Status]int64{}
	for _, m := range s.rows {
		out[m.Status]++
	}
	return out, nil
}

func (s *InMemory) update(msgID uuid.UUID, fn func(*models.Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[msgID]
	if !ok {
		return sentinel.ErrNotFound
	}
	fn(m)
	return nil
}

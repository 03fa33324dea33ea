// Package throttle decides whether a key's last_used_at is due for a write so
// busy callers do not cause a write per request.
package throttle

import (
	"context"
	"sync"
	"time"

	id "likeness/pkg/domain"
)

// InMemory throttles within one process.
type InMemory struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[id.APIKeyID]time.Time
	now      func() time.Time
}

func NewInMemory(interval time.Duration) *InMemory {
	return &InMemory{
		interval: interval,
		last:     make(map[id.APIKeyID]time.Time),
		now:      time.Now,
	}
}

// Acquire reports whether the caller should write now and, if so, reserves
// the interval.
func (t *InMemory) Acquire(_ context.Context, keyID id.APIKeyID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if last, ok := t.last[keyID]; ok && now.Sub(last) < t.interval {
		return false, nil
	}
	t.last[keyID] = now
	if len(t.last) > 10000 {
		t.evictLocked(now)
	}
	return true, nil
}

func (t *InMemory) evictLocked(now time.Time) {
	for k, last := range t.last {
		if now.Sub(last) >= t.interval {
			delete(t.last, k)
		}
	}
}

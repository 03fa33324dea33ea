package store

import (
	"context"
	"slices"
	"sync"

	"likeness/internal/usage/models"
	id "likeness/pkg/domain"
	"likeness/pkg/platform/sentinel"
)

type InMemory struct {
	mu     sync.RWMutex
	events []models.Event
	ids    map[id.UsageID]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{ids: make(map[id.UsageID]struct{})}
}

func (s *InMemory) Create(_ context.Context, e models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[e.ID]; ok {
		return sentinel.ErrConflict
	}
	s.ids[e.ID] = struct{}{}
	s.events = append(s.events, e)
	return nil
}

// ListByContributor returns the newest events first, at most limit.
func (s *InMemory) ListByContributor(_ context.Context, contributorID id.ContributorID, limit int) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Event
	for _, e := range slices.Backward(s.events) {
		if e.ContributorID != contributorID {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

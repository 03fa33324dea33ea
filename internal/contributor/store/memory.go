package store

import (
	"context"
	"sync"
	"time"

	"likeness/internal/contributor/models"
	id "likeness/pkg/domain"
	"likeness/pkg/platform/sentinel"
)

type InMemory struct {
	mu           sync.RWMutex
	contributors map[id.ContributorID]models.Contributor
}

func NewInMemory() *InMemory {
	return &InMemory{contributors: make(map[id.ContributorID]models.Contributor)}
}

func (s *InMemory) Create(_ context.Context, c models.Contributor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contributors[c.ID]; ok {
		return sentinel.ErrConflict
	}
	s.contributors[c.ID] = c.Clone()
	return nil
}

func (s *InMemory) Get(_ context.Context, contributorID id.ContributorID) (models.Contributor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contributors[contributorID]
	if !ok {
		return models.Contributor{}, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *InMemory) SetOptedOut(_ context.Context, contributorID id.ContributorID, optedOut bool, at time.Time) error {
	return s.update(contributorID, func(c *models.Contributor) {
		c.OptedOut = optedOut
		c.UpdatedAt = at
	})
}

func (s *InMemory) SetVerified(_ context.Context, contributorID id.ContributorID, at time.Time) error {
	return s.update(contributorID, func(c *models.Contributor) {
		c.Verified = true
		c.UpdatedAt = at
	})
}

func (s *InMemory) update(contributorID id.ContributorID, fn func(*models.Contributor)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contributors[contributorID]
	if !ok {
		return sentinel.ErrNotFound
	}
	fn(&c)
	s.contributors[contributorID] = c
	return nil
}

package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"likeness/internal/review/models"
	"likeness/pkg/platform/sentinel"
)

type InMemory struct {
	mu      sync.RWMutex
	reviews map[uuid.UUID]models.Review
}

func NewInMemory() *InMemory {
	return &InMemory{reviews: make(map[uuid.UUID]models.Review)}
}

func (s *InMemory) Create(_ context.Context, r models.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reviews[r.SubmissionID]; ok {
		return sentinel.ErrConflict
	}
	s.reviews[r.SubmissionID] = r
	return nil
}

func (s *InMemory) Get(_ context.Context, submissionID uuid.UUID) (models.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reviews[submissionID]
	if !ok {
		return models.Review{}, sentinel.ErrNotFound
	}
	return r, nil
}

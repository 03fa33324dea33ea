package store

import (
	"context"
	"sync"

	"likeness/internal/identity/models"
	id "likeness/pkg/domain"
	"likeness/pkg/platform/sentinel"
)

// InMemory keeps both directions of the mapping under one lock so a create
// can never be half-visible.
type InMemory struct {
	mu            sync.RWMutex
	byCID         map[id.CID]models.Identity
	byContributor map[id.ContributorID]id.CID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byCID:         make(map[id.CID]models.Identity),
		byContributor: make(map[id.ContributorID]id.CID),
	}
}

func (s *InMemory) Create(_ context.Context, identity models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byCID[identity.CID]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.byContributor[identity.ContributorID]; ok {
		return sentinel.ErrConflict
	}
	s.byCID[identity.CID] = identity
	s.byContributor[identity.ContributorID] = identity.CID
	return nil
}

func (s *InMemory) FindByContributor(_ context.Context, contributorID id.ContributorID) (models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cid, ok := s.byContributor[contributorID]
	if !ok {
		return models.Identity{}, sentinel.ErrNotFound
	}
	return s.byCID[cid], nil
}

func (s *InMemory) FindByCID(_ context.Context, cid id.CID) (models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.byCID[cid]
	if !ok {
		return models.Identity{}, sentinel.ErrNotFound
	}
	return identity, nil
}

func (s *InMemory) FindByCIDs(_ context.Context, cids []id.CID) (map[id.CID]models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.CID]models.Identity, len(cids))
	for _, cid := range cids {
		if identity, ok := s.byCID[cid]; ok {
			out[cid] = identity
		}
	}
	return out, nil
}

func (s *InMemory) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byCID)), nil
}

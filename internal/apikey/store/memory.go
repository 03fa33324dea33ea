package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"likeness/internal/apikey/models"
	id "likeness/pkg/domain"
	"likeness/pkg/platform/sentinel"
)

type InMemory struct {
	mu     sync.RWMutex
	keys   map[id.APIKeyID]models.APIKey
	byHash map[string]id.APIKeyID
}

func NewInMemory() *InMemory {
	return &InMemory{
		keys:   make(map[id.APIKeyID]models.APIKey),
		byHash: make(map[string]id.APIKeyID),
	}
}

func (s *InMemory) Create(_ context.Context, key models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHash[key.KeyHash]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.keys[key.ID]; ok {
		return sentinel.ErrConflict
	}
	s.keys[key.ID] = clone(key)
	s.byHash[key.KeyHash] = key.ID
	return nil
}

func (s *InMemory) FindByHash(_ context.Context, hash string) (models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keyID, ok := s.byHash[hash]
	if !ok {
		return models.APIKey{}, sentinel.ErrNotFound
	}
	return clone(s.keys[keyID]), nil
}

func (s *InMemory) Get(_ context.Context, keyID id.APIKeyID) (models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[keyID]
	if !ok {
		return models.APIKey{}, sentinel.ErrNotFound
	}
	return clone(key), nil
}

func (s *InMemory) List(_ context.Context) ([]models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.APIKey, 0, len(s.keys))
	for _, key := range s.keys {
		out = append(out, clone(key))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) UpdateScopes(_ context.Context, keyID id.APIKeyID, scopes []string, at time.Time) error {
	return s.update(keyID, func(k *models.APIKey) {
		k.Scopes = slices.Clone(scopes)
		k.UpdatedAt = at
	})
}

func (s *InMemory) Deactivate(_ context.Context, keyID id.APIKeyID, at time.Time) error {
	return s.update(keyID, func(k *models.APIKey) {
		k.IsActive = false
		k.UpdatedAt = at
	})
}

func (s *InMemory) TouchLastUsed(_ context.Context, keyID id.APIKeyID, at time.Time) error {
	return s.update(keyID, func(k *models.APIKey) {
		if k.LastUsedAt == nil || at.After(*k.LastUsedAt) {
			k.LastUsedAt = &at
		}
	})
}

func (s *InMemory) update(keyID id.APIKeyID, fn func(*models.APIKey)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[keyID]
	if !ok {
		return sentinel.ErrNotFound
	}
	fn(&key)
	s.keys[keyID] = key
	return nil
}

func clone(k models.APIKey) models.APIKey {
	k.Scopes = slices.Clone(k.Scopes)
	if k.ExpiresAt != nil {
		t := *k.ExpiresAt
		k.ExpiresAt = &t
	}
	if k.LastUsedAt != nil {
		t := *k.LastUsedAt
		k.LastUsedAt = &t
	}
	return k
}

package store

import (
	"context"
	"slices"
	"sync"

	"likeness/internal/consent/models"
	id "likeness/pkg/domain"
	"likeness/pkg/platform/sentinel"
)

// InMemory is the ledger and projection store for single-process runs.
// Writes made through a Stage are invisible until Commit, which gives the
// sharded transaction runner all-or-nothing appends.
type InMemory struct {
	mu          sync.RWMutex
	events      map[id.CID][]models.Event
	projections map[id.CID]models.Projection
	eventCount  int64
}

func NewInMemory() *InMemory {
	return &InMemory{
		events:      make(map[id.CID][]models.Event),
		projections: make(map[id.CID]models.Projection),
	}
}

func (s *InMemory) ListEvents(_ context.Context, cid id.CID) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events[cid]), nil
}

func (s *InMemory) AppendEvent(_ context.Context, event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(event)
}

func (s *InMemory) appendLocked(event models.Event) error {
	history := s.events[event.CID]
	if event.Seq != int64(len(history))+1 {
		return sentinel.ErrOutOfOrder
	}
	if n := len(history); n > 0 && event.CreatedAt.Before(history[n-1].CreatedAt) {
		return sentinel.ErrOutOfOrder
	}
	s.events[event.CID] = append(history, event)
	s.eventCount++
	return nil
}

func (s *InMemory) GetProjection(_ context.Context, cid id.CID) (models.Projection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projections[cid]
	if !ok {
		return models.Projection{}, sentinel.ErrNotFound
	}
	return p, nil
}

func (s *InMemory) GetProjections(_ context.Context, cids []id.CID) (map[id.CID]models.Projection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.CID]models.Projection, len(cids))
	for _, cid := range cids {
		if p, ok := s.projections[cid]; ok {
			out[cid] = p
		}
	}
	return out, nil
}

func (s *InMemory) PutProjection(_ context.Context, projection models.Projection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projections[projection.CID] = projection
	return nil
}

func (s *InMemory) Stats(_ context.Context) (models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := models.Stats{Events: s.eventCount}
	for _, p := range s.projections {
		if p.Status == models.StatusActive {
			stats.Active++
		} else {
			stats.Revoked++
		}
	}
	return stats, nil
}

// Stage returns a write buffer over the store.
func (s *InMemory) Stage() *Staged {
	return &Staged{
		base:        s,
		projections: make(map[id.CID]models.Projection),
	}
}

// Staged buffers appends and projection writes until Commit. Reads see the
// buffered writes layered over the base store.
type Staged struct {
	base        *InMemory
	events      []models.Event
	projections map[id.CID]models.Projection
}

func (t *Staged) ListEvents(ctx context.Context, cid id.CID) ([]models.Event, error) {
	events, err := t.base.ListEvents(ctx, cid)
	if err != nil {
		return nil, err
	}
	for _, e := range t.events {
		if e.CID == cid {
			events = append(events, e)
		}
	}
	return events, nil
}

func (t *Staged) AppendEvent(ctx context.Context, event models.Event) error {
	history, err := t.ListEvents(ctx, event.CID)
	if err != nil {
		return err
	}
	if event.Seq != int64(len(history))+1 {
		return sentinel.ErrOutOfOrder
	}
	t.events = append(t.events, event)
	return nil
}

func (t *Staged) GetProjection(ctx context.Context, cid id.CID) (models.Projection, error) {
	if p, ok := t.projections[cid]; ok {
		return p, nil
	}
	return t.base.GetProjection(ctx, cid)
}

func (t *Staged) GetProjections(ctx context.Context, cids []id.CID) (map[id.CID]models.Projection, error) {
	out, err := t.base.GetProjections(ctx, cids)
	if err != nil {
		return nil, err
	}
	for _, cid := range cids {
		if p, ok := t.projections[cid]; ok {
			out[cid] = p
		}
	}
	return out, nil
}

func (t *Staged) PutProjection(_ context.Context, projection models.Projection) error {
	t.projections[projection.CID] = projection
	return nil
}

func (t *Staged) Stats(ctx context.Context) (models.Stats, error) {
	return t.base.Stats(ctx)
}

// Commit applies the buffered writes atomically with respect to readers.
func (t *Staged) Commit() error {
	t.base.mu.Lock()
	defer t.base.mu.Unlock()
	for _, e := range t.events {
		if err := t.base.appendLocked(e); err != nil {
			return err
		}
	}
	for cid, p := range t.projections {
		t.base.projections[cid] = p
	}
	t.events = nil
	clear(t.projections)
	return nil
}

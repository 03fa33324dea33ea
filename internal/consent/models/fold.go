package models

import (
	"slices"

	id "likeness/pkg/domain"
	"likeness/pkg/platform/sentinel"
)

// Apply folds one event into a projection and returns the new state. p is not
// modified. A scope_update against a revoked projection returns
// sentinel.ErrInvalidState; events out of sequence return
// sentinel.ErrOutOfOrder.
func Apply(p Projection, e Event) (Projection, error) {
	if e.Seq != p.LastSeq+1 {
		return p, sentinel.ErrOutOfOrder
	}
	next := p
	next.Categories = p.Categories.Clone()
	next.PreRevocationCategories = p.PreRevocationCategories.Clone()

	switch e.Type {
	case EventGrant:
		next.Status = StatusActive
		next.Categories = nonNil(e.Categories.Clone())
	case EventReinstate:
		next.Status = StatusActive
		if e.Categories != nil {
			next.Categories = e.Categories.Clone()
		} else {
			next.Categories = nonNil(p.PreRevocationCategories.Clone())
		}
	case EventScopeUpdate:
		if p.Status != StatusActive {
			return p, sentinel.ErrInvalidState
		}
		for k, v := range e.Categories {
			next.Categories[k] = v
		}
	case EventRevoke:
		if p.Status == StatusActive {
			next.PreRevocationCategories = nonNil(p.Categories.Clone())
		}
		next.Status = StatusRevoked
		for k := range next.Categories {
			next.Categories[k] = false
		}
	default:
		return p, sentinel.ErrInvalidState
	}

	if e.GeoRestrictions != nil {
		next.GeoRestrictions = slices.Clone(e.GeoRestrictions)
	}
	if e.ContentExclusions != nil {
		next.ContentExclusions = slices.Clone(e.ContentExclusions)
	}
	next.Categories = nonNil(next.Categories)
	next.PreRevocationCategories = nonNil(next.PreRevocationCategories)
	next.LastSeq = e.Seq
	next.LastEventAt = e.CreatedAt
	next.UpdatedAt = e.CreatedAt
	return next, nil
}

// Replay folds a full ordered history from the initial state.
func Replay(cid id.CID, events []Event) (Projection, error) {
	p := Initial(cid)
	for _, e := range events {
		var err error
		p, err = Apply(p, e)
		if err != nil {
			return p, err
		}
	}
	return p, nil
}

func nonNil(c Categories) Categories {
	if c == nil {
		return Categories{}
	}
	return c
}

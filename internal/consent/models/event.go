// Package models holds the consent ledger's event and projection types and the
// fold that derives one from the other.
package models

import (
	"time"

	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
)

// EventType is the discriminant of a ledger event.
type EventType string

const (
	EventGrant       EventType = "grant"
	EventRevoke      EventType = "revoke"
	EventReinstate   EventType = "reinstate"
	EventScopeUpdate EventType = "scope_update"
)

func (t EventType) IsValid() bool {
	switch t {
	case EventGrant, EventRevoke, EventReinstate, EventScopeUpdate:
		return true
	}
	return false
}

// ParseEventType validates an event type from external input.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "event_type must be one of grant, revoke, reinstate, scope_update")
	}
	return t, nil
}

// Categories maps a use type to whether it is allowed.
type Categories map[id.ConsentCategory]bool

// Clone returns an independent copy; nil stays nil.
func (c Categories) Clone() Categories {
	if c == nil {
		return nil
	}
	out := make(Categories, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Event is an immutable ledger entry. Seq is the per-CID position assigned at
// append; CreatedAt is non-decreasing along Seq.
//
// A nil Categories on reinstate means "not supplied". Nil GeoRestrictions or
// ContentExclusions leave the current lists unchanged; an empty non-nil slice
// clears them.
type Event struct {
	ID                id.EventID `json:"id"`
	CID               id.CID     `json:"cid"`
	Seq               int64      `json:"seq"`
	Type              EventType  `json:"event_type"`
	Categories        Categories `json:"consent_scope"`
	GeoRestrictions   []string   `json:"geo_restrictions,omitempty"`
	ContentExclusions []string   `json:"content_exclusions,omitempty"`
	Source            string     `json:"source"`
	Actor             string     `json:"actor"`
	CreatedAt         time.Time  `json:"created_at"`
}

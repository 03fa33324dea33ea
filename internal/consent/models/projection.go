package models

import (
	"slices"
	"time"

	id "likeness/pkg/domain"
)

// Status is the consent status of an identity.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// Projection is the materialized current consent of one CID. It is a cache of
// Replay over the CID's events and is rewritten in the same transaction as
// each append.
type Projection struct {
	CID               id.CID     `json:"cid"`
	Status            Status     `json:"status"`
	Categories        Categories `json:"consent_categories"`
	GeoRestrictions   []string   `json:"geo_restrictions"`
	ContentExclusions []string   `json:"content_exclusions"`
	// PreRevocationCategories remembers what a revoke zeroed so a reinstate
	// without an explicit scope can restore it.
	PreRevocationCategories Categories `json:"-"`
	LastSeq                 int64      `json:"-"`
	LastEventAt             time.Time  `json:"-"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// Initial is the state before any event: revoked with nothing granted.
func Initial(cid id.CID) Projection {
	return Projection{
		CID:                     cid,
		Status:                  StatusRevoked,
		Categories:              Categories{},
		GeoRestrictions:         []string{},
		ContentExclusions:       []string{},
		PreRevocationCategories: Categories{},
	}
}

// HasHistory reports whether any event has been folded in.
func (p Projection) HasHistory() bool {
	return p.LastSeq > 0
}

// Equivalent compares the externally observable state of two projections.
func (p Projection) Equivalent(other Projection) bool {
	if p.Status != other.Status || p.LastSeq != other.LastSeq {
		return false
	}
	if !categoriesEqual(p.Categories, other.Categories) {
		return false
	}
	return slices.Equal(p.GeoRestrictions, other.GeoRestrictions) &&
		slices.Equal(p.ContentExclusions, other.ContentExclusions)
}

func categoriesEqual(a, b Categories) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// Stats aggregates ledger and projection counts.
type Stats struct {
	Active  int64 `json:"active"`
	Revoked int64 `json:"revoked"`
	Events  int64 `json:"events"`
}

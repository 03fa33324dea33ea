package models

import (
	"time"

	id "likeness/pkg/domain"
)

// Identity binds a contributor to the opaque external CID. The binding is
// created once and never changes.
type Identity struct {
	CID           id.CID           `json:"cid"`
	ContributorID id.ContributorID `json:"-"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Package models holds the contributor read model the registry depends on.
// Onboarding owns the record; the registry reads it and flips the opt-out and
// verification flags.
package models

import (
	"maps"
	"time"

	id "likeness/pkg/domain"
)

type Contributor struct {
	ID          id.ContributorID  `json:"id"`
	DisplayName string            `json:"display_name"`
	Verified    bool              `json:"verified"`
	OptedOut    bool              `json:"opted_out"`
	Attributes  map[string]string `json:"attributes"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Clone returns a copy that shares no maps with c.
func (c Contributor) Clone() Contributor {
	out := c
	out.Attributes = maps.Clone(c.Attributes)
	if out.Attributes == nil {
		out.Attributes = map[string]string{}
	}
	return out
}

// OptOutPayload is the body of contributor.opted_out and contributor.opted_in
// webhooks. CID is empty when no identity was provisioned yet.
type OptOutPayload struct {
	ContributorID string    `json:"contributor_id"`
	CID           string    `json:"cid,omitempty"`
	OptedOut      bool      `json:"opted_out"`
	ChangedAt     time.Time `json:"changed_at"`
}

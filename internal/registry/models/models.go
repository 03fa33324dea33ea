// Package models defines the platform-facing registry read models.
package models

import (
	"time"

	consentmodels "likeness/internal/consent/models"
)

// Per-item batch errors.
const (
	ErrorInvalidFormat = "invalid_format"
	ErrorNotFound      = "not_found"
)

// LookupResult is one entry of a batch identity lookup. Entries are either
// resolved (Found set) or carry Error.
type LookupResult struct {
	CID           string               `json:"cid"`
	Found         bool                 `json:"found"`
	ConsentStatus consentmodels.Status `json:"consent_status,omitempty"`
	CreatedAt     *time.Time           `json:"created_at,omitempty"`
	Error         string               `json:"error,omitempty"`
}

// ConsentCheckResult is one entry of a batch consent check. Decision is nil
// when the identifier was malformed.
type ConsentCheckResult struct {
	CID   string `json:"cid"`
	Error string `json:"error,omitempty"`
	*consentmodels.Decision
}

// Stats aggregates registry counts.
type Stats struct {
	Identities      int64 `json:"identities"`
	ActiveConsents  int64 `json:"active_consents"`
	RevokedConsents int64 `json:"revoked_consents"`
	ConsentEvents   int64 `json:"consent_events"`
}

// ConsentSummary is the consent part of a contributor profile.
type ConsentSummary struct {
	Status            consentmodels.Status     `json:"status"`
	Categories        consentmodels.Categories `json:"consent_categories"`
	GeoRestrictions   []string                 `json:"geo_restrictions"`
	ContentExclusions []string                 `json:"content_exclusions"`
	LastUpdated       *time.Time               `json:"last_updated"`
}

// ContributorProfile is what a platform may read about a contributor.
type ContributorProfile struct {
	ID          string            `json:"id"`
	CID         string            `json:"cid,omitempty"`
	DisplayName string            `json:"display_name"`
	Verified    bool              `json:"verified"`
	OptedOut    bool              `json:"opted_out"`
	Attributes  map[string]string `json:"attributes"`
	Consent     *ConsentSummary   `json:"consent,omitempty"`
}

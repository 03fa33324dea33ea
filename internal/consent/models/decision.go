package models

import (
	"strings"
	"time"

	id "likeness/pkg/domain"
)

// Decision reasons.
const (
	ReasonNotFound           = "not_found"
	ReasonNotGranted         = "consent_not_granted"
	ReasonRevoked            = "consent_revoked"
	ReasonCategoryNotGranted = "category_not_granted"
	ReasonRegionRestricted   = "region_restricted"
	ReasonModalityExcluded   = "modality_excluded"
)

// CheckQuery narrows a consent check. Empty fields are not applied.
type CheckQuery struct {
	UseType  id.ConsentCategory
	Region   string
	Modality string
}

// Decision is the answer to "may this likeness be used this way".
type Decision struct {
	CID               id.CID     `json:"cid"`
	Allowed           bool       `json:"allowed"`
	Status            Status     `json:"status,omitempty"`
	ConsentScope      Categories `json:"consent_scope"`
	GeoRestrictions   []string   `json:"geo_restrictions"`
	ContentExclusions []string   `json:"content_exclusions"`
	Reasons           []string   `json:"reasons"`
	LastUpdated       *time.Time `json:"last_updated"`
	Verified          bool       `json:"verified,omitempty"`
}

// NotFoundDecision answers for an identity the registry does not know.
func NotFoundDecision(cid id.CID) Decision {
	return Decision{
		CID:               cid,
		Allowed:           false,
		ConsentScope:      Categories{},
		GeoRestrictions:   []string{},
		ContentExclusions: []string{},
		Reasons:           []string{ReasonNotFound},
	}
}

// Decide resolves a projection against a query.
//
// Revoked denies unconditionally. Active allows only an explicitly granted
// use type, then narrows by region and modality. An empty use type asks only
// whether consent is active.
func Decide(p Projection, q CheckQuery) Decision {
	d := Decision{
		CID:               p.CID,
		Status:            p.Status,
		ConsentScope:      nonNil(p.Categories.Clone()),
		GeoRestrictions:   nonNilStrings(p.GeoRestrictions),
		ContentExclusions: nonNilStrings(p.ContentExclusions),
		Reasons:           []string{},
	}
	if p.HasHistory() {
		t := p.UpdatedAt
		d.LastUpdated = &t
	}

	if p.Status != StatusActive {
		if p.HasHistory() {
			d.Reasons = append(d.Reasons, ReasonRevoked)
		} else {
			d.Reasons = append(d.Reasons, ReasonNotGranted)
		}
		return d
	}

	allowed := true
	if q.UseType != "" && !p.Categories[q.UseType] {
		allowed = false
		d.Reasons = append(d.Reasons, ReasonCategoryNotGranted)
	}
	if q.Region != "" && containsFold(p.GeoRestrictions, q.Region) {
		allowed = false
		d.Reasons = append(d.Reasons, ReasonRegionRestricted)
	}
	if q.Modality != "" && containsFold(p.ContentExclusions, q.Modality) {
		allowed = false
		d.Reasons = append(d.Reasons, ReasonModalityExcluded)
	}
	d.Allowed = allowed
	return d
}

func containsFold(list []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}

func nonNilStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

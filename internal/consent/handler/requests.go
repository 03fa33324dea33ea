package handler

import (
	"strings"

	"likeness/internal/consent/models"
	consentservice "likeness/internal/consent/service"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	strs "likeness/pkg/platform/strings"
)

// AppendEventRequest is a union keyed by event_type:
//
//	grant        consent_scope required; lists optional
//	revoke       no other fields
//	reinstate    consent_scope optional (omitted restores the pre-revocation scope); lists optional
//	scope_update at least one of consent_scope, geo_restrictions, content_exclusions
type AppendEventRequest struct {
	EventType         string          `json:"event_type"`
	ConsentScope      map[string]bool `json:"consent_scope,omitempty"`
	GeoRestrictions   []string        `json:"geo_restrictions,omitempty"`
	ContentExclusions []string        `json:"content_exclusions,omitempty"`
}

// Normalize trims the event type and list entries. Blank and repeated
// entries are dropped; an absent list stays absent.
func (r *AppendEventRequest) Normalize() {
	r.EventType = strings.TrimSpace(r.EventType)
	r.GeoRestrictions = strs.DedupeAndTrim(r.GeoRestrictions)
	r.ContentExclusions = strs.DedupeAndTrim(r.ContentExclusions)
}

// Command validates the union and converts it into a ledger command without a
// CID or actor.
func (r AppendEventRequest) Command() (consentservice.AppendCommand, error) {
	eventType, err := models.ParseEventType(r.EventType)
	if err != nil {
		return consentservice.AppendCommand{}, err
	}

	hasLists := r.GeoRestrictions != nil || r.ContentExclusions != nil
	switch eventType {
	case models.EventGrant:
		if r.ConsentScope == nil {
			return consentservice.AppendCommand{}, dErrors.New(dErrors.CodeValidation, "grant requires consent_scope")
		}
	case models.EventRevoke:
		if r.ConsentScope != nil || hasLists {
			return consentservice.AppendCommand{}, dErrors.New(dErrors.CodeValidation, "revoke takes no scope or restrictions")
		}
	case models.EventScopeUpdate:
		if len(r.ConsentScope) == 0 && !hasLists {
			return consentservice.AppendCommand{}, dErrors.New(dErrors.CodeValidation, "scope_update requires consent_scope, geo_restrictions or content_exclusions")
		}
	}

	var categories models.Categories
	if r.ConsentScope != nil {
		categories = make(models.Categories, len(r.ConsentScope))
		for raw, allowed := range r.ConsentScope {
			category, err := id.ParseConsentCategory(raw)
			if err != nil {
				return consentservice.AppendCommand{}, dErrors.New(dErrors.CodeValidation, "invalid consent category: "+raw)
			}
			categories[category] = allowed
		}
	}

	return consentservice.AppendCommand{
		Type:              eventType,
		Categories:        categories,
		GeoRestrictions:   r.GeoRestrictions,
		ContentExclusions: r.ContentExclusions,
	}, nil
}

// HistoryResponse is the caller's ordered ledger.
type HistoryResponse struct {
	CID    id.CID         `json:"cid"`
	Events []models.Event `json:"events"`
}

// RebuildResponse reports a projection repair.
type RebuildResponse struct {
	CID        id.CID            `json:"cid"`
	Drifted    bool              `json:"drifted"`
	Projection models.Projection `json:"projection"`
}

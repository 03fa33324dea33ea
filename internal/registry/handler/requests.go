package handler

import (
	"strings"

	consentmodels "likeness/internal/consent/models"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
)

// BulkLookupRequest carries raw identifiers; each is validated per item.
type BulkLookupRequest struct {
	CIDs []string `json:"cids"`
}

type BulkConsentCheckRequest struct {
	CIDs     []string `json:"cids"`
	UseType  string   `json:"use_type,omitempty"`
	Region   string   `json:"region,omitempty"`
	Modality string   `json:"modality,omitempty"`
}

func parseQuery(useType, region, modality string) (consentmodels.CheckQuery, error) {
	q := consentmodels.CheckQuery{
		Region:   strings.TrimSpace(region),
		Modality: strings.TrimSpace(modality),
	}
	if useType = strings.TrimSpace(useType); useType != "" {
		category, err := id.ParseConsentCategory(useType)
		if err != nil {
			return consentmodels.CheckQuery{}, dErrors.New(dErrors.CodeValidation, "invalid use_type")
		}
		q.UseType = category
	}
	return q, nil
}

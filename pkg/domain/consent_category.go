package domain

import (
	"regexp"

	dErrors "likeness/pkg/domain-errors"
)

// ConsentCategory names a use type a person may allow or deny, for example
// "allow_commercial". Categories are open-ended: the registry stores whatever
// the person granted, and anything absent resolves to deny.
type ConsentCategory string

// Categories surfaced by the contributor dashboard.
const (
	CategoryCommercial ConsentCategory = "allow_commercial"
	CategoryEditorial  ConsentCategory = "allow_editorial"
	CategoryAITraining ConsentCategory = "allow_ai_training"
	CategoryResearch   ConsentCategory = "allow_research"
)

var categoryPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// ParseConsentCategory validates a category name from external input.
func ParseConsentCategory(s string) (ConsentCategory, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "category cannot be empty")
	}
	if !categoryPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid category")
	}
	return ConsentCategory(s), nil
}

func (c ConsentCategory) String() string { return string(c) }

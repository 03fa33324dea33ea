package handler

import (
	"likeness/internal/contributor/models"
	dErrors "likeness/pkg/domain-errors"
)

// Opt-out actions.
const (
	ActionOptOut = "opt_out"
	ActionOptIn  = "opt_in"
)

type OptOutRequest struct {
	Action string `json:"action"`
}

// OptOut reports the requested flag value.
func (r OptOutRequest) OptOut() (bool, error) {
	switch r.Action {
	case ActionOptOut:
		return true, nil
	case ActionOptIn:
		return false, nil
	default:
		return false, dErrors.New(dErrors.CodeValidation, "action must be opt_out or opt_in")
	}
}

type CreateContributorRequest struct {
	DisplayName string            `json:"display_name"`
	Attributes  map[string]string `json:"attributes"`
}

type ProfileResponse struct {
	Contributor models.Contributor `json:"contributor"`
	CID         string             `json:"cid,omitempty"`
}

package models

import (
	id "likeness/pkg/domain"
)

// Status is the provider's verdict on a verification session.
type Status string

const (
	StatusApproved Status = "approved"
	StatusDeclined Status = "declined"
	StatusPending  Status = "pending"
	StatusExpired  Status = "expired"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusApproved, StatusDeclined, StatusPending, StatusExpired:
		return true
	}
	return false
}

// Session is the provider's view of one verification attempt. Reference is
// the contributor id we handed the provider when the session started.
type Session struct {
	ID        string `json:"id"`
	Status    Status `json:"status"`
	Reference string `json:"reference"`
}

// Callback is the body the provider posts when a session changes state.
type Callback struct {
	SessionID string `json:"session_id"`
	Status    Status `json:"status"`
	Reference string `json:"reference"`
}

// Outcome reports what a callback changed.
type Outcome struct {
	SessionID     string           `json:"session_id"`
	ContributorID id.ContributorID `json:"contributor_id"`
	Status        Status           `json:"status"`
	CID           string           `json:"cid,omitempty"`
}

package models

import (
	"time"

	id "likeness/pkg/domain"
)

// Event records that a platform used a contributor's likeness.
type Event struct {
	ID            id.UsageID         `json:"id"`
	ContributorID id.ContributorID   `json:"contributor_id"`
	APIKeyID      id.APIKeyID        `json:"api_key_id"`
	UseType       id.ConsentCategory `json:"use_type"`
	Description   string             `json:"description"`
	UserAgent     string             `json:"user_agent"`
	// Client is a short summary of UserAgent, e.g. "Chrome 120 (Linux)" or
	// "bot: Googlebot".
	Client    string    `json:"client"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordedPayload is the body of usage.recorded webhooks. The key is named
// by prefix only.
type RecordedPayload struct {
	UsageID       string    `json:"usage_id"`
	ContributorID string    `json:"contributor_id"`
	CID           string    `json:"cid"`
	UseType       string    `json:"use_type"`
	KeyPrefix     string    `json:"key_prefix"`
	CreatedAt     time.Time `json:"created_at"`
}

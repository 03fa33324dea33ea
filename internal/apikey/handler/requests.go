package handler

import (
	"time"

	"likeness/internal/apikey/models"
)

type IssueRequest struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type UpdateScopesRequest struct {
	Scopes []string `json:"scopes"`
}

type ListResponse struct {
	Keys        []models.APIKey `json:"keys"`
	KnownScopes []string        `json:"known_scopes"`
}

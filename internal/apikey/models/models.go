// Package models defines platform API keys and the capability strings they
// carry.
package models

import (
	"slices"
	"time"

	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	strs "likeness/pkg/platform/strings"
)

// Scopes granted to platform API keys. Matching is exact: holding
// registry:read does not imply registry:consent:read.
const (
	ScopeContributorsRead    = "contributors:read"
	ScopeRegistryRead        = "registry:read"
	ScopeRegistryConsentRead = "registry:consent:read"
	ScopeUsageWrite          = "usage:write"
)

var knownScopes = []string{
	ScopeContributorsRead,
	ScopeRegistryRead,
	ScopeRegistryConsentRead,
	ScopeUsageWrite,
}

// KnownScopes lists every scope an administrator may grant.
func KnownScopes() []string {
	return slices.Clone(knownScopes)
}

// APIKey is a persisted platform credential. Only the hash of the secret is
// stored; KeyPrefix identifies the key in logs and listings.
type APIKey struct {
	ID         id.APIKeyID `json:"id"`
	KeyHash    string      `json:"-"`
	KeyPrefix  string      `json:"key_prefix"`
	Name       string      `json:"name"`
	Scopes     []string    `json:"scopes"`
	IsActive   bool        `json:"is_active"`
	ExpiresAt  *time.Time  `json:"expires_at,omitempty"`
	LastUsedAt *time.Time  `json:"last_used_at,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Usable reports whether the key may authenticate at now. Inactive or expired
// keys are rejected regardless of scope.
func (k APIKey) Usable(now time.Time) bool {
	if !k.IsActive {
		return false
	}
	return k.ExpiresAt == nil || now.Before(*k.ExpiresAt)
}

// HasScope reports exact membership.
func (k APIKey) HasScope(scope string) bool {
	return HasScope(k.Scopes, scope)
}

// HasScope reports whether scopes contains needed verbatim.
func HasScope(scopes []string, needed string) bool {
	return needed != "" && slices.Contains(scopes, needed)
}

// Issued carries the raw secret once, at creation.
type Issued struct {
	Key    APIKey `json:"key"`
	Secret string `json:"secret"`
}

// NormalizeScopes validates scopes against the known set, de-duplicates and
// sorts them.
func NormalizeScopes(scopes []string) ([]string, error) {
	out := strs.DedupeAndTrim(scopes)
	if len(out) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one scope is required")
	}
	for _, s := range out {
		if !slices.Contains(knownScopes, s) {
			return nil, dErrors.New(dErrors.CodeValidation, "unknown scope: "+s)
		}
	}
	slices.Sort(out)
	return out, nil
}

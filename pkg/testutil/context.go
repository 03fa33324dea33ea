package testutil

import (
	"net/http"

	id "likeness/pkg/domain"
	"likeness/pkg/requestcontext"
)

// WithBearer sets an Authorization bearer token, as sessions and API keys
// both travel.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// WithContributorID simulates what the session middleware does for an
// authenticated contributor.
func WithContributorID(req *http.Request, contributorID id.ContributorID) *http.Request {
	return req.WithContext(requestcontext.WithContributorID(req.Context(), contributorID))
}

// WithAPIKey simulates what the API key middleware does for an authenticated
// platform caller.
func WithAPIKey(req *http.Request, principal requestcontext.APIKeyPrincipal) *http.Request {
	return req.WithContext(requestcontext.WithAPIKey(req.Context(), principal))
}

// Package middleware authenticates platform requests by API key and enforces
// per-route scopes.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"likeness/internal/apikey/metrics"
	"likeness/internal/apikey/models"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/httputil"
	"likeness/pkg/requestcontext"
)

// HeaderAPIKey is the alternative to an Authorization bearer token.
const HeaderAPIKey = "X-API-Key"

// Authenticator resolves a raw secret to an API key.
type Authenticator interface {
	Authenticate(ctx context.Context, secret string) (models.APIKey, error)
}

// ExtractKey reads the secret from "Authorization: Bearer <key>" or
// X-API-Key, preferring the former.
func ExtractKey(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}
	return strings.TrimSpace(r.Header.Get(HeaderAPIKey))
}

// RequireAPIKey rejects requests without a usable key and stores the caller
// in the request context.
func RequireAPIKey(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key, err := auth.Authenticate(ctx, ExtractKey(r))
			if err != nil {
				if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
					logger.WarnContext(ctx, "unauthorized platform request",
						"path", r.URL.Path,
						"request_id", requestcontext.RequestID(ctx),
					)
				} else {
					logger.ErrorContext(ctx, "api key authentication failed",
						"error", err,
						"request_id", requestcontext.RequestID(ctx),
					)
				}
				httputil.WriteError(w, err)
				return
			}

			ctx = requestcontext.WithAPIKey(ctx, requestcontext.APIKeyPrincipal{
				ID:     key.ID,
				Prefix: key.KeyPrefix,
				Name:   key.Name,
				Scopes: key.Scopes,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope allows the request only when the authenticated key holds
// scope exactly.
func RequireScope(scope string, m *metrics.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal, ok := requestcontext.APIKey(ctx)
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid api key"))
				return
			}
			if !models.HasScope(principal.Scopes, scope) {
				m.IncrementScopeDenied(scope)
				logger.WarnContext(ctx, "api key missing scope",
					"key_prefix", principal.Prefix,
					"scope", scope,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "api key lacks required scope "+scope))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

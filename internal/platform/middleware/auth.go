package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/httputil"
	"likeness/pkg/requestcontext"
)

// SessionValidator validates a contributor session token.
type SessionValidator interface {
	ValidateSession(token string) (id.ContributorID, error)
}

// RequireSession authenticates internal endpoints with a contributor session
// bearer token and stores the contributor in the request context.
func RequireSession(validator SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing session token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			contributorID, err := validator.ValidateSession(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid session token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired session"))
				return
			}

			ctx = requestcontext.WithContributorID(ctx, contributorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Package admin guards operator routes (API key management, consent
// rebuilds, contributor status changes) with a shared token.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/httputil"
	"likeness/pkg/requestcontext"
)

// HeaderName carries the operator token on administrative routes.
const HeaderName = "X-Admin-Token"

// RequireAdminToken rejects requests whose X-Admin-Token does not equal
// operatorToken. With no token configured every request is rejected.
func RequireAdminToken(operatorToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	want := []byte(operatorToken)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(want) > 0 && subtle.ConstantTimeCompare([]byte(r.Header.Get(HeaderName)), want) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			reason := "token mismatch"
			if len(want) == 0 {
				reason = "admin routes disabled"
			}
			logger.WarnContext(ctx, "admin request rejected",
				"reason", reason,
				"path", r.URL.Path,
				"client_ip", requestcontext.ClientIP(ctx),
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
		})
	}
}

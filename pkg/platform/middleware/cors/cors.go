// Package cors applies the single-trusted-origin CORS policy of the platform API.
package cors

import (
	"net/http"
	"strings"
)

const (
	allowMethods = "GET, POST, PUT, OPTIONS"
	allowHeaders = "Authorization, Content-Type, X-API-Key, X-Request-ID"
	maxAge       = "86400"
)

// Middleware returns a filter for one configured origin. OPTIONS is answered
// with 204 and the preflight header set before reaching any route. For other
// methods the allow-origin header is emitted only when the request Origin
// equals the configured origin; the browser enforces the rest.
func Middleware(allowedOrigin string) func(next http.Handler) http.Handler {
	allowedOrigin = strings.TrimRight(allowedOrigin, "/")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				setHeaders(h, allowedOrigin)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allowedOrigin != "" && r.Header.Get("Origin") == allowedOrigin {
				setHeaders(h, allowedOrigin)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setHeaders(h http.Header, origin string) {
	if origin != "" {
		h.Set("Access-Control-Allow-Origin", origin)
	}
	h.Set("Access-Control-Allow-Methods", allowMethods)
	h.Set("Access-Control-Allow-Headers", allowHeaders)
	h.Set("Access-Control-Max-Age", maxAge)
}

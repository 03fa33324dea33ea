// Package requestcontext carries request-scoped values (session contributor,
// platform API key, client metadata, request id and time) through
// context.Context so services never import net/http.
//
// Middleware writes them; services and tests read or inject them:
//
//	principal, ok := requestcontext.APIKey(ctx)
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "likeness/pkg/domain"
)

type key int

const (
	contributorKey key = iota
	apiKeyKey
	clientIPKey
	userAgentKey
	requestIDKey
	requestTimeKey
)

func get[T any](ctx context.Context, k key) (T, bool) {
	v, ok := ctx.Value(k).(T)
	return v, ok
}

// ContributorID is the session-authenticated contributor, or the zero id on
// platform and public routes.
func ContributorID(ctx context.Context) id.ContributorID {
	v, _ := get[id.ContributorID](ctx, contributorKey)
	return v
}

func WithContributorID(ctx context.Context, contributorID id.ContributorID) context.Context {
	return context.WithValue(ctx, contributorKey, contributorID)
}

// APIKeyPrincipal is the authenticated platform caller. The secret and its
// hash never enter the context.
type APIKeyPrincipal struct {
	ID     id.APIKeyID
	Prefix string
	Name   string
	Scopes []string
}

func APIKey(ctx context.Context) (APIKeyPrincipal, bool) {
	return get[APIKeyPrincipal](ctx, apiKeyKey)
}

func WithAPIKey(ctx context.Context, p APIKeyPrincipal) context.Context {
	return context.WithValue(ctx, apiKeyKey, p)
}

func ClientIP(ctx context.Context) string {
	v, _ := get[string](ctx, clientIPKey)
	return v
}

func UserAgent(ctx context.Context) string {
	v, _ := get[string](ctx, userAgentKey)
	return v
}

// WithClientMetadata records the caller's address and User-Agent.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, clientIP)
	return context.WithValue(ctx, userAgentKey, userAgent)
}

func RequestID(ctx context.Context) string {
	v, _ := get[string](ctx, requestIDKey)
	return v
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// Now is the time the request arrived. Outside a request (workers, keyctl)
// it is the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := get[time.Time](ctx, requestTimeKey); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}

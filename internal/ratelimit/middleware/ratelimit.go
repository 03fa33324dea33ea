// Package middleware applies per-API-key request limits to the platform API.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"likeness/internal/ratelimit/metrics"
	"likeness/internal/ratelimit/models"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/httputil"
	"likeness/pkg/requestcontext"
)

// RateLimiter decides whether key may make another request.
type RateLimiter interface {
	Allow(key string) models.Result
}

// Sweeper forgets idle keys.
type Sweeper interface {
	Cleanup() int
}

type Middleware struct {
	limiter  RateLimiter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled turns limiting off entirely.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

func New(limiter RateLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("platform rate limiting disabled")
	}
	return m
}

// PerAPIKey limits requests by the authenticated key. It must run after API
// key authentication; unauthenticated requests pass through untouched.
func (m *Middleware) PerAPIKey() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			principal, ok := requestcontext.APIKey(ctx)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			result := m.limiter.Allow(principal.ID.String())
			addRateLimitHeaders(w, result)

			if !result.Allowed {
				m.metrics.IncrementRejected()
				m.logger.WarnContext(ctx, "platform rate limit exceeded",
					"key_prefix", principal.Prefix,
					"retry_after", result.RetryAfter,
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests for this api key"))
				return
			}
			m.metrics.IncrementAllowed()
			next.ServeHTTP(w, r)
		})
	}
}

// RunCleanup sweeps idle limiters every interval until ctx is done.
func RunCleanup(ctx context.Context, s Sweeper, interval time.Duration, mt *metrics.Metrics) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mt.SetTrackedKeys(s.Cleanup())
		}
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

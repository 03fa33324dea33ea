// Package httpserver builds the listener for the likeness API.
package httpserver

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultIdleTimeout       = 60 * time.Second
	maxHeaderBytes           = 64 << 10

	// writeSlack covers encoding the response after the handler deadline.
	writeSlack = 5 * time.Second
)

// Option adjusts the server before it is returned.
type Option func(*http.Server)

// WithHandlerTimeout sizes the read and write deadlines around the per-request
// handler timeout so a timed-out handler can still write its error body.
func WithHandlerTimeout(d time.Duration) Option {
	return func(s *http.Server) {
		if d <= 0 {
			return
		}
		s.ReadTimeout = d
		s.WriteTimeout = d + writeSlack
	}
}

// WithErrorLog routes net/http's internal errors (TLS handshakes, panics in
// hijacked connections) through the structured logger.
func WithErrorLog(logger *slog.Logger) Option {
	return func(s *http.Server) {
		if logger != nil {
			s.ErrorLog = slog.NewLogLogger(logger.Handler(), slog.LevelWarn)
		}
	}
}

// New returns a server for handler on addr. Without options only the header
// and idle timeouts are bounded.
func New(addr string, handler http.Handler, opts ...Option) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	h := http.NotFoundHandler()

	t.Run("defaults", func(t *testing.T) {
		srv := New(":8080", h)
		assert.Equal(t, ":8080", srv.Addr)
		assert.Equal(t, defaultReadHeaderTimeout, srv.ReadHeaderTimeout)
		assert.Equal(t, defaultIdleTimeout, srv.IdleTimeout)
		assert.Zero(t, srv.WriteTimeout)
		assert.Nil(t, srv.ErrorLog)
	})

	t.Run("handler timeout leaves room to write", func(t *testing.T) {
		srv := New(":8080", h, WithHandlerTimeout(30*time.Second))
		assert.Equal(t, 30*time.Second, srv.ReadTimeout)
		assert.Equal(t, 35*time.Second, srv.WriteTimeout)
	})

	t.Run("non-positive handler timeout is ignored", func(t *testing.T) {
		srv := New(":8080", h, WithHandlerTimeout(0))
		assert.Zero(t, srv.ReadTimeout)
		assert.Zero(t, srv.WriteTimeout)
	})

	t.Run("error log", func(t *testing.T) {
		srv := New(":8080", h, WithErrorLog(slog.New(slog.NewTextHandler(io.Discard, nil))), WithErrorLog(nil))
		assert.NotNil(t, srv.ErrorLog)
	})
}

package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	webhookservice "likeness/internal/webhook/service"
)

func TestWebhookKey(t *testing.T) {
	t.Run("prints the family key the dispatcher signs with", func(t *testing.T) {
		var out bytes.Buffer
		err := run(context.Background(), []string{"webhook-key", "-secret", "s3cret", "-family", "registry"}, &out)
		require.NoError(t, err)

		want, err := webhookservice.NewKeyRing("s3cret").KeyFor("registry")
		require.NoError(t, err)
		assert.Equal(t, hex.EncodeToString(want), strings.TrimSpace(out.String()))
	})

	t.Run("families get distinct keys", func(t *testing.T) {
		var a, b bytes.Buffer
		require.NoError(t, run(context.Background(), []string{"webhook-key", "-secret", "s3cret", "-family", "registry"}, &a))
		require.NoError(t, run(context.Background(), []string{"webhook-key", "-secret", "s3cret", "-family", "usage"}, &b))
		assert.NotEqual(t, a.String(), b.String())
	})

	t.Run("requires a family", func(t *testing.T) {
		err := run(context.Background(), []string{"webhook-key", "-secret", "s3cret"}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "-family is required")
	})
}

func TestRun(t *testing.T) {
	t.Run("unknown command", func(t *testing.T) {
		err := run(context.Background(), []string{"rotate"}, &bytes.Buffer{})
		assert.ErrorContains(t, err, `unknown command "rotate"`)
	})

	t.Run("no command prints usage", func(t *testing.T) {
		err := run(context.Background(), nil, &bytes.Buffer{})
		assert.ErrorContains(t, err, "usage: keyctl")
	})

	t.Run("key commands need a database", func(t *testing.T) {
		t.Setenv("LIKENESS_DATABASE_URL", "")
		err := run(context.Background(), []string{"list"}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "LIKENESS_DATABASE_URL is required")
	})

	t.Run("deactivate rejects a malformed id before connecting", func(t *testing.T) {
		err := run(context.Background(), []string{"deactivate", "-id", "nope", "-database-url", "postgres://unused"}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "-id")
	})
}

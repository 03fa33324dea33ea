package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"likeness/internal/apikey/models"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/httputil"
	"likeness/pkg/requestcontext"
)

type stubAuthenticator struct {
	keys map[string]models.APIKey
	err  error
}

func (a stubAuthenticator) Authenticate(_ context.Context, secret string) (models.APIKey, error) {
	if a.err != nil {
		return models.APIKey{}, a.err
	}
	key, ok := a.keys[secret]
	if !ok {
		return models.APIKey{}, dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
	}
	return key, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExtractKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, ExtractKey(req))

	req.Header.Set(HeaderAPIKey, "lk_live_header")
	assert.Equal(t, "lk_live_header", ExtractKey(req))

	req.Header.Set("Authorization", "Bearer lk_live_bearer")
	assert.Equal(t, "lk_live_bearer", ExtractKey(req), "bearer wins")

	req.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "lk_live_header", ExtractKey(req))
}

func TestRequireAPIKeyAndScope(t *testing.T) {
	key := models.APIKey{
		ID:        id.APIKeyID(uuid.New()),
		KeyPrefix: "lk_live_abcdef",
		Name:      "acme",
		Scopes:    []string{models.ScopeRegistryRead},
		IsActive:  true,
	}
	auth := stubAuthenticator{keys: map[string]models.APIKey{"lk_live_good": key}}

	var seen requestcontext.APIKeyPrincipal
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = requestcontext.APIKey(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	chain := func(scope string) http.Handler {
		return RequireAPIKey(auth, discardLogger())(RequireScope(scope, nil, discardLogger())(ok))
	}

	tests := []struct {
		name   string
		secret string
		scope  string
		want   int
	}{
		{"missing key", "", models.ScopeRegistryRead, http.StatusUnauthorized},
		{"unknown key", "lk_live_bad", models.ScopeRegistryRead, http.StatusUnauthorized},
		{"held scope", "lk_live_good", models.ScopeRegistryRead, http.StatusNoContent},
		{"broader scope is not implied", "lk_live_good", models.ScopeRegistryConsentRead, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/platform/v1/registry/cid_abc123", nil)
			if tt.secret != "" {
				req.Header.Set("Authorization", "Bearer "+tt.secret)
			}
			w := httptest.NewRecorder()
			chain(tt.scope).ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	assert.Equal(t, key.ID, seen.ID)
	assert.Equal(t, "lk_live_abcdef", seen.Prefix)
}

func TestUnauthorizedResponsesAreGeneric(t *testing.T) {
	handler := RequireAPIKey(stubAuthenticator{}, discardLogger())(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderAPIKey, "lk_live_whatever")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "unauthorized", body.Error)
	assert.Empty(t, body.ErrorDescription)
}

func TestStoreFailureIsInternal(t *testing.T) {
	auth := stubAuthenticator{err: dErrors.Wrap(errors.New("db down"), dErrors.CodeInternal, "failed to look up api key")}
	handler := RequireAPIKey(auth, discardLogger())(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderAPIKey, "lk_live_whatever")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequireScopeWithoutPrincipal(t *testing.T) {
	w := httptest.NewRecorder()
	RequireScope(models.ScopeUsageWrite, nil, discardLogger())(http.NotFoundHandler()).
		ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

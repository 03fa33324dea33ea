// Package handler exposes API key administration to operators.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"likeness/internal/apikey/models"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/httputil"
	"likeness/pkg/requestcontext"
)

// Service defines the key administration operations.
type Service interface {
	Issue(ctx context.Context, name string, scopes []string, expiresAt *time.Time) (models.Issued, error)
	List(ctx context.Context) ([]models.APIKey, error)
	UpdateScopes(ctx context.Context, keyID id.APIKeyID, scopes []string) (models.APIKey, error)
	Deactivate(ctx context.Context, keyID id.APIKeyID) (models.APIKey, error)
}

type Handler struct {
	logger *slog.Logger
	keys   Service
}

func New(keys Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, keys: keys}
}

// Register mounts the admin routes. The caller guards them.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/api-keys", h.handleIssue)
	r.Get("/admin/api-keys", h.handleList)
	r.Put("/admin/api-keys/{id}/scopes", h.handleUpdateScopes)
	r.Post("/admin/api-keys/{id}/deactivate", h.handleDeactivate)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req IssueRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	issued, err := h.keys.Issue(ctx, req.Name, req.Scopes, req.ExpiresAt)
	if err != nil {
		h.writeError(ctx, w, err, "failed to issue api key")
		return
	}
	httputil.WriteData(w, http.StatusCreated, issued)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	keys, err := h.keys.List(ctx)
	if err != nil {
		h.writeError(ctx, w, err, "failed to list api keys")
		return
	}
	httputil.WriteData(w, http.StatusOK, ListResponse{Keys: keys, KnownScopes: models.KnownScopes()})
}

func (h *Handler) handleUpdateScopes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	keyID, err := id.ParseAPIKeyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid api key id"))
		return
	}

	var req UpdateScopesRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	key, err := h.keys.UpdateScopes(ctx, keyID, req.Scopes)
	if err != nil {
		h.writeError(ctx, w, err, "failed to update api key scopes")
		return
	}
	httputil.WriteData(w, http.StatusOK, key)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	keyID, err := id.ParseAPIKeyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid api key id"))
		return
	}
	key, err := h.keys.Deactivate(ctx, keyID)
	if err != nil {
		h.writeError(ctx, w, err, "failed to deactivate api key")
		return
	}
	httputil.WriteData(w, http.StatusOK, key)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	level := slog.LevelError
	if dErrors.IsClientError(dErrors.CodeOf(err)) {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}

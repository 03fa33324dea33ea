package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"likeness/internal/contributor/models"
	"likeness/internal/platform/middleware"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/httputil"
	"likeness/pkg/requestcontext"
)

// Service defines the contributor operations exposed over HTTP.
type Service interface {
	Register(ctx context.Context, displayName string, attributes map[string]string) (models.Contributor, error)
	Get(ctx context.Context, contributorID id.ContributorID) (models.Contributor, error)
	SetOptOut(ctx context.Context, contributorID id.ContributorID, optOut bool) (models.Contributor, error)
}

// IdentityResolver finds the contributor's CID, if provisioned.
type IdentityResolver interface {
	Resolve(ctx context.Context, contributorID id.ContributorID) (id.CID, error)
}

type Handler struct {
	logger       *slog.Logger
	contributors Service
	identities   IdentityResolver
	sessions     middleware.SessionValidator
}

func New(contributors Service, identities IdentityResolver, sessions middleware.SessionValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:       logger,
		contributors: contributors,
		identities:   identities,
		sessions:     sessions,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(h.sessions, h.logger))
		r.Get("/internal/contributors/me", h.handleGetMe)
		r.Post("/internal/contributors/me/opt-out", h.handleOptOut)
	})
}

// RegisterAdmin mounts the onboarding boundary. The caller guards it.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/internal/admin/contributors", h.handleCreate)
}

func (h *Handler) handleGetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contributorID := requestcontext.ContributorID(ctx)

	c, err := h.contributors.Get(ctx, contributorID)
	if err != nil {
		h.writeError(ctx, w, err, "failed to load contributor")
		return
	}
	resp := ProfileResponse{Contributor: c}
	cid, err := h.identities.Resolve(ctx, contributorID)
	switch {
	case err == nil:
		resp.CID = cid.String()
	case !dErrors.HasCode(err, dErrors.CodeNotFound):
		h.writeError(ctx, w, err, "failed to resolve identity")
		return
	}
	httputil.WriteData(w, http.StatusOK, resp)
}

func (h *Handler) handleOptOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req OptOutRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	optOut, err := req.OptOut()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	c, err := h.contributors.SetOptOut(ctx, requestcontext.ContributorID(ctx), optOut)
	if err != nil {
		h.writeError(ctx, w, err, "failed to change opt-out")
		return
	}
	httputil.WriteData(w, http.StatusOK, c)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateContributorRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.contributors.Register(ctx, req.DisplayName, req.Attributes)
	if err != nil {
		h.writeError(ctx, w, err, "failed to register contributor")
		return
	}
	httputil.WriteData(w, http.StatusCreated, c)
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

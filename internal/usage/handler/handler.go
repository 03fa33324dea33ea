package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apikeymodels "likeness/internal/apikey/models"
	"likeness/internal/platform/middleware"
	"likeness/internal/usage/models"
	"likeness/internal/usage/service"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/httputil"
	"likeness/pkg/requestcontext"
)

// Service defines the usage operations exposed over HTTP.
type Service interface {
	Record(ctx context.Context, cmd service.RecordCommand) (models.Event, error)
	ListForContributor(ctx context.Context, contributorID id.ContributorID) ([]models.Event, error)
}

// ScopeGuard builds the middleware that admits only keys holding scope.
type ScopeGuard func(scope string) func(http.Handler) http.Handler

type Handler struct {
	logger   *slog.Logger
	usage    Service
	require  ScopeGuard
	sessions middleware.SessionValidator
}

func New(usage Service, require ScopeGuard, sessions middleware.SessionValidator, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, usage: usage, require: require, sessions: sessions}
}

// Register mounts the platform route relative to /platform/v1.
func (h *Handler) Register(r chi.Router) {
	r.With(h.require(apikeymodels.ScopeUsageWrite)).Post("/usage", h.handleRecord)
}

// RegisterSession mounts the contributor's own usage view.
func (h *Handler) RegisterSession(r chi.Router) {
	r.With(middleware.RequireSession(h.sessions, h.logger)).Get("/internal/contributors/me/usage", h.handleListMine)
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RecordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	event, err := h.usage.Record(ctx, service.RecordCommand{
		Contributor: req.ContributorID,
		UseType:     req.UseType,
		Description: req.Description,
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		h.writeError(ctx, w, err, "failed to record usage")
		return
	}
	httputil.WriteData(w, http.StatusCreated, RecordResponse{ID: event.ID.String()})
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	events, err := h.usage.ListForContributor(ctx, requestcontext.ContributorID(ctx))
	if err != nil {
		h.writeError(ctx, w, err, "failed to list usage")
		return
	}
	httputil.WriteData(w, http.StatusOK, events)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	level := slog.LevelError
	if dErrors.IsClientError(dErrors.CodeOf(err)) {
		level = slog.LevelWarn
	}
	attrs := []any{"request_id", requestcontext.RequestID(ctx), "error", err}
	if key, ok := requestcontext.APIKey(ctx); ok {
		attrs = append(attrs, "key_prefix", key.Prefix)
	}
	h.logger.Log(ctx, level, msg, attrs...)
	httputil.WriteError(w, err)
}

package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"likeness/internal/platform/middleware"
	"likeness/internal/review/models"
	"likeness/internal/review/service"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/httputil"
	"likeness/pkg/requestcontext"
)

type Service interface {
	Review(ctx context.Context, cmd service.ReviewCommand) (models.Review, error)
	Get(ctx context.Context, rawID string) (models.Review, error)
}

type Handler struct {
	logger   *slog.Logger
	reviews  Service
	sessions middleware.SessionValidator
}

func New(reviews Service, sessions middleware.SessionValidator, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, reviews: reviews, sessions: sessions}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(h.sessions, h.logger))
		r.Post("/internal/submissions/{id}/review", h.handleReview)
		r.Get("/internal/submissions/{id}/review", h.handleGet)
	})
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ReviewRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	review, err := h.reviews.Review(ctx, service.ReviewCommand{
		SubmissionID:  chi.URLParam(r, "id"),
		ContributorID: req.ContributorID,
		Decision:      req.Decision,
		Notes:         req.Notes,
	})
	if err != nil {
		h.writeError(ctx, w, err, "failed to review submission")
		return
	}
	httputil.WriteData(w, http.StatusCreated, review)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	review, err := h.reviews.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err, "failed to load review")
		return
	}
	httputil.WriteData(w, http.StatusOK, review)
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

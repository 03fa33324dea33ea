package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"likeness/internal/verification/models"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/httputil"
	"likeness/pkg/requestcontext"
)

// HeaderSignature carries the provider's HMAC over the raw body.
const HeaderSignature = "X-Verification-Signature"

type Service interface {
	HandleCallback(ctx context.Context, body []byte, signature string) (models.Outcome, error)
}

type Handler struct {
	logger       *slog.Logger
	verification Service
}

func New(verification Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, verification: verification}
}

// Register mounts the provider callback. It authenticates by signature, not
// by session.
func (h *Handler) Register(r chi.Router) {
	r.Post("/internal/verification/callback", h.handleCallback)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, httputil.MaxBodyBytes))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	outcome, err := h.verification.HandleCallback(ctx, body, r.Header.Get(HeaderSignature))
	if err != nil {
		level := slog.LevelError
		if dErrors.IsClientError(dErrors.CodeOf(err)) {
			level = slog.LevelWarn
		}
		h.logger.Log(ctx, level, "verification callback failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, outcome)
}

package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"likeness/internal/consent/models"
	consentservice "likeness/internal/consent/service"
	"likeness/internal/platform/middleware"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/httputil"
	"likeness/pkg/requestcontext"
)

// Service defines the ledger operations exposed over HTTP.
type Service interface {
	Append(ctx context.Context, cmd consentservice.AppendCommand) (models.Event, error)
	History(ctx context.Context, cid id.CID) ([]models.Event, error)
	Current(ctx context.Context, cid id.CID) (models.Projection, error)
	RebuildProjection(ctx context.Context, cid id.CID) (models.Projection, bool, error)
}

// IdentityResolver maps the session contributor onto their CID.
type IdentityResolver interface {
	Resolve(ctx context.Context, contributorID id.ContributorID) (id.CID, error)
}

// OptOutChecker reports the contributor's dashboard opt-out flag.
type OptOutChecker interface {
	OptedOut(ctx context.Context, contributorID id.ContributorID) (bool, error)
}

// Handler serves the contributor's own consent ledger and the admin repair
// endpoint.
type Handler struct {
	logger     *slog.Logger
	consent    Service
	identities IdentityResolver
	optOuts    OptOutChecker
	sessions   middleware.SessionValidator
}

// New creates a new consent Handler.
func New(consent Service, identities IdentityResolver, optOuts OptOutChecker, sessions middleware.SessionValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:     logger,
		consent:    consent,
		identities: identities,
		optOuts:    optOuts,
		sessions:   sessions,
	}
}

// Register mounts the session-authenticated routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(h.sessions, h.logger))
		r.Post("/internal/consent/events", h.handleAppendEvent)
		r.Get("/internal/consent/history", h.handleHistory)
		r.Get("/internal/consent/current", h.handleCurrent)
	})
}

// RegisterAdmin mounts operator routes. The caller guards them.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/internal/admin/consent/{cid}/rebuild", h.handleRebuild)
}

func (h *Handler) handleAppendEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req AppendEventRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid consent event request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	req.Normalize()

	cmd, err := req.Command()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	contributorID := requestcontext.ContributorID(ctx)
	cid, err := h.identities.Resolve(ctx, contributorID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to resolve identity")
		return
	}
	cmd.CID = cid
	cmd.Source = "dashboard"
	cmd.Actor = "contributor:" + contributorID.String()
	if cmd.Type != models.EventRevoke {
		cmd.Precondition = h.requireOptedIn(contributorID)
	}

	event, err := h.consent.Append(ctx, cmd)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to append consent event")
		return
	}
	httputil.WriteData(w, http.StatusCreated, event)
}

// requireOptedIn is checked inside the ledger transaction, where opt-out
// toggles for the same CID are serialized.
func (h *Handler) requireOptedIn(contributorID id.ContributorID) func(context.Context, consentservice.LedgerState) error {
	return func(ctx context.Context, _ consentservice.LedgerState) error {
		optedOut, err := h.optOuts.OptedOut(ctx, contributorID)
		if err != nil {
			return err
		}
		if optedOut {
			return dErrors.New(dErrors.CodeForbidden, "contributor has opted out; opt back in to change consent")
		}
		return nil
	}
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cid, err := h.identities.Resolve(ctx, requestcontext.ContributorID(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to resolve identity")
		return
	}
	events, err := h.consent.History(ctx, cid)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to read consent history")
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	httputil.WriteData(w, http.StatusOK, HistoryResponse{CID: cid, Events: events})
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cid, err := h.identities.Resolve(ctx, requestcontext.ContributorID(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to resolve identity")
		return
	}
	current, err := h.consent.Current(ctx, cid)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to read current consent")
		return
	}
	httputil.WriteData(w, http.StatusOK, current)
}

func (h *Handler) handleRebuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cid, err := id.ParseCID(chi.URLParam(r, "cid"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	projection, drifted, err := h.consent.RebuildProjection(ctx, cid)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to rebuild consent projection")
		return
	}
	httputil.WriteData(w, http.StatusOK, RebuildResponse{CID: cid, Drifted: drifted, Projection: projection})
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	if dErrors.IsClientError(dErrors.CodeOf(err)) {
		h.logger.WarnContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

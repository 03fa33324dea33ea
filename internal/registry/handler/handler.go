// Package handler serves the read side of the platform API under
// /platform/v1. Authentication, CORS and rate limiting wrap the router in
// main; each route here only declares the scope it needs.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apikeymodels "likeness/internal/apikey/models"
	consentmodels "likeness/internal/consent/models"
	"likeness/internal/registry/models"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/httputil"
	"likeness/pkg/requestcontext"
)

// Service defines the registry queries exposed to platforms.
type Service interface {
	BulkLookup(ctx context.Context, raw []string) ([]models.LookupResult, error)
	BulkConsentCheck(ctx context.Context, raw []string, q consentmodels.CheckQuery) ([]models.ConsentCheckResult, error)
	CheckConsent(ctx context.Context, rawCID string, q consentmodels.CheckQuery, verify bool) (consentmodels.Decision, error)
	Stats(ctx context.Context) (models.Stats, error)
	ContributorProfile(ctx context.Context, rawID string) (models.ContributorProfile, error)
}

// ScopeGuard builds the middleware that admits only keys holding scope.
type ScopeGuard func(scope string) func(http.Handler) http.Handler

type Handler struct {
	logger   *slog.Logger
	registry Service
	require  ScopeGuard
}

func New(registry Service, require ScopeGuard, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, registry: registry, require: require}
}

// Register mounts the routes relative to /platform/v1.
func (h *Handler) Register(r chi.Router) {
	r.With(h.require(apikeymodels.ScopeContributorsRead)).Get("/contributors/{id}", h.handleContributor)
	r.With(h.require(apikeymodels.ScopeRegistryRead)).Post("/registry/batch/lookup", h.handleBulkLookup)
	r.With(h.require(apikeymodels.ScopeRegistryRead)).Get("/registry/stats", h.handleStats)
	r.With(h.require(apikeymodels.ScopeRegistryConsentRead)).Post("/registry/batch/consent/check", h.handleBulkConsentCheck)
	r.With(h.require(apikeymodels.ScopeRegistryConsentRead)).Get("/registry/consent/check", h.handleConsentCheck)
}

func (h *Handler) handleContributor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile, err := h.registry.ContributorProfile(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err, "failed to load contributor profile")
		return
	}
	httputil.WriteData(w, http.StatusOK, profile)
}

func (h *Handler) handleBulkLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BulkLookupRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	results, err := h.registry.BulkLookup(ctx, req.CIDs)
	if err != nil {
		h.writeError(ctx, w, err, "bulk lookup failed")
		return
	}
	httputil.WriteData(w, http.StatusOK, results)
}

func (h *Handler) handleBulkConsentCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BulkConsentCheckRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	q, err := parseQuery(req.UseType, req.Region, req.Modality)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	results, err := h.registry.BulkConsentCheck(ctx, req.CIDs, q)
	if err != nil {
		h.writeError(ctx, w, err, "bulk consent check failed")
		return
	}
	httputil.WriteData(w, http.StatusOK, results)
}

func (h *Handler) handleConsentCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := r.URL.Query()

	q, err := parseQuery(params.Get("use_type"), params.Get("region"), params.Get("modality"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	verify := false
	if raw := params.Get("verify"); raw != "" {
		verify, err = strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "verify must be a boolean"))
			return
		}
	}

	decision, err := h.registry.CheckConsent(ctx, params.Get("cid"), q, verify)
	if err != nil {
		h.writeError(ctx, w, err, "consent check failed")
		return
	}
	httputil.WriteData(w, http.StatusOK, decision)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.registry.Stats(ctx)
	if err != nil {
		h.writeError(ctx, w, err, "failed to compute registry stats")
		return
	}
	httputil.WriteData(w, http.StatusOK, stats)
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

package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apikeyhandler "likeness/internal/apikey/handler"
	apikeymetrics "likeness/internal/apikey/metrics"
	apikeymiddleware "likeness/internal/apikey/middleware"
	apikeyservice "likeness/internal/apikey/service"
	consenthandler "likeness/internal/consent/handler"
	consentmetrics "likeness/internal/consent/metrics"
	consentservice "likeness/internal/consent/service"
	contributorhandler "likeness/internal/contributor/handler"
	contributorservice "likeness/internal/contributor/service"
	identityservice "likeness/internal/identity/service"
	jwttoken "likeness/internal/jwt_token"
	"likeness/internal/platform/config"
	"likeness/internal/platform/metrics"
	"likeness/internal/platform/middleware"
	"likeness/internal/platform/redis"
	"likeness/internal/ratelimit/limiter"
	ratelimitmetrics "likeness/internal/ratelimit/metrics"
	ratelimit "likeness/internal/ratelimit/middleware"
	registryhandler "likeness/internal/registry/handler"
	registrymetrics "likeness/internal/registry/metrics"
	registryservice "likeness/internal/registry/service"
	reviewhandler "likeness/internal/review/handler"
	reviewservice "likeness/internal/review/service"
	usagehandler "likeness/internal/usage/handler"
	usagemetrics "likeness/internal/usage/metrics"
	usageservice "likeness/internal/usage/service"
	verificationclient "likeness/internal/verification/client"
	verificationhandler "likeness/internal/verification/handler"
	verificationservice "likeness/internal/verification/service"
	webhookmetrics "likeness/internal/webhook/metrics"
	webhookservice "likeness/internal/webhook/service"
	"likeness/pkg/platform/middleware/admin"
	"likeness/pkg/platform/middleware/cors"
	"likeness/pkg/platform/middleware/metadata"
	"likeness/pkg/platform/middleware/requesttime"
)

const (
	sessionAudience = "likeness-internal"
	touchQueueSize  = 1024
	limiterIdleTTL  = 10 * time.Minute
	requestTimeout  = 30 * time.Second
)

// app is the wired process: the HTTP router plus the background workers the
// router's services feed.
type app struct {
	router           http.Handler
	touches          *apikeyservice.TouchRecorder
	keyLimiter       *limiter.KeyLimiter
	rateLimitMetrics *ratelimitmetrics.Metrics
	dispatcher       *webhookservice.Dispatcher

	identities   *identityservice.Service
	consent      *consentservice.Service
	contributors *contributorservice.Service
	apiKeys      *apikeyservice.Service
	sessions     *jwttoken.SessionTokens
}

// newApp registers process-wide Prometheus collectors and must be called once
// per process.
func newApp(cfg config.Config, log *slog.Logger, st stores, rdb *redis.Client, mirror webhookservice.Mirror, checks map[string]pinger) *app {
	// Outbox: every state change that notifies subscribers writes here.
	webhookMetrics := webhookmetrics.New()
	outbox := webhookservice.NewOutbox(st.outbox, webhookMetrics, log)

	// Core services.
	identities := identityservice.New(st.identities, contributorDirectory{store: st.contributors},
		identityservice.WithLogger(log),
	)
	consent := consentservice.New(st.consentTx, st.consent, identities,
		consentservice.WithLogger(log),
		consentservice.WithMetrics(consentmetrics.New()),
		consentservice.WithNotifier(outbox),
	)
	contributors := contributorservice.New(st.contributors, identities, consent,
		contributorservice.WithLogger(log),
		contributorservice.WithNotifier(outbox),
	)
	registry := registryservice.New(identities, consent, contributors,
		registryservice.WithLogger(log),
		registryservice.WithMetrics(registrymetrics.New()),
		registryservice.WithMaxBatch(cfg.Platform.BulkMaxItems),
	)
	usage := usageservice.New(st.usage, contributors, identities, consent,
		usageservice.WithLogger(log),
		usageservice.WithMetrics(usagemetrics.New()),
		usageservice.WithNotifier(outbox),
	)
	reviews := reviewservice.New(st.reviews, contributors, identities, st.reviewTx,
		reviewservice.WithLogger(log),
		reviewservice.WithNotifier(outbox),
	)
	verifier := verificationclient.New(cfg.Verification.BaseURL, cfg.Verification.APIKey,
		cfg.Verification.UpstreamTimeout, nil)
	verification := verificationservice.New(verifier, contributors, identities, cfg.Verification.WebhookSecret,
		verificationservice.WithLogger(log),
		verificationservice.WithNotifier(outbox),
	)

	// API keys.
	apiKeyMetrics := apikeymetrics.New()
	touches := apikeyservice.NewTouchRecorder(st.apiKeys,
		newThrottle(rdb, cfg.Platform.KeyTouchInterval, log), touchQueueSize, apiKeyMetrics, log)
	apiKeys := apikeyservice.New(st.apiKeys,
		apikeyservice.WithLogger(log),
		apikeyservice.WithMetrics(apiKeyMetrics),
		apikeyservice.WithUsageRecorder(touches),
	)
	requireScope := func(scope string) func(http.Handler) http.Handler {
		return apikeymiddleware.RequireScope(scope, apiKeyMetrics, log)
	}

	keyLimiter := limiter.New(cfg.Platform.RatePerSec, cfg.Platform.Burst, limiterIdleTTL)
	rateLimitMetrics := ratelimitmetrics.New()
	rateLimit := ratelimit.New(keyLimiter, log, ratelimit.WithMetrics(rateLimitMetrics))

	sessions := jwttoken.NewSessionTokens(cfg.SessionSigningKey, cfg.SessionIssuer, sessionAudience)

	dispatcher := webhookservice.NewDispatcher(st.outbox,
		webhookservice.NewHTTPClient(cfg.Webhook.Timeout, cfg.Webhook.AllowPrivateTargets),
		webhookservice.NewKeyRing(cfg.Webhook.Secret),
		webhookservice.Config{
			Endpoints:    cfg.Webhook.Endpoints,
			MaxAttempts:  cfg.Webhook.MaxAttempts,
			PollInterval: cfg.Webhook.PollInterval,
		},
		webhookservice.WithMirror(mirror),
		webhookservice.WithDispatcherMetrics(webhookMetrics),
		webhookservice.WithDispatcherLogger(log),
	)

	// Router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.LatencyMiddleware(metrics.New()))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.ContentTypeJSON)

	r.Get("/health", healthHandler(checks, log))
	r.Handle("/metrics", promhttp.Handler())

	consentHandler := consenthandler.New(consent, identities, contributors, sessions, log)
	contributorHandler := contributorhandler.New(contributors, identities, sessions, log)
	usageHandler := usagehandler.New(usage, requireScope, sessions, log)

	r.Route("/platform/v1", func(r chi.Router) {
		r.Use(cors.Middleware(cfg.CORSOrigin))
		r.Use(apikeymiddleware.RequireAPIKey(apiKeys, log))
		r.Use(rateLimit.PerAPIKey())
		registryhandler.New(registry, requireScope, log).Register(r)
		usageHandler.Register(r)
	})

	consentHandler.Register(r)
	contributorHandler.Register(r)
	usageHandler.RegisterSession(r)
	reviewhandler.New(reviews, sessions, log).Register(r)
	verificationhandler.New(verification, log).Register(r)

	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(cfg.AdminToken, log))
		apikeyhandler.New(apiKeys, log).Register(r)
		consentHandler.RegisterAdmin(r)
		contributorHandler.RegisterAdmin(r)
	})

	return &app{
		router:           r,
		touches:          touches,
		keyLimiter:       keyLimiter,
		rateLimitMetrics: rateLimitMetrics,
		dispatcher:       dispatcher,
		identities:       identities,
		consent:          consent,
		contributors:     contributors,
		apiKeys:          apiKeys,
		sessions:         sessions,
	}
}

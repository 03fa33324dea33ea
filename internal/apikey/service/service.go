// Package service authenticates platform callers by API key and administers
// the keys.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"likeness/internal/apikey/metrics"
	"likeness/internal/apikey/models"
	"likeness/internal/apikey/secrets"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/sentinel"
	"likeness/pkg/requestcontext"
)

// Store persists API keys.
type Store interface {
	Create(ctx context.Context, key models.APIKey) error
	FindByHash(ctx context.Context, hash string) (models.APIKey, error)
	Get(ctx context.Context, keyID id.APIKeyID) (models.APIKey, error)
	List(ctx context.Context) ([]models.APIKey, error)
	UpdateScopes(ctx context.Context, keyID id.APIKeyID, scopes []string, at time.Time) error
	Deactivate(ctx context.Context, keyID id.APIKeyID, at time.Time) error
}

// UsageRecorder notes a successful authentication without blocking.
type UsageRecorder interface {
	Record(keyID id.APIKeyID, at time.Time)
}

// errInvalidKey is the single message for every authentication failure so
// callers cannot tell a missing key from an inactive or expired one.
var errInvalidKey = dErrors.New(dErrors.CodeUnauthorized, "invalid api key")

type Service struct {
	store    Store
	recorder UsageRecorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithUsageRecorder(r UsageRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate resolves a raw secret to its key. Unknown, inactive and
// expired keys all fail with the same CodeUnauthorized error.
func (s *Service) Authenticate(ctx context.Context, secret string) (models.APIKey, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		s.metrics.IncrementAuth(metrics.ResultMissing)
		return models.APIKey{}, errInvalidKey
	}
	if !secrets.LooksValid(secret) {
		s.metrics.IncrementAuth(metrics.ResultUnknown)
		return models.APIKey{}, errInvalidKey
	}
	hash, err := secrets.Hash(secret)
	if err != nil {
		s.metrics.IncrementAuth(metrics.ResultUnknown)
		return models.APIKey{}, errInvalidKey
	}

	key, err := s.store.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncrementAuth(metrics.ResultUnknown)
			return models.APIKey{}, errInvalidKey
		}
		s.metrics.IncrementAuth(metrics.ResultError)
		return models.APIKey{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up api key")
	}

	now := requestcontext.Now(ctx)
	if !key.Usable(now) {
		result := metrics.ResultExpired
		if !key.IsActive {
			result = metrics.ResultInactive
		}
		s.metrics.IncrementAuth(result)
		s.logger.WarnContext(ctx, "rejected unusable api key",
			"key_prefix", key.KeyPrefix,
			"reason", result,
			"request_id", requestcontext.RequestID(ctx),
		)
		return models.APIKey{}, errInvalidKey
	}

	s.metrics.IncrementAuth(metrics.ResultOK)
	if s.recorder != nil {
		s.recorder.Record(key.ID, now)
	}
	return key, nil
}

// Issue creates a key and returns its secret. The secret is not retrievable
// afterwards.
func (s *Service) Issue(ctx context.Context, name string, scopes []string, expiresAt *time.Time) (models.Issued, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 128 {
		return models.Issued{}, dErrors.New(dErrors.CodeValidation, "name must be 1-128 characters")
	}
	normalized, err := models.NormalizeScopes(scopes)
	if err != nil {
		return models.Issued{}, err
	}
	now := requestcontext.Now(ctx).UTC()
	if expiresAt != nil && !expiresAt.After(now) {
		return models.Issued{}, dErrors.New(dErrors.CodeValidation, "expires_at must be in the future")
	}

	secret, err := secrets.Generate()
	if err != nil {
		return models.Issued{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate api key")
	}
	hash, err := secrets.Hash(secret)
	if err != nil {
		return models.Issued{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash api key")
	}

	key := models.APIKey{
		ID:        id.APIKeyID(uuid.New()),
		KeyHash:   hash,
		KeyPrefix: secrets.DisplayPrefix(secret),
		Name:      name,
		Scopes:    normalized,
		IsActive:  true,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, key); err != nil {
		return models.Issued{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store api key")
	}

	s.logger.InfoContext(ctx, "api key issued",
		"key_id", key.ID.String(),
		"key_prefix", key.KeyPrefix,
		"scopes", key.Scopes,
		"request_id", requestcontext.RequestID(ctx),
	)
	return models.Issued{Key: key, Secret: secret}, nil
}

func (s *Service) List(ctx context.Context) ([]models.APIKey, error) {
	keys, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list api keys")
	}
	return keys, nil
}

// UpdateScopes replaces a key's scopes.
func (s *Service) UpdateScopes(ctx context.Context, keyID id.APIKeyID, scopes []string) (models.APIKey, error) {
	normalized, err := models.NormalizeScopes(scopes)
	if err != nil {
		return models.APIKey{}, err
	}
	if err := s.store.UpdateScopes(ctx, keyID, normalized, requestcontext.Now(ctx).UTC()); err != nil {
		return models.APIKey{}, translateStoreErr(err, "failed to update api key scopes")
	}
	s.logger.InfoContext(ctx, "api key scopes updated",
		"key_id", keyID.String(),
		"scopes", normalized,
		"request_id", requestcontext.RequestID(ctx),
	)
	return s.get(ctx, keyID)
}

// Deactivate disables a key permanently.
func (s *Service) Deactivate(ctx context.Context, keyID id.APIKeyID) (models.APIKey, error) {
	if err := s.store.Deactivate(ctx, keyID, requestcontext.Now(ctx).UTC()); err != nil {
		return models.APIKey{}, translateStoreErr(err, "failed to deactivate api key")
	}
	s.logger.InfoContext(ctx, "api key deactivated",
		"key_id", keyID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return s.get(ctx, keyID)
}

func (s *Service) get(ctx context.Context, keyID id.APIKeyID) (models.APIKey, error) {
	key, err := s.store.Get(ctx, keyID)
	if err != nil {
		return models.APIKey{}, translateStoreErr(err, "failed to load api key")
	}
	return key, nil
}

func translateStoreErr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "api key not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

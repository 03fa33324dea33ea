package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"likeness/internal/apikey/models"
	"likeness/internal/apikey/store"
	"likeness/internal/apikey/throttle"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/requestcontext"
)

type APIKeyServiceSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	store    *store.InMemory
	recorder *TouchRecorder
	service  *Service
}

func TestAPIKeyServiceSuite(t *testing.T) {
	suite.Run(t, new(APIKeyServiceSuite))
}

func (s *APIKeyServiceSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.store = store.NewInMemory()
	s.recorder = NewTouchRecorder(s.store, throttle.NewInMemory(time.Minute), 8, nil, logger)
	s.service = New(s.store, WithLogger(logger), WithUsageRecorder(s.recorder))
}

func (s *APIKeyServiceSuite) issue(scopes ...string) models.Issued {
	issued, err := s.service.Issue(s.ctx, "acme-gen", scopes, nil)
	s.Require().NoError(err)
	return issued
}

func (s *APIKeyServiceSuite) TestIssueStoresOnlyTheHash() {
	issued := s.issue(models.ScopeRegistryRead, models.ScopeRegistryRead, models.ScopeContributorsRead)

	s.NotEmpty(issued.Secret)
	s.Equal([]string{models.ScopeContributorsRead, models.ScopeRegistryRead}, issued.Key.Scopes)
	s.True(issued.Key.IsActive)

	stored, err := s.store.Get(s.ctx, issued.Key.ID)
	s.Require().NoError(err)
	s.NotEqual(issued.Secret, stored.KeyHash)
	s.Contains(issued.Secret, stored.KeyPrefix)
}

func (s *APIKeyServiceSuite) TestIssueValidation() {
	past := s.now.Add(-time.Hour)
	cases := []struct {
		name    string
		keyName string
		scopes  []string
		expires *time.Time
	}{
		{"blank name", "  ", []string{models.ScopeRegistryRead}, nil},
		{"no scopes", "acme", nil, nil},
		{"unknown scope", "acme", []string{"registry:*"}, nil},
		{"expiry in the past", "acme", []string{models.ScopeRegistryRead}, &past},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.Issue(s.ctx, tc.keyName, tc.scopes, tc.expires)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		})
	}
}

func (s *APIKeyServiceSuite) TestAuthenticate() {
	issued := s.issue(models.ScopeRegistryRead)

	s.Run("valid secret resolves the key", func() {
		key, err := s.service.Authenticate(s.ctx, issued.Secret)
		s.Require().NoError(err)
		s.Equal(issued.Key.ID, key.ID)
	})

	s.Run("failures are indistinguishable", func() {
		for _, secret := range []string{"", "not-a-key", "lk_live_" + uuid.NewString()} {
			_, err := s.service.Authenticate(s.ctx, secret)
			s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
			s.Equal("invalid api key", err.Error())
		}
	})

	s.Run("deactivated key is rejected", func() {
		_, err := s.service.Deactivate(s.ctx, issued.Key.ID)
		s.Require().NoError(err)
		_, err = s.service.Authenticate(s.ctx, issued.Secret)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *APIKeyServiceSuite) TestExpiredKeyIsRejected() {
	expires := s.now.Add(time.Hour)
	issued, err := s.service.Issue(s.ctx, "short-lived", []string{models.ScopeUsageWrite}, &expires)
	s.Require().NoError(err)

	_, err = s.service.Authenticate(s.ctx, issued.Secret)
	s.Require().NoError(err)

	later := requestcontext.WithTime(context.Background(), expires)
	_, err = s.service.Authenticate(later, issued.Secret)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *APIKeyServiceSuite) TestUpdateScopesReplacesExactly() {
	issued := s.issue(models.ScopeRegistryRead)

	key, err := s.service.UpdateScopes(s.ctx, issued.Key.ID, []string{models.ScopeRegistryConsentRead})
	s.Require().NoError(err)
	s.Equal([]string{models.ScopeRegistryConsentRead}, key.Scopes)
	s.False(key.HasScope(models.ScopeRegistryRead))

	_, err = s.service.UpdateScopes(s.ctx, id.APIKeyID(uuid.New()), []string{models.ScopeRegistryRead})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *APIKeyServiceSuite) TestListAndDeactivateUnknown() {
	s.issue(models.ScopeRegistryRead)
	s.issue(models.ScopeUsageWrite)

	keys, err := s.service.List(s.ctx)
	s.Require().NoError(err)
	s.Len(keys, 2)

	_, err = s.service.Deactivate(s.ctx, id.APIKeyID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *APIKeyServiceSuite) TestRecorderWritesLastUsed() {
	issued := s.issue(models.ScopeRegistryRead)
	_, err := s.service.Authenticate(s.ctx, issued.Secret)
	s.Require().NoError(err)

	s.Require().Len(s.recorder.inbox, 1)
	s.recorder.apply(s.ctx, <-s.recorder.inbox)

	key, err := s.store.Get(s.ctx, issued.Key.ID)
	s.Require().NoError(err)
	s.Require().NotNil(key.LastUsedAt)
	s.True(key.LastUsedAt.Equal(s.now))
}

func (s *APIKeyServiceSuite) TestRecorderDropsWhenFull() {
	keyID := id.APIKeyID(uuid.New())
	for range 20 {
		s.recorder.Record(keyID, s.now)
	}
	s.Len(s.recorder.inbox, 8)
}

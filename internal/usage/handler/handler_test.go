package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	apikeymiddleware "likeness/internal/apikey/middleware"
	"likeness/internal/usage/handler/mocks"
	"likeness/internal/usage/models"
	"likeness/internal/usage/service"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/usage-mocks.go -package=mocks

const scopesHeader = "X-Test-Scopes"

func withScopes(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get(scopesHeader); raw != "" {
			r = r.WithContext(requestcontext.WithAPIKey(r.Context(), requestcontext.APIKeyPrincipal{
				Prefix: "lk_live_test00",
				Scopes: strings.Split(raw, ","),
			}))
		}
		next.ServeHTTP(w, r)
	})
}

type stubSessions map[string]id.ContributorID

func (s stubSessions) ValidateSession(token string) (id.ContributorID, error) {
	if contributorID, ok := s[token]; ok {
		return contributorID, nil
	}
	return id.ContributorID{}, errors.New("unknown token")
}

type UsageHandlerSuite struct {
	suite.Suite
	service       *mocks.MockService
	router        chi.Router
	contributorID id.ContributorID
}

func TestUsageHandlerSuite(t *testing.T) {
	suite.Run(t, new(UsageHandlerSuite))
}

func (s *UsageHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.contributorID = id.ContributorID(uuid.New())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	guard := func(scope string) func(http.Handler) http.Handler {
		return apikeymiddleware.RequireScope(scope, nil, logger)
	}
	h := New(s.service, guard, stubSessions{"tok": s.contributorID}, logger)

	r := chi.NewRouter()
	r.Route("/platform/v1", func(r chi.Router) {
		r.Use(withScopes)
		h.Register(r)
	})
	h.RegisterSession(r)
	s.router = r
}

func (s *UsageHandlerSuite) record(body, scopes string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/platform/v1/usage", strings.NewReader(body))
	req.Header.Set("User-Agent", "studio-sdk/1.4")
	if scopes != "" {
		req.Header.Set(scopesHeader, scopes)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *UsageHandlerSuite) TestRecord() {
	s.Run("created with the usage id", func() {
		usageID := id.UsageID(uuid.New())
		s.service.EXPECT().Record(gomock.Any(), service.RecordCommand{
			Contributor: "cid_abc123",
			UseType:     "allow_commercial",
			Description: "billboard",
			UserAgent:   "studio-sdk/1.4",
		}).Return(models.Event{ID: usageID}, nil)

		rec := s.record(`{"contributor_id":"cid_abc123","use_type":"allow_commercial","description":"billboard"}`, "usage:write")
		s.Equal(http.StatusCreated, rec.Code)

		var resp struct {
			Data RecordResponse `json:"data"`
		}
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal(usageID.String(), resp.Data.ID)
	})

	s.Run("missing scope is 403", func() {
		rec := s.record(`{"contributor_id":"cid_abc123","use_type":"allow_commercial"}`, "registry:read")
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("no key is 401", func() {
		rec := s.record(`{"contributor_id":"cid_abc123","use_type":"allow_commercial"}`, "")
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("unknown fields are 400", func() {
		rec := s.record(`{"contributor_id":"cid_abc123","use_type":"allow_commercial","price":3}`, "usage:write")
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("consent refusal is 403", func() {
		s.service.EXPECT().Record(gomock.Any(), gomock.Any()).
			Return(models.Event{}, dErrors.New(dErrors.CodeForbidden, "consent does not allow this use: consent_revoked"))
		rec := s.record(`{"contributor_id":"cid_abc123","use_type":"allow_commercial"}`, "usage:write")
		s.Equal(http.StatusForbidden, rec.Code)
		s.Contains(rec.Body.String(), "consent_revoked")
	})

	s.Run("store failure hides details", func() {
		s.service.EXPECT().Record(gomock.Any(), gomock.Any()).
			Return(models.Event{}, dErrors.Wrap(errors.New("pq: connection reset"), dErrors.CodeInternal, "failed to record usage"))
		rec := s.record(`{"contributor_id":"cid_abc123","use_type":"allow_commercial"}`, "usage:write")
		s.Equal(http.StatusInternalServerError, rec.Code)
		s.NotContains(rec.Body.String(), "connection reset")
	})
}

func (s *UsageHandlerSuite) TestListMine() {
	s.Run("lists the session contributor's usage", func() {
		s.service.EXPECT().ListForContributor(gomock.Any(), s.contributorID).
			Return([]models.Event{{ID: id.UsageID(uuid.New()), ContributorID: s.contributorID, UseType: id.CategoryCommercial}}, nil)

		req := httptest.NewRequest(http.MethodGet, "/internal/contributors/me/usage", nil)
		req.Header.Set("Authorization", "Bearer tok")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		s.Equal(http.StatusOK, rec.Code)
		var resp struct {
			Data []models.Event `json:"data"`
		}
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Require().Len(resp.Data, 1)
		s.Equal(id.CategoryCommercial, resp.Data[0].UseType)
	})

	s.Run("requires a session", func() {
		req := httptest.NewRequest(http.MethodGet, "/internal/contributors/me/usage", nil)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		s.Equal(http.StatusUnauthorized, rec.Code)
	})
}

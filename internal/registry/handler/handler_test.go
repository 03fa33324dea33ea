package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	apikeymiddleware "likeness/internal/apikey/middleware"
	apikeymodels "likeness/internal/apikey/models"
	consentmodels "likeness/internal/consent/models"
	"likeness/internal/registry/handler/mocks"
	"likeness/internal/registry/models"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/middleware/cors"
	"likeness/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/registry-mocks.go -package=mocks

const (
	trustedOrigin = "https://app.example.com"
	scopesHeader  = "X-Test-Scopes"
)

// withScopes stands in for API key authentication.
func withScopes(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(scopesHeader)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := requestcontext.WithAPIKey(r.Context(), requestcontext.APIKeyPrincipal{
			Prefix: "lk_live_test00",
			Scopes: strings.Split(raw, ","),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type RegistryHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestRegistryHandlerSuite(t *testing.T) {
	suite.Run(t, new(RegistryHandlerSuite))
}

func (s *RegistryHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	guard := func(scope string) func(http.Handler) http.Handler {
		return apikeymiddleware.RequireScope(scope, nil, logger)
	}
	h := New(s.service, guard, logger)

	r := chi.NewRouter()
	r.Route("/platform/v1", func(r chi.Router) {
		r.Use(cors.Middleware(trustedOrigin))
		r.Use(withScopes)
		h.Register(r)
	})
	s.router = r
}

func (s *RegistryHandlerSuite) do(method, path, body, scopes string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if scopes != "" {
		req.Header.Set(scopesHeader, scopes)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RegistryHandlerSuite) TestBulkLookup() {
	s.service.EXPECT().BulkLookup(gomock.Any(), []string{"cid_abc123", "not-a-cid"}).Return([]models.LookupResult{
		{CID: "cid_abc123", Found: true, ConsentStatus: consentmodels.StatusActive},
		{CID: "not-a-cid", Error: models.ErrorInvalidFormat},
	}, nil)

	rec := s.do(http.MethodPost, "/platform/v1/registry/batch/lookup",
		`{"cids":["cid_abc123","not-a-cid"]}`, apikeymodels.ScopeRegistryRead)
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp struct {
		Data []map[string]any `json:"data"`
	}
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Require().Len(resp.Data, 2)
	s.Equal(true, resp.Data[0]["found"])
	s.Equal("invalid_format", resp.Data[1]["error"])
	s.NotContains(resp.Data[1], "consent_status")
}

func (s *RegistryHandlerSuite) TestBulkLookupRejectsBadBody() {
	rec := s.do(http.MethodPost, "/platform/v1/registry/batch/lookup", `{"cids":`, apikeymodels.ScopeRegistryRead)
	s.Equal(http.StatusBadRequest, rec.Code)

	s.service.EXPECT().BulkLookup(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeValidation, "too many cids in one batch"))
	rec = s.do(http.MethodPost, "/platform/v1/registry/batch/lookup", `{"cids":["a","b"]}`, apikeymodels.ScopeRegistryRead)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *RegistryHandlerSuite) TestScopeExactness() {
	rec := s.do(http.MethodPost, "/platform/v1/registry/batch/consent/check",
		`{"cids":["cid_abc123"]}`, apikeymodels.ScopeRegistryRead)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/platform/v1/registry/stats", "", "")
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RegistryHandlerSuite) TestBulkConsentCheck() {
	decision := consentmodels.Decision{CID: "cid_abc123", Allowed: true, Reasons: []string{}}
	s.service.EXPECT().
		BulkConsentCheck(gomock.Any(), []string{"cid_abc123"}, consentmodels.CheckQuery{UseType: id.CategoryCommercial, Region: "EU"}).
		Return([]models.ConsentCheckResult{{CID: "cid_abc123", Decision: &decision}}, nil)

	rec := s.do(http.MethodPost, "/platform/v1/registry/batch/consent/check",
		`{"cids":["cid_abc123"],"use_type":"allow_commercial","region":"EU"}`, apikeymodels.ScopeRegistryConsentRead)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"allowed":true`)

	rec = s.do(http.MethodPost, "/platform/v1/registry/batch/consent/check",
		`{"cids":["cid_abc123"],"use_type":"Not Valid"}`, apikeymodels.ScopeRegistryConsentRead)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *RegistryHandlerSuite) TestConsentCheck() {
	s.service.EXPECT().
		CheckConsent(gomock.Any(), "cid_abc123", consentmodels.CheckQuery{UseType: id.CategoryEditorial, Modality: "video"}, true).
		Return(consentmodels.Decision{CID: "cid_abc123", Verified: true}, nil)

	rec := s.do(http.MethodGet, "/platform/v1/registry/consent/check?cid=cid_abc123&use_type=allow_editorial&modality=video&verify=true",
		"", apikeymodels.ScopeRegistryConsentRead)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/platform/v1/registry/consent/check?cid=cid_abc123&verify=maybe",
		"", apikeymodels.ScopeRegistryConsentRead)
	s.Equal(http.StatusBadRequest, rec.Code)

	s.service.EXPECT().CheckConsent(gomock.Any(), "", gomock.Any(), false).
		Return(consentmodels.Decision{}, dErrors.New(dErrors.CodeValidation, "cid is missing or malformed"))
	rec = s.do(http.MethodGet, "/platform/v1/registry/consent/check", "", apikeymodels.ScopeRegistryConsentRead)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *RegistryHandlerSuite) TestContributorProfile() {
	s.service.EXPECT().ContributorProfile(gomock.Any(), "cid_abc123").
		Return(models.ContributorProfile{ID: "c-1", CID: "cid_abc123", Attributes: map[string]string{}}, nil)
	rec := s.do(http.MethodGet, "/platform/v1/contributors/cid_abc123", "", apikeymodels.ScopeContributorsRead)
	s.Equal(http.StatusOK, rec.Code)

	s.service.EXPECT().ContributorProfile(gomock.Any(), "cid_zzzzzz").
		Return(models.ContributorProfile{}, dErrors.New(dErrors.CodeNotFound, "contributor not found"))
	rec = s.do(http.MethodGet, "/platform/v1/contributors/cid_zzzzzz", "", apikeymodels.ScopeContributorsRead)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *RegistryHandlerSuite) TestStatsInternalErrorHidesDetail() {
	s.service.EXPECT().Stats(gomock.Any()).
		Return(models.Stats{}, dErrors.Wrap(io.ErrUnexpectedEOF, dErrors.CodeInternal, "failed to count identities"))
	rec := s.do(http.MethodGet, "/platform/v1/registry/stats", "", apikeymodels.ScopeRegistryRead)
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.NotContains(rec.Body.String(), "identities")
}

func (s *RegistryHandlerSuite) TestCORS() {
	s.Run("preflight on every route is 204 without body", func() {
		for _, path := range []string{
			"/platform/v1/contributors/cid_abc123",
			"/platform/v1/registry/batch/lookup",
			"/platform/v1/registry/batch/consent/check",
			"/platform/v1/registry/consent/check",
			"/platform/v1/registry/stats",
		} {
			rec := s.do(http.MethodOptions, path, "", "", "Origin", "https://evil.example.com")
			s.Equal(http.StatusNoContent, rec.Code, path)
			s.Empty(rec.Body.String(), path)
			s.Equal(trustedOrigin, rec.Header().Get("Access-Control-Allow-Origin"), path)
		}
	})

	s.Run("trusted origin gets the allow header", func() {
		s.service.EXPECT().Stats(gomock.Any()).Return(models.Stats{}, nil)
		rec := s.do(http.MethodGet, "/platform/v1/registry/stats", "", apikeymodels.ScopeRegistryRead, "Origin", trustedOrigin)
		s.Equal(http.StatusOK, rec.Code)
		s.Equal(trustedOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	s.Run("other origins do not", func() {
		s.service.EXPECT().Stats(gomock.Any()).Return(models.Stats{}, nil)
		rec := s.do(http.MethodGet, "/platform/v1/registry/stats", "", apikeymodels.ScopeRegistryRead, "Origin", "https://evil.example.com")
		s.Equal(http.StatusOK, rec.Code)
		s.Empty(rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

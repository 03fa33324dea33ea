package handler

import (
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

	"likeness/internal/review/handler/mocks"
	"likeness/internal/review/models"
	"likeness/internal/review/service"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
)

//go:generate mockgen -source=handler.go -destination=mocks/review-mocks.go -package=mocks

type stubSessions map[string]id.ContributorID

func (s stubSessions) ValidateSession(token string) (id.ContributorID, error) {
	if contributorID, ok := s[token]; ok {
		return contributorID, nil
	}
	return id.ContributorID{}, errors.New("unknown token")
}

type ReviewHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestReviewHandlerSuite(t *testing.T) {
	suite.Run(t, new(ReviewHandlerSuite))
}

func (s *ReviewHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	r := chi.NewRouter()
	New(s.service, stubSessions{"tok": id.ContributorID(uuid.New())}, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	s.router = r
}

func (s *ReviewHandlerSuite) do(method, path, body, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *ReviewHandlerSuite) TestReview() {
	submission := uuid.NewString()
	contributor := uuid.NewString()

	s.Run("created", func() {
		s.service.EXPECT().Review(gomock.Any(), service.ReviewCommand{
			SubmissionID: submission, ContributorID: contributor, Decision: "accepted", Notes: "ok",
		}).Return(models.Review{Decision: models.DecisionAccepted}, nil)
		rec := s.do(http.MethodPost, "/internal/submissions/"+submission+"/review",
			`{"contributor_id":"`+contributor+`","decision":"accepted","notes":"ok"}`, "tok")
		s.Equal(http.StatusCreated, rec.Code)
		s.Contains(rec.Body.String(), `"decision":"accepted"`)
	})

	s.Run("already reviewed is 409", func() {
		s.service.EXPECT().Review(gomock.Any(), gomock.Any()).
			Return(models.Review{}, dErrors.New(dErrors.CodeConflict, "submission already reviewed"))
		rec := s.do(http.MethodPost, "/internal/submissions/"+submission+"/review",
			`{"contributor_id":"`+contributor+`","decision":"accepted"}`, "tok")
		s.Equal(http.StatusConflict, rec.Code)
	})

	s.Run("requires a session", func() {
		rec := s.do(http.MethodPost, "/internal/submissions/"+submission+"/review", `{}`, "")
		s.Equal(http.StatusUnauthorized, rec.Code)
	})
}

func (s *ReviewHandlerSuite) TestGet() {
	s.service.EXPECT().Get(gomock.Any(), "abc").Return(models.Review{}, dErrors.New(dErrors.CodeValidation, "malformed submission id"))
	rec := s.do(http.MethodGet, "/internal/submissions/abc/review", "", "tok")
	s.Equal(http.StatusBadRequest, rec.Code)
}

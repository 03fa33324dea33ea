// Package service records bounty submission reviews and announces them.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	contributormodels "likeness/internal/contributor/models"
	"likeness/internal/review/models"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/sentinel"
	"likeness/pkg/requestcontext"
)

const NotifySubmissionReviewed = "bounty.submission_reviewed"

const maxNotesLen = 2000

type Store interface {
	Create(ctx context.Context, r models.Review) error
	Get(ctx context.Context, submissionID uuid.UUID) (models.Review, error)
}

type Contributors interface {
	Get(ctx context.Context, contributorID id.ContributorID) (contributormodels.Contributor, error)
}

type Identities interface {
	Resolve(ctx context.Context, contributorID id.ContributorID) (id.CID, error)
}

type Notifier interface {
	Notify(ctx context.Context, eventType string, payload any) error
}

// TxRunner makes the review row and its outbox entry one unit of work.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type ReviewCommand struct {
	SubmissionID  string
	ContributorID string
	Decision      string
	Notes         string
}

type Service struct {
	store        Store
	contributors Contributors
	identities   Identities
	tx           TxRunner
	notifier     Notifier
	logger       *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func New(store Store, contributors Contributors, identities Identities, tx TxRunner, opts ...Option) *Service {
	s := &Service{
		store:        store,
		contributors: contributors,
		identities:   identities,
		tx:           tx,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Review records the verdict of the session reviewer. Accepting a submission
// from an opted-out contributor is refused.
func (s *Service) Review(ctx context.Context, cmd ReviewCommand) (models.Review, error) {
	reviewer := requestcontext.ContributorID(ctx)
	if reviewer.IsNil() {
		return models.Review{}, dErrors.New(dErrors.CodeUnauthorized, "missing session")
	}
	submissionID, err := uuid.Parse(strings.TrimSpace(cmd.SubmissionID))
	if err != nil {
		return models.Review{}, dErrors.New(dErrors.CodeValidation, "malformed submission id")
	}
	contributorID, err := id.ParseContributorID(strings.TrimSpace(cmd.ContributorID))
	if err != nil {
		return models.Review{}, dErrors.New(dErrors.CodeValidation, "malformed contributor_id")
	}
	decision := models.Decision(strings.TrimSpace(cmd.Decision))
	if !decision.IsValid() {
		return models.Review{}, dErrors.New(dErrors.CodeValidation, "decision must be accepted or rejected")
	}
	notes := strings.TrimSpace(cmd.Notes)
	if utf8.RuneCountInString(notes) > maxNotesLen {
		return models.Review{}, dErrors.New(dErrors.CodeValidation, "notes are too long")
	}

	c, err := s.contributors.Get(ctx, contributorID)
	if err != nil {
		return models.Review{}, err
	}
	if decision == models.DecisionAccepted && c.OptedOut {
		return models.Review{}, dErrors.New(dErrors.CodeForbidden, "contributor has opted out")
	}
	cid, err := s.identities.Resolve(ctx, contributorID)
	if err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return models.Review{}, err
	}

	review := models.Review{
		SubmissionID:  submissionID,
		ContributorID: contributorID,
		ReviewerID:    reviewer,
		Decision:      decision,
		Notes:         notes,
		ReviewedAt:    requestcontext.Now(ctx).UTC(),
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, review); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "submission already reviewed")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record review")
		}
		if s.notifier == nil {
			return nil
		}
		payload := models.ReviewedPayload{
			SubmissionID:  submissionID.String(),
			ContributorID: contributorID.String(),
			CID:           cid.String(),
			Decision:      decision,
			ReviewedAt:    review.ReviewedAt,
		}
		if err := s.notifier.Notify(ctx, NotifySubmissionReviewed, payload); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to enqueue review notification")
		}
		return nil
	})
	if err != nil {
		return models.Review{}, err
	}

	s.logger.InfoContext(ctx, "submission reviewed",
		"submission_id", submissionID.String(),
		"decision", string(decision),
		"request_id", requestcontext.RequestID(ctx),
	)
	return review, nil
}

func (s *Service) Get(ctx context.Context, rawID string) (models.Review, error) {
	submissionID, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return models.Review{}, dErrors.New(dErrors.CodeValidation, "malformed submission id")
	}
	r, err := s.store.Get(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Review{}, dErrors.New(dErrors.CodeNotFound, "review not found")
		}
		return models.Review{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load review")
	}
	return r, nil
}

// Package service turns identity-verification provider callbacks into a
// provisioned CID. The callback body is never trusted on its own: the
// signature is checked and the session state is re-read from the provider.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	contributormodels "likeness/internal/contributor/models"
	identitymodels "likeness/internal/identity/models"
	"likeness/internal/verification/models"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/hmacsig"
	"likeness/pkg/requestcontext"
)

// NotifyContributorVerified is emitted once a CID is provisioned.
const NotifyContributorVerified = "contributor.verified"

// DefaultSignatureTolerance bounds callback replay.
const DefaultSignatureTolerance = 5 * time.Minute

type Provider interface {
	Session(ctx context.Context, sessionID string) (models.Session, error)
}

type Contributors interface {
	Get(ctx context.Context, contributorID id.ContributorID) (contributormodels.Contributor, error)
	MarkVerified(ctx context.Context, contributorID id.ContributorID) error
}

type Identities interface {
	Provision(ctx context.Context, contributorID id.ContributorID) (identitymodels.Identity, error)
}

type Notifier interface {
	Notify(ctx context.Context, eventType string, payload any) error
}

// VerifiedPayload is the body of contributor.verified webhooks.
type VerifiedPayload struct {
	ContributorID string    `json:"contributor_id"`
	CID           string    `json:"cid"`
	VerifiedAt    time.Time `json:"verified_at"`
}

type Service struct {
	provider     Provider
	contributors Contributors
	identities   Identities
	notifier     Notifier
	secret       []byte
	tolerance    time.Duration
	logger       *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithSignatureTolerance(d time.Duration) Option {
	return func(s *Service) { s.tolerance = d }
}

func New(provider Provider, contributors Contributors, identities Identities, webhookSecret string, opts ...Option) *Service {
	s := &Service{
		provider:     provider,
		contributors: contributors,
		identities:   identities,
		secret:       []byte(webhookSecret),
		tolerance:    DefaultSignatureTolerance,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleCallback authenticates a provider callback, confirms the session with
// the provider and, when approved, marks the contributor verified and
// provisions its CID. Replays of an approved callback are no-ops.
func (s *Service) HandleCallback(ctx context.Context, body []byte, signature string) (models.Outcome, error) {
	if len(s.secret) == 0 {
		return models.Outcome{}, dErrors.New(dErrors.CodeUnavailable, "verification callbacks are not configured")
	}
	if err := hmacsig.Verify(s.secret, signature, body, requestcontext.Now(ctx), s.tolerance); err != nil {
		s.logger.WarnContext(ctx, "verification callback rejected",
			"reason", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return models.Outcome{}, dErrors.New(dErrors.CodeUnauthorized, "invalid callback signature")
	}

	var cb models.Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return models.Outcome{}, dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	cb.SessionID = strings.TrimSpace(cb.SessionID)
	if cb.SessionID == "" {
		return models.Outcome{}, dErrors.New(dErrors.CodeValidation, "session_id is required")
	}

	session, err := s.provider.Session(ctx, cb.SessionID)
	if err != nil {
		return models.Outcome{}, err
	}
	contributorID, err := id.ParseContributorID(session.Reference)
	if err != nil {
		return models.Outcome{}, dErrors.New(dErrors.CodeUpstream, "verification session has no contributor reference")
	}
	if cb.Reference != "" && cb.Reference != session.Reference {
		return models.Outcome{}, dErrors.New(dErrors.CodeValidation, "callback does not match verification session")
	}

	outcome := models.Outcome{SessionID: session.ID, ContributorID: contributorID, Status: session.Status}
	if session.Status != models.StatusApproved {
		s.logger.InfoContext(ctx, "verification not approved",
			"session_id", session.ID,
			"status", string(session.Status),
		)
		return outcome, nil
	}

	c, err := s.contributors.Get(ctx, contributorID)
	if err != nil {
		return models.Outcome{}, err
	}
	if !c.Verified {
		if err := s.contributors.MarkVerified(ctx, contributorID); err != nil {
			return models.Outcome{}, err
		}
	}
	identity, err := s.identities.Provision(ctx, contributorID)
	if err != nil {
		return models.Outcome{}, err
	}
	outcome.CID = identity.CID.String()

	if !c.Verified && s.notifier != nil {
		payload := VerifiedPayload{
			ContributorID: contributorID.String(),
			CID:           identity.CID.String(),
			VerifiedAt:    requestcontext.Now(ctx).UTC(),
		}
		if err := s.notifier.Notify(ctx, NotifyContributorVerified, payload); err != nil {
			s.logger.ErrorContext(ctx, "failed to enqueue verification notification",
				"contributor_id", contributorID.String(),
				"error", err,
			)
		}
	}

	s.logger.InfoContext(ctx, "contributor verified",
		"contributor_id", contributorID.String(),
		"cid", identity.CID.String(),
		"session_id", session.ID,
	)
	return outcome, nil
}

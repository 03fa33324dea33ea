// Package service reads contributor records and applies the opt-out toggle.
// Opting out revokes consent and flips the record flag in one ledger
// transaction. Opting back in undoes only the opt-out's own revoke: consent
// the contributor revoked themselves stays revoked.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"likeness/internal/consent/models"
	consentservice "likeness/internal/consent/service"
	contributormodels "likeness/internal/contributor/models"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/sentinel"
	"likeness/pkg/requestcontext"
)

// Webhook event types emitted by the opt-out toggle.
const (
	NotifyOptedOut = "contributor.opted_out"
	NotifyOptedIn  = "contributor.opted_in"
)

const maxAttributes = 32

// optOutSource marks ledger events written by the opt-out toggle.
const optOutSource = "dashboard_opt_out"

type Store interface {
	Create(ctx context.Context, c contributormodels.Contributor) error
	Get(ctx context.Context, contributorID id.ContributorID) (contributormodels.Contributor, error)
	SetOptedOut(ctx context.Context, contributorID id.ContributorID, optedOut bool, at time.Time) error
	SetVerified(ctx context.Context, contributorID id.ContributorID, at time.Time) error
}

// IdentityResolver finds the contributor's CID, if provisioned.
type IdentityResolver interface {
	Resolve(ctx context.Context, contributorID id.ContributorID) (id.CID, error)
}

// Ledger appends consent events.
type Ledger interface {
	Append(ctx context.Context, cmd consentservice.AppendCommand) (models.Event, error)
}

// Notifier enqueues webhooks for contributors without a CID, where no ledger
// transaction exists to carry them.
type Notifier interface {
	Notify(ctx context.Context, eventType string, payload any) error
}

type Service struct {
	store      Store
	identities IdentityResolver
	ledger     Ledger
	notifier   Notifier
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func New(store Store, identities IdentityResolver, ledger Ledger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		identities: identities,
		ledger:     ledger,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a contributor record on behalf of onboarding.
func (s *Service) Register(ctx context.Context, displayName string, attributes map[string]string) (contributormodels.Contributor, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" || len(displayName) > 200 {
		return contributormodels.Contributor{}, dErrors.New(dErrors.CodeValidation, "display_name must be 1-200 characters")
	}
	if len(attributes) > maxAttributes {
		return contributormodels.Contributor{}, dErrors.New(dErrors.CodeValidation, "too many attributes")
	}
	for k := range attributes {
		if strings.TrimSpace(k) == "" {
			return contributormodels.Contributor{}, dErrors.New(dErrors.CodeValidation, "attribute names cannot be empty")
		}
	}

	now := requestcontext.Now(ctx).UTC()
	c := contributormodels.Contributor{
		ID:          id.ContributorID(uuid.New()),
		DisplayName: displayName,
		Attributes:  attributes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}.Clone()
	if err := s.store.Create(ctx, c); err != nil {
		return contributormodels.Contributor{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create contributor")
	}
	s.logger.InfoContext(ctx, "contributor registered",
		"contributor_id", c.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return c, nil
}

func (s *Service) Get(ctx context.Context, contributorID id.ContributorID) (contributormodels.Contributor, error) {
	c, err := s.store.Get(ctx, contributorID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return contributormodels.Contributor{}, dErrors.New(dErrors.CodeNotFound, "contributor not found")
		}
		return contributormodels.Contributor{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load contributor")
	}
	return c, nil
}

func (s *Service) Exists(ctx context.Context, contributorID id.ContributorID) (bool, error) {
	_, err := s.store.Get(ctx, contributorID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load contributor")
}

// MarkVerified records a successful identity verification.
func (s *Service) MarkVerified(ctx context.Context, contributorID id.ContributorID) error {
	err := s.store.SetVerified(ctx, contributorID, requestcontext.Now(ctx).UTC())
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "contributor not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark contributor verified")
	}
	return nil
}

// SetOptOut applies the dashboard toggle. Repeating the current state is a
// no-op and appends nothing.
func (s *Service) SetOptOut(ctx context.Context, contributorID id.ContributorID, optOut bool) (contributormodels.Contributor, error) {
	c, err := s.Get(ctx, contributorID)
	if err != nil {
		return contributormodels.Contributor{}, err
	}
	if c.OptedOut == optOut {
		return c, nil
	}

	now := requestcontext.Now(ctx).UTC()
	payload := contributormodels.OptOutPayload{
		ContributorID: contributorID.String(),
		OptedOut:      optOut,
		ChangedAt:     now,
	}
	eventType := NotifyOptedIn
	if optOut {
		eventType = NotifyOptedOut
	}

	cid, err := s.identities.Resolve(ctx, contributorID)
	switch {
	case err == nil:
		payload.CID = cid.String()
		if err := s.appendToggle(ctx, cid, contributorID, optOut, now, eventType, payload); err != nil {
			return contributormodels.Contributor{}, err
		}
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		if err := s.flagOnly(ctx, contributorID, optOut, now, eventType, payload); err != nil {
			return contributormodels.Contributor{}, err
		}
	default:
		return contributormodels.Contributor{}, err
	}

	s.logger.InfoContext(ctx, "contributor opt-out changed",
		"contributor_id", contributorID.String(),
		"opted_out", optOut,
		"request_id", requestcontext.RequestID(ctx),
	)
	c.OptedOut = optOut
	c.UpdatedAt = now
	return c, nil
}

func (s *Service) appendToggle(ctx context.Context, cid id.CID, contributorID id.ContributorID, optOut bool, now time.Time, eventType string, payload contributormodels.OptOutPayload) error {
	event, precondition := models.EventReinstate, undoOwnRevoke
	if optOut {
		event, precondition = models.EventRevoke, revokeIfActive
	}
	_, err := s.ledger.Append(ctx, consentservice.AppendCommand{
		CID:          cid,
		Type:         event,
		Source:       optOutSource,
		Actor:        "contributor:" + contributorID.String(),
		Precondition: precondition,
		Notifications: []consentservice.Notification{
			{Type: eventType, Payload: payload},
		},
		WithinTx: func(ctx context.Context) error {
			if err := s.store.SetOptedOut(ctx, contributorID, optOut, now); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update opt-out flag")
			}
			return nil
		},
	})
	return err
}

// revokeIfActive skips the opt-out revoke when consent is already revoked, so
// a later opt-in has nothing of its own to undo.
func revokeIfActive(_ context.Context, state consentservice.LedgerState) error {
	if state.Current.Status != models.StatusActive {
		return consentservice.ErrSkipEvent
	}
	return nil
}

// undoOwnRevoke reinstates only when the latest status change is the
// opt-out's revoke.
func undoOwnRevoke(_ context.Context, state consentservice.LedgerState) error {
	last, ok, err := state.LastStatusEvent()
	if err != nil {
		return err
	}
	if !ok || last.Type != models.EventRevoke || last.Source != optOutSource {
		return consentservice.ErrSkipEvent
	}
	return nil
}

// OptedOut reports the contributor's opt-out flag. Inside a ledger
// transaction it reads the flag as of that transaction.
func (s *Service) OptedOut(ctx context.Context, contributorID id.ContributorID) (bool, error) {
	c, err := s.Get(ctx, contributorID)
	if err != nil {
		return false, err
	}
	return c.OptedOut, nil
}

func (s *Service) flagOnly(ctx context.Context, contributorID id.ContributorID, optOut bool, now time.Time, eventType string, payload contributormodels.OptOutPayload) error {
	if err := s.store.SetOptedOut(ctx, contributorID, optOut, now); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update opt-out flag")
	}
	if s.notifier == nil {
		return nil
	}
	if err := s.notifier.Notify(ctx, eventType, payload); err != nil {
		// The flag is the primary change; a lost notification is logged only.
		s.logger.ErrorContext(ctx, "failed to enqueue opt-out notification",
			"contributor_id", contributorID.String(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return nil
}

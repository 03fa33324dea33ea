// Package service records platform usage of a contributor's likeness.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	consentmodels "likeness/internal/consent/models"
	contributormodels "likeness/internal/contributor/models"
	"likeness/internal/usage/metrics"
	"likeness/internal/usage/models"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/requestcontext"
)

// NotifyUsageRecorded is the webhook event type emitted per recorded use.
const NotifyUsageRecorded = "usage.recorded"

const (
	maxDescriptionLen = 1000
	maxUserAgentLen   = 512
	defaultListLimit  = 100
)

type Store interface {
	Create(ctx context.Context, e models.Event) error
	ListByContributor(ctx context.Context, contributorID id.ContributorID, limit int) ([]models.Event, error)
}

type Contributors interface {
	Get(ctx context.Context, contributorID id.ContributorID) (contributormodels.Contributor, error)
}

type Identities interface {
	Resolve(ctx context.Context, contributorID id.ContributorID) (id.CID, error)
	Reverse(ctx context.Context, cid id.CID) (id.ContributorID, error)
}

type Consent interface {
	Check(ctx context.Context, cid id.CID, q consentmodels.CheckQuery, verify bool) (consentmodels.Decision, error)
}

type Notifier interface {
	Notify(ctx context.Context, eventType string, payload any) error
}

// RecordCommand is a validated usage report. The API key comes from the
// request context.
type RecordCommand struct {
	Contributor string
	UseType     string
	Description string
	UserAgent   string
}

type Service struct {
	store        Store
	contributors Contributors
	identities   Identities
	consent      Consent
	notifier     Notifier
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func New(store Store, contributors Contributors, identities Identities, consent Consent, opts ...Option) *Service {
	s := &Service{
		store:        store,
		contributors: contributors,
		identities:   identities,
		consent:      consent,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record stores a usage event after checking that the contributor exists,
// has not opted out, and that their consent allows the use type.
func (s *Service) Record(ctx context.Context, cmd RecordCommand) (models.Event, error) {
	key, ok := requestcontext.APIKey(ctx)
	if !ok {
		return models.Event{}, dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
	}

	useType, err := id.ParseConsentCategory(strings.TrimSpace(cmd.UseType))
	if err != nil {
		return models.Event{}, dErrors.New(dErrors.CodeValidation, "use_type is missing or invalid")
	}
	description := strings.TrimSpace(cmd.Description)
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return models.Event{}, dErrors.New(dErrors.CodeValidation, "description is too long")
	}

	contributorID, cid, err := s.resolveContributor(ctx, cmd.Contributor)
	if err != nil {
		return models.Event{}, err
	}
	c, err := s.contributors.Get(ctx, contributorID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			s.metrics.IncrementRejected("not_found")
			return models.Event{}, dErrors.New(dErrors.CodeNotFound, "contributor not found")
		}
		return models.Event{}, err
	}
	if c.OptedOut {
		s.metrics.IncrementRejected("opted_out")
		return models.Event{}, dErrors.New(dErrors.CodeForbidden, "contributor has opted out")
	}

	if cid == "" {
		cid, err = s.identities.Resolve(ctx, contributorID)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				s.metrics.IncrementRejected(consentmodels.ReasonNotGranted)
				return models.Event{}, dErrors.New(dErrors.CodeForbidden, "contributor has not granted consent")
			}
			return models.Event{}, err
		}
	}
	decision, err := s.consent.Check(ctx, cid, consentmodels.CheckQuery{UseType: useType}, false)
	if err != nil {
		return models.Event{}, err
	}
	if !decision.Allowed {
		reason := "denied"
		if len(decision.Reasons) > 0 {
			reason = decision.Reasons[0]
		}
		s.metrics.IncrementRejected(reason)
		return models.Event{}, dErrors.New(dErrors.CodeForbidden, "consent does not allow this use: "+reason)
	}

	ua := truncate(strings.TrimSpace(cmd.UserAgent), maxUserAgentLen)
	event := models.Event{
		ID:            id.UsageID(uuid.New()),
		ContributorID: contributorID,
		APIKeyID:      key.ID,
		UseType:       useType,
		Description:   description,
		UserAgent:     ua,
		Client:        describeClient(ua),
		CreatedAt:     requestcontext.Now(ctx).UTC(),
	}
	if err := s.store.Create(ctx, event); err != nil {
		return models.Event{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record usage")
	}
	s.metrics.IncrementRecorded(useType.String())

	s.logger.InfoContext(ctx, "usage recorded",
		"usage_id", event.ID.String(),
		"cid", cid.String(),
		"use_type", useType.String(),
		"key_prefix", key.Prefix,
		"request_id", requestcontext.RequestID(ctx),
	)

	if s.notifier != nil {
		payload := models.RecordedPayload{
			UsageID:       event.ID.String(),
			ContributorID: contributorID.String(),
			CID:           cid.String(),
			UseType:       useType.String(),
			KeyPrefix:     key.Prefix,
			CreatedAt:     event.CreatedAt,
		}
		if err := s.notifier.Notify(ctx, NotifyUsageRecorded, payload); err != nil {
			s.logger.ErrorContext(ctx, "failed to enqueue usage notification",
				"usage_id", event.ID.String(),
				"error", err,
			)
		}
	}
	return event, nil
}

// ListForContributor returns recent usage of one contributor's likeness.
func (s *Service) ListForContributor(ctx context.Context, contributorID id.ContributorID) ([]models.Event, error) {
	events, err := s.store.ListByContributor(ctx, contributorID, defaultListLimit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list usage")
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}

// resolveContributor accepts a contributor UUID or a CID.
func (s *Service) resolveContributor(ctx context.Context, raw string) (id.ContributorID, id.CID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return id.ContributorID{}, "", dErrors.New(dErrors.CodeValidation, "contributor_id is required")
	}
	if !strings.HasPrefix(raw, "cid_") {
		contributorID, err := id.ParseContributorID(raw)
		if err != nil {
			return id.ContributorID{}, "", dErrors.New(dErrors.CodeValidation, "malformed contributor_id")
		}
		return contributorID, "", nil
	}
	cid, err := id.ParseCID(raw)
	if err != nil {
		return id.ContributorID{}, "", dErrors.New(dErrors.CodeValidation, "malformed contributor_id")
	}
	contributorID, err := s.identities.Reverse(ctx, cid)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			s.metrics.IncrementRejected("not_found")
			return id.ContributorID{}, "", dErrors.New(dErrors.CodeNotFound, "contributor not found")
		}
		return id.ContributorID{}, "", err
	}
	return contributorID, cid, nil
}

// describeClient summarizes a User-Agent header for the usage log.
func describeClient(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if ua.Bot() {
		return "bot: " + name
	}
	if name == "" {
		return ""
	}
	out := name
	if major, _, _ := strings.Cut(version, "."); major != "" {
		out += " " + major
	}
	if os := ua.OS(); os != "" {
		out = fmt.Sprintf("%s (%s)", out, os)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Package service implements the consent event ledger and the consent
// resolver on top of it.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"likeness/internal/consent/metrics"
	"likeness/internal/consent/models"
	"likeness/internal/platform/tracing"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/sentinel"
	"likeness/pkg/requestcontext"
)

// Webhook event types emitted by the ledger.
const (
	NotifyConsentUpdated = "registry.consent_updated"
	NotifyConsentRevoked = "registry.consent_revoked"
)

// maxClockSkew bounds how far a caller-supplied created_at may lead now.
const maxClockSkew = 5 * time.Minute

// Store persists the ledger and its projection. Reads outside RunInTx may be
// slightly stale.
type Store interface {
	ListEvents(ctx context.Context, cid id.CID) ([]models.Event, error)
	AppendEvent(ctx context.Context, event models.Event) error
	GetProjection(ctx context.Context, cid id.CID) (models.Projection, error)
	GetProjections(ctx context.Context, cids []id.CID) (map[id.CID]models.Projection, error)
	PutProjection(ctx context.Context, projection models.Projection) error
	Stats(ctx context.Context) (models.Stats, error)
}

// IdentityChecker confirms a CID was provisioned.
type IdentityChecker interface {
	Exists(ctx context.Context, cid id.CID) (bool, error)
}

// Notifier enqueues an outbound webhook event. It is called inside the ledger
// transaction so the notification commits with the event.
type Notifier interface {
	Notify(ctx context.Context, eventType string, payload any) error
}

// Notification is an extra outbound event committed with an append.
type Notification struct {
	Type    string
	Payload any
}

// AppendCommand is a validated request to append one ledger event.
type AppendCommand struct {
	CID               id.CID
	Type              models.EventType
	Categories        models.Categories
	GeoRestrictions   []string
	ContentExclusions []string
	Source            string
	Actor             string
	// CreatedAt zero lets the ledger assign the timestamp.
	CreatedAt time.Time
	// Notifications are enqueued in the same transaction as the event.
	Notifications []Notification
	// Precondition runs inside the transaction before anything is written.
	// Returning ErrSkipEvent commits WithinTx and Notifications without an
	// event; any other error aborts the append.
	Precondition func(ctx context.Context, state LedgerState) error
	// WithinTx runs inside the transaction after the event is written; an
	// error rolls the append back.
	WithinTx func(ctx context.Context) error
}

// ErrSkipEvent tells Append that the command needs no ledger event.
var ErrSkipEvent = errors.New("consent: no event to append")

// LedgerState is the CID's ledger as seen under its transaction lock.
type LedgerState struct {
	Current models.Projection
	events  func() ([]models.Event, error)
}

// LastStatusEvent returns the latest grant, reinstate or revoke. ok is false
// when the CID has none.
func (l LedgerState) LastStatusEvent() (event models.Event, ok bool, err error) {
	if !l.Current.HasHistory() {
		return models.Event{}, false, nil
	}
	events, err := l.events()
	if err != nil {
		return models.Event{}, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read consent history")
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type != models.EventScopeUpdate {
			return events[i], true, nil
		}
	}
	return models.Event{}, false, nil
}

// ConsentChangedPayload is the body of registry.consent_* webhooks.
type ConsentChangedPayload struct {
	EventID    string            `json:"event_id"`
	CID        string            `json:"cid"`
	EventType  string            `json:"event_type"`
	Status     models.Status     `json:"status"`
	Categories models.Categories `json:"consent_scope"`
	CreatedAt  time.Time         `json:"created_at"`
}

type Service struct {
	tx         ConsentStoreTx
	store      Store
	identities IdentityChecker
	notifier   Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
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

func New(tx ConsentStoreTx, store Store, identities IdentityChecker, opts ...Option) *Service {
	s := &Service{
		tx:         tx,
		store:      store,
		identities: identities,
		logger:     slog.Default(),
		tracer:     tracing.Tracer("consent"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append validates and appends one event, updating the projection and
// enqueueing notifications atomically. When the precondition skips the event
// the returned Event is zero.
func (s *Service) Append(ctx context.Context, cmd AppendCommand) (models.Event, error) {
	ctx, span := s.tracer.Start(ctx, "consent.append", trace.WithAttributes(
		attribute.String("event_type", string(cmd.Type)),
	))
	defer span.End()
	start := time.Now()
	defer s.metrics.ObserveAppend(start)

	if err := validateCommand(&cmd); err != nil {
		return models.Event{}, err
	}
	if err := s.requireIdentity(ctx, cmd.CID); err != nil {
		return models.Event{}, err
	}

	var appended models.Event
	err := s.tx.RunInTx(ctx, cmd.CID, func(ctx context.Context, store Store) error {
		current, err := s.loadProjection(ctx, store, cmd.CID)
		if err != nil {
			return err
		}

		if cmd.Precondition != nil {
			state := LedgerState{Current: current, events: func() ([]models.Event, error) {
				return store.ListEvents(ctx, cmd.CID)
			}}
			switch err := cmd.Precondition(ctx, state); {
			case errors.Is(err, ErrSkipEvent):
				return s.commitWithoutEvent(ctx, cmd)
			case err != nil:
				return err
			}
		}

		createdAt, err := s.assignTimestamp(ctx, current, cmd.CreatedAt)
		if err != nil {
			return err
		}

		event := models.Event{
			ID:                id.EventID(uuid.New()),
			CID:               cmd.CID,
			Seq:               current.LastSeq + 1,
			Type:              cmd.Type,
			Categories:        cmd.Categories,
			GeoRestrictions:   cmd.GeoRestrictions,
			ContentExclusions: cmd.ContentExclusions,
			Source:            cmd.Source,
			Actor:             cmd.Actor,
			CreatedAt:         createdAt,
		}

		next, err := models.Apply(current, event)
		if err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.New(dErrors.CodeValidation, "scope_update requires active consent")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to fold consent event")
		}

		if err := store.AppendEvent(ctx, event); err != nil {
			if errors.Is(err, sentinel.ErrOutOfOrder) || errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent consent change, retry")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append consent event")
		}
		if err := store.PutProjection(ctx, next); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update consent projection")
		}
		if cmd.WithinTx != nil {
			if err := cmd.WithinTx(ctx); err != nil {
				return err
			}
		}
		if err := s.notify(ctx, event, next, cmd.Notifications); err != nil {
			return err
		}
		appended = event
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return models.Event{}, err
	}
	if appended.Seq == 0 {
		s.logger.InfoContext(ctx, "consent append skipped",
			"cid", cmd.CID.String(),
			"event_type", string(cmd.Type),
			"request_id", requestcontext.RequestID(ctx),
		)
		return models.Event{}, nil
	}

	s.metrics.IncrementAppended(string(appended.Type))
	s.logger.InfoContext(ctx, "consent event appended",
		"cid", appended.CID.String(),
		"event_type", string(appended.Type),
		"seq", appended.Seq,
		"request_id", requestcontext.RequestID(ctx),
	)
	return appended, nil
}

func (s *Service) notify(ctx context.Context, event models.Event, next models.Projection, extra []Notification) error {
	if s.notifier == nil {
		return nil
	}
	eventType := NotifyConsentUpdated
	if event.Type == models.EventRevoke {
		eventType = NotifyConsentRevoked
	}
	payload := ConsentChangedPayload{
		EventID:    event.ID.String(),
		CID:        event.CID.String(),
		EventType:  string(event.Type),
		Status:     next.Status,
		Categories: next.Categories,
		CreatedAt:  event.CreatedAt,
	}
	if err := s.notifier.Notify(ctx, eventType, payload); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to enqueue consent notification")
	}
	return s.notifyExtra(ctx, extra)
}

func (s *Service) notifyExtra(ctx context.Context, extra []Notification) error {
	if s.notifier == nil {
		return nil
	}
	for _, n := range extra {
		if err := s.notifier.Notify(ctx, n.Type, n.Payload); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to enqueue notification")
		}
	}
	return nil
}

// commitWithoutEvent applies the side effects of a command whose
// precondition decided the ledger stays as it is.
func (s *Service) commitWithoutEvent(ctx context.Context, cmd AppendCommand) error {
	if cmd.WithinTx != nil {
		if err := cmd.WithinTx(ctx); err != nil {
			return err
		}
	}
	return s.notifyExtra(ctx, cmd.Notifications)
}

// assignTimestamp keeps created_at non-decreasing per CID. A missing
// timestamp becomes now, clamped to the latest event; a supplied one earlier
// than the latest event is rejected.
func (s *Service) assignTimestamp(ctx context.Context, current models.Projection, supplied time.Time) (time.Time, error) {
	now := requestcontext.Now(ctx).UTC()
	if supplied.IsZero() {
		if now.Before(current.LastEventAt) {
			return current.LastEventAt, nil
		}
		return now, nil
	}
	supplied = supplied.UTC()
	if supplied.Before(current.LastEventAt) {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, "created_at precedes the latest consent event")
	}
	if supplied.After(now.Add(maxClockSkew)) {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, "created_at is in the future")
	}
	return supplied, nil
}

func (s *Service) loadProjection(ctx context.Context, store Store, cid id.CID) (models.Projection, error) {
	p, err := store.GetProjection(ctx, cid)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Initial(cid), nil
	}
	return models.Projection{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent projection")
}

func (s *Service) requireIdentity(ctx context.Context, cid id.CID) error {
	ok, err := s.identities.Exists(ctx, cid)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identity")
	}
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "identity not found")
	}
	return nil
}

// History returns the ordered ledger of a CID.
func (s *Service) History(ctx context.Context, cid id.CID) ([]models.Event, error) {
	if err := s.requireIdentity(ctx, cid); err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, cid)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read consent history")
	}
	return events, nil
}

// Current returns the projection of a known CID.
func (s *Service) Current(ctx context.Context, cid id.CID) (models.Projection, error) {
	if err := s.requireIdentity(ctx, cid); err != nil {
		return models.Projection{}, err
	}
	return s.loadProjection(ctx, s.store, cid)
}

// Projections returns the current state of every known CID in cids. CIDs
// without a stored projection get the initial state; callers decide which
// CIDs are known.
func (s *Service) Projections(ctx context.Context, cids []id.CID) (map[id.CID]models.Projection, error) {
	found, err := s.store.GetProjections(ctx, cids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent projections")
	}
	return found, nil
}

// Check resolves a consent decision. Unknown CIDs answer not_found instead of
// failing. With verify the history is replayed and wins over the projection.
func (s *Service) Check(ctx context.Context, cid id.CID, q models.CheckQuery, verify bool) (models.Decision, error) {
	ctx, span := s.tracer.Start(ctx, "consent.check", trace.WithAttributes(
		attribute.Bool("verify", verify),
	))
	defer span.End()
	start := time.Now()
	defer s.metrics.ObserveCheck(start)

	projection, err := s.store.GetProjection(ctx, cid)
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrNotFound):
		ok, existsErr := s.identities.Exists(ctx, cid)
		if existsErr != nil {
			return models.Decision{}, dErrors.Wrap(existsErr, dErrors.CodeInternal, "failed to look up identity")
		}
		if !ok {
			s.metrics.IncrementDecision(false, verify)
			return models.NotFoundDecision(cid), nil
		}
		projection = models.Initial(cid)
	default:
		return models.Decision{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent projection")
	}

	if verify {
		replayed, err := s.replay(ctx, s.store, cid)
		if err != nil {
			return models.Decision{}, err
		}
		if !replayed.Equivalent(projection) {
			s.metrics.IncrementDrift()
			s.logger.WarnContext(ctx, "consent projection drift detected",
				"cid", cid.String(),
				"projection_seq", projection.LastSeq,
				"replayed_seq", replayed.LastSeq,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		projection = replayed
	}

	decision := models.Decide(projection, q)
	decision.Verified = verify
	s.metrics.IncrementDecision(decision.Allowed, verify)
	return decision, nil
}

func (s *Service) replay(ctx context.Context, store Store, cid id.CID) (models.Projection, error) {
	events, err := store.ListEvents(ctx, cid)
	if err != nil {
		return models.Projection{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read consent history")
	}
	replayed, err := models.Replay(cid, events)
	if err != nil {
		return models.Projection{}, dErrors.Wrap(err, dErrors.CodeInternal, "consent history cannot be replayed")
	}
	return replayed, nil
}

// RebuildProjection replaces the projection with a replay of the ledger. It
// reports whether the stored projection had drifted.
func (s *Service) RebuildProjection(ctx context.Context, cid id.CID) (models.Projection, bool, error) {
	if err := s.requireIdentity(ctx, cid); err != nil {
		return models.Projection{}, false, err
	}

	var (
		rebuilt models.Projection
		drifted bool
	)
	err := s.tx.RunInTx(ctx, cid, func(ctx context.Context, store Store) error {
		current, err := s.loadProjection(ctx, store, cid)
		if err != nil {
			return err
		}
		replayed, err := s.replay(ctx, store, cid)
		if err != nil {
			return err
		}
		drifted = !replayed.Equivalent(current)
		rebuilt = replayed
		if !replayed.HasHistory() {
			return nil
		}
		if err := store.PutProjection(ctx, replayed); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store rebuilt projection")
		}
		return nil
	})
	if err != nil {
		return models.Projection{}, false, err
	}

	s.logger.InfoContext(ctx, "consent projection rebuilt",
		"cid", cid.String(),
		"drifted", drifted,
		"request_id", requestcontext.RequestID(ctx),
	)
	if drifted {
		s.metrics.IncrementDrift()
	}
	return rebuilt, drifted, nil
}

func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return models.Stats{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute consent stats")
	}
	return stats, nil
}

func validateCommand(cmd *AppendCommand) error {
	if cmd.CID == "" {
		return dErrors.New(dErrors.CodeValidation, "cid is required")
	}
	if !cmd.Type.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid event_type")
	}
	if cmd.Type == models.EventRevoke && len(cmd.Categories) > 0 {
		return dErrors.New(dErrors.CodeValidation, "revoke does not carry a consent scope")
	}
	if cmd.Type == models.EventScopeUpdate && len(cmd.Categories) == 0 && cmd.GeoRestrictions == nil && cmd.ContentExclusions == nil {
		return dErrors.New(dErrors.CodeValidation, "scope_update must change something")
	}
	if cmd.Type == models.EventGrant && cmd.Categories == nil {
		cmd.Categories = models.Categories{}
	}
	for category := range cmd.Categories {
		if _, err := id.ParseConsentCategory(category.String()); err != nil {
			return dErrors.New(dErrors.CodeValidation, "invalid consent category: "+category.String())
		}
	}
	var err error
	if cmd.GeoRestrictions, err = normalizeList(cmd.GeoRestrictions, "geo_restrictions", strings.ToUpper); err != nil {
		return err
	}
	if cmd.ContentExclusions, err = normalizeList(cmd.ContentExclusions, "content_exclusions", strings.ToLower); err != nil {
		return err
	}
	if cmd.Source == "" {
		cmd.Source = "internal"
	}
	if cmd.Actor == "" {
		cmd.Actor = "system"
	}
	return nil
}

// normalizeList trims, case-folds and de-duplicates a restriction list. Nil
// stays nil ("unchanged").
func normalizeList(in []string, field string, fold func(string) string) ([]string, error) {
	if in == nil {
		return nil, nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = fold(strings.TrimSpace(v))
		if v == "" || len(v) > 64 {
			return nil, dErrors.New(dErrors.CodeValidation, field+" entries must be 1-64 characters")
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}

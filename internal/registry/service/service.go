// Package service answers platform registry queries: batch identity lookups,
// batch and single consent checks, aggregate stats and contributor profiles.
package service

import (
	"context"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	consentmodels "likeness/internal/consent/models"
	contributormodels "likeness/internal/contributor/models"
	identitymodels "likeness/internal/identity/models"
	"likeness/internal/platform/tracing"
	"likeness/internal/registry/metrics"
	"likeness/internal/registry/models"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
)

const (
	opLookup       = "lookup"
	opConsentCheck = "consent_check"

	// DefaultMaxBatch bounds a batch when no limit is configured.
	DefaultMaxBatch = 1000
	// chunkSize is how many identifiers one store round trip carries.
	chunkSize = 250
)

// Identities is the identity resolver as the registry uses it.
type Identities interface {
	LookupMany(ctx context.Context, cids []id.CID) (map[id.CID]identitymodels.Identity, error)
	Resolve(ctx context.Context, contributorID id.ContributorID) (id.CID, error)
	Reverse(ctx context.Context, cid id.CID) (id.ContributorID, error)
	Count(ctx context.Context) (int64, error)
}

// Consent is the consent resolver as the registry uses it.
type Consent interface {
	Projections(ctx context.Context, cids []id.CID) (map[id.CID]consentmodels.Projection, error)
	Check(ctx context.Context, cid id.CID, q consentmodels.CheckQuery, verify bool) (consentmodels.Decision, error)
	Stats(ctx context.Context) (consentmodels.Stats, error)
}

// Contributors reads contributor records.
type Contributors interface {
	Get(ctx context.Context, contributorID id.ContributorID) (contributormodels.Contributor, error)
}

type Service struct {
	identities   Identities
	consent      Consent
	contributors Contributors
	maxBatch     int
	metrics      *metrics.Metrics
	logger       *slog.Logger
	tracer       trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithMaxBatch sets the largest accepted batch.
func WithMaxBatch(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatch = n
		}
	}
}

func New(identities Identities, consent Consent, contributors Contributors, opts ...Option) *Service {
	s := &Service{
		identities:   identities,
		consent:      consent,
		contributors: contributors,
		maxBatch:     DefaultMaxBatch,
		logger:       slog.Default(),
		tracer:       tracing.Tracer("registry"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// parsedBatch keeps the input order alongside the distinct valid CIDs.
type parsedBatch struct {
	raw    []string
	parsed []id.CID // zero value marks a malformed entry
	unique []id.CID
}

func (s *Service) parseBatch(raw []string) (parsedBatch, error) {
	if len(raw) == 0 {
		return parsedBatch{}, dErrors.New(dErrors.CodeValidation, "cids must contain at least one identifier")
	}
	if len(raw) > s.maxBatch {
		return parsedBatch{}, dErrors.New(dErrors.CodeValidation, "too many cids in one batch")
	}
	b := parsedBatch{raw: raw, parsed: make([]id.CID, len(raw))}
	seen := make(map[id.CID]struct{}, len(raw))
	for i, r := range raw {
		cid, err := id.ParseCID(strings.TrimSpace(r))
		if err != nil {
			continue
		}
		b.parsed[i] = cid
		if _, dup := seen[cid]; !dup {
			seen[cid] = struct{}{}
			b.unique = append(b.unique, cid)
		}
	}
	return b, nil
}

// fetch loads identities and projections for the distinct CIDs of a batch. Chunks are fetched in parallel; any store failure
// fails the whole batch since no entry could be answered reliably.
func (s *Service) fetch(ctx context.Context, cids []id.CID) (map[id.CID]identitymodels.Identity, map[id.CID]consentmodels.Projection, error) {
	identities := make(map[id.CID]identitymodels.Identity, len(cids))
	projections := make(map[id.CID]consentmodels.Projection, len(cids))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for start := 0; start < len(cids); start += chunkSize {
		chunk := cids[start:min(start+chunkSize, len(cids))]
		g.Go(func() error {
			found, err := s.identities.LookupMany(ctx, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			maps.Copy(identities, found)
			mu.Unlock()
			return nil
		})
		g.Go(func() error {
			found, err := s.consent.Projections(ctx, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			maps.Copy(projections, found)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return identities, projections, nil
}

// BulkLookup reports, for every input identifier in order, whether it names a
// known identity. Malformed and unknown identifiers become error entries.
func (s *Service) BulkLookup(ctx context.Context, raw []string) ([]models.LookupResult, error) {
	ctx, span := s.tracer.Start(ctx, "registry.bulk_lookup", trace.WithAttributes(
		attribute.Int("batch.size", len(raw)),
	))
	defer span.End()
	start := time.Now()

	batch, err := s.parseBatch(raw)
	if err != nil {
		return nil, err
	}
	identities, projections, err := s.fetch(ctx, batch.unique)
	if err != nil {
		return nil, err
	}

	var found, invalid, missing int
	results := make([]models.LookupResult, len(batch.raw))
	for i, r := range batch.raw {
		cid := batch.parsed[i]
		if cid == "" {
			results[i] = models.LookupResult{CID: r, Error: models.ErrorInvalidFormat}
			invalid++
			continue
		}
		identity, ok := identities[cid]
		if !ok {
			results[i] = models.LookupResult{CID: cid.String(), Error: models.ErrorNotFound}
			missing++
			continue
		}
		created := identity.CreatedAt
		status := consentmodels.StatusRevoked
		if p, ok := projections[cid]; ok {
			status = p.Status
		}
		results[i] = models.LookupResult{CID: cid.String(), Found: true, ConsentStatus: status, CreatedAt: &created}
		found++
	}

	s.metrics.ObserveBatch(opLookup, len(raw), start)
	s.metrics.AddItems(opLookup, "found", found)
	s.metrics.AddItems(opLookup, models.ErrorNotFound, missing)
	s.metrics.AddItems(opLookup, models.ErrorInvalidFormat, invalid)
	return results, nil
}

// BulkConsentCheck resolves a consent decision for every input identifier in
// order. Decisions come from the projections; unknown identities get the
// not_found decision and malformed ones an error entry.
func (s *Service) BulkConsentCheck(ctx context.Context, raw []string, q consentmodels.CheckQuery) ([]models.ConsentCheckResult, error) {
	ctx, span := s.tracer.Start(ctx, "registry.bulk_consent_check", trace.WithAttributes(
		attribute.Int("batch.size", len(raw)),
	))
	defer span.End()
	start := time.Now()

	batch, err := s.parseBatch(raw)
	if err != nil {
		return nil, err
	}
	identities, projections, err := s.fetch(ctx, batch.unique)
	if err != nil {
		return nil, err
	}

	var allowed, denied, invalid, missing int
	results := make([]models.ConsentCheckResult, len(batch.raw))
	for i, r := range batch.raw {
		cid := batch.parsed[i]
		if cid == "" {
			results[i] = models.ConsentCheckResult{CID: r, Error: models.ErrorInvalidFormat}
			invalid++
			continue
		}
		if _, ok := identities[cid]; !ok {
			d := consentmodels.NotFoundDecision(cid)
			results[i] = models.ConsentCheckResult{CID: cid.String(), Error: models.ErrorNotFound, Decision: &d}
			missing++
			continue
		}
		p, ok := projections[cid]
		if !ok {
			p = consentmodels.Initial(cid)
		}
		d := consentmodels.Decide(p, q)
		results[i] = models.ConsentCheckResult{CID: cid.String(), Decision: &d}
		if d.Allowed {
			allowed++
		} else {
			denied++
		}
	}

	s.metrics.ObserveBatch(opConsentCheck, len(raw), start)
	s.metrics.AddItems(opConsentCheck, "allowed", allowed)
	s.metrics.AddItems(opConsentCheck, "denied", denied)
	s.metrics.AddItems(opConsentCheck, models.ErrorNotFound, missing)
	s.metrics.AddItems(opConsentCheck, models.ErrorInvalidFormat, invalid)
	return results, nil
}

// CheckConsent resolves a single decision. A malformed CID is a validation
// error; an unknown one is a not_found decision.
func (s *Service) CheckConsent(ctx context.Context, rawCID string, q consentmodels.CheckQuery, verify bool) (consentmodels.Decision, error) {
	cid, err := id.ParseCID(strings.TrimSpace(rawCID))
	if err != nil {
		return consentmodels.Decision{}, dErrors.New(dErrors.CodeValidation, "cid is missing or malformed")
	}
	return s.consent.Check(ctx, cid, q, verify)
}

// Stats aggregates identity and consent counts.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	var (
		identities int64
		consent    consentmodels.Stats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.identities.Count(gctx)
		identities = n
		return err
	})
	g.Go(func() error {
		st, err := s.consent.Stats(gctx)
		consent = st
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Stats{}, err
	}
	return models.Stats{
		Identities:      identities,
		ActiveConsents:  consent.Active,
		RevokedConsents: consent.Revoked,
		ConsentEvents:   consent.Events,
	}, nil
}

// ContributorProfile reads a contributor by CID or by contributor id, with a
// consent summary when an identity exists.
func (s *Service) ContributorProfile(ctx context.Context, rawID string) (models.ContributorProfile, error) {
	rawID = strings.TrimSpace(rawID)

	var (
		contributorID id.ContributorID
		cid           id.CID
		err           error
	)
	if strings.HasPrefix(rawID, "cid_") {
		cid, err = id.ParseCID(rawID)
		if err != nil {
			return models.ContributorProfile{}, dErrors.New(dErrors.CodeValidation, "malformed contributor id")
		}
		contributorID, err = s.identities.Reverse(ctx, cid)
		if err != nil {
			return models.ContributorProfile{}, notFoundOr(err)
		}
	} else {
		contributorID, err = id.ParseContributorID(rawID)
		if err != nil {
			return models.ContributorProfile{}, dErrors.New(dErrors.CodeValidation, "malformed contributor id")
		}
	}

	c, err := s.contributors.Get(ctx, contributorID)
	if err != nil {
		return models.ContributorProfile{}, notFoundOr(err)
	}
	profile := models.ContributorProfile{
		ID:          c.ID.String(),
		DisplayName: c.DisplayName,
		Verified:    c.Verified,
		OptedOut:    c.OptedOut,
		Attributes:  c.Attributes,
	}
	if profile.Attributes == nil {
		profile.Attributes = map[string]string{}
	}

	if cid == "" {
		cid, err = s.identities.Resolve(ctx, contributorID)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return profile, nil
			}
			return models.ContributorProfile{}, err
		}
	}
	profile.CID = cid.String()

	d, err := s.consent.Check(ctx, cid, consentmodels.CheckQuery{}, false)
	if err != nil {
		return models.ContributorProfile{}, err
	}
	profile.Consent = &models.ConsentSummary{
		Status:            d.Status,
		Categories:        d.ConsentScope,
		GeoRestrictions:   d.GeoRestrictions,
		ContentExclusions: d.ContentExclusions,
		LastUpdated:       d.LastUpdated,
	}
	if profile.Consent.Status == "" {
		profile.Consent.Status = consentmodels.StatusRevoked
	}
	return profile, nil
}

// notFoundOr collapses any not-found into one generic message so callers
// cannot tell which half of a CID mapping was missing.
func notFoundOr(err error) error {
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "contributor not found")
	}
	return err
}

// Package service implements the identity resolver: the one-to-one mapping
// between internal contributor records and external CIDs.
package service

import (
	"context"
	"errors"
	"log/slog"

	"likeness/internal/identity/models"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/sentinel"
	"likeness/pkg/requestcontext"
)

// Store persists identities.
type Store interface {
	Create(ctx context.Context, identity models.Identity) error
	FindByContributor(ctx context.Context, contributorID id.ContributorID) (models.Identity, error)
	FindByCID(ctx context.Context, cid id.CID) (models.Identity, error)
	FindByCIDs(ctx context.Context, cids []id.CID) (map[id.CID]models.Identity, error)
	Count(ctx context.Context) (int64, error)
}

// ContributorChecker confirms a contributor record exists before an identity
// is provisioned for it.
type ContributorChecker interface {
	Exists(ctx context.Context, contributorID id.ContributorID) (bool, error)
}

type Service struct {
	store        Store
	contributors ContributorChecker
	logger       *slog.Logger
	newCID       func() id.CID
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithCIDGenerator overrides CID minting (tests).
func WithCIDGenerator(fn func() id.CID) Option {
	return func(s *Service) { s.newCID = fn }
}

func New(store Store, contributors ContributorChecker, opts ...Option) *Service {
	s := &Service{
		store:        store,
		contributors: contributors,
		logger:       slog.Default(),
		newCID:       id.NewCID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Provision creates the CID for a contributor once. Repeated calls return the
// existing identity unchanged.
func (s *Service) Provision(ctx context.Context, contributorID id.ContributorID) (models.Identity, error) {
	existing, err := s.store.FindByContributor(ctx, contributorID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return models.Identity{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identity")
	}

	ok, err := s.contributors.Exists(ctx, contributorID)
	if err != nil {
		return models.Identity{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up contributor")
	}
	if !ok {
		return models.Identity{}, dErrors.New(dErrors.CodeNotFound, "contributor not found")
	}

	identity := models.Identity{
		CID:           s.newCID(),
		ContributorID: contributorID,
		CreatedAt:     requestcontext.Now(ctx).UTC(),
	}
	if err := s.store.Create(ctx, identity); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost a race with a concurrent provision for the same contributor.
			if winner, findErr := s.store.FindByContributor(ctx, contributorID); findErr == nil {
				return winner, nil
			}
		}
		return models.Identity{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to provision identity")
	}

	s.logger.InfoContext(ctx, "identity provisioned",
		"cid", identity.CID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return identity, nil
}

// Resolve maps a contributor to its CID.
func (s *Service) Resolve(ctx context.Context, contributorID id.ContributorID) (id.CID, error) {
	identity, err := s.store.FindByContributor(ctx, contributorID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve identity")
	}
	return identity.CID, nil
}

// Reverse maps a CID back to its contributor.
func (s *Service) Reverse(ctx context.Context, cid id.CID) (id.ContributorID, error) {
	identity, err := s.store.FindByCID(ctx, cid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return id.ContributorID{}, dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return id.ContributorID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve identity")
	}
	return identity.ContributorID, nil
}

// Exists reports whether cid is a provisioned identity.
func (s *Service) Exists(ctx context.Context, cid id.CID) (bool, error) {
	_, err := s.store.FindByCID(ctx, cid)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identity")
}

// LookupMany returns the identities found among cids. Missing CIDs are simply
// absent from the result.
func (s *Service) LookupMany(ctx context.Context, cids []id.CID) (map[id.CID]models.Identity, error) {
	found, err := s.store.FindByCIDs(ctx, cids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identities")
	}
	return found, nil
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count identities")
	}
	return n, nil
}

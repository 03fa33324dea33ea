package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	apikeyservice "likeness/internal/apikey/service"
	apikeystore "likeness/internal/apikey/store"
	"likeness/internal/apikey/throttle"
	consentservice "likeness/internal/consent/service"
	consentstore "likeness/internal/consent/store"
	contributorservice "likeness/internal/contributor/service"
	contributorstore "likeness/internal/contributor/store"
	identityservice "likeness/internal/identity/service"
	identitystore "likeness/internal/identity/store"
	"likeness/internal/platform/redis"
	reviewservice "likeness/internal/review/service"
	reviewstore "likeness/internal/review/store"
	usageservice "likeness/internal/usage/service"
	usagestore "likeness/internal/usage/store"
	webhookservice "likeness/internal/webhook/service"
	webhookstore "likeness/internal/webhook/store"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/platform/sentinel"
	"likeness/pkg/platform/tx"
)

// stores groups every persistence port. Either all are in memory or all are
// Postgres; the two backends are never mixed.
type stores struct {
	identities   identityservice.Store
	consent      consentservice.Store
	consentTx    consentservice.ConsentStoreTx
	contributors contributorservice.Store
	apiKeys      apiKeyStore
	usage        usageservice.Store
	reviews      reviewservice.Store
	reviewTx     reviewservice.TxRunner
	outbox       webhookservice.Store
}

type apiKeyStore interface {
	apikeyservice.Store
	apikeyservice.Toucher
}

func newMemoryStores() stores {
	consent := consentstore.NewInMemory()
	return stores{
		identities: identitystore.NewInMemory(),
		consent:    consent,
		consentTx: consentservice.NewShardedTx(consent, func() consentservice.StagedStore {
			return consent.Stage()
		}, consentservice.DefaultTxTimeout),
		contributors: contributorstore.NewInMemory(),
		apiKeys:      apikeystore.NewInMemory(),
		usage:        usagestore.NewInMemory(),
		reviews:      reviewstore.NewInMemory(),
		reviewTx:     tx.Runner{},
		outbox:       webhookstore.NewInMemory(),
	}
}

func newPostgresStores(db *sql.DB) stores {
	consent := consentstore.NewPostgres(db)
	return stores{
		identities:   identitystore.NewPostgres(db),
		consent:      consent,
		consentTx:    newConsentPostgresTx(db, consent),
		contributors: contributorstore.NewPostgres(db),
		apiKeys:      apikeystore.NewPostgres(db),
		usage:        usagestore.NewPostgres(db),
		reviews:      reviewstore.NewPostgres(db),
		reviewTx:     tx.Runner{DB: db},
		outbox:       webhookstore.NewPostgres(db),
	}
}

// newThrottle shares the last-used window across replicas when Redis is
// configured.
func newThrottle(rdb *redis.Client, interval time.Duration, logger *slog.Logger) apikeyservice.Throttle {
	if rdb == nil {
		logger.Info("redis not configured, using in-process key touch throttle")
		return throttle.NewInMemory(interval)
	}
	return throttle.NewRedis(rdb.Client, interval)
}

// contributorDirectory answers the identity resolver's existence check from
// the contributor store directly; the contributor service itself depends on
// the identity resolver.
type contributorDirectory struct {
	store contributorservice.Store
}

func (d contributorDirectory) Exists(ctx context.Context, contributorID id.ContributorID) (bool, error) {
	_, err := d.store.Get(ctx, contributorID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load contributor")
}

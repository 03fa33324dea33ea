//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"likeness/internal/webhook/models"
	"likeness/internal/webhook/store"
	"likeness/pkg/platform/sentinel"
	"likeness/pkg/platform/tx"
	"likeness/pkg/testutil/containers"
)

type OutboxPostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	now      time.Time
}

func TestOutboxPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(OutboxPostgresSuite))
}

func (s *OutboxPostgresSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *OutboxPostgresSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "webhook_outbox"))
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *OutboxPostgresSuite) message(eventType string, emitted time.Time) models.Message {
	return models.Message{
		ID:            uuid.New(),
		EventType:     eventType,
		Payload:       []byte(`{"cid":"cid_abc123"}`),
		EmittedAt:     emitted,
		Status:        models.StatusPending,
		NextAttemptAt: emitted,
	}
}

func (s *OutboxPostgresSuite) TestClaimLeasesDueRows() {
	ctx := context.Background()
	older := s.message("registry.consent_updated", s.now.Add(-time.Minute))
	newer := s.message("registry.consent_revoked", s.now)
	future := s.message("usage.recorded", s.now.Add(time.Hour))
	for _, m := range []models.Message{newer, older, future} {
		s.Require().NoError(s.store.Enqueue(ctx, m))
	}

	claimed, err := s.store.ClaimDue(ctx, s.now, 10, time.Minute)
	s.Require().NoError(err)
	s.Require().Len(claimed, 2)
	s.Equal(older.ID, claimed[0].ID)
	s.Equal(newer.ID, claimed[1].ID)
	s.JSONEq(`{"cid":"cid_abc123"}`, string(claimed[0].Payload))

	again, err := s.store.ClaimDue(ctx, s.now, 10, time.Minute)
	s.Require().NoError(err)
	s.Empty(again, "leased rows are invisible until the lease expires")

	expired, err := s.store.ClaimDue(ctx, s.now.Add(2*time.Minute), 10, time.Minute)
	s.Require().NoError(err)
	s.Len(expired, 2)
}

func (s *OutboxPostgresSuite) TestStatusTransitions() {
	ctx := context.Background()
	a := s.message("registry.consent_updated", s.now)
	b := s.message("usage.recorded", s.now)
	s.Require().NoError(s.store.Enqueue(ctx, a))
	s.Require().NoError(s.store.Enqueue(ctx, b))

	s.Require().NoError(s.store.MarkRetry(ctx, a.ID, 1, s.now.Add(time.Minute), "subscriber responded 500"))
	got, err := s.store.Get(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(1, got.Attempts)
	s.Equal("subscriber responded 500", got.LastError)
	s.Equal(models.StatusPending, got.Status)

	s.Require().NoError(s.store.MarkDelivered(ctx, a.ID, 2, s.now.Add(2*time.Minute)))
	s.Require().NoError(s.store.MarkDead(ctx, b.ID, 8, "timeout"))

	got, err = s.store.Get(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDelivered, got.Status)
	s.Require().NotNil(got.DeliveredAt)
	s.Empty(got.LastError)

	counts, err := s.store.CountByStatus(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), counts[models.StatusDelivered])
	s.Equal(int64(1), counts[models.StatusDead])

	s.ErrorIs(s.store.MarkDead(ctx, uuid.New(), 1, "x"), sentinel.ErrNotFound)
	s.Require().NoError(s.store.Enqueue(ctx, s.message("usage.recorded", s.now)))
	s.ErrorIs(s.store.Enqueue(ctx, a), sentinel.ErrConflict)
}

func (s *OutboxPostgresSuite) TestEnqueueRollsBackWithTransaction() {
	ctx := context.Background()
	sqlTx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)

	msg := s.message("contributor.opted_out", s.now)
	s.Require().NoError(s.store.Enqueue(tx.WithTx(ctx, sqlTx), msg))
	s.Require().NoError(sqlTx.Rollback())

	_, err = s.store.Get(ctx, msg.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}


package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"likeness/internal/consent/models"
	"likeness/internal/consent/store"
	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
	"likeness/pkg/requestcontext"
)

type fakeIdentities map[id.CID]bool

func (f fakeIdentities) Exists(_ context.Context, cid id.CID) (bool, error) {
	return f[cid], nil
}

type recordedNotification struct {
	eventType string
	payload   any
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []recordedNotification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, eventType string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, recordedNotification{eventType: eventType, payload: payload})
	return nil
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, r := range n.sent {
		out = append(out, r.eventType)
	}
	return out
}

type ConsentServiceSuite struct {
	suite.Suite
	ctx        context.Context
	store      *store.InMemory
	identities fakeIdentities
	notifier   *recordingNotifier
	service    *Service
	base       time.Time
}

func TestConsentServiceSuite(t *testing.T) {
	suite.Run(t, new(ConsentServiceSuite))
}

func (s *ConsentServiceSuite) SetupTest() {
	s.base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.base.Add(time.Hour))
	s.store = store.NewInMemory()
	s.identities = fakeIdentities{}
	s.notifier = &recordingNotifier{}
	mem := s.store
	tx := NewShardedTx(mem, func() StagedStore { return mem.Stage() }, 0)
	s.service = New(tx, s.store, s.identities, WithNotifier(s.notifier))
}

func (s *ConsentServiceSuite) known(raw string) id.CID {
	cid := id.CID(raw)
	s.identities[cid] = true
	return cid
}

func (s *ConsentServiceSuite) append(cmd AppendCommand) models.Event {
	event, err := s.service.Append(s.ctx, cmd)
	s.Require().NoError(err)
	return event
}

func (s *ConsentServiceSuite) at(minutes int) time.Time {
	return s.base.Add(time.Duration(minutes) * time.Minute)
}

func (s *ConsentServiceSuite) TestScenario() {
	cid := s.known("cid_abc123")
	commercial := models.CheckQuery{UseType: id.CategoryCommercial}

	s.append(AppendCommand{CID: cid, Type: models.EventGrant, CreatedAt: s.at(1),
		Categories: models.Categories{id.CategoryCommercial: true}})
	s.append(AppendCommand{CID: cid, Type: models.EventScopeUpdate, CreatedAt: s.at(2),
		Categories: models.Categories{id.CategoryEditorial: true}})
	s.append(AppendCommand{CID: cid, Type: models.EventRevoke, CreatedAt: s.at(3)})

	decision, err := s.service.Check(s.ctx, cid, commercial, false)
	s.Require().NoError(err)
	s.False(decision.Allowed)
	s.Equal([]string{models.ReasonRevoked}, decision.Reasons)

	s.append(AppendCommand{CID: cid, Type: models.EventReinstate, CreatedAt: s.at(4),
		Categories: models.Categories{id.CategoryCommercial: true}})

	decision, err = s.service.Check(s.ctx, cid, commercial, false)
	s.Require().NoError(err)
	s.True(decision.Allowed)
	s.Require().NotNil(decision.LastUpdated)
	s.Equal(s.at(4), *decision.LastUpdated)
}

func (s *ConsentServiceSuite) TestRevocationIsAbsolute() {
	cid := s.known("cid_revoked01")
	s.append(AppendCommand{CID: cid, Type: models.EventGrant,
		Categories: models.Categories{id.CategoryCommercial: true, id.CategoryResearch: true}})
	s.append(AppendCommand{CID: cid, Type: models.EventScopeUpdate,
		Categories: models.Categories{id.CategoryAITraining: true}})
	s.append(AppendCommand{CID: cid, Type: models.EventRevoke})

	for _, category := range []id.ConsentCategory{id.CategoryCommercial, id.CategoryResearch, id.CategoryAITraining, ""} {
		for _, verify := range []bool{false, true} {
			decision, err := s.service.Check(s.ctx, cid, models.CheckQuery{UseType: category}, verify)
			s.Require().NoError(err)
			s.False(decision.Allowed, "category %q verify %v", category, verify)
		}
	}
}

func (s *ConsentServiceSuite) TestCheck() {
	s.Run("unknown identity answers not_found without error", func() {
		decision, err := s.service.Check(s.ctx, id.CID("cid_nobody1"), models.CheckQuery{}, true)
		s.Require().NoError(err)
		s.False(decision.Allowed)
		s.Equal([]string{models.ReasonNotFound}, decision.Reasons)
	})

	s.Run("known identity without history is not granted", func() {
		cid := s.known("cid_fresh01")
		decision, err := s.service.Check(s.ctx, cid, models.CheckQuery{UseType: id.CategoryCommercial}, false)
		s.Require().NoError(err)
		s.False(decision.Allowed)
		s.Equal([]string{models.ReasonNotGranted}, decision.Reasons)
		s.Nil(decision.LastUpdated)
	})

	s.Run("missing category denies by default", func() {
		cid := s.known("cid_partial1")
		s.append(AppendCommand{CID: cid, Type: models.EventGrant,
			Categories: models.Categories{id.CategoryEditorial: true}})
		decision, err := s.service.Check(s.ctx, cid, models.CheckQuery{UseType: id.CategoryCommercial}, false)
		s.Require().NoError(err)
		s.False(decision.Allowed)
		s.Equal([]string{models.ReasonCategoryNotGranted}, decision.Reasons)
	})

	s.Run("region and modality narrow an allowed category", func() {
		cid := s.known("cid_narrow01")
		s.append(AppendCommand{CID: cid, Type: models.EventGrant,
			Categories:        models.Categories{id.CategoryCommercial: true},
			GeoRestrictions:   []string{"de", " fr "},
			ContentExclusions: []string{"Deepfake"}})

		decision, err := s.service.Check(s.ctx, cid, models.CheckQuery{UseType: id.CategoryCommercial, Region: "DE"}, false)
		s.Require().NoError(err)
		s.False(decision.Allowed)
		s.Contains(decision.Reasons, models.ReasonRegionRestricted)
		s.Equal([]string{"DE", "FR"}, decision.GeoRestrictions)

		decision, err = s.service.Check(s.ctx, cid, models.CheckQuery{UseType: id.CategoryCommercial, Modality: "deepfake"}, false)
		s.Require().NoError(err)
		s.False(decision.Allowed)
		s.Contains(decision.Reasons, models.ReasonModalityExcluded)

		decision, err = s.service.Check(s.ctx, cid, models.CheckQuery{UseType: id.CategoryCommercial, Region: "US", Modality: "print"}, false)
		s.Require().NoError(err)
		s.True(decision.Allowed)
	})
}

func (s *ConsentServiceSuite) TestVerifyMatchesProjection() {
	cid := s.known("cid_equiv001")
	steps := []AppendCommand{
		{Type: models.EventGrant, Categories: models.Categories{id.CategoryCommercial: true}},
		{Type: models.EventScopeUpdate, Categories: models.Categories{id.CategoryEditorial: true, id.CategoryCommercial: false}},
		{Type: models.EventScopeUpdate, GeoRestrictions: []string{"CN"}},
		{Type: models.EventRevoke},
		{Type: models.EventReinstate},
		{Type: models.EventScopeUpdate, ContentExclusions: []string{"nsfw"}},
	}
	queries := []models.CheckQuery{
		{},
		{UseType: id.CategoryCommercial},
		{UseType: id.CategoryEditorial},
		{UseType: id.CategoryEditorial, Region: "cn"},
		{UseType: id.CategoryEditorial, Modality: "NSFW"},
		{UseType: id.CategoryResearch},
	}
	for i, step := range steps {
		step.CID = cid
		s.append(step)
		for _, q := range queries {
			fast, err := s.service.Check(s.ctx, cid, q, false)
			s.Require().NoError(err)
			verified, err := s.service.Check(s.ctx, cid, q, true)
			s.Require().NoError(err)
			s.Equal(fast.Allowed, verified.Allowed, "step %d query %+v", i, q)
			s.Equal(fast.ConsentScope, verified.ConsentScope, "step %d query %+v", i, q)
			s.Equal(fast.Reasons, verified.Reasons, "step %d query %+v", i, q)
		}
	}

	s.Run("reinstate without scope restores the pre-revocation categories", func() {
		decision, err := s.service.Check(s.ctx, cid, models.CheckQuery{UseType: id.CategoryEditorial}, true)
		s.Require().NoError(err)
		s.Equal(models.Categories{id.CategoryEditorial: true, id.CategoryCommercial: false}, decision.ConsentScope)
	})
}

func (s *ConsentServiceSuite) TestDriftAndRebuild() {
	cid := s.known("cid_drift001")
	s.append(AppendCommand{CID: cid, Type: models.EventGrant, Categories: models.Categories{id.CategoryCommercial: true}})
	s.append(AppendCommand{CID: cid, Type: models.EventRevoke})

	corrupted, err := s.store.GetProjection(s.ctx, cid)
	s.Require().NoError(err)
	corrupted.Status = models.StatusActive
	corrupted.Categories = models.Categories{id.CategoryCommercial: true}
	s.Require().NoError(s.store.PutProjection(s.ctx, corrupted))

	q := models.CheckQuery{UseType: id.CategoryCommercial}

	s.Run("projection path trusts the stored state", func() {
		decision, err := s.service.Check(s.ctx, cid, q, false)
		s.Require().NoError(err)
		s.True(decision.Allowed)
	})

	s.Run("verify answers from the replayed ledger", func() {
		decision, err := s.service.Check(s.ctx, cid, q, true)
		s.Require().NoError(err)
		s.False(decision.Allowed)
		s.True(decision.Verified)
	})

	s.Run("rebuild repairs the projection", func() {
		rebuilt, drifted, err := s.service.RebuildProjection(s.ctx, cid)
		s.Require().NoError(err)
		s.True(drifted)
		s.Equal(models.StatusRevoked, rebuilt.Status)

		decision, err := s.service.Check(s.ctx, cid, q, false)
		s.Require().NoError(err)
		s.False(decision.Allowed)

		_, drifted, err = s.service.RebuildProjection(s.ctx, cid)
		s.Require().NoError(err)
		s.False(drifted)
	})

	s.Run("rebuild of an unknown identity is not found", func() {
		_, _, err := s.service.RebuildProjection(s.ctx, id.CID("cid_nobody2"))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ConsentServiceSuite) TestAppendValidation() {
	cid := s.known("cid_valid001")

	cases := []struct {
		name string
		cmd  AppendCommand
		code dErrors.Code
	}{
		{"unknown identity", AppendCommand{CID: "cid_nobody3", Type: models.EventGrant}, dErrors.CodeNotFound},
		{"invalid event type", AppendCommand{CID: cid, Type: "erase"}, dErrors.CodeValidation},
		{"revoke with scope", AppendCommand{CID: cid, Type: models.EventRevoke,
			Categories: models.Categories{id.CategoryCommercial: true}}, dErrors.CodeValidation},
		{"empty scope update", AppendCommand{CID: cid, Type: models.EventScopeUpdate}, dErrors.CodeValidation},
		{"malformed category", AppendCommand{CID: cid, Type: models.EventGrant,
			Categories: models.Categories{"Allow Commercial": true}}, dErrors.CodeValidation},
		{"blank geo entry", AppendCommand{CID: cid, Type: models.EventGrant,
			GeoRestrictions: []string{"  "}}, dErrors.CodeValidation},
		{"scope update while revoked", AppendCommand{CID: cid, Type: models.EventScopeUpdate,
			Categories: models.Categories{id.CategoryCommercial: true}}, dErrors.CodeValidation},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.Append(s.ctx, tc.cmd)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}

	events, err := s.service.History(s.ctx, cid)
	s.Require().NoError(err)
	s.Empty(events)
	s.Empty(s.notifier.types())
}

func (s *ConsentServiceSuite) TestTimestamps() {
	cid := s.known("cid_clock001")
	first := s.append(AppendCommand{CID: cid, Type: models.EventGrant, CreatedAt: s.at(30)})

	s.Run("supplied timestamp before the latest event is rejected", func() {
		_, err := s.service.Append(s.ctx, AppendCommand{CID: cid, Type: models.EventRevoke, CreatedAt: s.at(10)})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("supplied timestamp far in the future is rejected", func() {
		_, err := s.service.Append(s.ctx, AppendCommand{CID: cid, Type: models.EventRevoke, CreatedAt: s.at(24 * 60)})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("assigned timestamp never precedes history", func() {
		past := requestcontext.WithTime(context.Background(), s.at(5))
		event, err := s.service.Append(past, AppendCommand{CID: cid, Type: models.EventRevoke})
		s.Require().NoError(err)
		s.Equal(first.CreatedAt, event.CreatedAt)
		s.Equal(int64(2), event.Seq)
	})

	s.Run("missing timestamp is taken from the request clock", func() {
		event := s.append(AppendCommand{CID: cid, Type: models.EventReinstate})
		s.Equal(s.base.Add(time.Hour), event.CreatedAt)
	})
}

func (s *ConsentServiceSuite) TestConcurrentAppendsStayOrdered() {
	cid := s.known("cid_race0001")
	s.append(AppendCommand{CID: cid, Type: models.EventGrant, Categories: models.Categories{id.CategoryCommercial: true}})

	const writers = 24
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmd := AppendCommand{CID: cid, Type: models.EventScopeUpdate,
				Categories: models.Categories{id.CategoryResearch: i%2 == 0}}
			_, err := s.service.Append(s.ctx, cmd)
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	events, err := s.service.History(s.ctx, cid)
	s.Require().NoError(err)
	s.Require().Len(events, writers+1)
	for i, e := range events {
		s.Equal(int64(i+1), e.Seq)
		if i > 0 {
			s.False(e.CreatedAt.Before(events[i-1].CreatedAt))
		}
	}

	current, err := s.service.Current(s.ctx, cid)
	s.Require().NoError(err)
	replayed, err := models.Replay(cid, events)
	s.Require().NoError(err)
	s.True(replayed.Equivalent(current))
}

func (s *ConsentServiceSuite) TestNotifications() {
	cid := s.known("cid_notify01")

	s.Run("each append enqueues the matching registry event", func() {
		s.append(AppendCommand{CID: cid, Type: models.EventGrant})
		s.append(AppendCommand{CID: cid, Type: models.EventRevoke,
			Notifications: []Notification{{Type: "contributor.opted_out", Payload: map[string]string{"cid": cid.String()}}}})
		s.Equal([]string{NotifyConsentUpdated, NotifyConsentRevoked, "contributor.opted_out"}, s.notifier.types())
	})

	s.Run("a failed enqueue rolls the append back", func() {
		s.notifier.err = errors.New("outbox full")
		defer func() { s.notifier.err = nil }()

		_, err := s.service.Append(s.ctx, AppendCommand{CID: cid, Type: models.EventReinstate})
		s.Require().Error(err)

		events, err := s.service.History(s.ctx, cid)
		s.Require().NoError(err)
		s.Len(events, 2)
		current, err := s.service.Current(s.ctx, cid)
		s.Require().NoError(err)
		s.Equal(models.StatusRevoked, current.Status)
	})

	s.Run("a failing in-transaction hook rolls the append back", func() {
		_, err := s.service.Append(s.ctx, AppendCommand{CID: cid, Type: models.EventReinstate,
			WithinTx: func(context.Context) error { return dErrors.New(dErrors.CodeConflict, "flag changed") }})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		events, err := s.service.History(s.ctx, cid)
		s.Require().NoError(err)
		s.Len(events, 2)
	})
}

func (s *ConsentServiceSuite) TestPrecondition() {
	cid := s.known("cid_precond1")
	s.append(AppendCommand{CID: cid, Type: models.EventGrant, Source: "dashboard"})
	s.append(AppendCommand{CID: cid, Type: models.EventScopeUpdate,
		Categories: models.Categories{id.CategoryResearch: true}})

	s.Run("sees the projection and the latest status event", func() {
		var seen LedgerState
		var last models.Event
		s.append(AppendCommand{CID: cid, Type: models.EventScopeUpdate,
			Categories: models.Categories{id.CategoryResearch: false},
			Precondition: func(_ context.Context, state LedgerState) error {
				seen = state
				var err error
				last, _, err = state.LastStatusEvent()
				return err
			}})
		s.Equal(models.StatusActive, seen.Current.Status)
		s.Equal(int64(2), seen.Current.LastSeq)
		s.Equal(models.EventGrant, last.Type)
		s.Equal("dashboard", last.Source)
	})

	s.Run("a skipped event still commits the hook and notifications", func() {
		before := len(s.notifier.types())
		hookRan := false
		event, err := s.service.Append(s.ctx, AppendCommand{CID: cid, Type: models.EventRevoke,
			Precondition:  func(context.Context, LedgerState) error { return ErrSkipEvent },
			WithinTx:      func(context.Context) error { hookRan = true; return nil },
			Notifications: []Notification{{Type: "contributor.opted_out"}}})
		s.Require().NoError(err)
		s.Zero(event.Seq)
		s.True(hookRan)
		s.Equal([]string{"contributor.opted_out"}, s.notifier.types()[before:])

		events, err := s.service.History(s.ctx, cid)
		s.Require().NoError(err)
		s.Len(events, 3)
	})

	s.Run("a rejecting precondition writes nothing", func() {
		before := len(s.notifier.types())
		_, err := s.service.Append(s.ctx, AppendCommand{CID: cid, Type: models.EventRevoke,
			Precondition: func(context.Context, LedgerState) error {
				return dErrors.New(dErrors.CodeForbidden, "opted out")
			},
			WithinTx: func(context.Context) error { s.Fail("hook must not run"); return nil }})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		current, err := s.service.Current(s.ctx, cid)
		s.Require().NoError(err)
		s.Equal(models.StatusActive, current.Status)
		s.Len(s.notifier.types(), before)
	})

	s.Run("no status event on an empty ledger", func() {
		fresh := s.known("cid_precond2")
		var ok bool
		s.append(AppendCommand{CID: fresh, Type: models.EventGrant,
			Precondition: func(_ context.Context, state LedgerState) error {
				var err error
				_, ok, err = state.LastStatusEvent()
				return err
			}})
		s.False(ok)
	})
}

func (s *ConsentServiceSuite) TestStats() {
	a := s.known("cid_stats001")
	b := s.known("cid_stats002")
	s.append(AppendCommand{CID: a, Type: models.EventGrant})
	s.append(AppendCommand{CID: b, Type: models.EventGrant})
	s.append(AppendCommand{CID: b, Type: models.EventRevoke})

	stats, err := s.service.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.Stats{Active: 1, Revoked: 1, Events: 3}, stats)
}

func TestShardedTxHonoursCancellation(t *testing.T) {
	mem := store.NewInMemory()
	tx := NewShardedTx(mem, nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := tx.RunInTx(ctx, id.CID("cid_cancel01"), func(context.Context, Store) error {
		called = true
		return nil
	})
	if !dErrors.HasCode(err, dErrors.CodeTimeout) {
		t.Fatalf("expected timeout code, got %v", err)
	}
	if called {
		t.Fatal("fn ran on a cancelled context")
	}
}

func TestBoundTx(t *testing.T) {
	t.Run("adds the default deadline", func(t *testing.T) {
		ctx, cancel, err := BoundTx(context.Background(), 0)
		defer cancel()
		if err != nil {
			t.Fatal(err)
		}
		deadline, ok := ctx.Deadline()
		if !ok || time.Until(deadline) > DefaultTxTimeout {
			t.Fatalf("unexpected deadline %v (set=%v)", deadline, ok)
		}
	})

	t.Run("keeps the caller deadline", func(t *testing.T) {
		parent, cancelParent := context.WithTimeout(context.Background(), time.Hour)
		defer cancelParent()
		want, _ := parent.Deadline()

		ctx, cancel, err := BoundTx(parent, time.Second)
		defer cancel()
		if err != nil {
			t.Fatal(err)
		}
		if got, _ := ctx.Deadline(); !got.Equal(want) {
			t.Fatalf("deadline changed: %v", got)
		}
	})
}

func TestShardForIsStable(t *testing.T) {
	cid := id.CID("cid_stable01")
	if ShardFor(cid) != ShardFor(cid) {
		t.Fatal("shard must be deterministic")
	}
	if s := ShardFor(cid); s < 0 || s >= numConsentShards {
		t.Fatalf("shard %d out of range", s)
	}
}

package corroborate

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crisispulse/internal/claims"
	"crisispulse/internal/config"
	apperrors "crisispulse/internal/errors"
	"crisispulse/internal/eventstore"
	"crisispulse/internal/infrastructure"
	"crisispulse/internal/metrics"
	"crisispulse/internal/registry"
)

type fixture struct {
	db      *sql.DB
	matcher *Matcher
	tracker *claims.Tracker
	events  *eventstore.Store
	entity  *registry.Entity
	tier1   *registry.Source
	tier3   *registry.Source
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := infrastructure.OpenMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := config.Default()
	m := metrics.New()
	reg := registry.NewStore(db)
	tracker := claims.NewTracker(db, reg, cfg.Claims, m, logger)
	events := eventstore.NewStore(db, reg, m, logger)
	matcher := NewMatcher(db, tracker, events, reg, cfg.Matcher, m, logger)

	ctx := context.Background()
	entity, err := reg.CreateEntity(ctx, registry.Entity{Type: registry.EntityBank, DisplayName: "Meridian Savings"})
	require.NoError(t, err)
	tier1, err := reg.CreateSource(ctx, registry.Source{Name: "Fed Notices", Kind: registry.SourceFiling, TrustTier: registry.TierOfficial})
	require.NoError(t, err)
	tier3, err := reg.CreateSource(ctx, registry.Source{Name: "FinTwit", Kind: registry.SourceScrape, TrustTier: registry.TierUnverified})
	require.NoError(t, err)

	return &fixture{db: db, matcher: matcher, tracker: tracker, events: events,
		entity: entity, tier1: tier1, tier3: tier3}
}

func (f *fixture) createClaim(t *testing.T, ct claims.ClaimType) *claims.Claim {
	t.Helper()
	c, err := f.tracker.Create(context.Background(), claims.CreateRequest{
		EntityID:    f.entity.ID,
		SourceID:    f.tier3.ID,
		Type:        ct,
		Content:     "unconfirmed chatter",
		Credibility: 50,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) ingestEvent(t *testing.T, et eventstore.EventType, sourceID string, payload string) *eventstore.Event {
	t.Helper()
	res, err := f.events.Ingest(context.Background(), eventstore.IngestRequest{
		Type:     et,
		EntityID: f.entity.ID,
		SourceID: sourceID,
		Payload:  json.RawMessage(payload),
	})
	require.NoError(t, err)
	ev, err := f.events.Get(context.Background(), res.EventID)
	require.NoError(t, err)
	return ev
}

func TestConfidence(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()

	claim := &claims.Claim{
		EntityID:  f.entity.ID,
		Type:      claims.ClaimBankRunRumor,
		CreatedAt: now,
	}

	t.Run("same entity, compatible type, fresh", func(t *testing.T) {
		ev := &eventstore.Event{EntityID: f.entity.ID, Type: eventstore.EventDepositOutflow, ObservedAt: now}
		got := f.matcher.Confidence(claim, ev)
		// 0.4*1 + 0.35*1 + 0.25*1 = 1.0
		assert.InDelta(t, 1.0, got, 1e-9)
	})

	t.Run("mismatched entity zeroes the entity component", func(t *testing.T) {
		ev := &eventstore.Event{EntityID: "someone-else", Type: eventstore.EventDepositOutflow, ObservedAt: now}
		got := f.matcher.Confidence(claim, ev)
		assert.InDelta(t, 0.6, got, 1e-9)
	})

	t.Run("unscoped event scores the entity component at half", func(t *testing.T) {
		ev := &eventstore.Event{Type: eventstore.EventDepositOutflow, ObservedAt: now}
		got := f.matcher.Confidence(claim, ev)
		assert.InDelta(t, 0.8, got, 1e-9)
	})

	t.Run("incompatible type zeroes the type component", func(t *testing.T) {
		ev := &eventstore.Event{EntityID: f.entity.ID, Type: eventstore.EventSettlementFail, ObservedAt: now}
		got := f.matcher.Confidence(claim, ev)
		assert.InDelta(t, 0.65, got, 1e-9)
	})

	t.Run("temporal component halves at the half-life", func(t *testing.T) {
		ev := &eventstore.Event{EntityID: f.entity.ID, Type: eventstore.EventDepositOutflow,
			ObservedAt: now.Add(48 * time.Hour)}
		got := f.matcher.Confidence(claim, ev)
		assert.InDelta(t, 0.4+0.35+0.25*0.5, got, 1e-6)
	})
}

func TestSubmitPairIsUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.createClaim(t, claims.ClaimBankRunRumor)
	ev := f.ingestEvent(t, eventstore.EventDepositOutflow, f.tier3.ID, `{"branch":"downtown"}`)

	first, err := f.matcher.Submit(ctx, SubmitRequest{
		ClaimID: c.ID, EventID: ev.ID, Confidence: 0.3, Rationale: "weak"})
	require.NoError(t, err)

	second, err := f.matcher.Submit(ctx, SubmitRequest{
		ClaimID: c.ID, EventID: ev.ID, Confidence: 0.5, Rationale: "stronger"})
	require.NoError(t, err)

	assert.Equal(t, first.Corroboration.ID, second.Corroboration.ID)
	assert.Equal(t, 0.5, second.Corroboration.Confidence)
	assert.Equal(t, "stronger", second.Corroboration.Rationale)

	list, err := f.matcher.ListForClaim(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, list, 1, "resubmission must not create a second row")
}

func TestSubmitAutoConfirms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.createClaim(t, claims.ClaimBankRunRumor)
	ev := f.ingestEvent(t, eventstore.EventDepositOutflow, f.tier1.ID, `{"outflow_pct":12}`)

	res, err := f.matcher.Submit(ctx, SubmitRequest{
		ClaimID: c.ID, EventID: ev.ID, Confidence: 0.9, Rationale: "official outflow data"})
	require.NoError(t, err)
	assert.Equal(t, "confirmed", res.ClaimAction)

	stored, err := f.tracker.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, claims.StatusConfirmed, stored.Status)
	assert.Contains(t, stored.StatusReason, ev.ID)
}

func TestSubmitBelowThresholdLeavesStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.createClaim(t, claims.ClaimBankRunRumor)
	ev := f.ingestEvent(t, eventstore.EventDepositOutflow, f.tier3.ID, `{"note":"thin"}`)

	res, err := f.matcher.Submit(ctx, SubmitRequest{
		ClaimID: c.ID, EventID: ev.ID, Confidence: 0.74, Rationale: "just under"})
	require.NoError(t, err)
	assert.Empty(t, res.ClaimAction)

	stored, err := f.tracker.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, claims.StatusNew, stored.Status)
}

func TestSubmitContradiction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("tier-1 contradiction debunks", func(t *testing.T) {
		c := f.createClaim(t, claims.ClaimInsolvencyRumor)
		ev := f.ingestEvent(t, eventstore.EventRegulatoryAction, f.tier1.ID, `{"finding":"well capitalized"}`)

		res, err := f.matcher.Submit(ctx, SubmitRequest{
			ClaimID: c.ID, EventID: ev.ID, Confidence: 0.8, Contradicts: true,
			Rationale: "examiner report contradicts rumor"})
		require.NoError(t, err)
		assert.Equal(t, "debunked", res.ClaimAction)

		stored, err := f.tracker.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, claims.StatusDebunked, stored.Status)
	})

	t.Run("tier-3 contradiction is stored but does not debunk", func(t *testing.T) {
		c := f.createClaim(t, claims.ClaimInsolvencyRumor)
		ev := f.ingestEvent(t, eventstore.EventOther, f.tier3.ID, `{"note":"counter-rumor"}`)

		res, err := f.matcher.Submit(ctx, SubmitRequest{
			ClaimID: c.ID, EventID: ev.ID, Confidence: 0.8, Contradicts: true,
			Rationale: "anonymous pushback"})
		require.NoError(t, err)
		assert.Empty(t, res.ClaimAction)

		stored, err := f.tracker.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, claims.StatusNew, stored.Status)
	})
}

func TestSubmitAgainstTerminalClaimIsStoredOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.createClaim(t, claims.ClaimBankRunRumor)
	confirming := f.ingestEvent(t, eventstore.EventDepositOutflow, f.tier1.ID, `{"seq":1}`)
	_, err := f.matcher.Submit(ctx, SubmitRequest{
		ClaimID: c.ID, EventID: confirming.ID, Confidence: 0.9, Rationale: "confirm"})
	require.NoError(t, err)

	contradicting := f.ingestEvent(t, eventstore.EventRegulatoryAction, f.tier1.ID, `{"seq":2}`)
	res, err := f.matcher.Submit(ctx, SubmitRequest{
		ClaimID: c.ID, EventID: contradicting.ID, Confidence: 0.9, Contradicts: true,
		Rationale: "late contradiction"})
	require.NoError(t, err)
	assert.Empty(t, res.ClaimAction, "terminal claims never change status")

	stored, err := f.tracker.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, claims.StatusConfirmed, stored.Status)

	list, err := f.matcher.ListForClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSubmitReopensStaleClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.createClaim(t, claims.ClaimBankRunRumor)
	_, err := f.db.Exec(`UPDATE claims SET created_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-10*24*time.Hour), c.ID)
	require.NoError(t, err)
	swept, err := f.tracker.SweepStale(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	ev := f.ingestEvent(t, eventstore.EventDepositOutflow, f.tier1.ID, `{"late":"evidence"}`)
	res, err := f.matcher.Submit(ctx, SubmitRequest{
		ClaimID: c.ID, EventID: ev.ID, Confidence: 0.9, Rationale: "evidence arrived late"})
	require.NoError(t, err)
	assert.Equal(t, "confirmed", res.ClaimAction)

	stored, err := f.tracker.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, claims.StatusConfirmed, stored.Status)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.createClaim(t, claims.ClaimBankRunRumor)
	ev := f.ingestEvent(t, eventstore.EventDepositOutflow, f.tier1.ID, `{"seq":1}`)

	t.Run("confidence out of range", func(t *testing.T) {
		_, err := f.matcher.Submit(ctx, SubmitRequest{ClaimID: c.ID, EventID: ev.ID, Confidence: 1.2})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("unknown claim", func(t *testing.T) {
		_, err := f.matcher.Submit(ctx, SubmitRequest{ClaimID: "missing", EventID: ev.ID, Confidence: 0.5})
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("unknown event", func(t *testing.T) {
		_, err := f.matcher.Submit(ctx, SubmitRequest{ClaimID: c.ID, EventID: "missing", Confidence: 0.5})
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("bad matched_by", func(t *testing.T) {
		_, err := f.matcher.Submit(ctx, SubmitRequest{ClaimID: c.ID, EventID: ev.ID, Confidence: 0.5, MatchedBy: "oracle"})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestAutoMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.createClaim(t, claims.ClaimBankRunRumor)
	ev := f.ingestEvent(t, eventstore.EventDepositOutflow, f.tier1.ID, `{"outflow_pct":9}`)

	res, err := f.matcher.AutoMatch(ctx, c.ID, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, MatchedAutomatic, res.Corroboration.MatchedBy)
	// Same entity, compatible type, observed just now: confidence is near 1
	// and clears the confirm threshold.
	assert.Greater(t, res.Corroboration.Confidence, 0.9)
	assert.Equal(t, "confirmed", res.ClaimAction)
}

func TestConfirmedForEntity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.createClaim(t, claims.ClaimBankRunRumor)
	ev := f.ingestEvent(t, eventstore.EventDepositOutflow, f.tier1.ID, `{"seq":1}`)
	res, err := f.matcher.Submit(ctx, SubmitRequest{
		ClaimID: c.ID, EventID: ev.ID, Confidence: 0.9, Rationale: "confirm"})
	require.NoError(t, err)

	// A second claim left unconfirmed must not count.
	other := f.createClaim(t, claims.ClaimInsolvencyRumor)
	ev2 := f.ingestEvent(t, eventstore.EventFiling, f.tier3.ID, `{"seq":2}`)
	_, err = f.matcher.Submit(ctx, SubmitRequest{
		ClaimID: other.ID, EventID: ev2.ID, Confidence: 0.2, Rationale: "weak"})
	require.NoError(t, err)

	now := time.Now().UTC()
	ids, err := f.matcher.ListConfirmedForEntity(ctx, f.entity.ID, now.Add(-24*time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, res.Corroboration.ID, ids[0])

	n, err := f.matcher.CountConfirmedForEntity(ctx, f.entity.ID, now.Add(-24*time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ids, err = f.matcher.ListConfirmedForEntity(ctx, "someone-else", now.Add(-24*time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

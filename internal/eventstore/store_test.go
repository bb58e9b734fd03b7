package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "crisispulse/internal/errors"
	"crisispulse/internal/infrastructure"
	"crisispulse/internal/metrics"
	"crisispulse/internal/registry"
)

type fixture struct {
	db       *sql.DB
	store    *Store
	registry *registry.Store
	entity   *registry.Entity
	tier1    *registry.Source
	tier3    *registry.Source
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := infrastructure.OpenMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	reg := registry.NewStore(db)
	store := NewStore(db, reg, metrics.New(), logger)

	ctx := context.Background()
	entity, err := reg.CreateEntity(ctx, registry.Entity{Type: registry.EntityBank, DisplayName: "First Continental"})
	require.NoError(t, err)
	tier1, err := reg.CreateSource(ctx, registry.Source{Name: "Fed Notices", Kind: registry.SourceFiling, TrustTier: registry.TierOfficial})
	require.NoError(t, err)
	tier3, err := reg.CreateSource(ctx, registry.Source{Name: "FinTwit", Kind: registry.SourceScrape, TrustTier: registry.TierUnverified})
	require.NoError(t, err)

	return &fixture{db: db, store: store, registry: reg, entity: entity, tier1: tier1, tier3: tier3}
}

func TestIngestIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := IngestRequest{
		Type:     EventRegulatoryAction,
		EntityID: f.entity.ID,
		SourceID: f.tier1.ID,
		Payload:  json.RawMessage(`{"docket":"24-117","action":"consent order"}`),
	}

	first, err := f.store.Ingest(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.WasDuplicate)

	second, err := f.store.Ingest(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.WasDuplicate)
	assert.Equal(t, first.EventID, second.EventID)

	count, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIngestHashIgnoresPayloadKeyOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := IngestRequest{Type: EventFiling, SourceID: f.tier1.ID,
		Payload: json.RawMessage(`{"a":1,"b":"x"}`)}
	b := IngestRequest{Type: EventFiling, SourceID: f.tier1.ID,
		Payload: json.RawMessage(`{"b":"x","a":1}`)}

	first, err := f.store.Ingest(ctx, a)
	require.NoError(t, err)
	second, err := f.store.Ingest(ctx, b)
	require.NoError(t, err)
	assert.True(t, second.WasDuplicate)
	assert.Equal(t, first.EventID, second.EventID)
}

func TestIngestDistinctPayloadsAreDistinctEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.store.Ingest(ctx, IngestRequest{Type: EventFiling, SourceID: f.tier1.ID,
		Payload: json.RawMessage(`{"seq":1}`)})
	require.NoError(t, err)
	second, err := f.store.Ingest(ctx, IngestRequest{Type: EventFiling, SourceID: f.tier1.ID,
		Payload: json.RawMessage(`{"seq":2}`)})
	require.NoError(t, err)

	assert.False(t, second.WasDuplicate)
	assert.NotEqual(t, first.EventID, second.EventID)
}

func TestIngestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("missing source", func(t *testing.T) {
		_, err := f.store.Ingest(ctx, IngestRequest{Type: EventFiling})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("unknown source", func(t *testing.T) {
		_, err := f.store.Ingest(ctx, IngestRequest{Type: EventFiling, SourceID: "nope"})
		require.Error(t, err)
		assert.True(t, apperrors.IsReference(err))
	})

	t.Run("unknown entity", func(t *testing.T) {
		_, err := f.store.Ingest(ctx, IngestRequest{Type: EventFiling, SourceID: f.tier1.ID, EntityID: "nope"})
		require.Error(t, err)
		assert.True(t, apperrors.IsReference(err))
	})

	t.Run("invalid payload", func(t *testing.T) {
		_, err := f.store.Ingest(ctx, IngestRequest{Type: EventFiling, SourceID: f.tier1.ID,
			Payload: json.RawMessage(`{broken`)})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestIngestDefaultsTypeToOther(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.store.Ingest(ctx, IngestRequest{SourceID: f.tier1.ID,
		Payload: json.RawMessage(`{"note":"untyped"}`)})
	require.NoError(t, err)

	ev, err := f.store.Get(ctx, res.EventID)
	require.NoError(t, err)
	assert.Equal(t, EventOther, ev.Type)
	assert.False(t, ev.ObservedAt.IsZero())
}

func TestQueryFiltersAndOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, src := range []string{f.tier1.ID, f.tier3.ID, f.tier1.ID} {
		_, err := f.store.Ingest(ctx, IngestRequest{
			Type:     EventDepositOutflow,
			EntityID: f.entity.ID,
			SourceID: src,
			Payload:  json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i)),
		})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond) // distinct observed_at
	}

	t.Run("by entity", func(t *testing.T) {
		events, err := f.store.Query(ctx, Filter{EntityID: f.entity.ID})
		require.NoError(t, err)
		assert.Len(t, events, 3)
		for i := 1; i < len(events); i++ {
			assert.False(t, events[i-1].ObservedAt.Before(events[i].ObservedAt),
				"results must be ordered by observed_at descending")
		}
	})

	t.Run("by max tier", func(t *testing.T) {
		events, err := f.store.Query(ctx, Filter{EntityID: f.entity.ID, MaxTier: 2})
		require.NoError(t, err)
		assert.Len(t, events, 2)
		for _, ev := range events {
			assert.Equal(t, f.tier1.ID, ev.SourceID)
		}
	})

	t.Run("by source", func(t *testing.T) {
		events, err := f.store.Query(ctx, Filter{SourceID: f.tier3.ID})
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("limit", func(t *testing.T) {
		events, err := f.store.Query(ctx, Filter{EntityID: f.entity.ID, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})
}

func TestGetUnknownEvent(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestContentHashIsDeterministic(t *testing.T) {
	req := IngestRequest{
		Type:     EventSettlementFail,
		EntityID: "e1",
		SourceID: "s1",
		Payload:  json.RawMessage(`{"z":true,"a":[1,2,3]}`),
	}
	h1, err := ContentHash(req)
	require.NoError(t, err)
	h2, err := ContentHash(req)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	// Timestamps never participate in the hash.
	now := time.Now()
	req.PublishedAt = &now
	h3, err := ContentHash(req)
	require.NoError(t, err)
	assert.Equal(t, h1, h3)
}

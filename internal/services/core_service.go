// Package services composes the core components behind the interfaces the
// transport layer consumes. The only cross-component orchestration lives
// here: a freshly ingested event is automatically matched against the open
// claims of its entity.
package services

import (
	"context"
	"log/slog"

	"crisispulse/internal/claims"
	"crisispulse/internal/corroborate"
	"crisispulse/internal/eventstore"
	"crisispulse/internal/registry"
	"crisispulse/internal/scoring"
)

// CoreService fronts the ingestion, claim and corroboration components.
type CoreService struct {
	events  *eventstore.Store
	claims  *claims.Tracker
	matcher *corroborate.Matcher
	logger  *slog.Logger
}

// NewCoreService creates the core service.
func NewCoreService(events *eventstore.Store, tracker *claims.Tracker, matcher *corroborate.Matcher, logger *slog.Logger) *CoreService {
	return &CoreService{
		events:  events,
		claims:  tracker,
		matcher: matcher,
		logger:  logger.With(slog.String("component", "core_service")),
	}
}

// Ingest stores an observation and, when it is new and entity-scoped, runs
// the corroboration matcher against that entity's open claims. Matching
// failures are logged and do not fail the ingest: the event is already
// durable and the matcher can be re-run.
func (s *CoreService) Ingest(ctx context.Context, req eventstore.IngestRequest) (*eventstore.IngestResult, error) {
	res, err := s.events.Ingest(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.WasDuplicate || req.EntityID == "" {
		return res, nil
	}

	open, err := s.claims.ListActiveForEntity(ctx, req.EntityID)
	if err != nil {
		s.logger.WarnContext(ctx, "listing open claims for auto-match failed",
			slog.String("entity_id", req.EntityID),
			slog.String("error", err.Error()),
		)
		return res, nil
	}
	for _, c := range open {
		if _, err := s.matcher.AutoMatch(ctx, c.ID, res.EventID); err != nil {
			s.logger.WarnContext(ctx, "auto-match failed",
				slog.String("claim_id", c.ID),
				slog.String("event_id", res.EventID),
				slog.String("error", err.Error()),
			)
		}
	}
	return res, nil
}

// QueryEvents returns events matching the filter.
func (s *CoreService) QueryEvents(ctx context.Context, f eventstore.Filter) ([]*eventstore.Event, error) {
	return s.events.Query(ctx, f)
}

// CreateClaim stores a new claim in status new.
func (s *CoreService) CreateClaim(ctx context.Context, req claims.CreateRequest) (*claims.Claim, error) {
	return s.claims.Create(ctx, req)
}

// GetClaim returns a claim by ID.
func (s *CoreService) GetClaim(ctx context.Context, id string) (*claims.Claim, error) {
	return s.claims.Get(ctx, id)
}

// TransitionClaim applies a manual status transition.
func (s *CoreService) TransitionClaim(ctx context.Context, id string, target claims.Status, reason string) (*claims.Claim, error) {
	return s.claims.Transition(ctx, id, target, reason)
}

// SubmitCorroboration records a corroboration for a (claim, event) pair.
func (s *CoreService) SubmitCorroboration(ctx context.Context, req corroborate.SubmitRequest) (*corroborate.SubmitResult, error) {
	return s.matcher.Submit(ctx, req)
}

// ListCorroborations returns the corroborations linked to a claim.
func (s *CoreService) ListCorroborations(ctx context.Context, claimID string) ([]*corroborate.Corroboration, error) {
	return s.matcher.ListForClaim(ctx, claimID)
}

// ScoreService fronts the aggregator and label resolver for the read-only
// dashboard surface.
type ScoreService struct {
	aggregator *scoring.Aggregator
	logger     *slog.Logger
}

// NewScoreService creates the score service.
func NewScoreService(aggregator *scoring.Aggregator, logger *slog.Logger) *ScoreService {
	return &ScoreService{
		aggregator: aggregator,
		logger:     logger.With(slog.String("component", "score_service")),
	}
}

// GetEntityScore returns (computing on first request) the score for an
// entity and date.
func (s *ScoreService) GetEntityScore(ctx context.Context, entityID, date string) (*scoring.EntityScore, error) {
	return s.aggregator.GetEntityScore(ctx, entityID, date)
}

// RecomputeEntityScore forces a recomputation, overwriting the stored row.
func (s *ScoreService) RecomputeEntityScore(ctx context.Context, entityID, date string) (*scoring.EntityScore, error) {
	return s.aggregator.ComputeEntityScore(ctx, entityID, date)
}

// GetMarketScore returns (computing on first request) the market rollup.
func (s *ScoreService) GetMarketScore(ctx context.Context, date string) (*scoring.MarketScore, error) {
	return s.aggregator.GetMarketScore(ctx, date)
}

// RecomputeMarketScore forces a market rollup recomputation.
func (s *ScoreService) RecomputeMarketScore(ctx context.Context, date string) (*scoring.MarketScore, error) {
	return s.aggregator.ComputeMarketScore(ctx, date)
}

// ResolveLabel maps a composite score to its label band.
func (s *ScoreService) ResolveLabel(score float64) (scoring.Band, error) {
	return scoring.ResolveLabel(score)
}

// RegistryService fronts entity and source management.
type RegistryService struct {
	store  *registry.Store
	logger *slog.Logger
}

// NewRegistryService creates the registry service.
func NewRegistryService(store *registry.Store, logger *slog.Logger) *RegistryService {
	return &RegistryService{
		store:  store,
		logger: logger.With(slog.String("component", "registry_service")),
	}
}

// CreateEntity registers a new tracked subject.
func (s *RegistryService) CreateEntity(ctx context.Context, e registry.Entity) (*registry.Entity, error) {
	return s.store.CreateEntity(ctx, e)
}

// ListEntities returns all tracked subjects.
func (s *RegistryService) ListEntities(ctx context.Context) ([]*registry.Entity, error) {
	return s.store.ListEntities(ctx)
}

// GetEntity returns one entity.
func (s *RegistryService) GetEntity(ctx context.Context, id string) (*registry.Entity, error) {
	return s.store.GetEntity(ctx, id)
}

// AppendAliases appends aliases to an entity.
func (s *RegistryService) AppendAliases(ctx context.Context, id string, aliases []string) (*registry.Entity, error) {
	return s.store.AppendAliases(ctx, id, aliases)
}

// CreateSource registers a new data source.
func (s *RegistryService) CreateSource(ctx context.Context, src registry.Source) (*registry.Source, error) {
	return s.store.CreateSource(ctx, src)
}

// ListSources returns all sources.
func (s *RegistryService) ListSources(ctx context.Context) ([]*registry.Source, error) {
	return s.store.ListSources(ctx)
}

// UpdateSourceHealth records the collector-owned active flag and failure
// counter.
func (s *RegistryService) UpdateSourceHealth(ctx context.Context, id string, active bool, failureCount int) error {
	return s.store.UpdateSourceHealth(ctx, id, active, failureCount)
}

package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"crisispulse/internal/claims"
	"crisispulse/internal/config"
	apperrors "crisispulse/internal/errors"
	"crisispulse/internal/eventstore"
	"crisispulse/internal/metrics"
	"crisispulse/internal/registry"
)

// maxParallelEntities bounds concurrent per-entity recomputation during a
// market rollup. Entities are independent, so this is purely a resource cap.
const maxParallelEntities = 4

// Aggregator computes entity and market scores.
type Aggregator struct {
	store    *Store
	events   *eventstore.Store
	claims   *claims.Tracker
	severity SeveritySource
	registry *registry.Store
	cfg      config.ScoringConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// SeveritySource supplies the confirmed corroborations feeding the composite
// blend. Implemented by the corroboration matcher.
type SeveritySource interface {
	ListConfirmedForEntity(ctx context.Context, entityID string, since, until time.Time) ([]string, error)
}

// NewAggregator creates a score aggregator.
func NewAggregator(store *Store, events *eventstore.Store, tracker *claims.Tracker,
	severity SeveritySource, reg *registry.Store, cfg config.ScoringConfig,
	m *metrics.Metrics, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:    store,
		events:   events,
		claims:   tracker,
		severity: severity,
		registry: reg,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.With(slog.String("component", "scoring")),
	}
}

// GetEntityScore returns the stored score for (entity, date), computing and
// persisting it on first request.
func (a *Aggregator) GetEntityScore(ctx context.Context, entityID, date string) (*EntityScore, error) {
	score, err := a.store.GetEntityScore(ctx, entityID, date)
	if err == nil {
		return score, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}
	a.metrics.ScoreRecomputations.WithLabelValues("read_miss").Inc()
	return a.ComputeEntityScore(ctx, entityID, date)
}

// ComputeEntityScore recomputes the score for (entity, date) and overwrites
// any prior row. Recomputation is idempotent; last writer wins.
func (a *Aggregator) ComputeEntityScore(ctx context.Context, entityID, date string) (*EntityScore, error) {
	day, err := time.Parse(DateLayout, date)
	if err != nil {
		return nil, apperrors.NewValidation("date", "date must be YYYY-MM-DD")
	}
	exists, err := a.registry.EntityExists(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NewReference("entity", entityID)
	}

	// The scoring window ends at the close of the scored day so the result is
	// stable no matter when it is recomputed.
	windowEnd := day.Add(24*time.Hour - time.Nanosecond).UTC()
	windowStart := day.AddDate(0, 0, -a.cfg.WindowDays).UTC()

	dims, contribs, err := a.computeDimensions(ctx, entityID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	confirmed, err := a.severity.ListConfirmedForEntity(ctx, entityID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	severity := math.Min(10, float64(len(confirmed))*a.cfg.Blend.SeverityPerCorroboration)
	// Severity corroborations are contributing signals like any other: a
	// confirmed claim whose tags feed no dimension still moves the composite,
	// so it must appear in the explain snapshot.
	for _, id := range confirmed {
		contribs = append(contribs, Contribution{
			Kind:      "corroboration",
			ID:        id,
			Tag:       "confirmed_claim",
			Dimension: DimSeverity,
			Weight:    a.cfg.Blend.SeverityPerCorroboration,
		})
	}

	composite := a.cfg.Blend.MaxWeight*(dims.Max()/10) + a.cfg.Blend.CorroborationWeight*severity
	composite = clamp(composite, 0, 10)

	stage := CascadeStage(dims, a.cfg.Cascade)

	score := &EntityScore{
		EntityID:         entityID,
		Date:             date,
		Dimensions:       dims,
		Composite:        composite,
		CascadeTriggered: cascadeTriggered(stage),
		Explain:          contribs,
		ComputedAt:       time.Now().UTC(),
	}

	// A nonzero score must name what produced it. Every signal path above
	// (dimension events, dimension claims, severity corroborations) records a
	// contribution, so an empty explain alongside a nonzero score can only be
	// an internal inconsistency. A quiet window scored all-zeros with an empty
	// explain is fine.
	if (dims.Max() > 0 || composite > 0) && len(contribs) == 0 {
		return nil, apperrors.NewValidation("explain", "nonzero score with no contributing signals")
	}

	if err := a.store.UpsertEntityScore(ctx, score); err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "entity score computed",
		slog.String("entity_id", entityID),
		slog.String("date", date),
		slog.Float64("composite", composite),
		slog.Bool("cascade_triggered", score.CascadeTriggered),
		slog.Int("contributions", len(contribs)),
	)
	return score, nil
}

// computeDimensions builds the three recency-decayed dimension sums and the
// explain snapshot from the window's events and high-credibility claims. Each
// contribution records the amount actually added to its dimension, so the
// snapshot reproduces the score even if scale or weight configuration later
// changes.
func (a *Aggregator) computeDimensions(ctx context.Context, entityID string, start, end time.Time) (Dimensions, []Contribution, error) {
	var dims Dimensions
	var contribs []Contribution

	events, err := a.events.QueryTiered(ctx, entityID, start, end)
	if err != nil {
		return dims, nil, err
	}
	for _, ev := range events {
		dim, ok := a.cfg.TagDimensions[string(ev.Type)]
		if !ok {
			continue
		}
		weight := a.tierWeight(ev.TrustTier) * a.tagWeight(string(ev.Type)) *
			a.decay(end.Sub(ev.ObservedAt)) * a.cfg.DimensionScale
		if weight <= 0 {
			continue
		}
		addDimension(&dims, dim, weight)
		contribs = append(contribs, Contribution{
			Kind:      "event",
			ID:        ev.ID,
			Tag:       string(ev.Type),
			Dimension: dim,
			Weight:    weight,
		})
	}

	claimRows, err := a.claims.ListForScoring(ctx, entityID, start, end, a.cfg.CredibilityFloor)
	if err != nil {
		return dims, nil, err
	}
	for _, c := range claimRows {
		dim, ok := a.cfg.TagDimensions[string(c.Type)]
		if !ok {
			continue
		}
		weight := (c.Credibility / 100) * a.tagWeight(string(c.Type)) *
			a.decay(end.Sub(c.CreatedAt)) * a.cfg.DimensionScale
		if weight <= 0 {
			continue
		}
		addDimension(&dims, dim, weight)
		contribs = append(contribs, Contribution{
			Kind:      "claim",
			ID:        c.ID,
			Tag:       string(c.Type),
			Dimension: dim,
			Weight:    weight,
		})
	}

	dims.Funding = clamp(dims.Funding, 0, 100)
	dims.Enforcement = clamp(dims.Enforcement, 0, 100)
	dims.Deliverability = clamp(dims.Deliverability, 0, 100)
	return dims, contribs, nil
}

// ComputeMarketScore recomputes every entity's score for the date in
// parallel, then writes the market rollup: averaged dimensions, band counts
// and the cascade stage of the averages.
func (a *Aggregator) ComputeMarketScore(ctx context.Context, date string) (*MarketScore, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, apperrors.NewValidation("date", "date must be YYYY-MM-DD")
	}

	entities, err := a.registry.ListEntities(ctx)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelEntities)
	for _, e := range entities {
		e := e
		g.Go(func() error {
			a.metrics.ScoreRecomputations.WithLabelValues("market_rollup").Inc()
			_, err := a.ComputeEntityScore(gctx, e.ID, date)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("recompute entity scores: %w", err)
	}

	scores, err := a.store.ListEntityScores(ctx, date)
	if err != nil {
		return nil, err
	}

	market := &MarketScore{Date: date, ComputedAt: time.Now().UTC()}
	if len(scores) > 0 {
		var sum Dimensions
		var compositeSum float64
		for _, s := range scores {
			sum.Funding += s.Dimensions.Funding
			sum.Enforcement += s.Dimensions.Enforcement
			sum.Deliverability += s.Dimensions.Deliverability
			compositeSum += s.Composite

			band, err := ResolveLabel(s.Composite)
			if err != nil {
				return nil, err
			}
			switch band.Label {
			case "DANGER":
				market.DangerCount++
			case "CRISIS":
				market.CrisisCount++
			}
		}
		n := float64(len(scores))
		market.Dimensions = Dimensions{
			Funding:        sum.Funding / n,
			Enforcement:    sum.Enforcement / n,
			Deliverability: sum.Deliverability / n,
		}
		market.Composite = compositeSum / n
		market.EntityCount = len(scores)
	}
	market.CascadeStage = CascadeStage(market.Dimensions, a.cfg.Cascade)

	if err := a.store.UpsertMarketScore(ctx, market); err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "market score computed",
		slog.String("date", date),
		slog.Int("entities", market.EntityCount),
		slog.Int("cascade_stage", market.CascadeStage),
	)
	return market, nil
}

// GetMarketScore returns the market score for a date, computing it on first
// request.
func (a *Aggregator) GetMarketScore(ctx context.Context, date string) (*MarketScore, error) {
	score, err := a.store.GetMarketScore(ctx, date)
	if err == nil {
		return score, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}
	return a.ComputeMarketScore(ctx, date)
}

func (a *Aggregator) decay(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return math.Exp(-math.Ln2 * age.Hours() / a.cfg.HalfLife.Hours())
}

func (a *Aggregator) tierWeight(tier int) float64 {
	if w, ok := a.cfg.TierWeights[tier]; ok {
		return w
	}
	return 0
}

func (a *Aggregator) tagWeight(tag string) float64 {
	if w, ok := a.cfg.TagWeights[tag]; ok {
		return w
	}
	return 0.5
}

func addDimension(d *Dimensions, name string, v float64) {
	switch name {
	case DimFunding:
		d.Funding += v
	case DimEnforcement:
		d.Enforcement += v
	case DimDeliverability:
		d.Deliverability += v
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

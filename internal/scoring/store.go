package scoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	apperrors "crisispulse/internal/errors"
)

// Store persists entity and market scores.
type Store struct {
	db *sql.DB
}

// NewStore creates a score store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertEntityScore writes a score, replacing any prior row for the same
// (entity, date) including its explain payload.
func (s *Store) UpsertEntityScore(ctx context.Context, score *EntityScore) error {
	explain, err := json.Marshal(score.Explain)
	if err != nil {
		return fmt.Errorf("marshal explain payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entity_scores (entity_id, score_date, funding, enforcement, deliverability,
			composite, cascade_triggered, explain, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_id, score_date) DO UPDATE SET
			funding = excluded.funding,
			enforcement = excluded.enforcement,
			deliverability = excluded.deliverability,
			composite = excluded.composite,
			cascade_triggered = excluded.cascade_triggered,
			explain = excluded.explain,
			computed_at = excluded.computed_at`,
		score.EntityID, score.Date,
		score.Dimensions.Funding, score.Dimensions.Enforcement, score.Dimensions.Deliverability,
		score.Composite, boolToInt(score.CascadeTriggered), string(explain), score.ComputedAt)
	if err != nil {
		return fmt.Errorf("upsert entity score: %w", err)
	}
	return nil
}

// GetEntityScore returns the stored score for (entity, date), or a
// NotFoundError when none exists.
func (s *Store) GetEntityScore(ctx context.Context, entityID, date string) (*EntityScore, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT entity_id, score_date, funding, enforcement, deliverability,
			composite, cascade_triggered, explain, computed_at
		FROM entity_scores WHERE entity_id = ? AND score_date = ?`, entityID, date)

	var score EntityScore
	var triggered int
	var explain string
	err := row.Scan(&score.EntityID, &score.Date,
		&score.Dimensions.Funding, &score.Dimensions.Enforcement, &score.Dimensions.Deliverability,
		&score.Composite, &triggered, &explain, &score.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("entity score", entityID+"@"+date)
	}
	if err != nil {
		return nil, fmt.Errorf("scan entity score: %w", err)
	}
	score.CascadeTriggered = triggered != 0
	if err := json.Unmarshal([]byte(explain), &score.Explain); err != nil {
		return nil, fmt.Errorf("decode explain payload: %w", err)
	}
	return &score, nil
}

// ListEntityScores returns all entity scores computed for a date.
func (s *Store) ListEntityScores(ctx context.Context, date string) ([]*EntityScore, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, score_date, funding, enforcement, deliverability,
			composite, cascade_triggered, explain, computed_at
		FROM entity_scores WHERE score_date = ? ORDER BY composite DESC`, date)
	if err != nil {
		return nil, fmt.Errorf("list entity scores: %w", err)
	}
	defer rows.Close()

	var out []*EntityScore
	for rows.Next() {
		var score EntityScore
		var triggered int
		var explain string
		if err := rows.Scan(&score.EntityID, &score.Date,
			&score.Dimensions.Funding, &score.Dimensions.Enforcement, &score.Dimensions.Deliverability,
			&score.Composite, &triggered, &explain, &score.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan entity score: %w", err)
		}
		score.CascadeTriggered = triggered != 0
		if err := json.Unmarshal([]byte(explain), &score.Explain); err != nil {
			return nil, fmt.Errorf("decode explain payload: %w", err)
		}
		out = append(out, &score)
	}
	return out, rows.Err()
}

// CountEntityScoreRows returns the number of score rows for (entity, date).
// Exists for invariant tests: the answer is always 0 or 1.
func (s *Store) CountEntityScoreRows(ctx context.Context, entityID, date string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM entity_scores WHERE entity_id = ? AND score_date = ?`,
		entityID, date).Scan(&n)
	return n, err
}

// UpsertMarketScore writes the market rollup for a date.
func (s *Store) UpsertMarketScore(ctx context.Context, score *MarketScore) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_scores (score_date, funding, enforcement, deliverability,
			composite, entity_count, danger_count, crisis_count, cascade_stage, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (score_date) DO UPDATE SET
			funding = excluded.funding,
			enforcement = excluded.enforcement,
			deliverability = excluded.deliverability,
			composite = excluded.composite,
			entity_count = excluded.entity_count,
			danger_count = excluded.danger_count,
			crisis_count = excluded.crisis_count,
			cascade_stage = excluded.cascade_stage,
			computed_at = excluded.computed_at`,
		score.Date,
		score.Dimensions.Funding, score.Dimensions.Enforcement, score.Dimensions.Deliverability,
		score.Composite, score.EntityCount, score.DangerCount, score.CrisisCount,
		score.CascadeStage, score.ComputedAt)
	if err != nil {
		return fmt.Errorf("upsert market score: %w", err)
	}
	return nil
}

// GetMarketScore returns the stored market score for a date.
func (s *Store) GetMarketScore(ctx context.Context, date string) (*MarketScore, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT score_date, funding, enforcement, deliverability,
			composite, entity_count, danger_count, crisis_count, cascade_stage, computed_at
		FROM market_scores WHERE score_date = ?`, date)

	var score MarketScore
	err := row.Scan(&score.Date,
		&score.Dimensions.Funding, &score.Dimensions.Enforcement, &score.Dimensions.Deliverability,
		&score.Composite, &score.EntityCount, &score.DangerCount, &score.CrisisCount,
		&score.CascadeStage, &score.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("market score", date)
	}
	if err != nil {
		return nil, fmt.Errorf("scan market score: %w", err)
	}
	return &score, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package corroborate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"crisispulse/internal/claims"
	"crisispulse/internal/config"
	apperrors "crisispulse/internal/errors"
	"crisispulse/internal/eventstore"
	"crisispulse/internal/metrics"
	"crisispulse/internal/registry"
)

// Matcher scores claim/event pairs and persists corroborations.
type Matcher struct {
	db       *sql.DB
	claims   *claims.Tracker
	events   *eventstore.Store
	registry *registry.Store
	cfg      config.MatcherConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewMatcher creates a corroboration matcher.
func NewMatcher(db *sql.DB, tracker *claims.Tracker, events *eventstore.Store, reg *registry.Store,
	cfg config.MatcherConfig, m *metrics.Metrics, logger *slog.Logger) *Matcher {
	return &Matcher{
		db:       db,
		claims:   tracker,
		events:   events,
		registry: reg,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.With(slog.String("component", "corroborate")),
	}
}

// Confidence computes the match confidence in [0,1] for a claim/event pair
// from entity match, type compatibility and temporal proximity. Pure given
// the matcher configuration.
func (m *Matcher) Confidence(c *claims.Claim, ev *eventstore.Event) float64 {
	entity := 0.0
	switch {
	case c.EntityID != "" && c.EntityID == ev.EntityID:
		entity = 1.0
	case c.EntityID == "" || ev.EntityID == "":
		// One side is not entity-scoped; weak but not disqualifying.
		entity = 0.5
	}

	compat := 0.0
	if m.typesCompatible(c.Type, ev.Type) {
		compat = 1.0
	}

	age := ev.ObservedAt.Sub(c.CreatedAt)
	if age < 0 {
		age = -age
	}
	temporal := math.Exp(-math.Ln2 * age.Hours() / m.cfg.TemporalHalfLife.Hours())

	score := m.cfg.EntityWeight*entity + m.cfg.TypeWeight*compat + m.cfg.TemporalWeight*temporal
	return math.Min(1, math.Max(0, score))
}

func (m *Matcher) typesCompatible(ct claims.ClaimType, et eventstore.EventType) bool {
	list, ok := m.cfg.Compatibility[string(ct)]
	if !ok {
		list = m.cfg.Compatibility["other"]
	}
	for _, t := range list {
		if t == string(et) {
			return true
		}
	}
	return false
}

// AutoMatch computes the confidence for a claim/event pair and submits it as
// an automatic corroboration.
func (m *Matcher) AutoMatch(ctx context.Context, claimID, eventID string) (*SubmitResult, error) {
	c, err := m.claims.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	ev, err := m.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}

	confidence := m.Confidence(c, ev)
	return m.Submit(ctx, SubmitRequest{
		ClaimID:    claimID,
		EventID:    eventID,
		Confidence: confidence,
		Rationale: fmt.Sprintf("automatic match: entity=%s type=%s/%s observed=%s",
			orNone(ev.EntityID), c.Type, ev.Type, ev.ObservedAt.Format(time.RFC3339)),
		MatchedBy: MatchedAutomatic,
	})
}

// Submit records a corroboration. The (claim, event) pair is unique; a second
// submission overwrites confidence, rationale and the contradicts flag. When
// the stored link crosses the confirm threshold the claim is promoted to
// confirmed; a contradicting link from tier-1/2 evidence demotes it to
// debunked. Once a claim is terminal further submissions are stored but no
// longer change its status.
func (m *Matcher) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.Confidence < 0 || req.Confidence > 1 {
		return nil, apperrors.NewValidation("confidence", "confidence must be in [0,1]")
	}
	if req.MatchedBy == "" {
		req.MatchedBy = MatchedManual
	}
	if req.MatchedBy != MatchedAutomatic && req.MatchedBy != MatchedManual {
		return nil, apperrors.NewValidation("matched_by", "matched_by must be automatic or manual")
	}

	c, err := m.claims.Get(ctx, req.ClaimID)
	if err != nil {
		return nil, err
	}
	ev, err := m.events.Get(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	id := uuid.NewString()
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO corroborations (id, claim_id, event_id, confidence, contradicts, rationale, matched_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (claim_id, event_id) DO UPDATE SET
			confidence = excluded.confidence,
			contradicts = excluded.contradicts,
			rationale = excluded.rationale,
			matched_by = excluded.matched_by,
			updated_at = excluded.updated_at`,
		id, req.ClaimID, req.EventID, req.Confidence, boolToInt(req.Contradicts),
		req.Rationale, req.MatchedBy, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert corroboration: %w", err)
	}

	stored, err := m.GetByPair(ctx, req.ClaimID, req.EventID)
	if err != nil {
		return nil, err
	}

	action, err := m.applyStatusEffect(ctx, c, ev, stored)
	if err != nil {
		return nil, err
	}
	if action == "" {
		m.metrics.Corroborations.WithLabelValues("stored").Inc()
	} else {
		m.metrics.Corroborations.WithLabelValues(action).Inc()
	}

	return &SubmitResult{Corroboration: stored, ClaimAction: action}, nil
}

// applyStatusEffect runs the automatic confirm/debunk rules for a freshly
// stored corroboration. Terminal claims are left untouched.
func (m *Matcher) applyStatusEffect(ctx context.Context, c *claims.Claim, ev *eventstore.Event, cor *Corroboration) (string, error) {
	if claims.IsTerminal(c.Status) {
		return "", nil
	}

	if cor.Contradicts {
		src, err := m.registry.GetSource(ctx, ev.SourceID)
		if err != nil {
			return "", err
		}
		if src.TrustTier <= m.cfg.DebunkMaxTier && claims.IsActive(c.Status) {
			reason := fmt.Sprintf("contradicted by tier-%d event %s", src.TrustTier, ev.ID)
			if err := m.advance(ctx, c, claims.StatusDebunked, reason); err != nil {
				return "", err
			}
			return "debunked", nil
		}
		return "", nil
	}

	if cor.Confidence >= m.cfg.ConfirmThreshold {
		reason := fmt.Sprintf("corroborated by event %s (confidence %.2f)", ev.ID, cor.Confidence)
		if err := m.advance(ctx, c, claims.StatusConfirmed, reason); err != nil {
			return "", err
		}
		return "confirmed", nil
	}
	return "", nil
}

// advance walks the claim along the allowed path to target, one legal
// transition at a time (e.g. new -> triage -> corroborating -> confirmed).
// A stale claim promotes directly via the stale -> confirmed reopening path.
func (m *Matcher) advance(ctx context.Context, c *claims.Claim, target claims.Status, reason string) error {
	path, ok := pathTo(c.Status, target)
	if !ok {
		return &apperrors.TransitionError{
			ClaimID:   c.ID,
			Current:   string(c.Status),
			Requested: string(target),
		}
	}
	for _, step := range path {
		updated, err := m.claims.Transition(ctx, c.ID, step, reason)
		if err != nil {
			return err
		}
		*c = *updated
	}
	return nil
}

// pathTo returns the transition chain from a status to target within the
// allowed table.
func pathTo(from, target claims.Status) ([]claims.Status, bool) {
	switch target {
	case claims.StatusConfirmed:
		switch from {
		case claims.StatusNew:
			return []claims.Status{claims.StatusTriage, claims.StatusCorroborating, claims.StatusConfirmed}, true
		case claims.StatusTriage:
			return []claims.Status{claims.StatusCorroborating, claims.StatusConfirmed}, true
		case claims.StatusCorroborating, claims.StatusStale:
			return []claims.Status{claims.StatusConfirmed}, true
		}
	case claims.StatusDebunked:
		switch from {
		case claims.StatusNew:
			return []claims.Status{claims.StatusTriage, claims.StatusCorroborating, claims.StatusDebunked}, true
		case claims.StatusTriage:
			return []claims.Status{claims.StatusCorroborating, claims.StatusDebunked}, true
		case claims.StatusCorroborating:
			return []claims.Status{claims.StatusDebunked}, true
		}
	}
	return nil, false
}

// GetByPair returns the corroboration for a (claim, event) pair.
func (m *Matcher) GetByPair(ctx context.Context, claimID, eventID string) (*Corroboration, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, claim_id, event_id, confidence, contradicts, rationale, matched_by, created_at, updated_at
		FROM corroborations WHERE claim_id = ? AND event_id = ?`, claimID, eventID)
	cor, err := scanCorroboration(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("corroboration", claimID+"/"+eventID)
	}
	return cor, err
}

// ListForClaim returns all corroborations for a claim, newest update first.
func (m *Matcher) ListForClaim(ctx context.Context, claimID string) ([]*Corroboration, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, claim_id, event_id, confidence, contradicts, rationale, matched_by, created_at, updated_at
		FROM corroborations WHERE claim_id = ? ORDER BY updated_at DESC`, claimID)
	if err != nil {
		return nil, fmt.Errorf("list corroborations: %w", err)
	}
	defer rows.Close()

	var out []*Corroboration
	for rows.Next() {
		cor, err := scanCorroboration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cor)
	}
	return out, rows.Err()
}

// ListConfirmedForEntity returns the IDs of corroborations of confirmed
// claims scoped to an entity whose linking event was observed inside
// [since, until], oldest observation first. The score aggregator enumerates
// these as its severity signal.
func (m *Matcher) ListConfirmedForEntity(ctx context.Context, entityID string, since, until time.Time) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT co.id
		FROM corroborations co
		JOIN claims c ON c.id = co.claim_id
		JOIN events e ON e.id = co.event_id
		WHERE c.status = ? AND co.contradicts = 0
		  AND (c.entity_id = ? OR e.entity_id = ?)
		  AND e.observed_at >= ? AND e.observed_at <= ?
		ORDER BY e.observed_at`,
		string(claims.StatusConfirmed), entityID, entityID, since.UTC(), until.UTC())
	if err != nil {
		return nil, fmt.Errorf("list confirmed corroborations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan confirmed corroboration: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountConfirmedForEntity is ListConfirmedForEntity reduced to a count.
func (m *Matcher) CountConfirmedForEntity(ctx context.Context, entityID string, since, until time.Time) (int, error) {
	ids, err := m.ListConfirmedForEntity(ctx, entityID, since, until)
	return len(ids), err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCorroboration(row rowScanner) (*Corroboration, error) {
	var cor Corroboration
	var contradicts int
	err := row.Scan(&cor.ID, &cor.ClaimID, &cor.EventID, &cor.Confidence, &contradicts,
		&cor.Rationale, &cor.MatchedBy, &cor.CreatedAt, &cor.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan corroboration: %w", err)
	}
	cor.Contradicts = contradicts != 0
	return &cor, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

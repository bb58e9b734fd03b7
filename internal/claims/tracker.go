package claims

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"crisispulse/internal/config"
	apperrors "crisispulse/internal/errors"
	"crisispulse/internal/metrics"
	"crisispulse/internal/registry"
)

// Tracker owns claim persistence and the lifecycle state machine.
type Tracker struct {
	db       *sql.DB
	registry *registry.Store
	cfg      config.ClaimsConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewTracker creates a claim tracker.
func NewTracker(db *sql.DB, reg *registry.Store, cfg config.ClaimsConfig, m *metrics.Metrics, logger *slog.Logger) *Tracker {
	return &Tracker{
		db:       db,
		registry: reg,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.With(slog.String("component", "claims")),
	}
}

// Create stores a new claim in status new.
func (t *Tracker) Create(ctx context.Context, req CreateRequest) (*Claim, error) {
	if req.SourceID == "" {
		return nil, apperrors.NewValidation("source_id", "source is required")
	}
	if req.Content == "" {
		return nil, apperrors.NewValidation("content", "claim content is required")
	}
	if req.Credibility < 0 || req.Credibility > 100 {
		return nil, apperrors.NewValidation("credibility", "credibility must be in [0,100]")
	}
	if req.Type == "" {
		req.Type = ClaimOther
	}
	if len(req.Engagement) > 0 && !json.Valid(req.Engagement) {
		return nil, apperrors.NewValidation("engagement", "engagement must be valid JSON")
	}

	if _, err := t.registry.GetSource(ctx, req.SourceID); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewReference("source", req.SourceID)
		}
		return nil, err
	}
	if req.EntityID != "" {
		exists, err := t.registry.EntityExists(ctx, req.EntityID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, apperrors.NewReference("entity", req.EntityID)
		}
	}

	engagement := req.Engagement
	if len(engagement) == 0 {
		engagement = json.RawMessage(`{}`)
	}

	now := time.Now().UTC()
	c := Claim{
		ID:              uuid.NewString(),
		EntityID:        req.EntityID,
		Type:            req.Type,
		Content:         req.Content,
		Attribution:     Attribution{SourceID: req.SourceID, Author: req.Author, URL: req.URL},
		Engagement:      engagement,
		Credibility:     req.Credibility,
		Status:          StatusNew,
		StatusReason:    "created",
		StatusChangedAt: now,
		CreatedAt:       now,
		Version:         1,
	}

	_, err := t.db.ExecContext(ctx, `
		INSERT INTO claims (id, entity_id, source_id, claim_type, content, author, url,
			engagement, credibility, status, status_reason, status_changed_at, created_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		c.ID, nullIfEmpty(c.EntityID), c.Attribution.SourceID, string(c.Type), c.Content,
		nullIfEmpty(c.Attribution.Author), nullIfEmpty(c.Attribution.URL),
		string(engagement), c.Credibility, string(c.Status), c.StatusReason, c.StatusChangedAt, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert claim: %w", err)
	}

	t.logger.InfoContext(ctx, "claim created",
		slog.String("claim_id", c.ID),
		slog.String("claim_type", string(c.Type)),
		slog.String("source_id", c.Attribution.SourceID),
	)
	return &c, nil
}

// Get returns the claim with the given ID.
func (t *Tracker) Get(ctx context.Context, id string) (*Claim, error) {
	row := t.db.QueryRowContext(ctx, `
		SELECT id, entity_id, source_id, claim_type, content, author, url,
			engagement, credibility, status, status_reason, status_changed_at, created_at, version
		FROM claims WHERE id = ?`, id)
	c, err := scanClaim(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("claim", id)
	}
	return c, err
}

// ListByStatus returns claims in the given status, oldest first.
func (t *Tracker) ListByStatus(ctx context.Context, status Status) ([]*Claim, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, entity_id, source_id, claim_type, content, author, url,
			engagement, credibility, status, status_reason, status_changed_at, created_at, version
		FROM claims WHERE status = ? ORDER BY created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var out []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListActiveForEntity returns an entity's claims still in an active status
// (new, triage or corroborating), oldest first. The ingestion path uses this
// to find candidates for automatic corroboration.
func (t *Tracker) ListActiveForEntity(ctx context.Context, entityID string) ([]*Claim, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, entity_id, source_id, claim_type, content, author, url,
			engagement, credibility, status, status_reason, status_changed_at, created_at, version
		FROM claims
		WHERE entity_id = ? AND status IN (?, ?, ?)
		ORDER BY created_at`,
		entityID, string(StatusNew), string(StatusTriage), string(StatusCorroborating))
	if err != nil {
		return nil, fmt.Errorf("list active claims: %w", err)
	}
	defer rows.Close()

	var out []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListForScoring returns an entity's claims created in [since, until] with
// credibility at or above the floor, excluding debunked claims. The score
// aggregator consumes these as weighted contributions.
func (t *Tracker) ListForScoring(ctx context.Context, entityID string, since, until time.Time, minCredibility float64) ([]*Claim, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, entity_id, source_id, claim_type, content, author, url,
			engagement, credibility, status, status_reason, status_changed_at, created_at, version
		FROM claims
		WHERE entity_id = ? AND credibility >= ? AND status != ?
		  AND created_at >= ? AND created_at <= ?
		ORDER BY created_at DESC`,
		entityID, minCredibility, string(StatusDebunked), since.UTC(), until.UTC())
	if err != nil {
		return nil, fmt.Errorf("list claims for scoring: %w", err)
	}
	defer rows.Close()

	var out []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Transition moves a claim to target, recording the reason and stamping
// status_changed_at. Disallowed moves fail with a TransitionError and leave
// the claim unchanged. Concurrent writers are handled with optimistic
// version checks; after the configured retries a ConflictError is returned.
func (t *Tracker) Transition(ctx context.Context, claimID string, target Status, reason string) (*Claim, error) {
	if reason == "" {
		return nil, apperrors.NewValidation("reason", "transition reason is required")
	}

	for attempt := 1; attempt <= t.cfg.MaxTransitionRetries; attempt++ {
		c, err := t.Get(ctx, claimID)
		if err != nil {
			return nil, err
		}
		if !CanTransition(c.Status, target) {
			return nil, &apperrors.TransitionError{
				ClaimID:   claimID,
				Current:   string(c.Status),
				Requested: string(target),
			}
		}

		now := time.Now().UTC()
		res, err := t.db.ExecContext(ctx, `
			UPDATE claims
			SET status = ?, status_reason = ?, status_changed_at = ?, version = version + 1
			WHERE id = ? AND version = ?`,
			string(target), reason, now, claimID, c.Version)
		if err != nil {
			return nil, fmt.Errorf("update claim status: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			t.metrics.ClaimTransitions.WithLabelValues(string(c.Status), string(target)).Inc()
			t.logger.InfoContext(ctx, "claim transitioned",
				slog.String("claim_id", claimID),
				slog.String("from", string(c.Status)),
				slog.String("to", string(target)),
				slog.String("reason", reason),
			)
			c.Status = target
			c.StatusReason = reason
			c.StatusChangedAt = now
			c.Version++
			return c, nil
		}

		t.logger.DebugContext(ctx, "claim version conflict, retrying",
			slog.String("claim_id", claimID),
			slog.Int("attempt", attempt),
		)
	}

	return nil, &apperrors.ConflictError{
		Resource: "claim",
		ID:       claimID,
		Attempts: t.cfg.MaxTransitionRetries,
	}
}

// SweepStale moves every active claim older than the configured timeout to
// stale. The sweep is idempotent: claims already stale or resolved are never
// touched, so running it twice in a row is a no-op the second time. Each
// claim is flipped independently; an interrupted sweep resumes safely on the
// next run.
func (t *Tracker) SweepStale(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-t.cfg.StaleAfter)
	reason := fmt.Sprintf("no resolution within %s", t.cfg.StaleAfter)

	res, err := t.db.ExecContext(ctx, `
		UPDATE claims
		SET status = ?, status_reason = ?, status_changed_at = ?, version = version + 1
		WHERE status IN (?, ?, ?) AND created_at <= ?`,
		string(StatusStale), reason, now.UTC(),
		string(StatusNew), string(StatusTriage), string(StatusCorroborating), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep stale claims: %w", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		t.metrics.ClaimsSweptStale.Add(float64(n))
		t.logger.InfoContext(ctx, "staleness sweep complete",
			slog.Int64("swept", n),
			slog.Time("cutoff", cutoff),
		)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*Claim, error) {
	var c Claim
	var entityID, author, url sql.NullString
	var claimType, engagement, status string
	err := row.Scan(&c.ID, &entityID, &c.Attribution.SourceID, &claimType, &c.Content,
		&author, &url, &engagement, &c.Credibility, &status, &c.StatusReason,
		&c.StatusChangedAt, &c.CreatedAt, &c.Version)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan claim: %w", err)
	}
	c.EntityID = entityID.String
	c.Type = ClaimType(claimType)
	c.Attribution.Author = author.String
	c.Attribution.URL = url.String
	c.Engagement = json.RawMessage(engagement)
	c.Status = Status(status)
	return &c, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

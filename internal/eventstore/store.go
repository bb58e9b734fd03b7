package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "crisispulse/internal/errors"
	"crisispulse/internal/metrics"
	"crisispulse/internal/registry"
)

// Store persists events.
type Store struct {
	db       *sql.DB
	registry *registry.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewStore creates an event store.
func NewStore(db *sql.DB, reg *registry.Store, m *metrics.Metrics, logger *slog.Logger) *Store {
	return &Store{
		db:       db,
		registry: reg,
		metrics:  m,
		logger:   logger.With(slog.String("component", "eventstore")),
	}
}

// Ingest stores a new observation, or returns the existing event when the
// content hash is already present. Duplicate submission is not an error.
// The unique index on content_hash makes the insert race-safe: of two
// concurrent identical submissions exactly one row wins and the loser reads
// the winner's row back.
func (s *Store) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.SourceID == "" {
		return nil, apperrors.NewValidation("source_id", "source is required")
	}
	if req.Type == "" {
		req.Type = EventOther
	}
	if len(req.Payload) > 0 && !json.Valid(req.Payload) {
		return nil, apperrors.NewValidation("payload", "payload must be valid JSON")
	}

	if _, err := s.registry.GetSource(ctx, req.SourceID); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewReference("source", req.SourceID)
		}
		return nil, err
	}
	if req.EntityID != "" {
		exists, err := s.registry.EntityExists(ctx, req.EntityID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, apperrors.NewReference("entity", req.EntityID)
		}
	}

	hash, err := ContentHash(req)
	if err != nil {
		return nil, err
	}

	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	id := uuid.NewString()
	observedAt := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, event_type, entity_id, source_id, published_at, observed_at, payload, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (content_hash) DO NOTHING`,
		id, string(req.Type), nullIfEmpty(req.EntityID), req.SourceID, req.PublishedAt, observedAt, string(payload), hash)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.metrics.EventsIngested.WithLabelValues("stored").Inc()
		s.logger.InfoContext(ctx, "event ingested",
			slog.String("event_id", id),
			slog.String("event_type", string(req.Type)),
			slog.String("source_id", req.SourceID),
		)
		return &IngestResult{EventID: id, WasDuplicate: false}, nil
	}

	// Lost to an earlier identical observation; hand back the winner.
	var existingID string
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM events WHERE content_hash = ?`, hash).Scan(&existingID); err != nil {
		return nil, fmt.Errorf("read existing event for hash %s: %w", hash, err)
	}
	s.metrics.EventsIngested.WithLabelValues("duplicate").Inc()
	s.logger.DebugContext(ctx, "duplicate event ignored",
		slog.String("event_id", existingID),
		slog.String("content_hash", hash),
	)
	return &IngestResult{EventID: existingID, WasDuplicate: true}, nil
}

// Get returns the event with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, event_type, entity_id, source_id, published_at, observed_at, payload, content_hash
		FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("event", id)
	}
	return ev, err
}

// Count returns the total number of stored events.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM events`).Scan(&n)
	return n, err
}

// Query returns events matching the filter, newest observation first. There
// is no global cross-source ordering guarantee beyond observed_at.
func (s *Store) Query(ctx context.Context, f Filter) ([]*Event, error) {
	var (
		conds []string
		args  []any
	)
	query := `
		SELECT e.id, e.event_type, e.entity_id, e.source_id, e.published_at, e.observed_at, e.payload, e.content_hash
		FROM events e`

	if f.MaxTier > 0 {
		query += ` JOIN sources s ON s.id = e.source_id`
		conds = append(conds, "s.trust_tier <= ?")
		args = append(args, f.MaxTier)
	}
	if f.EntityID != "" {
		conds = append(conds, "e.entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.Type != "" {
		conds = append(conds, "e.event_type = ?")
		args = append(args, string(f.Type))
	}
	if f.SourceID != "" {
		conds = append(conds, "e.source_id = ?")
		args = append(args, f.SourceID)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "e.observed_at >= ?")
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		conds = append(conds, "e.observed_at <= ?")
		args = append(args, f.Until)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY e.observed_at DESC"

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// QueryTiered returns events for an entity in [since, until] joined with
// their source trust tier, newest first.
func (s *Store) QueryTiered(ctx context.Context, entityID string, since, until time.Time) ([]*TieredEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.event_type, e.entity_id, e.source_id, e.published_at, e.observed_at, e.payload, e.content_hash, s.trust_tier
		FROM events e
		JOIN sources s ON s.id = e.source_id
		WHERE e.entity_id = ? AND e.observed_at >= ? AND e.observed_at <= ?
		ORDER BY e.observed_at DESC`,
		entityID, since.UTC(), until.UTC())
	if err != nil {
		return nil, fmt.Errorf("query tiered events: %w", err)
	}
	defer rows.Close()

	var out []*TieredEvent
	for rows.Next() {
		var te TieredEvent
		var typ, payload string
		var eid sql.NullString
		var publishedAt sql.NullTime
		if err := rows.Scan(&te.ID, &typ, &eid, &te.SourceID, &publishedAt, &te.ObservedAt, &payload, &te.ContentHash, &te.TrustTier); err != nil {
			return nil, fmt.Errorf("scan tiered event: %w", err)
		}
		te.Type = EventType(typ)
		te.EntityID = eid.String
		if publishedAt.Valid {
			t := publishedAt.Time
			te.PublishedAt = &t
		}
		te.Payload = json.RawMessage(payload)
		out = append(out, &te)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var ev Event
	var typ, payload string
	var entityID sql.NullString
	var publishedAt sql.NullTime
	err := row.Scan(&ev.ID, &typ, &entityID, &ev.SourceID, &publishedAt, &ev.ObservedAt, &payload, &ev.ContentHash)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	ev.Type = EventType(typ)
	ev.EntityID = entityID.String
	if publishedAt.Valid {
		t := publishedAt.Time
		ev.PublishedAt = &t
	}
	ev.Payload = json.RawMessage(payload)
	return &ev, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

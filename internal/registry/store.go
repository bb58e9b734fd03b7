package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "crisispulse/internal/errors"
)

// Store persists entities and sources.
type Store struct {
	db *sql.DB
}

// NewStore creates a registry store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateEntity inserts a new entity and returns it with its assigned ID.
func (s *Store) CreateEntity(ctx context.Context, e Entity) (*Entity, error) {
	if e.DisplayName == "" {
		return nil, apperrors.NewValidation("display_name", "display name is required")
	}
	if e.Type == "" {
		e.Type = EntityOther
	}
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC()

	aliases, _ := json.Marshal(emptyIfNil(e.Aliases))
	identifiers, _ := json.Marshal(emptyIfNil(e.Identifiers))
	tickers, _ := json.Marshal(emptyIfNil(e.Tickers))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (id, entity_type, display_name, aliases, identifiers, tickers, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.DisplayName, string(aliases), string(identifiers), string(tickers), e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert entity: %w", err)
	}
	return &e, nil
}

// GetEntity returns the entity with the given ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_type, display_name, aliases, identifiers, tickers, created_at
		FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("entity", id)
	}
	return e, err
}

// ListEntities returns all entities ordered by display name.
func (s *Store) ListEntities(ctx context.Context) ([]*Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, display_name, aliases, identifiers, tickers, created_at
		FROM entities ORDER BY display_name`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var entities []*Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// AppendAliases adds aliases to an existing entity. Identity fields are never
// rewritten; duplicates are dropped.
func (s *Store) AppendAliases(ctx context.Context, id string, aliases []string) (*Entity, error) {
	e, err := s.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(e.Aliases))
	for _, a := range e.Aliases {
		seen[a] = true
	}
	for _, a := range aliases {
		if !seen[a] {
			e.Aliases = append(e.Aliases, a)
			seen[a] = true
		}
	}
	encoded, _ := json.Marshal(e.Aliases)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE entities SET aliases = ? WHERE id = ?`, string(encoded), id); err != nil {
		return nil, fmt.Errorf("append aliases: %w", err)
	}
	return e, nil
}

// EntityExists reports whether an entity with the given ID exists.
func (s *Store) EntityExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM entities WHERE id = ?`, id).Scan(&n)
	return n > 0, err
}

// CreateSource inserts a new source.
func (s *Store) CreateSource(ctx context.Context, src Source) (*Source, error) {
	if src.Name == "" {
		return nil, apperrors.NewValidation("name", "source name is required")
	}
	if src.TrustTier < TierOfficial || src.TrustTier > TierUnverified {
		return nil, apperrors.NewValidation("trust_tier", "trust tier must be 1, 2 or 3")
	}
	if src.Kind == "" {
		src.Kind = SourceFeed
	}
	src.ID = uuid.NewString()
	src.Active = true
	src.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (id, name, kind, trust_tier, active, failure_count, created_at)
		VALUES (?, ?, ?, ?, 1, 0, ?)`,
		src.ID, src.Name, string(src.Kind), src.TrustTier, src.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert source: %w", err)
	}
	return &src, nil
}

// GetSource returns the source with the given ID.
func (s *Store) GetSource(ctx context.Context, id string) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, kind, trust_tier, active, failure_count, created_at
		FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("source", id)
	}
	return src, err
}

// ListSources returns all sources ordered by trust tier, then name.
func (s *Store) ListSources(ctx context.Context) ([]*Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, trust_tier, active, failure_count, created_at
		FROM sources ORDER BY trust_tier, name`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// UpdateSourceHealth records the collector-owned health fields.
func (s *Store) UpdateSourceHealth(ctx context.Context, id string, active bool, failureCount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET active = ?, failure_count = ? WHERE id = ?`,
		boolToInt(active), failureCount, id)
	if err != nil {
		return fmt.Errorf("update source health: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFound("source", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*Entity, error) {
	var e Entity
	var typ, aliases, identifiers, tickers string
	err := row.Scan(&e.ID, &typ, &e.DisplayName, &aliases, &identifiers, &tickers, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan entity: %w", err)
	}
	e.Type = EntityType(typ)
	json.Unmarshal([]byte(aliases), &e.Aliases)
	json.Unmarshal([]byte(identifiers), &e.Identifiers)
	json.Unmarshal([]byte(tickers), &e.Tickers)
	return &e, nil
}

func scanSource(row rowScanner) (*Source, error) {
	var src Source
	var kind string
	var active int
	err := row.Scan(&src.ID, &src.Name, &kind, &src.TrustTier, &active, &src.FailureCount, &src.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	src.Kind = SourceKind(kind)
	src.Active = active != 0
	return &src, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

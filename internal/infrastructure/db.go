package infrastructure

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"crisispulse/internal/config"
)

var memDBSeq atomic.Int64

// OpenDB opens the SQLite database, applies connection pragmas and ensures
// the schema exists.
func OpenDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConn)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return db, nil
}

// OpenMemoryDB opens a fresh in-memory database with the schema applied.
// Tests use this; each call gets its own database.
func OpenMemoryDB() (*sql.DB, error) {
	name := fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", memDBSeq.Add(1))
	db, err := sql.Open("sqlite", name)
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	// A single connection avoids cross-connection visibility surprises with
	// the shared in-memory cache.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates all core tables if they do not exist.
func Migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	id           TEXT PRIMARY KEY,
	entity_type  TEXT NOT NULL,
	display_name TEXT NOT NULL,
	aliases      TEXT NOT NULL DEFAULT '[]',
	identifiers  TEXT NOT NULL DEFAULT '[]',
	tickers      TEXT NOT NULL DEFAULT '[]',
	created_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS sources (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	kind          TEXT NOT NULL,
	trust_tier    INTEGER NOT NULL CHECK (trust_tier BETWEEN 1 AND 3),
	active        INTEGER NOT NULL DEFAULT 1,
	failure_count INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id           TEXT PRIMARY KEY,
	event_type   TEXT NOT NULL,
	entity_id    TEXT REFERENCES entities(id),
	source_id    TEXT NOT NULL REFERENCES sources(id),
	published_at TIMESTAMP,
	observed_at  TIMESTAMP NOT NULL,
	payload      TEXT NOT NULL DEFAULT '{}',
	content_hash TEXT NOT NULL UNIQUE
);
CREATE INDEX IF NOT EXISTS idx_events_entity_observed ON events(entity_id, observed_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);

CREATE TABLE IF NOT EXISTS claims (
	id                TEXT PRIMARY KEY,
	entity_id         TEXT REFERENCES entities(id),
	source_id         TEXT NOT NULL REFERENCES sources(id),
	claim_type        TEXT NOT NULL,
	content           TEXT NOT NULL,
	author            TEXT,
	url               TEXT,
	engagement        TEXT NOT NULL DEFAULT '{}',
	credibility       REAL NOT NULL DEFAULT 0 CHECK (credibility BETWEEN 0 AND 100),
	status            TEXT NOT NULL DEFAULT 'new',
	status_reason     TEXT NOT NULL DEFAULT '',
	status_changed_at TIMESTAMP NOT NULL,
	created_at        TIMESTAMP NOT NULL,
	version           INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status);
CREATE INDEX IF NOT EXISTS idx_claims_entity ON claims(entity_id);

CREATE TABLE IF NOT EXISTS corroborations (
	id          TEXT PRIMARY KEY,
	claim_id    TEXT NOT NULL REFERENCES claims(id),
	event_id    TEXT NOT NULL REFERENCES events(id),
	confidence  REAL NOT NULL CHECK (confidence BETWEEN 0 AND 1),
	contradicts INTEGER NOT NULL DEFAULT 0,
	rationale   TEXT NOT NULL DEFAULT '',
	matched_by  TEXT NOT NULL DEFAULT 'automatic',
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL,
	UNIQUE (claim_id, event_id)
);

CREATE TABLE IF NOT EXISTS entity_scores (
	entity_id         TEXT NOT NULL REFERENCES entities(id),
	score_date        TEXT NOT NULL,
	funding           REAL NOT NULL CHECK (funding BETWEEN 0 AND 100),
	enforcement       REAL NOT NULL CHECK (enforcement BETWEEN 0 AND 100),
	deliverability    REAL NOT NULL CHECK (deliverability BETWEEN 0 AND 100),
	composite         REAL NOT NULL CHECK (composite BETWEEN 0 AND 10),
	cascade_triggered INTEGER NOT NULL DEFAULT 0,
	explain           TEXT NOT NULL DEFAULT '[]',
	computed_at       TIMESTAMP NOT NULL,
	PRIMARY KEY (entity_id, score_date)
);

CREATE TABLE IF NOT EXISTS market_scores (
	score_date       TEXT PRIMARY KEY,
	funding          REAL NOT NULL,
	enforcement      REAL NOT NULL,
	deliverability   REAL NOT NULL,
	composite        REAL NOT NULL,
	entity_count     INTEGER NOT NULL,
	danger_count     INTEGER NOT NULL,
	crisis_count     INTEGER NOT NULL,
	cascade_stage    INTEGER NOT NULL CHECK (cascade_stage BETWEEN 0 AND 5),
	computed_at      TIMESTAMP NOT NULL
);
`

// Package registry holds the static reference data: the entities being
// tracked and the sources observations come from.
package registry

import "time"

// EntityType tags what kind of subject an entity is. Open set; values outside
// the known constants are preserved as-is and treated as EntityOther.
type EntityType string

const (
	EntityBank      EntityType = "bank"
	EntityRegulator EntityType = "regulator"
	EntityCommodity EntityType = "commodity"
	EntityTicker    EntityType = "ticker"
	EntityPerson    EntityType = "person"
	EntityExchange  EntityType = "exchange"
	EntityFund      EntityType = "fund"
	EntityOther     EntityType = "other"
)

// SourceKind tags how a source delivers data.
type SourceKind string

const (
	SourceFeed   SourceKind = "feed"
	SourceAPI    SourceKind = "api"
	SourceScrape SourceKind = "scrape"
	SourceManual SourceKind = "manual"
	SourceFiling SourceKind = "filing"
)

// Trust tiers, ordinal; lower is more trusted.
const (
	TierOfficial   = 1 // regulators, filings, exchange notices
	TierPress      = 2 // credible press
	TierUnverified = 3 // social / unverified
)

// Entity is a tracked subject. Identity is immutable once created; aliases,
// identifiers and tickers may be appended. Entities are never deleted.
type Entity struct {
	ID          string     `json:"id"`
	Type        EntityType `json:"type"`
	DisplayName string     `json:"display_name"`
	Aliases     []string   `json:"aliases"`
	Identifiers []string   `json:"identifiers"`
	Tickers     []string   `json:"tickers"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Source is a data origin. The failure counter belongs to the external
// collector; this core only stores it.
type Source struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Kind         SourceKind `json:"kind"`
	TrustTier    int        `json:"trust_tier"`
	Active       bool       `json:"active"`
	FailureCount int        `json:"failure_count"`
	CreatedAt    time.Time  `json:"created_at"`
}

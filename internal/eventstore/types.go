// Package eventstore is the append-only observation store. Events are
// immutable once written and deduplicated by a deterministic content hash;
// ingesting the same observation twice returns the original row.
package eventstore

import (
	"encoding/json"
	"time"
)

// EventType tags what an observation reports. Open set: values not listed
// here are stored verbatim, so new collectors never need a schema change.
type EventType string

const (
	EventRegulatoryAction  EventType = "regulatory_action"
	EventEnforcementNotice EventType = "enforcement_notice"
	EventFiling            EventType = "filing"
	EventRatingDowngrade   EventType = "rating_downgrade"
	EventRateSpike         EventType = "rate_spike"
	EventFacilityDraw      EventType = "facility_draw"
	EventDepositOutflow    EventType = "deposit_outflow"
	EventSettlementFail    EventType = "settlement_fail"
	EventInventoryDrawdown EventType = "inventory_drawdown"
	EventMissedPayment     EventType = "missed_payment"
	EventOther             EventType = "other"
)

// Event is an immutable observation attributed to a source.
type Event struct {
	ID          string          `json:"id"`
	Type        EventType       `json:"type"`
	EntityID    string          `json:"entity_id,omitempty"`
	SourceID    string          `json:"source_id"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
	ObservedAt  time.Time       `json:"observed_at"`
	Payload     json.RawMessage `json:"payload"`
	ContentHash string          `json:"content_hash"`
}

// IngestRequest is a normalized observation submitted for ingestion.
type IngestRequest struct {
	Type        EventType       `json:"type"`
	EntityID    string          `json:"entity_id,omitempty"`
	SourceID    string          `json:"source_id"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// IngestResult reports the outcome of an ingestion attempt.
type IngestResult struct {
	EventID      string `json:"event_id"`
	WasDuplicate bool   `json:"was_duplicate"`
}

// Filter narrows an event query. Zero values mean "no constraint".
// Results are ordered by observed_at descending.
type Filter struct {
	EntityID string
	Type     EventType
	SourceID string
	MaxTier  int // include only sources with trust_tier <= MaxTier
	Since    time.Time
	Until    time.Time
	Limit    int
}

// TieredEvent is an event joined with its source's trust tier, used by the
// score aggregator to weight contributions.
type TieredEvent struct {
	Event
	TrustTier int `json:"trust_tier"`
}

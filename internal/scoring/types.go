// Package scoring computes per-entity and market-wide risk scores from
// events, claims and corroborations, classifies the cascade stage and
// resolves human-readable risk labels.
package scoring

import "time"

// Dimension names. Event and claim contributions each feed one of the three
// stress dimensions; corroboration contributions feed the composite's
// severity term instead.
const (
	DimFunding        = "funding"
	DimEnforcement    = "enforcement"
	DimDeliverability = "deliverability"
	DimSeverity       = "severity"
)

// Dimensions holds the three stress dimensions, each in [0,100].
type Dimensions struct {
	Funding        float64 `json:"funding"`
	Enforcement    float64 `json:"enforcement"`
	Deliverability float64 `json:"deliverability"`
}

// Values returns the dimensions in canonical order.
func (d Dimensions) Values() [3]float64 {
	return [3]float64{d.Funding, d.Enforcement, d.Deliverability}
}

// Max returns the largest dimension.
func (d Dimensions) Max() float64 {
	m := d.Funding
	if d.Enforcement > m {
		m = d.Enforcement
	}
	if d.Deliverability > m {
		m = d.Deliverability
	}
	return m
}

// Contribution is one explain-payload entry: a single signal and the amount
// it actually added to its dimension (for corroborations, the per-link
// severity before saturation). The snapshot is persisted with the score so it
// stays reproducible even if scoring configuration changes later.
type Contribution struct {
	Kind      string  `json:"kind"` // "event", "claim" or "corroboration"
	ID        string  `json:"id"`
	Tag       string  `json:"tag"`
	Dimension string  `json:"dimension"`
	Weight    float64 `json:"weight"`
}

// EntityScore is the stress assessment for one entity on one date. At most
// one row exists per (entity, date); recomputation overwrites.
type EntityScore struct {
	EntityID         string         `json:"entity_id"`
	Date             string         `json:"date"` // YYYY-MM-DD
	Dimensions       Dimensions     `json:"dimensions"`
	Composite        float64        `json:"composite"` // [0,10]
	CascadeTriggered bool           `json:"cascade_triggered"`
	Explain          []Contribution `json:"explain"`
	ComputedAt       time.Time      `json:"computed_at"`
}

// MarketScore aggregates all entity scores for a date.
type MarketScore struct {
	Date         string     `json:"date"`
	Dimensions   Dimensions `json:"dimensions"`
	Composite    float64    `json:"composite"`
	EntityCount  int        `json:"entity_count"`
	DangerCount  int        `json:"danger_count"`
	CrisisCount  int        `json:"crisis_count"`
	CascadeStage int        `json:"cascade_stage"`
	ComputedAt   time.Time  `json:"computed_at"`
}

// DateLayout is the canonical score-date format.
const DateLayout = "2006-01-02"

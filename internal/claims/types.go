// Package claims tracks tiered-trust assertions through their lifecycle:
// new -> triage -> corroborating -> {confirmed | debunked}, with a timeout
// path to stale from any of the three active states.
package claims

import (
	"encoding/json"
	"time"
)

// Status is a claim lifecycle state.
type Status string

const (
	StatusNew           Status = "new"
	StatusTriage        Status = "triage"
	StatusCorroborating Status = "corroborating"
	StatusConfirmed     Status = "confirmed"
	StatusDebunked      Status = "debunked"
	StatusStale         Status = "stale"
)

// allowedTransitions is the full transition table. Anything absent here is
// rejected with a TransitionError. stale -> confirmed is the one reopening
// path: a late confirming corroboration still promotes a timed-out claim.
var allowedTransitions = map[Status][]Status{
	StatusNew:           {StatusTriage, StatusStale},
	StatusTriage:        {StatusCorroborating, StatusStale},
	StatusCorroborating: {StatusConfirmed, StatusDebunked, StatusStale},
	StatusStale:         {StatusConfirmed},
}

// CanTransition reports whether from -> to is in the allowed table.
func CanTransition(from, to Status) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status accepts no further transitions under
// normal operation.
func IsTerminal(s Status) bool {
	return s == StatusConfirmed || s == StatusDebunked
}

// IsActive reports whether a status is subject to the staleness sweep.
func IsActive(s Status) bool {
	return s == StatusNew || s == StatusTriage || s == StatusCorroborating
}

// ClaimType tags what a claim asserts. Open set, "other" is the catch-all.
type ClaimType string

const (
	ClaimBankRunRumor    ClaimType = "bank_run_rumor"
	ClaimInsolvencyRumor ClaimType = "insolvency_rumor"
	ClaimDefaultRumor    ClaimType = "default_rumor"
	ClaimDeliveryFailure ClaimType = "delivery_failure"
	ClaimEnforcement     ClaimType = "enforcement_rumor"
	ClaimFundingStress   ClaimType = "funding_stress"
	ClaimOther           ClaimType = "other"
)

// Attribution records where a claim came from.
type Attribution struct {
	SourceID string `json:"source_id"`
	Author   string `json:"author,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Claim is a mutable, tiered-trust assertion.
type Claim struct {
	ID              string          `json:"id"`
	EntityID        string          `json:"entity_id,omitempty"`
	Type            ClaimType       `json:"type"`
	Content         string          `json:"content"`
	Attribution     Attribution     `json:"attribution"`
	Engagement      json.RawMessage `json:"engagement"`
	Credibility     float64         `json:"credibility"`
	Status          Status          `json:"status"`
	StatusReason    string          `json:"status_reason"`
	StatusChangedAt time.Time       `json:"status_changed_at"`
	CreatedAt       time.Time       `json:"created_at"`
	Version         int64           `json:"version"`
}

// CreateRequest is the input for creating a claim.
type CreateRequest struct {
	EntityID    string          `json:"entity_id,omitempty"`
	SourceID    string          `json:"source_id"`
	Type        ClaimType       `json:"type"`
	Content     string          `json:"content"`
	Author      string          `json:"author,omitempty"`
	URL         string          `json:"url,omitempty"`
	Engagement  json.RawMessage `json:"engagement,omitempty"`
	Credibility float64         `json:"credibility"`
}

// Package corroborate links claims to confirming or contradicting events and
// drives the automatic confirm/debunk transitions.
package corroborate

import "time"

// MatchedBy records what produced a corroboration.
const (
	MatchedAutomatic = "automatic"
	MatchedManual    = "manual"
)

// Corroboration links exactly one claim to one event. The (claim, event)
// pair is unique; resubmission updates confidence and rationale in place.
type Corroboration struct {
	ID          string    `json:"id"`
	ClaimID     string    `json:"claim_id"`
	EventID     string    `json:"event_id"`
	Confidence  float64   `json:"confidence"`
	Contradicts bool      `json:"contradicts"`
	Rationale   string    `json:"rationale"`
	MatchedBy   string    `json:"matched_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SubmitRequest is the input for recording a corroboration.
type SubmitRequest struct {
	ClaimID     string  `json:"claim_id"`
	EventID     string  `json:"event_id"`
	Confidence  float64 `json:"confidence"`
	Contradicts bool    `json:"contradicts"`
	Rationale   string  `json:"rationale"`
	MatchedBy   string  `json:"matched_by,omitempty"`
}

// SubmitResult reports the stored corroboration and any claim status change
// it triggered ("", "confirmed" or "debunked").
type SubmitResult struct {
	Corroboration *Corroboration `json:"corroboration"`
	ClaimAction   string         `json:"claim_action,omitempty"`
}

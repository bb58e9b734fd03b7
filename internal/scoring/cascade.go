package scoring

import "crisispulse/internal/config"

// CascadeStage classifies systemic severity 0-5 from the three stress
// dimensions. Pure and deterministic: no clock, no store, only the inputs and
// the configured thresholds (defaults 70/50/30).
//
// Stage 5: two or more dimensions extreme.
// Stage 4: one extreme and at least two high.
// Stage 3: two or more high.
// Stage 2: exactly one high.
// Stage 1: anything elevated.
// Stage 0: quiet.
func CascadeStage(d Dimensions, cfg config.CascadeConfig) int {
	extreme, high, elevated := 0, 0, 0
	for _, v := range d.Values() {
		if v >= cfg.ExtremeThreshold {
			extreme++
		}
		if v >= cfg.HighThreshold {
			high++
		}
		if v > cfg.ElevatedThreshold {
			elevated++
		}
	}

	switch {
	case extreme >= 2:
		return 5
	case extreme == 1 && high >= 2:
		return 4
	case high >= 2:
		return 3
	case high == 1:
		return 2
	case elevated > 0:
		return 1
	default:
		return 0
	}
}

// cascadeTriggered reports whether a stage counts as an active cascade for
// the per-entity flag. Stage 4 is the first compounding configuration: one
// extreme dimension with a second one already high.
func cascadeTriggered(stage int) bool {
	return stage >= 4
}

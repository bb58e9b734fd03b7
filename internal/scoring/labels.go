package scoring

import (
	"fmt"

	apperrors "crisispulse/internal/errors"
)

// Band maps a half-open composite range [Min, Max) to a label and color. The
// top band is closed at 10.
type Band struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Label string  `json:"label"`
	Color string  `json:"color"`
}

// bands is the static ordered lookup. Lower bound inclusive, upper bound
// exclusive, except CRISIS which includes 10.0.
var bands = []Band{
	{Min: 0, Max: 1.5, Label: "STABLE", Color: "#2e7d32"},
	{Min: 1.5, Max: 2.5, Label: "MONITOR", Color: "#9e9d24"},
	{Min: 2.5, Max: 4.0, Label: "WATCH", Color: "#f9a825"},
	{Min: 4.0, Max: 6.0, Label: "WARNING", Color: "#ef6c00"},
	{Min: 6.0, Max: 8.0, Label: "DANGER", Color: "#d84315"},
	{Min: 8.0, Max: 10.0, Label: "CRISIS", Color: "#b71c1c"},
}

// Bands returns a copy of the label table.
func Bands() []Band {
	out := make([]Band, len(bands))
	copy(out, bands)
	return out
}

// ResolveLabel maps a composite score to its band. Scores outside [0,10] are
// a caller error.
func ResolveLabel(score float64) (Band, error) {
	if score < 0 || score > 10 {
		return Band{}, apperrors.NewValidation("score",
			fmt.Sprintf("score %.3f outside [0,10]", score))
	}
	for _, b := range bands {
		if score >= b.Min && score < b.Max {
			return b, nil
		}
	}
	// Only score == 10.0 falls through; the top band is closed.
	return bands[len(bands)-1], nil
}

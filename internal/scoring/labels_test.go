package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "crisispulse/internal/errors"
)

func TestResolveLabel(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0, "STABLE"},
		{1.49, "STABLE"},
		{1.5, "MONITOR"},
		{2.5, "WATCH"},
		{3.999, "WATCH"},
		{4.0, "WARNING"},
		{5.99, "WARNING"},
		{6.0, "DANGER"},
		{7.999, "DANGER"},
		{8.0, "CRISIS"},
		{9.5, "CRISIS"},
		{10.0, "CRISIS"}, // top band is closed
	}

	for _, tt := range tests {
		band, err := ResolveLabel(tt.score)
		require.NoError(t, err, "score %.3f", tt.score)
		assert.Equal(t, tt.want, band.Label, "score %.3f", tt.score)
		assert.NotEmpty(t, band.Color)
	}
}

func TestResolveLabelOutOfRange(t *testing.T) {
	for _, score := range []float64{-0.001, -5, 10.001, 42} {
		_, err := ResolveLabel(score)
		require.Error(t, err, "score %.3f", score)
		assert.True(t, apperrors.IsValidation(err))
	}
}

func TestBandsAreOrderedAndNonOverlapping(t *testing.T) {
	b := Bands()
	require.NotEmpty(t, b)
	assert.Equal(t, 0.0, b[0].Min)
	assert.Equal(t, 10.0, b[len(b)-1].Max)
	for i := 1; i < len(b); i++ {
		assert.Equal(t, b[i-1].Max, b[i].Min, "band %d must start where band %d ends", i, i-1)
	}
}

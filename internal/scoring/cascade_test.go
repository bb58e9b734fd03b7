package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"crisispulse/internal/config"
)

func defaultCascadeConfig() config.CascadeConfig {
	return config.CascadeConfig{
		ExtremeThreshold:  70,
		HighThreshold:     50,
		ElevatedThreshold: 30,
	}
}

func TestCascadeStage(t *testing.T) {
	cfg := defaultCascadeConfig()

	tests := []struct {
		name string
		dims Dimensions
		want int
	}{
		{"two extreme dimensions", Dimensions{Funding: 70, Enforcement: 70}, 5},
		{"one extreme, two high", Dimensions{Funding: 70, Enforcement: 50, Deliverability: 50}, 4},
		{"two high", Dimensions{Funding: 50, Enforcement: 50}, 3},
		{"one high", Dimensions{Funding: 50}, 2},
		{"one elevated", Dimensions{Funding: 31}, 1},
		{"all quiet", Dimensions{}, 0},
		{"boundary: 30 is not elevated", Dimensions{Funding: 30}, 0},
		{"boundary: exactly 50 counts as high", Dimensions{Deliverability: 50}, 2},
		{"extreme dimension alone is also high", Dimensions{Enforcement: 95}, 2},
		{"three extreme", Dimensions{Funding: 80, Enforcement: 90, Deliverability: 100}, 5},
		{"one extreme with one other high", Dimensions{Funding: 75, Enforcement: 55}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CascadeStage(tt.dims, cfg))
		})
	}
}

func TestCascadeStageIsDeterministic(t *testing.T) {
	cfg := defaultCascadeConfig()
	d := Dimensions{Funding: 71.3, Enforcement: 52.8, Deliverability: 12.0}
	first := CascadeStage(d, cfg)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, CascadeStage(d, cfg))
	}
}

func TestCascadeTriggered(t *testing.T) {
	assert.False(t, cascadeTriggered(3))
	assert.True(t, cascadeTriggered(4))
	assert.True(t, cascadeTriggered(5))
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 168*time.Hour, cfg.Claims.StaleAfter)
	assert.Equal(t, "@hourly", cfg.Claims.SweepSchedule)
	assert.Equal(t, 3, cfg.Claims.MaxTransitionRetries)
	assert.Equal(t, 0.75, cfg.Matcher.ConfirmThreshold)
	assert.Equal(t, 2, cfg.Matcher.DebunkMaxTier)
	assert.Equal(t, 14, cfg.Scoring.WindowDays)
	assert.Equal(t, 72*time.Hour, cfg.Scoring.HalfLife)
	assert.Equal(t, 60.0, cfg.Scoring.CredibilityFloor)
	assert.Equal(t, 70.0, cfg.Scoring.Cascade.ExtremeThreshold)

	require.NoError(t, cfg.validate())
}

func TestDefaultPolicyTables(t *testing.T) {
	cfg := Default()

	assert.Contains(t, cfg.Matcher.Compatibility, "other", "the wildcard fallback must exist")
	assert.Contains(t, cfg.Matcher.Compatibility["bank_run_rumor"], "deposit_outflow")

	assert.Equal(t, 1.0, cfg.Scoring.TierWeights[1])
	assert.Equal(t, 0.7, cfg.Scoring.TierWeights[2])
	assert.Equal(t, 0.35, cfg.Scoring.TierWeights[3])

	for tag, dim := range cfg.Scoring.TagDimensions {
		assert.Contains(t, []string{"funding", "enforcement", "deliverability"}, dim,
			"tag %q maps to an unknown dimension", tag)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CRISISPULSE_SERVER_PORT", "9090")
	t.Setenv("CRISISPULSE_CLAIMS_STALE_AFTER", "24h")
	t.Setenv("CRISISPULSE_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.Claims.StaleAfter)
}

func TestLoadMergesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 7070
claims:
  stale_after: 48h
matcher:
  confirm_threshold: 0.9
scoring:
  window_days: 7
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CRISISPULSE_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 48*time.Hour, cfg.Claims.StaleAfter)
	assert.Equal(t, 0.9, cfg.Matcher.ConfirmThreshold)
	assert.Equal(t, 7, cfg.Scoring.WindowDays)
	// Untouched settings keep their defaults.
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NotEmpty(t, cfg.Matcher.Compatibility)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"non-positive stale_after", func(c *Config) { c.Claims.StaleAfter = 0 }},
		{"zero transition retries", func(c *Config) { c.Claims.MaxTransitionRetries = 0 }},
		{"confirm threshold above 1", func(c *Config) { c.Matcher.ConfirmThreshold = 1.5 }},
		{"debunk tier out of range", func(c *Config) { c.Matcher.DebunkMaxTier = 4 }},
		{"matcher weights do not sum to 1", func(c *Config) { c.Matcher.EntityWeight = 0.9 }},
		{"zero window", func(c *Config) { c.Scoring.WindowDays = 0 }},
		{"non-positive half life", func(c *Config) { c.Scoring.HalfLife = 0 }},
		{"blend weights do not sum to 1", func(c *Config) { c.Scoring.Blend.MaxWeight = 0.9 }},
		{"cascade thresholds not decreasing", func(c *Config) { c.Scoring.Cascade.HighThreshold = 80 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

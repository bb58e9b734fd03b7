// Package config loads application configuration from environment variables
// (prefix CRISISPULSE) merged with an optional YAML file. Scoring and matching
// policy is configuration, not code: weights, decay half-lives, thresholds and
// the claim/event type compatibility table all live here.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Database DatabaseConfig `yaml:"database" envconfig:"DATABASE"`
	Claims   ClaimsConfig   `yaml:"claims" envconfig:"CLAIMS"`
	Matcher  MatcherConfig  `yaml:"matcher" envconfig:"MATCHER"`
	Scoring  ScoringConfig  `yaml:"scoring" envconfig:"SCORING"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/crisispulse.log"`
}

// DatabaseConfig contains SQLite configuration.
type DatabaseConfig struct {
	Path        string        `yaml:"path" envconfig:"PATH" default:"data/crisispulse.db"`
	BusyTimeout time.Duration `yaml:"busy_timeout" envconfig:"BUSY_TIMEOUT" default:"30s"`
	MaxOpenConn int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS" default:"10"`
}

// ClaimsConfig controls the claim lifecycle.
type ClaimsConfig struct {
	// StaleAfter is the age past which an unresolved claim is swept to stale.
	StaleAfter time.Duration `yaml:"stale_after" envconfig:"STALE_AFTER" default:"168h"`
	// SweepSchedule is a cron expression for the in-process staleness sweep.
	SweepSchedule string `yaml:"sweep_schedule" envconfig:"SWEEP_SCHEDULE" default:"@hourly"`
	// MaxTransitionRetries bounds optimistic-concurrency retries per transition.
	MaxTransitionRetries int `yaml:"max_transition_retries" envconfig:"MAX_TRANSITION_RETRIES" default:"3"`
}

// MatcherConfig controls corroboration confidence scoring.
type MatcherConfig struct {
	// Component weights; should sum to 1.
	EntityWeight   float64 `yaml:"entity_weight" envconfig:"ENTITY_WEIGHT" default:"0.4"`
	TypeWeight     float64 `yaml:"type_weight" envconfig:"TYPE_WEIGHT" default:"0.35"`
	TemporalWeight float64 `yaml:"temporal_weight" envconfig:"TEMPORAL_WEIGHT" default:"0.25"`
	// TemporalHalfLife is the decay half-life for claim/event time distance.
	TemporalHalfLife time.Duration `yaml:"temporal_half_life" envconfig:"TEMPORAL_HALF_LIFE" default:"48h"`
	// ConfirmThreshold promotes a corroborating claim to confirmed.
	ConfirmThreshold float64 `yaml:"confirm_threshold" envconfig:"CONFIRM_THRESHOLD" default:"0.75"`
	// DebunkMaxTier is the highest (least trusted) tier allowed to debunk.
	DebunkMaxTier int `yaml:"debunk_max_tier" envconfig:"DEBUNK_MAX_TIER" default:"2"`
	// Compatibility maps claim type -> event types considered confirming.
	// The key "other" is the wildcard fallback.
	Compatibility map[string][]string `yaml:"compatibility" envconfig:"-"`
}

// ScoringConfig controls the score aggregator.
type ScoringConfig struct {
	// WindowDays is the lookback window for contributing events/claims.
	WindowDays int `yaml:"window_days" envconfig:"WINDOW_DAYS" default:"14"`
	// HalfLife is the recency-decay half-life for contributions.
	HalfLife time.Duration `yaml:"half_life" envconfig:"HALF_LIFE" default:"72h"`
	// TierWeights maps source trust tier (1..3) to an event weight.
	TierWeights map[int]float64 `yaml:"tier_weights" envconfig:"-"`
	// TagDimensions maps an event/claim type tag to the stress dimension it
	// feeds: funding, enforcement or deliverability.
	TagDimensions map[string]string `yaml:"tag_dimensions" envconfig:"-"`
	// TagWeights maps a type tag to its per-contribution base weight.
	TagWeights map[string]float64 `yaml:"tag_weights" envconfig:"-"`
	// CredibilityFloor is the minimum claim credibility (0-100) to contribute.
	CredibilityFloor float64 `yaml:"credibility_floor" envconfig:"CREDIBILITY_FLOOR" default:"60"`
	// DimensionScale converts a weighted contribution sum to the 0-100 scale.
	DimensionScale float64 `yaml:"dimension_scale" envconfig:"DIMENSION_SCALE" default:"20"`
	// Blend controls the composite formula.
	Blend BlendConfig `yaml:"blend" envconfig:"BLEND"`
	// Cascade holds the stage classification thresholds.
	Cascade CascadeConfig `yaml:"cascade" envconfig:"CASCADE"`
}

// BlendConfig is the composite risk blend policy: composite =
// MaxWeight * max(dimensions)/10 + CorroborationWeight * severity.
type BlendConfig struct {
	MaxWeight           float64 `yaml:"max_weight" envconfig:"MAX_WEIGHT" default:"0.6"`
	CorroborationWeight float64 `yaml:"corroboration_weight" envconfig:"CORROBORATION_WEIGHT" default:"0.4"`
	// SeverityPerCorroboration converts confirmed-corroboration counts into
	// the 0-10 severity signal, saturating at 10.
	SeverityPerCorroboration float64 `yaml:"severity_per_corroboration" envconfig:"SEVERITY_PER_CORROBORATION" default:"2.5"`
}

// CascadeConfig holds the dimension thresholds for stage classification.
type CascadeConfig struct {
	ExtremeThreshold  float64 `yaml:"extreme_threshold" envconfig:"EXTREME_THRESHOLD" default:"70"`
	HighThreshold     float64 `yaml:"high_threshold" envconfig:"HIGH_THRESHOLD" default:"50"`
	ElevatedThreshold float64 `yaml:"elevated_threshold" envconfig:"ELEVATED_THRESHOLD" default:"30"`
}

// Load loads configuration from environment variables and, if present, the
// YAML file named by CRISISPULSE_CONFIG_FILE (default config.yaml).
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("CRISISPULSE", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	configFile := os.Getenv("CRISISPULSE_CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}
	if _, err := os.Stat(configFile); err == nil {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config from file: %w", err)
		}
		cfg.merge(fileCfg)
	}

	cfg.applyPolicyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns a validated configuration with all defaults applied and no
// environment or file input. Used by tests and the one-shot sweeper.
func Default() *Config {
	var cfg Config
	// envconfig populates struct-tag defaults even with no variables set.
	if err := envconfig.Process("CRISISPULSE_UNSET", &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	cfg.applyPolicyDefaults()
	return &cfg
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// merge overlays non-zero file values onto the env-derived config. The maps
// are taken wholesale from the file when present.
func (c *Config) merge(file *Config) {
	if file.Server.Port != 0 {
		c.Server.Port = file.Server.Port
	}
	if file.Logging.Level != "" {
		c.Logging.Level = file.Logging.Level
	}
	if file.Logging.Output != "" {
		c.Logging.Output = file.Logging.Output
	}
	if file.Database.Path != "" {
		c.Database.Path = file.Database.Path
	}
	if file.Claims.StaleAfter != 0 {
		c.Claims.StaleAfter = file.Claims.StaleAfter
	}
	if file.Claims.SweepSchedule != "" {
		c.Claims.SweepSchedule = file.Claims.SweepSchedule
	}
	if file.Matcher.Compatibility != nil {
		c.Matcher.Compatibility = file.Matcher.Compatibility
	}
	if file.Matcher.ConfirmThreshold != 0 {
		c.Matcher.ConfirmThreshold = file.Matcher.ConfirmThreshold
	}
	if file.Scoring.TierWeights != nil {
		c.Scoring.TierWeights = file.Scoring.TierWeights
	}
	if file.Scoring.TagDimensions != nil {
		c.Scoring.TagDimensions = file.Scoring.TagDimensions
	}
	if file.Scoring.TagWeights != nil {
		c.Scoring.TagWeights = file.Scoring.TagWeights
	}
	if file.Scoring.WindowDays != 0 {
		c.Scoring.WindowDays = file.Scoring.WindowDays
	}
}

// applyPolicyDefaults fills the map-valued policy tables that envconfig
// cannot default via struct tags.
func (c *Config) applyPolicyDefaults() {
	if c.Matcher.Compatibility == nil {
		c.Matcher.Compatibility = map[string][]string{
			"bank_run_rumor":    {"deposit_outflow", "branch_closure", "regulatory_action"},
			"insolvency_rumor":  {"regulatory_action", "rating_downgrade", "filing"},
			"default_rumor":     {"missed_payment", "filing", "rating_downgrade"},
			"delivery_failure":  {"settlement_fail", "inventory_drawdown"},
			"enforcement_rumor": {"regulatory_action", "enforcement_notice", "filing"},
			"funding_stress":    {"rate_spike", "facility_draw", "deposit_outflow"},
			"other":             {"other"},
		}
	}
	if c.Scoring.TierWeights == nil {
		c.Scoring.TierWeights = map[int]float64{1: 1.0, 2: 0.7, 3: 0.35}
	}
	if c.Scoring.TagDimensions == nil {
		c.Scoring.TagDimensions = map[string]string{
			"rate_spike":         "funding",
			"facility_draw":      "funding",
			"deposit_outflow":    "funding",
			"funding_stress":     "funding",
			"bank_run_rumor":     "funding",
			"insolvency_rumor":   "funding",
			"regulatory_action":  "enforcement",
			"enforcement_notice": "enforcement",
			"enforcement_rumor":  "enforcement",
			"filing":             "enforcement",
			"rating_downgrade":   "enforcement",
			"settlement_fail":    "deliverability",
			"inventory_drawdown": "deliverability",
			"delivery_failure":   "deliverability",
			"missed_payment":     "deliverability",
			"default_rumor":      "deliverability",
		}
	}
	if c.Scoring.TagWeights == nil {
		c.Scoring.TagWeights = map[string]float64{
			"regulatory_action":  1.0,
			"enforcement_notice": 1.0,
			"settlement_fail":    1.0,
			"missed_payment":     1.0,
			"rate_spike":         0.9,
			"facility_draw":      0.9,
			"deposit_outflow":    0.9,
			"rating_downgrade":   0.8,
			"filing":             0.8,
			"inventory_drawdown": 0.7,
			"bank_run_rumor":     0.6,
			"insolvency_rumor":   0.6,
			"default_rumor":      0.6,
			"delivery_failure":   0.6,
			"enforcement_rumor":  0.6,
			"funding_stress":     0.6,
		}
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Claims.StaleAfter <= 0 {
		return fmt.Errorf("claims stale_after must be positive")
	}
	if c.Claims.MaxTransitionRetries < 1 {
		return fmt.Errorf("claims max_transition_retries must be at least 1")
	}
	if c.Matcher.ConfirmThreshold <= 0 || c.Matcher.ConfirmThreshold > 1 {
		return fmt.Errorf("matcher confirm_threshold must be in (0,1]")
	}
	if c.Matcher.DebunkMaxTier < 1 || c.Matcher.DebunkMaxTier > 3 {
		return fmt.Errorf("matcher debunk_max_tier must be 1-3")
	}
	sum := c.Matcher.EntityWeight + c.Matcher.TypeWeight + c.Matcher.TemporalWeight
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("matcher component weights must sum to 1, got %.3f", sum)
	}
	if c.Scoring.WindowDays < 1 {
		return fmt.Errorf("scoring window_days must be at least 1")
	}
	if c.Scoring.HalfLife <= 0 {
		return fmt.Errorf("scoring half_life must be positive")
	}
	bsum := c.Scoring.Blend.MaxWeight + c.Scoring.Blend.CorroborationWeight
	if bsum < 0.99 || bsum > 1.01 {
		return fmt.Errorf("scoring blend weights must sum to 1, got %.3f", bsum)
	}
	if c.Scoring.Cascade.ExtremeThreshold <= c.Scoring.Cascade.HighThreshold ||
		c.Scoring.Cascade.HighThreshold <= c.Scoring.Cascade.ElevatedThreshold {
		return fmt.Errorf("cascade thresholds must be strictly decreasing: extreme > high > elevated")
	}
	return nil
}

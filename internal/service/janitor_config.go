package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/credence-io/credence/internal/domain"
	"github.com/spf13/viper"
)

// ErrConfig marks janitor configuration that cannot be used to run sweeps.
var ErrConfig = errors.New("invalid janitor config")

// JanitorConfig controls sweep cadence and the tier lifecycle thresholds.
type JanitorConfig struct {
	EphemeralTTLHours    int `json:"ephemeral_ttl_hours" mapstructure:"ephemeral_ttl_hours"`
	TaskTTLHours         int `json:"task_ttl_hours" mapstructure:"task_ttl_hours"`
	ProjectStaleDays     int `json:"project_stale_days" mapstructure:"project_stale_days"`
	SweepIntervalMinutes int `json:"sweep_interval_minutes" mapstructure:"sweep_interval_minutes"`

	// Claims whose confidence lower bound falls under this threshold are
	// demotion candidates; claims at or above it are promotion candidates.
	DemotionConfidenceThreshold float64 `json:"demotion_confidence_threshold" mapstructure:"demotion_confidence_threshold"`

	// PromotionAccessThreshold is parsed and carried but not consulted by
	// sweeps; access counts are not tracked yet.
	PromotionAccessThreshold int `json:"promotion_access_threshold" mapstructure:"promotion_access_threshold"`

	DryRun      bool `json:"dry_run" mapstructure:"dry_run"`
	AutoPromote bool `json:"auto_promote" mapstructure:"auto_promote"`
	AutoDemote  bool `json:"auto_demote" mapstructure:"auto_demote"`
}

func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		EphemeralTTLHours:           12,
		TaskTTLHours:                24,
		ProjectStaleDays:            90,
		SweepIntervalMinutes:        60,
		DemotionConfidenceThreshold: 0.3,
		PromotionAccessThreshold:    7,
		DryRun:                      false,
		AutoPromote:                 true,
		AutoDemote:                  true,
	}
}

// AggressiveJanitorConfig keeps working sets small with short TTLs and a
// higher confidence bar.
func AggressiveJanitorConfig() JanitorConfig {
	return JanitorConfig{
		EphemeralTTLHours:           6,
		TaskTTLHours:                12,
		ProjectStaleDays:            30,
		SweepIntervalMinutes:        30,
		DemotionConfidenceThreshold: 0.4,
		PromotionAccessThreshold:    14,
		DryRun:                      false,
		AutoPromote:                 true,
		AutoDemote:                  true,
	}
}

// LenientJanitorConfig retains claims longer and demotes reluctantly.
func LenientJanitorConfig() JanitorConfig {
	return JanitorConfig{
		EphemeralTTLHours:           24,
		TaskTTLHours:                72,
		ProjectStaleDays:            180,
		SweepIntervalMinutes:        120,
		DemotionConfidenceThreshold: 0.2,
		PromotionAccessThreshold:    3,
		DryRun:                      false,
		AutoPromote:                 true,
		AutoDemote:                  true,
	}
}

// JanitorPreset resolves a named preset. An empty name selects the default.
func JanitorPreset(name string) (JanitorConfig, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return DefaultJanitorConfig(), nil
	case "aggressive":
		return AggressiveJanitorConfig(), nil
	case "lenient":
		return LenientJanitorConfig(), nil
	default:
		return JanitorConfig{}, fmt.Errorf("%w: unknown preset %q", ErrConfig, name)
	}
}

func (c JanitorConfig) Validate() error {
	if c.EphemeralTTLHours <= 0 {
		return fmt.Errorf("%w: ephemeral_ttl_hours must be positive, got %d", ErrConfig, c.EphemeralTTLHours)
	}
	if c.TaskTTLHours <= 0 {
		return fmt.Errorf("%w: task_ttl_hours must be positive, got %d", ErrConfig, c.TaskTTLHours)
	}
	if c.ProjectStaleDays <= 0 {
		return fmt.Errorf("%w: project_stale_days must be positive, got %d", ErrConfig, c.ProjectStaleDays)
	}
	if c.SweepIntervalMinutes <= 0 {
		return fmt.Errorf("%w: sweep_interval_minutes must be positive, got %d", ErrConfig, c.SweepIntervalMinutes)
	}
	if c.DemotionConfidenceThreshold < 0 || c.DemotionConfidenceThreshold > 1 {
		return fmt.Errorf("%w: demotion_confidence_threshold must be in [0, 1], got %g", ErrConfig, c.DemotionConfidenceThreshold)
	}
	if c.PromotionAccessThreshold < 0 {
		return fmt.Errorf("%w: promotion_access_threshold must not be negative, got %d", ErrConfig, c.PromotionAccessThreshold)
	}
	return nil
}

func (c JanitorConfig) EphemeralTTL() time.Duration {
	return time.Duration(c.EphemeralTTLHours) * time.Hour
}

func (c JanitorConfig) TaskTTL() time.Duration {
	return time.Duration(c.TaskTTLHours) * time.Hour
}

func (c JanitorConfig) ProjectStaleThreshold() time.Duration {
	return time.Duration(c.ProjectStaleDays) * 24 * time.Hour
}

func (c JanitorConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// TTLFor reports the retention window for a tier. Permanent claims have no
// TTL and report false.
func (c JanitorConfig) TTLFor(tier domain.Tier) (time.Duration, bool) {
	switch tier {
	case domain.TierEphemeral:
		return c.EphemeralTTL(), true
	case domain.TierTask:
		return c.TaskTTL(), true
	case domain.TierProject:
		return c.ProjectStaleThreshold(), true
	default:
		return 0, false
	}
}

// LoadJanitorConfig reads a TOML config file, filling omitted keys from the
// defaults. An empty path yields the default configuration.
func LoadJanitorConfig(path string) (JanitorConfig, error) {
	if path == "" {
		return DefaultJanitorConfig(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	def := DefaultJanitorConfig()
	v.SetDefault("ephemeral_ttl_hours", def.EphemeralTTLHours)
	v.SetDefault("task_ttl_hours", def.TaskTTLHours)
	v.SetDefault("project_stale_days", def.ProjectStaleDays)
	v.SetDefault("sweep_interval_minutes", def.SweepIntervalMinutes)
	v.SetDefault("demotion_confidence_threshold", def.DemotionConfidenceThreshold)
	v.SetDefault("promotion_access_threshold", def.PromotionAccessThreshold)
	v.SetDefault("dry_run", def.DryRun)
	v.SetDefault("auto_promote", def.AutoPromote)
	v.SetDefault("auto_demote", def.AutoDemote)

	if err := v.ReadInConfig(); err != nil {
		return JanitorConfig{}, fmt.Errorf("%w: read %s: %w", ErrConfig, path, err)
	}

	var cfg JanitorConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return JanitorConfig{}, fmt.Errorf("%w: parse %s: %w", ErrConfig, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return JanitorConfig{}, err
	}
	return cfg, nil
}

// Package config loads application configuration from file and environment
// and carries the tunable knobs for collection, scoring, and alerting.
package config

import (
	"math"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/rednix/eu-grants-monitor-agent/internal/models"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Monitor  MonitorConfig  `yaml:"monitor" mapstructure:"monitor"`
	Scoring  ScoringConfig  `yaml:"scoring" mapstructure:"scoring"`
	Alerts   AlertConfig    `yaml:"alerts" mapstructure:"alerts"`
	Telegram TelegramConfig `yaml:"telegram" mapstructure:"telegram"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`

	// ProfilePath points at the business profile YAML file.
	ProfilePath string `yaml:"profile_path" mapstructure:"profile_path"`
	// SourcesPath optionally overrides the embedded source registry.
	SourcesPath string `yaml:"sources_path" mapstructure:"sources_path"`
}

// StoreConfig configures the snapshot store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres
	Path        string `yaml:"path" mapstructure:"path"`     // sqlite file
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MonitorConfig configures the cycle orchestrator.
type MonitorConfig struct {
	MaxConcurrentCollectors int           `yaml:"max_concurrent_collectors" mapstructure:"max_concurrent_collectors"`
	CollectorTimeout        time.Duration `yaml:"collector_timeout" mapstructure:"collector_timeout"`
	Interval                time.Duration `yaml:"interval" mapstructure:"interval"`
}

// ScoringConfig holds the named weight sets for the scoring formulas.
type ScoringConfig struct {
	Weights            PriorityWeights `yaml:"weights" mapstructure:"weights"`
	Success            SuccessWeights  `yaml:"success" mapstructure:"success"`
	UrgencyHorizonDays float64         `yaml:"urgency_horizon_days" mapstructure:"urgency_horizon_days"`
}

// PriorityWeights combine the component scores into the priority score.
// They must sum to 1 and no weight is zero by default.
type PriorityWeights struct {
	Relevance  float64 `yaml:"relevance" mapstructure:"relevance"`
	Simplicity float64 `yaml:"simplicity" mapstructure:"simplicity"` // applied to (100 - complexity)
	Success    float64 `yaml:"success" mapstructure:"success"`
	Urgency    float64 `yaml:"urgency" mapstructure:"urgency"`
}

// SuccessWeights combine relevance and inverted complexity into the success
// probability heuristic.
type SuccessWeights struct {
	Relevance  float64 `yaml:"relevance" mapstructure:"relevance"`
	Simplicity float64 `yaml:"simplicity" mapstructure:"simplicity"`
}

// AlertConfig configures the alert decider.
type AlertConfig struct {
	PriorityThreshold float64 `yaml:"priority_threshold" mapstructure:"priority_threshold"`
	BucketWidth       float64 `yaml:"bucket_width" mapstructure:"bucket_width"`
	// ReminderDays are days-to-deadline boundaries; crossing one between
	// cycles produces a deadline-approaching alert for unchanged records.
	ReminderDays []int `yaml:"reminder_days" mapstructure:"reminder_days"`
}

// TelegramConfig configures the optional Telegram alert dispatcher.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	BotToken string `yaml:"bot_token" mapstructure:"bot_token"`
	ChatID   string `yaml:"chat_id" mapstructure:"chat_id"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// LogConfig configures the global zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json, console
}

// Load reads configuration from the given path (optional) plus GRANTS_*
// environment overrides, applies defaults, and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GRANTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, eris.Wrapf(err, "config: read %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "grants-monitor.db")

	v.SetDefault("monitor.max_concurrent_collectors", 3)
	v.SetDefault("monitor.collector_timeout", 60*time.Second)
	v.SetDefault("monitor.interval", time.Hour)

	v.SetDefault("scoring.weights.relevance", 0.4)
	v.SetDefault("scoring.weights.simplicity", 0.3)
	v.SetDefault("scoring.weights.success", 0.2)
	v.SetDefault("scoring.weights.urgency", 0.1)
	v.SetDefault("scoring.success.relevance", 0.6)
	v.SetDefault("scoring.success.simplicity", 0.4)
	v.SetDefault("scoring.urgency_horizon_days", 90)

	v.SetDefault("alerts.priority_threshold", 70)
	v.SetDefault("alerts.bucket_width", 10)
	v.SetDefault("alerts.reminder_days", []int{30, 14, 7, 3})

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("profile_path", "config/business_profile.yaml")
}

// weightTolerance allows for floating-point drift when checking that weight
// sets sum to 1.
const weightTolerance = 1e-6

// Validate checks internal consistency. Weight sets must sum to 1 and every
// priority weight must be positive.
func (c *Config) Validate() error {
	var errs []string

	w := c.Scoring.Weights
	for name, val := range map[string]float64{
		"weights.relevance":  w.Relevance,
		"weights.simplicity": w.Simplicity,
		"weights.success":    w.Success,
		"weights.urgency":    w.Urgency,
	} {
		if val <= 0 {
			errs = append(errs, name+" must be > 0")
		}
	}
	if sum := w.Relevance + w.Simplicity + w.Success + w.Urgency; math.Abs(sum-1) > weightTolerance {
		errs = append(errs, "priority weights must sum to 1")
	}

	s := c.Scoring.Success
	if s.Relevance < 0 || s.Simplicity < 0 {
		errs = append(errs, "success weights must be >= 0")
	}
	if sum := s.Relevance + s.Simplicity; math.Abs(sum-1) > weightTolerance {
		errs = append(errs, "success weights must sum to 1")
	}

	if c.Scoring.UrgencyHorizonDays <= 0 {
		errs = append(errs, "urgency_horizon_days must be > 0")
	}
	if c.Alerts.PriorityThreshold < 0 || c.Alerts.PriorityThreshold > 100 {
		errs = append(errs, "priority_threshold must be between 0 and 100")
	}
	if c.Alerts.BucketWidth <= 0 {
		errs = append(errs, "bucket_width must be > 0")
	}
	if c.Monitor.MaxConcurrentCollectors <= 0 {
		errs = append(errs, "max_concurrent_collectors must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadProfile reads the business profile from a YAML file.
func LoadProfile(path string) (models.BusinessProfile, error) {
	var profile models.BusinessProfile

	data, err := os.ReadFile(path)
	if err != nil {
		return profile, eris.Wrapf(err, "config: read profile %s", path)
	}
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return profile, eris.Wrapf(err, "config: parse profile %s", path)
	}

	if profile.ComplexityTolerance < 0 || profile.ComplexityTolerance > 100 {
		return profile, eris.New("config: complexity_tolerance must be between 0 and 100")
	}
	if profile.PreferredFundingMax > 0 && profile.PreferredFundingMin > profile.PreferredFundingMax {
		return profile, eris.New("config: preferred_funding_min must not exceed preferred_funding_max")
	}
	return profile, nil
}

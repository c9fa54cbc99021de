// Package config loads stepwise settings from a YAML file, STEPWISE_*
// environment variables and command-line flags through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// STEPWISE_POLLER_MAX_ATTEMPTS.
const EnvPrefix = "STEPWISE"

// Config is the complete stepwise configuration.
type Config struct {
	Uniqueness UniquenessConfig `mapstructure:"uniqueness"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Poller     PollerConfig     `mapstructure:"poller"`
	Submission SubmissionConfig `mapstructure:"submission"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Generation GenerationConfig `mapstructure:"generation"`
	Sim        SimConfig        `mapstructure:"sim"`
}

// UniquenessConfig controls the remote uniqueness checker.
type UniquenessConfig struct {
	// DebounceMs is the quiet period after the last edit before a check is issued.
	DebounceMs int `mapstructure:"debounce_ms"`
}

// EnrichmentConfig controls the generation fallback chains.
type EnrichmentConfig struct {
	StageTimeoutMs int `mapstructure:"stage_timeout_ms"`
}

// PollerConfig is the default polling policy.
type PollerConfig struct {
	IntervalMs  int `mapstructure:"interval_ms"`
	MaxAttempts int `mapstructure:"max_attempts"`
}

// SubmissionConfig controls background submission.
type SubmissionConfig struct {
	ApprovalCategory string `mapstructure:"approval_category"`
	Workers          int    `mapstructure:"workers"`
	QueueCapacity    int    `mapstructure:"queue_capacity"`
}

// StorageConfig selects the job store, key-value store and task queue.
type StorageConfig struct {
	// Path is the SQLite database file. Empty keeps everything in memory.
	Path string `mapstructure:"path"`
}

// LoggingConfig controls the slog logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GenerationConfig configures the content generation backend. When
// disabled every enrichment uses the fallback tables.
type GenerationConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
	ImageURL string `mapstructure:"image_url"`
}

// SimConfig configures the simulated backends used by the CLI.
type SimConfig struct {
	TakenPhrases       []string `mapstructure:"taken_phrases"`
	JobProcessingPolls int      `mapstructure:"job_processing_polls"`
	FailCall           string   `mapstructure:"fail_call"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Uniqueness: UniquenessConfig{DebounceMs: 500},
		Enrichment: EnrichmentConfig{StageTimeoutMs: 15000},
		Poller:     PollerConfig{IntervalMs: 5000, MaxAttempts: 12},
		Submission: SubmissionConfig{
			ApprovalCategory: "MARKETING",
			Workers:          1,
			QueueCapacity:    1024,
		},
		Logging:    LoggingConfig{Level: "info", Format: "json"},
		Generation: GenerationConfig{Model: "gpt-4o-mini"},
		Sim: SimConfig{
			TakenPhrases:       []string{"Hello Pizzeria", "Summer Sale"},
			JobProcessingPolls: 3,
		},
	}
}

// Debounce returns the uniqueness debounce delay.
func (c *UniquenessConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// StageTimeout returns the per-stage generation timeout.
func (c *EnrichmentConfig) StageTimeout() time.Duration {
	return time.Duration(c.StageTimeoutMs) * time.Millisecond
}

// Interval returns the polling interval.
func (c *PollerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// New returns a viper instance with defaults and environment overrides
// registered. If file is non-empty it is read as YAML.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file == "" {
		v.SetConfigName("stepwise")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
		return v, nil
	}

	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", file, err)
	}
	return v, nil
}

// SetDefaults registers default values with v.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("uniqueness.debounce_ms", d.Uniqueness.DebounceMs)
	v.SetDefault("enrichment.stage_timeout_ms", d.Enrichment.StageTimeoutMs)

	v.SetDefault("poller.interval_ms", d.Poller.IntervalMs)
	v.SetDefault("poller.max_attempts", d.Poller.MaxAttempts)

	v.SetDefault("submission.approval_category", d.Submission.ApprovalCategory)
	v.SetDefault("submission.workers", d.Submission.Workers)
	v.SetDefault("submission.queue_capacity", d.Submission.QueueCapacity)

	v.SetDefault("storage.path", d.Storage.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("generation.enabled", d.Generation.Enabled)
	v.SetDefault("generation.api_key", d.Generation.APIKey)
	v.SetDefault("generation.model", d.Generation.Model)
	v.SetDefault("generation.base_url", d.Generation.BaseURL)
	v.SetDefault("generation.image_url", d.Generation.ImageURL)

	v.SetDefault("sim.taken_phrases", d.Sim.TakenPhrases)
	v.SetDefault("sim.job_processing_polls", d.Sim.JobProcessingPolls)
	v.SetDefault("sim.fail_call", d.Sim.FailCall)
}

// Load reads the configuration from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

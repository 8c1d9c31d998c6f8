// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	berterr "github.com/TojoRicardo/bertillon/pkg/errors"
)

// Config is the top-level Bertillon configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Match     MatchConfig     `mapstructure:"match"`
	Retention RetentionConfig `mapstructure:"retention"`
}

// StorageConfig selects the storage backend and the embedding geometry.
type StorageConfig struct {
	Backend          string `mapstructure:"backend"`
	VectorDimensions int    `mapstructure:"vector_dimensions"`
}

// MatchConfig controls match resolution: the per-context score thresholds
// and the ranked-result cap.
type MatchConfig struct {
	Thresholds     map[string]float64 `mapstructure:"thresholds"`
	DefaultContext string             `mapstructure:"default_context"`
	TopK           int                `mapstructure:"top_k"`
}

// RetentionConfig controls record lifetimes and the expiry sweep. Periods
// are keyed by legal basis; bases without an entry use the default.
type RetentionConfig struct {
	DefaultPeriod time.Duration            `mapstructure:"default_period"`
	Periods       map[string]time.Duration `mapstructure:"periods"`
	SweepInterval time.Duration            `mapstructure:"sweep_interval"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix BERTILLON_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.vector_dimensions", 512)
	v.SetDefault("match.default_context", "upr_to_criminal")
	v.SetDefault("match.top_k", 10)
	v.SetDefault("match.thresholds.upr_to_criminal", 0.60)
	v.SetDefault("match.thresholds.criminal_dedup", 0.35)
	v.SetDefault("retention.default_period", "43800h") // 5 years
	v.SetDefault("retention.sweep_interval", "24h")

	// Environment
	v.SetEnvPrefix("BERTILLON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, berterr.Errorf(berterr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, berterr.Errorf(berterr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, berterr.Errorf(berterr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns a slice
// of all validation errors found, collecting all issues rather than stopping
// at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateMatch()...)
	errs = append(errs, c.validateRetention()...)

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, berterr.Errorf(berterr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite], got %q",
			c.Storage.Backend,
		))
	}

	if c.Storage.VectorDimensions <= 0 {
		errs = append(errs, berterr.Errorf(berterr.CodeConfigValidateInvalidValue,
			"config: storage.vector_dimensions must be greater than 0, got %d",
			c.Storage.VectorDimensions,
		))
	}

	return errs
}

func (c *Config) validateMatch() []error {
	var errs []error

	if len(c.Match.Thresholds) == 0 {
		errs = append(errs, berterr.Errorf(berterr.CodeConfigValidateInvalidValue,
			"config: match.thresholds must not be empty"))
	}

	for name, threshold := range c.Match.Thresholds {
		if threshold < 0 || threshold > 1 {
			errs = append(errs, berterr.Errorf(berterr.CodeConfigValidateInvalidValue,
				"config: match.thresholds.%s must be between 0 and 1, got %g",
				name, threshold,
			))
		}
	}

	if c.Match.DefaultContext == "" {
		errs = append(errs, berterr.Errorf(berterr.CodeConfigValidateInvalidValue,
			"config: match.default_context must not be empty"))
	} else if _, ok := c.Match.Thresholds[c.Match.DefaultContext]; !ok {
		errs = append(errs, berterr.Errorf(berterr.CodeConfigValidateInvalidValue,
			"config: match.default_context %q has no threshold configured",
			c.Match.DefaultContext,
		))
	}

	if c.Match.TopK < 0 {
		errs = append(errs, berterr.Errorf(berterr.CodeConfigValidateInvalidValue,
			"config: match.top_k must not be negative, got %d",
			c.Match.TopK,
		))
	}

	return errs
}

func (c *Config) validateRetention() []error {
	var errs []error

	if c.Retention.DefaultPeriod <= 0 {
		errs = append(errs, berterr.Errorf(berterr.CodeConfigValidateInvalidValue,
			"config: retention.default_period must be greater than 0, got %s",
			c.Retention.DefaultPeriod,
		))
	}

	for basis, period := range c.Retention.Periods {
		if period <= 0 {
			errs = append(errs, berterr.Errorf(berterr.CodeConfigValidateInvalidValue,
				"config: retention.periods.%s must be greater than 0, got %s",
				basis, period,
			))
		}
	}

	if c.Retention.SweepInterval <= 0 {
		errs = append(errs, berterr.Errorf(berterr.CodeConfigValidateInvalidValue,
			"config: retention.sweep_interval must be greater than 0, got %s",
			c.Retention.SweepInterval,
		))
	}

	return errs
}

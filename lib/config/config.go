// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the scopelink CLI
// and tooling.
//
// Configuration is loaded from a single YAML file specified by:
//   - SCOPELINK_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. Library packages
// (transport, acquisition, scope) never read configuration files — they
// take explicit immutable Config values at construction time; this
// package exists only so the binaries can assemble those values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar is the environment variable naming the configuration file.
const EnvVar = "SCOPELINK_CONFIG"

// Config is the root configuration for the scopelink CLI.
type Config struct {
	// Instrument configures the connection to the microscope server.
	Instrument InstrumentConfig `yaml:"instrument"`

	// Acquisition configures monitoring defaults.
	Acquisition AcquisitionConfig `yaml:"acquisition"`

	// ProfileDir is the directory holding instrument profile files
	// (*.jsonc). Empty disables profile lookup by name.
	ProfileDir string `yaml:"profile_dir"`

	// HistoryPath is the SQLite database recording completed scans.
	// Empty disables the history store.
	HistoryPath string `yaml:"history_path"`

	// JournalDir is where acquisition journals (CBOR event streams)
	// are written, one file per session. Empty disables journaling.
	JournalDir string `yaml:"journal_dir"`
}

// InstrumentConfig configures the control-channel connection.
type InstrumentConfig struct {
	// Address is the microscope server's host:port. Required.
	Address string `yaml:"address"`

	// DialTimeout bounds connection establishment. Default 5s.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// CommandTimeout is the read timeout for ordinary commands.
	// Default 10s.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// CalibrationTimeout is the read timeout for white-balance
	// calibration, which moves filters and averages frames. Default 2m.
	CalibrationTimeout time.Duration `yaml:"calibration_timeout"`

	// Reconnect configures automatic reconnection on I/O failure.
	Reconnect ReconnectConfig `yaml:"reconnect"`

	// HealthInterval is the period between background health probes.
	// Zero disables health checking. Default 30s.
	HealthInterval time.Duration `yaml:"health_interval"`
}

// ReconnectConfig bounds the automatic reconnection policy.
type ReconnectConfig struct {
	// Enabled turns automatic reconnection on. Default true.
	Enabled bool `yaml:"enabled"`

	// MaxAttempts is the number of redial attempts per failure.
	// Default 3.
	MaxAttempts int `yaml:"max_attempts"`

	// Delay is the pause between redial attempts. Default 2s.
	Delay time.Duration `yaml:"delay"`
}

// AcquisitionConfig configures monitoring defaults for long scans.
type AcquisitionConfig struct {
	// PollInterval is the pause between scan-status polls. Default 2s.
	PollInterval time.Duration `yaml:"poll_interval"`

	// FocusTimeout bounds an interactive manual-focus handler before
	// the monitor falls back to an explicit skip. Default 30s.
	FocusTimeout time.Duration `yaml:"focus_timeout"`
}

// Default returns the default configuration. The instrument address has
// no default — the config file (or --address flag) must supply it.
func Default() *Config {
	return &Config{
		Instrument: InstrumentConfig{
			DialTimeout:        5 * time.Second,
			CommandTimeout:     10 * time.Second,
			CalibrationTimeout: 2 * time.Minute,
			Reconnect: ReconnectConfig{
				Enabled:     true,
				MaxAttempts: 3,
				Delay:       2 * time.Second,
			},
			HealthInterval: 30 * time.Second,
		},
		Acquisition: AcquisitionConfig{
			PollInterval: 2 * time.Second,
			FocusTimeout: 30 * time.Second,
		},
	}
}

// Load reads the configuration file at path, layered over Default().
// An empty path falls back to the SCOPELINK_CONFIG environment
// variable; if that is also empty, the defaults are returned unchanged
// (the address must then come from a flag).
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}

	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for structural problems. All
// problems are collected and returned as a single joined error.
func (c *Config) Validate() error {
	var problems []error

	if c.Instrument.DialTimeout < 0 {
		problems = append(problems, errors.New("instrument.dial_timeout must not be negative"))
	}
	if c.Instrument.CommandTimeout <= 0 {
		problems = append(problems, errors.New("instrument.command_timeout must be positive"))
	}
	if c.Instrument.CalibrationTimeout <= 0 {
		problems = append(problems, errors.New("instrument.calibration_timeout must be positive"))
	}
	if c.Instrument.Reconnect.Enabled {
		if c.Instrument.Reconnect.MaxAttempts <= 0 {
			problems = append(problems, errors.New("instrument.reconnect.max_attempts must be positive when reconnect is enabled"))
		}
		if c.Instrument.Reconnect.Delay < 0 {
			problems = append(problems, errors.New("instrument.reconnect.delay must not be negative"))
		}
	}
	if c.Instrument.HealthInterval < 0 {
		problems = append(problems, errors.New("instrument.health_interval must not be negative"))
	}
	if c.Acquisition.PollInterval <= 0 {
		problems = append(problems, errors.New("acquisition.poll_interval must be positive"))
	}
	if c.Acquisition.FocusTimeout <= 0 {
		problems = append(problems, errors.New("acquisition.focus_timeout must be positive"))
	}
	for _, field := range []struct {
		name, value string
	}{
		{"profile_dir", c.ProfileDir},
		{"history_path", c.HistoryPath},
		{"journal_dir", c.JournalDir},
	} {
		if field.value != "" && !filepath.IsAbs(field.value) {
			problems = append(problems, fmt.Errorf("%s must be an absolute path, got %q", field.name, field.value))
		}
	}

	return errors.Join(problems...)
}

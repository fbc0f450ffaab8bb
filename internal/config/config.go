// Package config loads the bucket command configuration.
//
// Values come from an optional YAML file, then BUCKET_* environment variables,
// then command line flags explicitly set by the caller.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the bucket command configuration.
type Config struct {
	// Root is the storage root directory.
	Root string `yaml:"root"`
	// Codec is "json" or "cbor".
	Codec string `yaml:"codec"`
	// History records every table change as a git commit in Root.
	History bool `yaml:"history"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// GitName and GitEmail sign history commits.
	GitName  string `yaml:"git_name,omitempty"`
	GitEmail string `yaml:"git_email,omitempty"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Root:     "./db",
		Codec:    "json",
		LogLevel: "info",
		GitName:  "bucket",
		GitEmail: "bucket@localhost",
	}
}

// Load returns the default configuration overlaid with the YAML file at path,
// if path is not empty, then with environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // User-specified config path
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides lets environment variables override file values.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("BUCKET_ROOT"); v != "" {
		cfg.Root = v
	}
	if v := os.Getenv("BUCKET_CODEC"); v != "" {
		cfg.Codec = v
	}
	if v := os.Getenv("BUCKET_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BUCKET_HISTORY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid BUCKET_HISTORY value: %w", err)
		}
		cfg.History = b
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Root == "" {
		return errors.New("root is required")
	}
	switch c.Codec {
	case "json", "cbor":
	default:
		return fmt.Errorf("unknown codec: %q", c.Codec)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.History && (c.GitName == "" || c.GitEmail == "") {
		return errors.New("git_name and git_email are required when history is enabled")
	}
	return nil
}

// Level returns the slog level for LogLevel.
func (c *Config) Level() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q", c.LogLevel)
	}
}

// Package config loads runtime configuration from the environment.
//
// Sources, in order of precedence: defaults, an optional .env file in the
// data directory, then FOLIO_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds the runtime configuration for the folio server.
type Config struct {
	ListenAddr string // HTTP listen address
	DataPath   string // data directory (database, optional .env)
	Database   string // SQLite database path
	PlansFile  string // optional admin-edited plan configuration (JSON); empty = plans from database

	LogLevel  string
	LogFormat string // json, console, or auto

	FetchTimeout   time.Duration // per-domain fetch budget within a pass
	CoalesceWindow time.Duration // quiet period for subscription-change bursts
}

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		ListenAddr:     ":8440",
		DataPath:       "/var/lib/folio",
		LogLevel:       "info",
		LogFormat:      "auto",
		FetchTimeout:   5 * time.Second,
		CoalesceWindow: 250 * time.Millisecond,
	}
}

// Load builds the configuration from defaults, the data-dir .env file,
// and FOLIO_* environment variables, then validates it.
func Load() (*Config, error) {
	cfg := Defaults()

	if dir := os.Getenv("FOLIO_DATA_DIR"); dir != "" {
		cfg.DataPath = dir
	}

	envFile := filepath.Join(cfg.DataPath, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			log.Warn().Err(err).Str("path", envFile).Msg("Failed to load .env file")
		}
	}

	applyEnv(cfg)

	if cfg.Database == "" {
		cfg.Database = filepath.Join(cfg.DataPath, "folio.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FOLIO_LISTEN"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FOLIO_DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("FOLIO_PLANS_FILE"); v != "" {
		cfg.PlansFile = v
	}
	if v := os.Getenv("FOLIO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FOLIO_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("FOLIO_FETCH_TIMEOUT"); v != "" {
		if d, err := parseDuration(v); err == nil {
			cfg.FetchTimeout = d
		} else {
			log.Warn().Str("value", v).Msg("Invalid FOLIO_FETCH_TIMEOUT, using default")
		}
	}
	if v := os.Getenv("FOLIO_COALESCE_WINDOW"); v != "" {
		if d, err := parseDuration(v); err == nil {
			cfg.CoalesceWindow = d
		} else {
			log.Warn().Str("value", v).Msg("Invalid FOLIO_COALESCE_WINDOW, using default")
		}
	}
}

// parseDuration accepts Go duration strings and bare integers (seconds).
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %d", n)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", d)
	}
	return d, nil
}

// Validate checks the configuration for fatal misconfiguration.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.Database == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout)
	}
	if c.CoalesceWindow < 0 {
		return fmt.Errorf("coalesce window must not be negative, got %s", c.CoalesceWindow)
	}
	if c.PlansFile != "" {
		if _, err := os.Stat(c.PlansFile); err != nil {
			return fmt.Errorf("plans file %s: %w", c.PlansFile, err)
		}
	}
	return nil
}

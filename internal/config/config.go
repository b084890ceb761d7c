// Package config loads rigwatch's configuration in layers, each later
// layer overriding the earlier ones: compiled-in defaults, an optional
// TOML file, then environment variables, per spec.md §6 and §4.10.1.
// No CLI flag overrides a config field; the --config flag only selects
// which TOML file is read.
//
// Grounded on steveyegge-gastown/internal/rig/manifest.go's
// github.com/BurntSushi/toml decode pattern (a struct of `toml:"..."`
// tagged fields, `toml.Decode` against file bytes, a missing file is
// not an error), generalized from a repo-local rig manifest to a
// layered service config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is rigwatch's fully-resolved runtime configuration.
type Config struct {
	GTDir                    string        `toml:"gt_dir"`
	Port                     int           `toml:"port"`
	PollInterval             time.Duration `toml:"poll_interval"`
	MetricsBroadcastInterval time.Duration `toml:"metrics_broadcast_interval"`
	LogLevel                 string        `toml:"log_level"`
	HistoryPath              string        `toml:"history_path"`
	RulesPath                string        `toml:"rules_path"`
	RedisAddr                string        `toml:"redis_addr"`
	PostgresDSN              string        `toml:"postgres_dsn"`
	OTELTracing              bool          `toml:"otel_tracing"`
}

// Default returns the compiled-in defaults, layer 1 of the resolution
// order.
func Default() Config {
	gtDir := os.Getenv("HOME") + "/.gt"
	return Config{
		GTDir:                    gtDir,
		Port:                     3001,
		PollInterval:             5 * time.Second,
		MetricsBroadcastInterval: 5 * time.Second,
		LogLevel:                 "info",
		HistoryPath:              filepath.Join(gtDir, "rigwatch", "history.json"),
		RulesPath:                filepath.Join(gtDir, "rigwatch", "rules.json"),
		OTELTracing:              true,
	}
}

// fileConfig mirrors Config's shape with TOML duration fields expressed
// as seconds, since encoding/toml has no time.Duration support.
type fileConfig struct {
	GTDir                        string `toml:"gt_dir"`
	Port                         int    `toml:"port"`
	PollIntervalSeconds          int    `toml:"poll_interval_seconds"`
	MetricsBroadcastIntervalSecs int    `toml:"metrics_broadcast_interval_seconds"`
	LogLevel                     string `toml:"log_level"`
	HistoryPath                  string `toml:"history_path"`
	RulesPath                    string `toml:"rules_path"`
	RedisAddr                    string `toml:"redis_addr"`
	PostgresDSN                  string `toml:"postgres_dsn"`
	OTELTracing                  *bool  `toml:"otel_tracing"`
}

// LoadFile overlays cfg with the contents of path (layer 2). A missing
// file is not an error, matching manifest.go's LoadManifest behavior.
func LoadFile(cfg Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if _, err := toml.Decode(string(data), &fc); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	if fc.GTDir != "" {
		cfg.GTDir = fc.GTDir
	}
	if fc.Port != 0 {
		cfg.Port = fc.Port
	}
	if fc.PollIntervalSeconds != 0 {
		cfg.PollInterval = time.Duration(fc.PollIntervalSeconds) * time.Second
	}
	if fc.MetricsBroadcastIntervalSecs != 0 {
		cfg.MetricsBroadcastInterval = time.Duration(fc.MetricsBroadcastIntervalSecs) * time.Second
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.HistoryPath != "" {
		cfg.HistoryPath = fc.HistoryPath
	}
	if fc.RulesPath != "" {
		cfg.RulesPath = fc.RulesPath
	}
	if fc.RedisAddr != "" {
		cfg.RedisAddr = fc.RedisAddr
	}
	if fc.PostgresDSN != "" {
		cfg.PostgresDSN = fc.PostgresDSN
	}
	if fc.OTELTracing != nil {
		cfg.OTELTracing = *fc.OTELTracing
	}
	return cfg, nil
}

// LoadEnv overlays cfg with the environment variables named in
// spec.md §6 (layer 3): GT_DIR, PORT, POLL_INTERVAL,
// METRICS_BROADCAST_INTERVAL, LOG_LEVEL.
func LoadEnv(cfg Config) (Config, error) {
	if v := os.Getenv("GT_DIR"); v != "" {
		cfg.GTDir = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid POLL_INTERVAL %q: %w", v, err)
		}
		cfg.PollInterval = d
	}
	if v := os.Getenv("METRICS_BROADCAST_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid METRICS_BROADCAST_INTERVAL %q: %w", v, err)
		}
		cfg.MetricsBroadcastInterval = d
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	return cfg, nil
}

// Load runs the default -> file -> env layering. configPath is the
// resolved TOML path (already defaulted to $GT_DIR/rigwatch.toml by
// the caller if no --config flag was given). The environment is the
// last layer applied.
func Load(configPath string) (Config, error) {
	cfg := Default()

	cfg, err := LoadFile(cfg, configPath)
	if err != nil {
		return cfg, err
	}

	cfg, err = LoadEnv(cfg)
	if err != nil {
		return cfg, err
	}

	if cfg.HistoryPath == filepath.Join(Default().GTDir, "rigwatch", "history.json") && cfg.GTDir != Default().GTDir {
		cfg.HistoryPath = filepath.Join(cfg.GTDir, "rigwatch", "history.json")
	}
	if cfg.RulesPath == filepath.Join(Default().GTDir, "rigwatch", "rules.json") && cfg.GTDir != Default().GTDir {
		cfg.RulesPath = filepath.Join(cfg.GTDir, "rigwatch", "rules.json")
	}
	return cfg, nil
}

// DefaultConfigPath returns $GT_DIR/rigwatch.toml for the resolved gtDir.
func DefaultConfigPath(gtDir string) string {
	return filepath.Join(gtDir, "rigwatch.toml")
}

// Package config loads the memvault configuration from an optional YAML
// file with MEMVAULT_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the persistence core.
type Config struct {
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
	Hot       HotConfig       `yaml:"hot"`
	Cold      ColdConfig      `yaml:"cold"`
	Tiering   TieringConfig   `yaml:"tiering"`
	Redaction RedactionConfig `yaml:"redaction"`
	GDPR      GDPRConfig      `yaml:"gdpr"`
	Audit     AuditConfig     `yaml:"audit"`
}

// HotConfig configures the primary tier. Backend selects the
// implementation: "sqlite" (cache-fronted table), "fts" (WAL + full-text
// index), or "jsonl" (append-only file).
type HotConfig struct {
	Backend      string `yaml:"backend"`
	DBPath       string `yaml:"db_path"`
	MaxCacheSize int    `yaml:"max_cache_size"`
}

// ColdConfig configures the optional BadgerDB archive tier.
type ColdConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// TieringConfig controls automatic placement.
type TieringConfig struct {
	// ColdThresholdChars sends content longer than this to the cold tier.
	ColdThresholdChars int `yaml:"cold_threshold_chars"`
}

// RedactionConfig toggles the redaction pipeline.
type RedactionConfig struct {
	Enabled bool `yaml:"enabled"`
}

// GDPRConfig toggles subject detection and request processing.
type GDPRConfig struct {
	Enabled              bool `yaml:"enabled"`
	RequestRetentionDays int  `yaml:"request_retention_days"`
}

// AuditConfig configures the durable audit logger.
type AuditConfig struct {
	Dir            string `yaml:"dir"`
	MaxFileSize    int64  `yaml:"max_file_size"`
	MaxFileAgeDays int    `yaml:"max_file_age_days"`
	MaxFiles       int    `yaml:"max_files"`
}

// Default returns the configuration used when no file is present.
func Default(dataDir string) Config {
	return Config{
		DataDir:  dataDir,
		LogLevel: "info",
		Hot: HotConfig{
			Backend:      "sqlite",
			DBPath:       filepath.Join(dataDir, "hot.db"),
			MaxCacheSize: 100,
		},
		Cold: ColdConfig{
			Enabled: false,
			Dir:     filepath.Join(dataDir, "cold"),
		},
		Tiering:   TieringConfig{ColdThresholdChars: 10000},
		Redaction: RedactionConfig{Enabled: true},
		GDPR:      GDPRConfig{Enabled: true, RequestRetentionDays: 90},
		Audit: AuditConfig{
			Dir:            filepath.Join(dataDir, "audit"),
			MaxFileSize:    10 * 1024 * 1024,
			MaxFileAgeDays: 30,
			MaxFiles:       10,
		},
	}
}

// Load reads path (if it exists) over the defaults for dataDir, then
// applies environment overrides.
func Load(path, dataDir string) (Config, error) {
	cfg := Default(dataDir)

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MEMVAULT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("MEMVAULT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MEMVAULT_HOT_BACKEND"); v != "" {
		cfg.Hot.Backend = v
	}
	if v := os.Getenv("MEMVAULT_HOT_DB"); v != "" {
		cfg.Hot.DBPath = v
	}
	if v, ok := envInt("MEMVAULT_MAX_CACHE_SIZE"); ok {
		cfg.Hot.MaxCacheSize = v
	}
	if v := os.Getenv("MEMVAULT_COLD_DIR"); v != "" {
		cfg.Cold.Enabled = true
		cfg.Cold.Dir = v
	}
	if v, ok := envBool("MEMVAULT_COLD_ENABLED"); ok {
		cfg.Cold.Enabled = v
	}
	if v, ok := envInt("MEMVAULT_COLD_THRESHOLD"); ok {
		cfg.Tiering.ColdThresholdChars = v
	}
	if v, ok := envBool("MEMVAULT_REDACTION_ENABLED"); ok {
		cfg.Redaction.Enabled = v
	}
	if v, ok := envBool("MEMVAULT_GDPR_ENABLED"); ok {
		cfg.GDPR.Enabled = v
	}
	if v := os.Getenv("MEMVAULT_AUDIT_DIR"); v != "" {
		cfg.Audit.Dir = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Package cli implements the memvault CLI commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentops/memvault/internal/audit"
	"github.com/agentops/memvault/internal/config"
	"github.com/agentops/memvault/internal/engine"
	"github.com/agentops/memvault/internal/gdpr"
	"github.com/agentops/memvault/internal/logging"
	"github.com/agentops/memvault/internal/redact"
	"github.com/agentops/memvault/internal/store"
)

var (
	cfgPath string
	dataDir string
	verbose bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "memvault",
	Short: "Tiered, compliance-aware persistence for AI agents",
	Long: "memvault stores text records across a hot SQLite tier and an optional cold archive,\n" +
		"redacting sensitive content on the way in and keeping a tamper-evident audit log.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config file (YAML)")
	RootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "Data directory (default: $MEMVAULT_DATA_DIR or ~/.memvault)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func getDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if env := os.Getenv("MEMVAULT_DATA_DIR"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".memvault")
}

// openEngine wires the full stack from config. The returned closer shuts
// down every backend.
func openEngine() (*engine.Engine, *audit.Logger, func(), error) {
	cfg, err := config.Load(cfgPath, getDataDir())
	if err != nil {
		return nil, nil, nil, err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}

	hot, closeHot, err := openHotBackend(cfg, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open hot store: %w", err)
	}

	var archive store.Archive
	if cfg.Cold.Enabled {
		archive, err = store.NewBadgerArchive(cfg.Cold.Dir)
		if err != nil {
			closeHot()
			return nil, nil, nil, fmt.Errorf("open cold archive: %w", err)
		}
	}
	cold := store.NewColdStore(archive, log)

	auditor, err := audit.New(audit.Config{
		Dir:         cfg.Audit.Dir,
		MaxFileSize: cfg.Audit.MaxFileSize,
		MaxFileAge:  time.Duration(cfg.Audit.MaxFileAgeDays) * 24 * time.Hour,
		MaxFiles:    cfg.Audit.MaxFiles,
	}, log)
	if err != nil {
		closeHot()
		if archive != nil {
			archive.Close()
		}
		return nil, nil, nil, fmt.Errorf("open audit log: %w", err)
	}

	var redactor *redact.Engine
	if cfg.Redaction.Enabled {
		redactor = redact.NewEngine(log)
	}
	var compliance *gdpr.Service
	if cfg.GDPR.Enabled {
		compliance = gdpr.NewService(log)
	}

	eng := engine.New(engine.Options{
		Hot:           hot,
		Cold:          cold,
		Redactor:      redactor,
		GDPR:          compliance,
		Audit:         auditor,
		TierThreshold: cfg.Tiering.ColdThresholdChars,
		GDPRRetention: time.Duration(cfg.GDPR.RequestRetentionDays) * 24 * time.Hour,
		Logger:        log,
	})

	closer := func() {
		closeHot()
		if archive != nil {
			archive.Close()
		}
		log.Sync()
	}
	return eng, auditor, closer, nil
}

// openHotBackend selects the primary-tier implementation from config.
func openHotBackend(cfg config.Config, log *zap.Logger) (store.Backend, func(), error) {
	switch cfg.Hot.Backend {
	case "", "sqlite":
		s, err := store.NewHotStore(cfg.Hot.DBPath, cfg.Hot.MaxCacheSize, log)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "fts":
		s, err := store.NewFTSStore(cfg.Hot.DBPath, log)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "jsonl":
		path := cfg.Hot.DBPath
		if filepath.Ext(path) == ".db" {
			path = path[:len(path)-3] + ".jsonl"
		}
		s, err := store.NewJSONLStore(path, log)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown hot backend %q", cfg.Hot.Backend)
	}
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

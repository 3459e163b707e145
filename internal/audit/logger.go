// Package audit implements the durable compliance log: newline-delimited
// JSON, one self-verifying entry per line, with size/age-based rotation
// into timestamp-suffixed archives. The per-entry hash is a tamper check,
// not a chain link to a prior entry.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentops/memvault/internal/model"
)

const (
	activeName    = "audit.log"
	archivePrefix = "audit-"
	archiveStamp  = "20060102T150405.000"
)

// Config tunes rotation. Zero values take the defaults.
type Config struct {
	Dir         string
	MaxFileSize int64         // rotate at this size; default 10 MiB
	MaxFileAge  time.Duration // rotate at this age; default 30 days
	MaxFiles    int           // archives kept; default 10
}

func (c *Config) fillDefaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 10 * 1024 * 1024
	}
	if c.MaxFileAge <= 0 {
		c.MaxFileAge = 30 * 24 * time.Hour
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = 10
	}
}

// Logger appends hash-verified entries to the active file. Log never
// raises past this boundary; internal failures become a false return.
type Logger struct {
	cfg Config
	log *zap.Logger

	// mu serializes check-rotate-append so rotation never races an append.
	mu        sync.Mutex
	active    string
	fileStart time.Time // timestamp of the active file's first entry
}

// New creates the log directory and loads the active file's age.
func New(cfg Config, log *zap.Logger) (*Logger, error) {
	cfg.fillDefaults()
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	l := &Logger{
		cfg:    cfg,
		log:    log,
		active: filepath.Join(cfg.Dir, activeName),
	}
	l.fileStart = l.loadFileStart()
	return l, nil
}

// loadFileStart reads the first entry's timestamp from the active file so
// rotation age survives restarts. Appends never reset the clock.
func (l *Logger) loadFileStart() time.Time {
	f, err := os.Open(l.active)
	if err != nil {
		return time.Time{}
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var e model.AuditLogEntry
		if json.Unmarshal(sc.Bytes(), &e) != nil {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Log appends one entry under the lock: check rotation policy, rotate if
// triggered, append, report success.
func (l *Logger) Log(action, userID, resource string, details map[string]interface{}) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotateIfNeededLocked(); err != nil {
		l.log.Warn("audit rotation failed", zap.Error(err))
	}

	if details == nil {
		details = map[string]interface{}{}
	}
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	entry := model.AuditLogEntry{
		Action:    action,
		UserID:    userID,
		Resource:  resource,
		Details:   details,
		Timestamp: ts,
		Hash:      ComputeHash(action, userID, resource, details, ts),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		l.log.Error("audit marshal failed", zap.String("action", action), zap.Error(err))
		return false
	}

	f, err := os.OpenFile(l.active, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		l.log.Error("audit open failed", zap.Error(err))
		return false
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		l.log.Error("audit append failed", zap.Error(err))
		return false
	}

	if l.fileStart.IsZero() {
		t, _ := time.Parse(time.RFC3339Nano, ts)
		l.fileStart = t
	}
	return true
}

// ComputeHash returns the SHA-256 hex digest over the canonical JSON of
// the entry fields. json.Marshal sorts map keys, which is the canonical
// form relied on here.
func ComputeHash(action, userID, resource string, details map[string]interface{}, timestamp string) string {
	payload := map[string]interface{}{
		"action":    action,
		"user_id":   userID,
		"resource":  resource,
		"details":   details,
		"timestamp": timestamp,
	}
	b, _ := json.Marshal(payload)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the entry hash and compares it to the stored one.
func Verify(e *model.AuditLogEntry) bool {
	return ComputeHash(e.Action, e.UserID, e.Resource, e.Details, e.Timestamp) == e.Hash
}

// rotateIfNeededLocked rotates the active file when it exceeds the size
// or age bound, then prunes archives beyond MaxFiles, oldest mtime first.
// Caller holds l.mu.
func (l *Logger) rotateIfNeededLocked() error {
	info, err := os.Stat(l.active)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	overSize := info.Size() >= l.cfg.MaxFileSize
	overAge := !l.fileStart.IsZero() && now.Sub(l.fileStart) >= l.cfg.MaxFileAge
	if !overSize && !overAge {
		return nil
	}

	archive := filepath.Join(l.cfg.Dir, archivePrefix+now.Format(archiveStamp)+".log")
	if err := os.Rename(l.active, archive); err != nil {
		return fmt.Errorf("rotate: %w", err)
	}
	l.fileStart = time.Time{}

	return l.pruneLocked()
}

func (l *Logger) pruneLocked() error {
	archives, err := l.archives()
	if err != nil {
		return err
	}
	if len(archives) <= l.cfg.MaxFiles {
		return nil
	}

	type aged struct {
		path  string
		mtime time.Time
	}
	var infos []aged
	for _, p := range archives {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		infos = append(infos, aged{p, info.ModTime()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].mtime.Before(infos[j].mtime) })

	for i := 0; i < len(infos)-l.cfg.MaxFiles; i++ {
		if err := os.Remove(infos[i].path); err != nil {
			l.log.Warn("prune archive failed", zap.String("path", infos[i].path), zap.Error(err))
		}
	}
	return nil
}

func (l *Logger) archives() ([]string, error) {
	return filepath.Glob(filepath.Join(l.cfg.Dir, archivePrefix+"*.log"))
}

// Filter narrows ReadEntries results. Zero values match everything.
type Filter struct {
	Action   string
	UserID   string
	Resource string
	Since    time.Time
	Until    time.Time
}

func (f Filter) matches(e *model.AuditLogEntry, at time.Time) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Resource != "" && !strings.Contains(e.Resource, f.Resource) {
		return false
	}
	if !f.Since.IsZero() && at.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && at.After(f.Until) {
		return false
	}
	return true
}

// ReadReport summarizes one scan.
type ReadReport struct {
	FilesScanned int `json:"files_scanned"`
	LinesScanned int `json:"lines_scanned"`
	Skipped      int `json:"skipped"` // malformed or hash-mismatched lines
}

// ReadEntries scans archives plus the active file, parses each line
// independently, verifies every entry's hash, applies the filter, and
// returns matches sorted by timestamp ascending across all files.
// Malformed or tampered lines are skipped, never fatal.
func (l *Logger) ReadEntries(filter Filter) ([]model.AuditLogEntry, ReadReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := l.archives()
	if err != nil {
		return nil, ReadReport{}, fmt.Errorf("list archives: %w", err)
	}
	sort.Strings(files)
	files = append(files, l.active)

	type stamped struct {
		entry model.AuditLogEntry
		at    time.Time
	}
	var out []stamped
	var report ReadReport

	for _, path := range files {
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			l.log.Warn("audit read open failed", zap.String("path", path), zap.Error(err))
			continue
		}
		report.FilesScanned++

		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			report.LinesScanned++

			var e model.AuditLogEntry
			if err := json.Unmarshal([]byte(line), &e); err != nil {
				report.Skipped++
				l.log.Warn("audit line malformed", zap.String("path", path))
				continue
			}
			if !Verify(&e) {
				report.Skipped++
				l.log.Warn("audit line failed hash verification",
					zap.String("path", path), zap.String("action", e.Action))
				continue
			}
			at, err := time.Parse(time.RFC3339Nano, e.Timestamp)
			if err != nil {
				report.Skipped++
				continue
			}
			if filter.matches(&e, at) {
				out = append(out, stamped{e, at})
			}
		}
		f.Close()
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })

	entries := make([]model.AuditLogEntry, len(out))
	for i, s := range out {
		entries[i] = s.entry
	}
	return entries, report, nil
}

// ActivePath returns the active file location.
func (l *Logger) ActivePath() string {
	return l.active
}

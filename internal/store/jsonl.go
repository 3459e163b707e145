package store

import (
	"bufio"
	"context"
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

// JSONLStore is an append-only fabric backend: the file is the write-log,
// an id-keyed in-memory map is the current-state view. Delete is the one
// exception — it rewrites the whole file from the surviving entries, a
// known O(n) cost.
type JSONLStore struct {
	path string
	log  *zap.Logger

	mu      sync.Mutex
	entries map[string]*model.MemoryEntry
}

// NewJSONLStore opens path, replaying any existing lines into memory.
// Malformed lines are skipped, not fatal.
func NewJSONLStore(path string, log *zap.Logger) (*JSONLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	s := &JSONLStore{
		path:    path,
		log:     log,
		entries: make(map[string]*model.MemoryEntry),
	}
	if err := s.replay(); err != nil {
		return nil, fmt.Errorf("replay %s: %w", path, err)
	}
	return s, nil
}

func (s *JSONLStore) replay() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	skipped := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e model.MemoryEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil || e.ID == "" {
			skipped++
			continue
		}
		s.entries[e.ID] = &e
	}
	if skipped > 0 {
		s.log.Warn("skipped malformed lines during replay",
			zap.String("path", s.path), zap.Int("skipped", skipped))
	}
	return sc.Err()
}

// Store appends one line and updates the in-memory view.
func (s *JSONLStore) Store(ctx context.Context, e *model.MemoryEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return model.NewStorageError("store", e.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.log.Error("jsonl append failed", zap.String("id", e.ID), zap.Error(err))
		return model.NewStorageError("store", e.ID, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		s.log.Error("jsonl write failed", zap.String("id", e.ID), zap.Error(err))
		return model.NewStorageError("store", e.ID, err)
	}

	s.entries[e.ID] = e.Clone()
	return nil
}

// Retrieve serves from the in-memory view, bumping access bookkeeping.
// The counter becomes durable on the next file rewrite.
func (s *JSONLStore) Retrieve(ctx context.Context, id string) (*model.MemoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	now := time.Now().UTC()
	e.AccessCount++
	e.LastAccessed = &now
	return e.Clone(), nil
}

// Search matches content and tags substrings against the in-memory view.
func (s *JSONLStore) Search(ctx context.Context, query string, limit int) ([]*model.MemoryEntry, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	s.mu.Lock()
	var hits []*model.MemoryEntry
	for _, e := range s.entries {
		if matchesEntry(e, query) {
			hits = append(hits, e.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].AccessCount != hits[j].AccessCount {
			return hits[i].AccessCount > hits[j].AccessCount
		}
		return hits[i].Timestamp.After(hits[j].Timestamp)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func matchesEntry(e *model.MemoryEntry, query string) bool {
	if strings.Contains(e.Content, query) {
		return true
	}
	for _, t := range e.Tags {
		if strings.Contains(t, query) {
			return true
		}
	}
	return false
}

// Delete removes the entry and compacts the file.
func (s *JSONLStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return false, nil
	}
	delete(s.entries, id)

	if err := s.rewriteLocked(); err != nil {
		s.log.Error("jsonl compact failed", zap.String("id", id), zap.Error(err))
		return false, model.NewStorageError("delete", id, err)
	}
	return true, nil
}

// rewriteLocked rebuilds the file from the in-memory view via a temp file
// rename. Caller holds s.mu.
func (s *JSONLStore) rewriteLocked() error {
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	for _, e := range s.entries {
		data, err := json.Marshal(e)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}

// ListAll returns every live entry, newest first.
func (s *JSONLStore) ListAll(ctx context.Context) ([]*model.MemoryEntry, error) {
	s.mu.Lock()
	out := make([]*model.MemoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// Stats returns the live entry count and file size.
func (s *JSONLStore) Stats(ctx context.Context) (*model.TierStats, error) {
	st := &model.TierStats{Backend: "jsonl", Path: s.path, Available: true}
	s.mu.Lock()
	st.Entries = len(s.entries)
	s.mu.Unlock()
	if info, err := os.Stat(s.path); err == nil {
		st.SizeBytes = info.Size()
	}
	return st, nil
}

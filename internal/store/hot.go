package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/agentops/memvault/internal/model"
)

// HotStore is the fast tier: a SQLite table fronted by an in-memory cache
// keyed by id. The table is the source of truth; the cache is write-through
// and evicts by (last_accessed ?? creation time) ascending, never touching
// the table.
type HotStore struct {
	db       *sql.DB
	log      *zap.Logger
	dbPath   string
	maxCache int

	mu    sync.Mutex
	cache map[string]*model.MemoryEntry
}

// NewHotStore opens or creates the hot tier database at dbPath.
func NewHotStore(dbPath string, maxCache int, log *zap.Logger) (*HotStore, error) {
	if maxCache <= 0 {
		maxCache = 100
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &HotStore{
		db:       db,
		log:      log,
		dbPath:   dbPath,
		maxCache: maxCache,
		cache:    make(map[string]*model.MemoryEntry),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *HotStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id            TEXT PRIMARY KEY,
		content       TEXT NOT NULL,
		metadata      TEXT,
		timestamp     TEXT NOT NULL,
		tags          TEXT,
		storage_tier  TEXT NOT NULL DEFAULT 'hot',
		access_count  INTEGER NOT NULL DEFAULT 0,
		last_accessed TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON entries(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_entries_access ON entries(access_count DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Store upserts the entry in the table, then write-through-populates the
// cache, evicting if the cache exceeds its bound.
func (s *HotStore) Store(ctx context.Context, e *model.MemoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			timestamp = excluded.timestamp,
			tags = excluded.tags,
			storage_tier = excluded.storage_tier,
			access_count = excluded.access_count,
			last_accessed = excluded.last_accessed`,
		entryArgs(e)...)
	if err != nil {
		s.log.Error("hot store write failed", zap.String("id", e.ID), zap.Error(err))
		return model.NewStorageError("store", e.ID, err)
	}

	s.mu.Lock()
	s.cache[e.ID] = e.Clone()
	s.evictLocked()
	s.mu.Unlock()
	return nil
}

// Retrieve is cache-first. A hit bumps the access counter and persists it;
// a miss queries the table and populates the cache. Read failures degrade
// to (nil, nil) with a logged warning.
func (s *HotStore) Retrieve(ctx context.Context, id string) (*model.MemoryEntry, error) {
	s.mu.Lock()
	if e, ok := s.cache[id]; ok {
		now := time.Now().UTC()
		e.AccessCount++
		e.LastAccessed = &now
		out := e.Clone()
		s.mu.Unlock()

		if _, err := s.db.ExecContext(ctx,
			`UPDATE entries SET access_count = ?, last_accessed = ? WHERE id = ?`,
			out.AccessCount, now.Format(time.RFC3339Nano), id); err != nil {
			s.log.Warn("persist access counter failed", zap.String("id", id), zap.Error(err))
		}
		return out, nil
	}
	s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		s.log.Warn("hot retrieve failed", zap.String("id", id), zap.Error(err))
		return nil, nil
	}

	s.mu.Lock()
	s.cache[e.ID] = e.Clone()
	s.evictLocked()
	s.mu.Unlock()
	return e, nil
}

// Search matches content and tags substrings, ordered by
// (access_count desc, timestamp desc), and cache-populates all hits.
func (s *HotStore) Search(ctx context.Context, query string, limit int) ([]*model.MemoryEntry, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	pattern := "%" + query + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM entries
		WHERE content LIKE ? OR tags LIKE ?
		ORDER BY access_count DESC, timestamp DESC
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		s.log.Warn("hot search failed", zap.String("query", query), zap.Error(err))
		return nil, nil
	}
	defer rows.Close()

	var results []*model.MemoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			s.log.Warn("hot search scan failed", zap.Error(err))
			continue
		}
		results = append(results, e)
	}

	s.mu.Lock()
	for _, e := range results {
		s.cache[e.ID] = e.Clone()
	}
	s.evictLocked()
	s.mu.Unlock()
	return results, nil
}

// Delete removes the entry from cache and table. Missing ids are a no-op.
func (s *HotStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		s.log.Error("hot delete failed", zap.String("id", id), zap.Error(err))
		return false, model.NewStorageError("delete", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListAll returns every row, newest first.
func (s *HotStore) ListAll(ctx context.Context) ([]*model.MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries ORDER BY timestamp DESC`)
	if err != nil {
		s.log.Warn("hot list failed", zap.Error(err))
		return nil, nil
	}
	defer rows.Close()

	var results []*model.MemoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			s.log.Warn("hot list scan failed", zap.Error(err))
			continue
		}
		results = append(results, e)
	}
	return results, nil
}

// Stats returns row and cache counts plus the database file size.
func (s *HotStore) Stats(ctx context.Context) (*model.TierStats, error) {
	st := &model.TierStats{Backend: "hot", Path: s.dbPath, Available: true}
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&st.Entries)
	if info, err := os.Stat(s.dbPath); err == nil {
		st.SizeBytes = info.Size()
	}
	s.mu.Lock()
	st.Cached = len(s.cache)
	s.mu.Unlock()
	return st, nil
}

// ClearCache drops the in-memory cache. The table is untouched.
func (s *HotStore) ClearCache() {
	s.mu.Lock()
	s.cache = make(map[string]*model.MemoryEntry)
	s.mu.Unlock()
}

// SyncCache rebuilds the cache from durable storage, keeping the most
// recently accessed rows up to the cache bound.
func (s *HotStore) SyncCache(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM entries
		ORDER BY COALESCE(last_accessed, timestamp) DESC
		LIMIT ?`, s.maxCache)
	if err != nil {
		return model.NewStorageError("sync_cache", "", err)
	}
	defer rows.Close()

	fresh := make(map[string]*model.MemoryEntry)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			s.log.Warn("sync cache scan failed", zap.Error(err))
			continue
		}
		fresh[e.ID] = e
	}

	s.mu.Lock()
	s.cache = fresh
	s.mu.Unlock()
	return nil
}

// CacheLen returns the current cache population.
func (s *HotStore) CacheLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

// evictLocked removes cache entries oldest-first by
// (last_accessed ?? timestamp) until the cache fits its bound.
// Caller holds s.mu.
func (s *HotStore) evictLocked() {
	for len(s.cache) > s.maxCache {
		var victim string
		var oldest time.Time
		for id, e := range s.cache {
			at := e.Timestamp
			if e.LastAccessed != nil {
				at = *e.LastAccessed
			}
			if victim == "" || at.Before(oldest) {
				victim = id
				oldest = at
			}
		}
		delete(s.cache, victim)
	}
}

// Close closes the underlying database.
func (s *HotStore) Close() error {
	return s.db.Close()
}

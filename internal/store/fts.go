package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/agentops/memvault/internal/model"
)

// FTSStore is the query-oriented alternate backend: one WAL-mode SQLite
// connection holding the primary table plus an FTS5 virtual table. Both
// are updated in the same transaction on every write and delete so they
// never diverge. Concurrent writers serialize behind a mutex; WAL permits
// concurrent readers.
type FTSStore struct {
	db     *sql.DB
	log    *zap.Logger
	dbPath string

	// wmu serializes writers; WAL allows a single writer at a time.
	wmu sync.Mutex
}

// NewFTSStore opens or creates the database at dbPath.
func NewFTSStore(dbPath string, log *zap.Logger) (*FTSStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &FTSStore{db: db, log: log, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *FTSStore) migrate() error {
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

	CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
		id UNINDEXED,
		content,
		tags
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Store upserts the entry and its FTS row in one transaction.
func (s *FTSStore) Store(ctx context.Context, e *model.MemoryEntry) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.NewStorageError("store", e.ID, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
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
		s.log.Error("fts store write failed", zap.String("id", e.ID), zap.Error(err))
		return model.NewStorageError("store", e.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries_fts WHERE id = ?`, e.ID); err != nil {
		return model.NewStorageError("store", e.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries_fts (id, content, tags) VALUES (?, ?, ?)`,
		e.ID, e.Content, strings.Join(e.Tags, " ")); err != nil {
		return model.NewStorageError("store", e.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return model.NewStorageError("store", e.ID, err)
	}
	return nil
}

// Retrieve updates access bookkeeping before returning the row.
func (s *FTSStore) Retrieve(ctx context.Context, id string) (*model.MemoryEntry, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE entries SET access_count = access_count + 1, last_accessed = ? WHERE id = ?`,
		now, id); err != nil {
		s.log.Warn("fts access bookkeeping failed", zap.String("id", id), zap.Error(err))
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		s.log.Warn("fts retrieve failed", zap.String("id", id), zap.Error(err))
		return nil, nil
	}
	return e, nil
}

// Search runs an FTS5 match. An empty query bypasses full-text matching
// entirely and falls back to a plain ordered scan.
func (s *FTSStore) Search(ctx context.Context, query string, limit int) ([]*model.MemoryEntry, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var rows *sql.Rows
	var err error
	if strings.TrimSpace(query) == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+entryColumns+` FROM entries
			ORDER BY access_count DESC, timestamp DESC
			LIMIT ?`, limit)
	} else {
		// Quote the query so user input is a literal phrase, not FTS syntax.
		phrase := `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+prefixedEntryColumns("e")+`
			FROM entries e
			JOIN entries_fts f ON f.id = e.id
			WHERE entries_fts MATCH ?
			ORDER BY rank`, phrase)
	}
	if err != nil {
		s.log.Warn("fts search failed", zap.String("query", query), zap.Error(err))
		return nil, nil
	}
	defer rows.Close()

	var results []*model.MemoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			s.log.Warn("fts search scan failed", zap.Error(err))
			continue
		}
		results = append(results, e)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func prefixedEntryColumns(alias string) string {
	cols := strings.Split(entryColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// Delete removes the row and its FTS entry in one transaction.
func (s *FTSStore) Delete(ctx context.Context, id string) (bool, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, model.NewStorageError("delete", id, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return false, model.NewStorageError("delete", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries_fts WHERE id = ?`, id); err != nil {
		return false, model.NewStorageError("delete", id, err)
	}
	if err := tx.Commit(); err != nil {
		return false, model.NewStorageError("delete", id, err)
	}

	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListAll returns every row, newest first.
func (s *FTSStore) ListAll(ctx context.Context) ([]*model.MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries ORDER BY timestamp DESC`)
	if err != nil {
		s.log.Warn("fts list failed", zap.Error(err))
		return nil, nil
	}
	defer rows.Close()

	var results []*model.MemoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			s.log.Warn("fts list scan failed", zap.Error(err))
			continue
		}
		results = append(results, e)
	}
	return results, nil
}

// Stats returns the row count and database file size.
func (s *FTSStore) Stats(ctx context.Context) (*model.TierStats, error) {
	st := &model.TierStats{Backend: "fts", Path: s.dbPath, Available: true}
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&st.Entries)
	if info, err := os.Stat(s.dbPath); err == nil {
		st.SizeBytes = info.Size()
	}
	return st, nil
}

// Close closes the underlying database.
func (s *FTSStore) Close() error {
	return s.db.Close()
}

package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/agentops/memvault/internal/model"
)

// entryColumns is the column list shared by the SQLite-backed tiers.
const entryColumns = `id, content, metadata, timestamp, tags, storage_tier, access_count, last_accessed`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*model.MemoryEntry, error) {
	var e model.MemoryEntry
	var metadata, tags, lastAccessed sql.NullString
	var timestamp string

	err := row.Scan(&e.ID, &e.Content, &metadata, &timestamp, &tags,
		&e.StorageTier, &e.AccessCount, &lastAccessed)
	if err != nil {
		return nil, err
	}

	e.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
	if metadata.Valid {
		json.Unmarshal([]byte(metadata.String), &e.Metadata)
	}
	if tags.Valid {
		json.Unmarshal([]byte(tags.String), &e.Tags)
	}
	if lastAccessed.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastAccessed.String)
		if err == nil {
			e.LastAccessed = &t
		}
	}
	return &e, nil
}

// entryArgs returns the insert/update arguments matching entryColumns.
func entryArgs(e *model.MemoryEntry) []interface{} {
	var metadata, tags, lastAccessed interface{}
	if len(e.Metadata) > 0 {
		b, _ := json.Marshal(e.Metadata)
		metadata = string(b)
	}
	if len(e.Tags) > 0 {
		b, _ := json.Marshal(e.Tags)
		tags = string(b)
	}
	if e.LastAccessed != nil {
		lastAccessed = e.LastAccessed.UTC().Format(time.RFC3339Nano)
	}
	return []interface{}{
		e.ID, e.Content, metadata, e.Timestamp.UTC().Format(time.RFC3339Nano),
		tags, e.StorageTier, e.AccessCount, lastAccessed,
	}
}

// Package store provides the tiered storage backends behind the memory
// engine: a cache-fronted SQLite hot tier, an optional BadgerDB cold
// archive, and two alternate backends (append-only JSONL and SQLite+FTS5)
// implementing the same contract.
package store

import (
	"context"

	"github.com/agentops/memvault/internal/model"
)

// Backend is the storage contract shared by every tier. Implementations
// absorb read-path failures (retrieve/search/list) into empty results with
// a logged warning; write-path failures surface as *model.StorageError.
type Backend interface {
	// Store upserts an entry by id.
	Store(ctx context.Context, e *model.MemoryEntry) error

	// Retrieve returns the entry or (nil, nil) when absent.
	Retrieve(ctx context.Context, id string) (*model.MemoryEntry, error)

	// Search returns entries whose content or tags match query,
	// ordered by (access_count desc, timestamp desc).
	Search(ctx context.Context, query string, limit int) ([]*model.MemoryEntry, error)

	// Delete removes an entry. A missing id is a safe no-op (false, nil).
	Delete(ctx context.Context, id string) (bool, error)

	// ListAll returns every entry in the backend.
	ListAll(ctx context.Context) ([]*model.MemoryEntry, error)

	// Stats returns per-backend counts, recomputed on each call.
	Stats(ctx context.Context) (*model.TierStats, error)
}

const defaultSearchLimit = 20

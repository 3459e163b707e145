package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/agentops/memvault/internal/model"
)

// Archive is the durable capacity-oriented backend behind the cold tier.
type Archive interface {
	Put(ctx context.Context, e *model.MemoryEntry) error
	Get(ctx context.Context, id string) (*model.MemoryEntry, error)
	Remove(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]*model.MemoryEntry, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// ColdStore adapts an optional Archive to the Backend contract. With no
// archive configured every read is a safe empty result and Store fails
// with a typed error; Search is unsupported by contract even when the
// archive is present, since cold backends trade query capability for
// capacity.
type ColdStore struct {
	archive Archive
	log     *zap.Logger
}

// NewColdStore wraps archive, which may be nil.
func NewColdStore(archive Archive, log *zap.Logger) *ColdStore {
	return &ColdStore{archive: archive, log: log}
}

// Available reports whether a durable archive is configured.
func (c *ColdStore) Available() bool {
	return c.archive != nil
}

// Store writes the entry to the archive.
func (c *ColdStore) Store(ctx context.Context, e *model.MemoryEntry) error {
	if c.archive == nil {
		return model.NewStorageError("store", e.ID, model.ErrColdUnavailable)
	}
	if err := c.archive.Put(ctx, e); err != nil {
		c.log.Error("cold store write failed", zap.String("id", e.ID), zap.Error(err))
		return model.NewStorageError("store", e.ID, err)
	}
	return nil
}

// Retrieve returns the archived entry, or (nil, nil) when absent or when
// no archive is configured.
func (c *ColdStore) Retrieve(ctx context.Context, id string) (*model.MemoryEntry, error) {
	if c.archive == nil {
		return nil, nil
	}
	e, err := c.archive.Get(ctx, id)
	if err != nil {
		c.log.Warn("cold retrieve failed", zap.String("id", id), zap.Error(err))
		return nil, nil
	}
	return e, nil
}

// Search always returns empty results.
func (c *ColdStore) Search(ctx context.Context, query string, limit int) ([]*model.MemoryEntry, error) {
	return nil, nil
}

// Delete removes the entry from the archive if present.
func (c *ColdStore) Delete(ctx context.Context, id string) (bool, error) {
	if c.archive == nil {
		return false, nil
	}
	ok, err := c.archive.Remove(ctx, id)
	if err != nil {
		c.log.Error("cold delete failed", zap.String("id", id), zap.Error(err))
		return false, model.NewStorageError("delete", id, err)
	}
	return ok, nil
}

// ListAll returns every archived entry.
func (c *ColdStore) ListAll(ctx context.Context) ([]*model.MemoryEntry, error) {
	if c.archive == nil {
		return nil, nil
	}
	entries, err := c.archive.List(ctx)
	if err != nil {
		c.log.Warn("cold list failed", zap.Error(err))
		return nil, nil
	}
	return entries, nil
}

// Stats returns archive counts, or a zero stat when unavailable.
func (c *ColdStore) Stats(ctx context.Context) (*model.TierStats, error) {
	st := &model.TierStats{Backend: "cold", Available: c.archive != nil}
	if c.archive == nil {
		return st, nil
	}
	n, err := c.archive.Count(ctx)
	if err != nil {
		c.log.Warn("cold stats failed", zap.Error(err))
		return st, nil
	}
	st.Entries = n
	return st, nil
}

// BadgerArchive stores entries as JSON values in an embedded BadgerDB,
// keyed by entry id.
type BadgerArchive struct {
	db *badger.DB
}

// NewBadgerArchive opens or creates a BadgerDB archive under dir.
func NewBadgerArchive(dir string) (*BadgerArchive, error) {
	opts := badger.DefaultOptions(dir).
		WithLoggingLevel(badger.ERROR)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cold archive: %w", err)
	}
	return &BadgerArchive{db: db}, nil
}

// Put upserts the entry under its id.
func (a *BadgerArchive) Put(ctx context.Context, e *model.MemoryEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	return a.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(e.ID), data)
	})
}

// Get returns the entry, or (nil, nil) when the key is absent.
func (a *BadgerArchive) Get(ctx context.Context, id string) (*model.MemoryEntry, error) {
	var e *model.MemoryEntry
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			e = &model.MemoryEntry{}
			return json.Unmarshal(val, e)
		})
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Remove deletes the key, reporting whether it existed.
func (a *BadgerArchive) Remove(ctx context.Context, id string) (bool, error) {
	existed := false
	err := a.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(id)); err == badger.ErrKeyNotFound {
			return nil
		} else if err != nil {
			return err
		}
		existed = true
		return txn.Delete([]byte(id))
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

// List iterates the full archive.
func (a *BadgerArchive) List(ctx context.Context) ([]*model.MemoryEntry, error) {
	var entries []*model.MemoryEntry
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var e model.MemoryEntry
				if err := json.Unmarshal(val, &e); err != nil {
					return err
				}
				entries = append(entries, &e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Count returns the number of archived entries without loading values.
func (a *BadgerArchive) Count(ctx context.Context) (int, error) {
	n := 0
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close closes the underlying BadgerDB.
func (a *BadgerArchive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Package engine orchestrates the persistence core: redaction, subject
// tagging, tier placement, cross-tier reads, migration, and stats.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/agentops/memvault/internal/audit"
	"github.com/agentops/memvault/internal/gdpr"
	"github.com/agentops/memvault/internal/model"
	"github.com/agentops/memvault/internal/redact"
	"github.com/agentops/memvault/internal/store"
)

// cacheSyncer is implemented by hot backends that can resync their cache
// from durable storage.
type cacheSyncer interface {
	SyncCache(ctx context.Context) error
}

// Options wires the engine. Hot is required; everything else is optional
// and disables the corresponding behavior when nil.
type Options struct {
	Hot           store.Backend
	Cold          *store.ColdStore
	Redactor      *redact.Engine
	GDPR          *gdpr.Service
	Audit         *audit.Logger
	TierThreshold int // content longer than this goes cold; default 10000
	GDPRRetention time.Duration
	Logger        *zap.Logger
}

// Engine routes records between tiers. It adds no locking beyond what
// its backends provide; cross-tier reads are best-effort against a
// concurrent delete of the same id.
type Engine struct {
	hot           store.Backend
	cold          *store.ColdStore
	redactor      *redact.Engine
	gdpr          *gdpr.Service
	audit         *audit.Logger
	tierThreshold int
	gdprRetention time.Duration
	log           *zap.Logger
	entropy       *rand.Rand

	mu          sync.Mutex
	stored      int
	failed      int
	redactedOps int
	timings     *timingWindow
}

// New wires the engine and binds the GDPR service to its storage view.
func New(opts Options) *Engine {
	if opts.TierThreshold <= 0 {
		opts.TierThreshold = 10000
	}
	if opts.GDPRRetention <= 0 {
		opts.GDPRRetention = 90 * 24 * time.Hour
	}
	if opts.Cold == nil {
		opts.Cold = store.NewColdStore(nil, opts.Logger)
	}

	e := &Engine{
		hot:           opts.Hot,
		cold:          opts.Cold,
		redactor:      opts.Redactor,
		gdpr:          opts.GDPR,
		audit:         opts.Audit,
		tierThreshold: opts.TierThreshold,
		gdprRetention: opts.GDPRRetention,
		log:           opts.Logger,
		entropy:       rand.New(rand.NewSource(time.Now().UnixNano())),
		timings:       newTimingWindow(100),
	}
	if e.gdpr != nil {
		e.gdpr.SetStore(e)
	}
	return e
}

func (e *Engine) newID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), e.entropy).String()
}

// StoreParams holds parameters for storing a record.
type StoreParams struct {
	Content  string
	Metadata map[string]interface{}
	Tags     []string
}

// Store redacts, tags, places, and persists one record. The stored
// content is the post-redaction version; the original is not retained.
func (e *Engine) Store(ctx context.Context, p StoreParams) (*model.MemoryEntry, error) {
	start := time.Now()

	if p.Content == "" {
		return nil, model.NewValidationError("store", "", fmt.Errorf("content is required"))
	}

	meta := make(map[string]interface{}, len(p.Metadata)+4)
	for k, v := range p.Metadata {
		meta[k] = v
	}

	content := p.Content
	redacted := false
	if e.redactor != nil {
		res := e.redactor.Redact(content)
		if len(res.RedactionsApplied) > 0 {
			content = res.RedactedContent
			redacted = true
			meta["redaction_applied"] = true
			meta["redaction_count"] = len(res.RedactionsApplied)
			meta["redaction_score"] = res.RedactionScore
		}
	}

	if e.gdpr != nil {
		if sid := e.gdpr.IdentifySubject(content, meta); sid != "" {
			meta[model.MetaDataSubject] = sid
		}
	}

	entry := &model.MemoryEntry{
		ID:          e.newID(),
		Content:     content,
		Metadata:    meta,
		Timestamp:   time.Now().UTC(),
		Tags:        p.Tags,
		StorageTier: e.selectTier(content, meta),
	}

	backend := e.hot
	if entry.StorageTier == model.TierCold {
		if e.cold.Available() {
			backend = e.cold
		} else {
			e.log.Warn("cold tier selected but unavailable, placing hot",
				zap.String("id", entry.ID))
			entry.StorageTier = model.TierHot
		}
	}

	if err := backend.Store(ctx, entry); err != nil {
		e.mu.Lock()
		e.failed++
		e.mu.Unlock()
		return nil, err
	}

	e.mu.Lock()
	e.stored++
	if redacted {
		e.redactedOps++
	}
	e.timings.add(time.Since(start))
	e.mu.Unlock()

	e.auditEvent("memory.store", entry.ID, map[string]interface{}{
		"tier":     entry.StorageTier,
		"redacted": redacted,
		"size":     len(content),
	})
	return entry, nil
}

// selectTier applies placement policy: explicit metadata override, then
// content length, then the frequently_accessed hint, then hot.
func (e *Engine) selectTier(content string, meta map[string]interface{}) string {
	if v, ok := meta["storage_tier"].(string); ok && model.ValidTiers[v] && v != model.TierAuto {
		return v
	}
	if len(content) > e.tierThreshold {
		return model.TierCold
	}
	if hint, ok := meta["frequently_accessed"].(bool); ok && hint {
		return model.TierHot
	}
	return model.TierHot
}

// Retrieve reads hot-first, falling back to cold. A cold hit is promoted
// into the hot tier; the cold copy stays, since cold is archival.
func (e *Engine) Retrieve(ctx context.Context, id string) (*model.MemoryEntry, error) {
	if entry, _ := e.hot.Retrieve(ctx, id); entry != nil {
		return entry, nil
	}

	if !e.cold.Available() {
		return nil, nil
	}
	entry, _ := e.cold.Retrieve(ctx, id)
	if entry == nil {
		return nil, nil
	}

	promoted := entry.Clone()
	promoted.StorageTier = model.TierHot
	if err := e.hot.Store(ctx, promoted); err != nil {
		e.log.Warn("cold-to-hot promotion failed", zap.String("id", id), zap.Error(err))
		return entry, nil
	}
	e.auditEvent("memory.promote", id, map[string]interface{}{"from": model.TierCold})
	return promoted, nil
}

// Search returns hot results first and, if short of limit, tops up from
// cold — never a merged ranking.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]*model.MemoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	results, _ := e.hot.Search(ctx, query, limit)
	if len(results) < limit && e.cold.Available() {
		more, _ := e.cold.Search(ctx, query, limit-len(results))
		results = append(results, more...)
	}
	return results, nil
}

// Delete attempts both tiers; success if either succeeds. Repeated
// deletes of a missing id are safe no-ops.
func (e *Engine) Delete(ctx context.Context, id string) (bool, error) {
	hotOK, hotErr := e.hot.Delete(ctx, id)
	coldOK, coldErr := e.cold.Delete(ctx, id)

	if hotOK || coldOK {
		e.auditEvent("memory.delete", id, map[string]interface{}{
			"hot": hotOK, "cold": coldOK,
		})
		return true, nil
	}
	if hotErr != nil {
		return false, hotErr
	}
	if coldErr != nil {
		return false, coldErr
	}
	return false, nil
}

// MigrateToCold moves one entry: read hot, write cold, delete hot, in
// that order, so a crash mid-migration never loses the record.
func (e *Engine) MigrateToCold(ctx context.Context, id string) error {
	if !e.cold.Available() {
		return model.NewStorageError("migrate", id, model.ErrColdUnavailable)
	}

	entry, _ := e.hot.Retrieve(ctx, id)
	if entry == nil {
		return model.NewProcessingError("migrate", id, model.ErrNotFound)
	}

	archived := entry.Clone()
	archived.StorageTier = model.TierCold
	if err := e.cold.Store(ctx, archived); err != nil {
		return err
	}
	if _, err := e.hot.Delete(ctx, id); err != nil {
		// Entry now exists in both tiers; recoverable, not lost.
		return err
	}

	e.auditEvent("memory.migrate", id, map[string]interface{}{
		"from": model.TierHot, "to": model.TierCold,
	})
	return nil
}

// Stats aggregates both tiers with processing and GDPR counters.
func (e *Engine) Stats(ctx context.Context) (*model.MemoryStats, error) {
	hotStats, _ := e.hot.Stats(ctx)
	coldStats, _ := e.cold.Stats(ctx)

	e.mu.Lock()
	stored, failed, redacted := e.stored, e.failed, e.redactedOps
	avg := e.timings.avgMillis()
	e.mu.Unlock()

	st := &model.MemoryStats{
		TotalEntries:     hotStats.Entries + coldStats.Entries,
		PreservedEntries: hotStats.Entries + coldStats.Entries,
		DigestedEntries:  stored,
		FailedEntries:    failed,
		AvgProcessingMS:  avg,
		TierDistribution: map[string]int{
			model.TierHot:  hotStats.Entries,
			model.TierCold: coldStats.Entries,
		},
	}
	if stored > 0 {
		st.PatternMatchRate = float64(redacted) / float64(stored)
	}
	if e.gdpr != nil {
		byStatus, subjects := e.gdpr.Counts()
		st.GDPRRequests = byStatus
		st.KnownSubjects = subjects
	}
	return st, nil
}

// Cleanup resyncs the hot cache from durable storage and expires terminal
// GDPR requests. Cold contents are never touched.
func (e *Engine) Cleanup(ctx context.Context) error {
	if syncer, ok := e.hot.(cacheSyncer); ok {
		if err := syncer.SyncCache(ctx); err != nil {
			return err
		}
	}

	purged := 0
	if e.gdpr != nil {
		purged = e.gdpr.CleanupExpired(e.gdprRetention)
	}

	e.auditEvent("memory.cleanup", "", map[string]interface{}{
		"gdpr_requests_purged": purged,
	})
	return nil
}

// CreateGDPRRequest allocates a pending data-subject request.
func (e *Engine) CreateGDPRRequest(subjectID, requestType string) (*model.GDPRRequest, error) {
	if e.gdpr == nil {
		return nil, model.NewValidationError("gdpr", "", fmt.Errorf("gdpr support disabled"))
	}
	req, err := e.gdpr.CreateRequest(subjectID, requestType)
	if err != nil {
		return nil, err
	}
	e.auditEvent("gdpr.request.create", req.RequestID, map[string]interface{}{
		"subject": subjectID,
		"type":    requestType,
	})
	return req, nil
}

// ProcessGDPRRequest drives one request to a terminal state and records
// the outcome in the durable audit log.
func (e *Engine) ProcessGDPRRequest(ctx context.Context, requestID string) (*model.GDPRRequest, error) {
	if e.gdpr == nil {
		return nil, model.NewValidationError("gdpr", requestID, fmt.Errorf("gdpr support disabled"))
	}
	req, err := e.gdpr.ProcessRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	e.auditEvent("gdpr.request."+req.Status, req.RequestID, map[string]interface{}{
		"subject": req.DataSubjectID,
		"type":    req.RequestType,
		"error":   req.Error,
	})
	return req, nil
}

// GDPRRequests returns all tracked requests.
func (e *Engine) GDPRRequests() []*model.GDPRRequest {
	if e.gdpr == nil {
		return nil
	}
	return e.gdpr.Requests()
}

// ListEntries exposes both tiers to the GDPR service (gdpr.Storer).
func (e *Engine) ListEntries(ctx context.Context) ([]*model.MemoryEntry, error) {
	entries, _ := e.hot.ListAll(ctx)
	if e.cold.Available() {
		coldEntries, _ := e.cold.ListAll(ctx)
		entries = append(entries, coldEntries...)
	}
	return entries, nil
}

// SaveEntry writes an updated entry back to its tier (gdpr.Storer).
func (e *Engine) SaveEntry(ctx context.Context, entry *model.MemoryEntry) error {
	if entry.StorageTier == model.TierCold && e.cold.Available() {
		return e.cold.Store(ctx, entry)
	}
	return e.hot.Store(ctx, entry)
}

// auditEvent records a compliance-relevant action in the durable log.
func (e *Engine) auditEvent(action, resource string, details map[string]interface{}) {
	if e.audit == nil {
		return
	}
	if !e.audit.Log(action, "memory-engine", resource, details) {
		e.log.Warn("audit append failed", zap.String("action", action))
	}
}

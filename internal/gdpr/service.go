// Package gdpr implements pseudonymous data-subject detection and the
// data-subject request lifecycle (access, erasure, portability,
// rectification).
//
// Subject linkage is a substring heuristic over content, metadata, and
// tags — not a precise identity join. A production deployment should add
// an explicit subject id column on every entry instead.
package gdpr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentops/memvault/internal/model"
)

// Storer is the slice of the storage layer request processing needs:
// scanning for a subject's entries and writing erasure marks back.
type Storer interface {
	ListEntries(ctx context.Context) ([]*model.MemoryEntry, error)
	SaveEntry(ctx context.Context, e *model.MemoryEntry) error
}

// subjectKeywords is the fixed vocabulary that marks content as
// personal-data bearing.
var subjectKeywords = []string{
	"name", "email", "phone", "address", "ssn", "passport",
	"birthdate", "date of birth", "user_id", "username",
	"personal", "customer",
}

// transition is one recorded lifecycle event. This in-memory trail is a
// debugging aid; the durable audit logger is the compliance record of truth.
type transition struct {
	RequestID string    `json:"request_id"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

const maxTrail = 1000

// Service tracks known subjects and processes their requests.
type Service struct {
	log *zap.Logger

	mu       sync.Mutex
	store    Storer
	subjects map[string]time.Time
	requests map[string]*model.GDPRRequest
	trail    []transition
}

// NewService returns a Service with no storage bound yet; call SetStore
// before processing requests.
func NewService(log *zap.Logger) *Service {
	return &Service{
		log:      log,
		subjects: make(map[string]time.Time),
		requests: make(map[string]*model.GDPRRequest),
	}
}

// SetStore binds the storage layer used for request processing.
func (s *Service) SetStore(store Storer) {
	s.mu.Lock()
	s.store = store
	s.mu.Unlock()
}

// IdentifySubject scans content and metadata for the keyword vocabulary.
// On any hit it derives a pseudonymous subject id (first 16 hex chars of
// SHA-256 over the content), registers it, and returns it; otherwise "".
func (s *Service) IdentifySubject(content string, metadata map[string]interface{}) string {
	haystack := strings.ToLower(content)
	for _, v := range metadata {
		haystack += " " + strings.ToLower(fmt.Sprintf("%v", v))
	}

	hit := false
	for _, kw := range subjectKeywords {
		if strings.Contains(haystack, kw) {
			hit = true
			break
		}
	}
	if !hit {
		return ""
	}

	sum := sha256.Sum256([]byte(content))
	id := hex.EncodeToString(sum[:])[:16]

	s.mu.Lock()
	if _, ok := s.subjects[id]; !ok {
		s.subjects[id] = time.Now().UTC()
	}
	s.mu.Unlock()
	return id
}

// CreateRequest allocates a pending request for the subject.
func (s *Service) CreateRequest(subjectID, requestType string) (*model.GDPRRequest, error) {
	if !model.ValidRequestTypes[requestType] {
		return nil, model.NewValidationError("create_request", subjectID,
			fmt.Errorf("unknown request type %q", requestType))
	}
	if subjectID == "" {
		return nil, model.NewValidationError("create_request", "",
			fmt.Errorf("data subject id is required"))
	}

	req := &model.GDPRRequest{
		RequestID:     uuid.NewString(),
		DataSubjectID: subjectID,
		RequestType:   requestType,
		Status:        model.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}

	s.mu.Lock()
	s.requests[req.RequestID] = req
	s.recordLocked(req.RequestID, model.StatusPending, "created "+requestType)
	s.mu.Unlock()

	return req.Clone(), nil
}

// ProcessRequest advances a pending request to processing, dispatches by
// type, and lands it in completed or failed — never silently.
func (s *Service) ProcessRequest(ctx context.Context, requestID string) (*model.GDPRRequest, error) {
	s.mu.Lock()
	req, ok := s.requests[requestID]
	if !ok {
		s.mu.Unlock()
		return nil, model.NewValidationError("process_request", requestID, model.ErrNotFound)
	}
	if req.Status != model.StatusPending {
		s.mu.Unlock()
		return nil, model.NewValidationError("process_request", requestID,
			fmt.Errorf("request is %s, not pending", req.Status))
	}
	store := s.store
	req.Status = model.StatusProcessing
	s.recordLocked(requestID, model.StatusProcessing, "")
	s.mu.Unlock()

	if store == nil {
		return s.fail(requestID, fmt.Errorf("no storage bound"))
	}

	var result map[string]interface{}
	var err error
	switch req.RequestType {
	case model.RequestAccess:
		result, err = s.processAccess(ctx, store, req)
	case model.RequestErasure:
		result, err = s.processErasure(ctx, store, req)
	case model.RequestPortability:
		result, err = s.processPortability(ctx, store, req)
	case model.RequestRectification:
		err = fmt.Errorf("rectification: %w", model.ErrNotImplemented)
	}

	if err != nil {
		return s.fail(requestID, err)
	}
	return s.complete(requestID, result)
}

// processAccess returns the subject's matching entries verbatim.
func (s *Service) processAccess(ctx context.Context, store Storer, req *model.GDPRRequest) (map[string]interface{}, error) {
	entries := s.matchEntries(ctx, store, req.DataSubjectID)
	return map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	}, nil
}

// processErasure tags matching entries for erasure. Physical deletion is
// deferred to the storage layer so marking never blocks on it.
func (s *Service) processErasure(ctx context.Context, store Storer, req *model.GDPRRequest) (map[string]interface{}, error) {
	entries := s.matchEntries(ctx, store, req.DataSubjectID)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tagged := 0
	for _, e := range entries {
		if e.Metadata == nil {
			e.Metadata = make(map[string]interface{})
		}
		e.Metadata[model.MetaErasureRequested] = true
		e.Metadata[model.MetaErasureRequestID] = req.RequestID
		e.Metadata[model.MetaErasureRequestedAt] = now
		if err := store.SaveEntry(ctx, e); err != nil {
			return nil, fmt.Errorf("tag entry %s: %w", e.ID, err)
		}
		tagged++
	}
	return map[string]interface{}{
		"tagged":     tagged,
		"request_id": req.RequestID,
	}, nil
}

// processPortability returns a self-describing export bundle.
func (s *Service) processPortability(ctx context.Context, store Storer, req *model.GDPRRequest) (map[string]interface{}, error) {
	entries := s.matchEntries(ctx, store, req.DataSubjectID)
	return map[string]interface{}{
		"format":      "json",
		"version":     "1.0",
		"exported_at": time.Now().UTC().Format(time.RFC3339Nano),
		"subject_id":  req.DataSubjectID,
		"entries":     entries,
		"count":       len(entries),
	}, nil
}

// matchEntries finds entries linked to the subject by substring presence
// in content, metadata values, or tags.
func (s *Service) matchEntries(ctx context.Context, store Storer, subjectID string) []*model.MemoryEntry {
	all, err := store.ListEntries(ctx)
	if err != nil {
		s.log.Warn("subject scan failed", zap.String("subject", subjectID), zap.Error(err))
		return nil
	}

	var matched []*model.MemoryEntry
	for _, e := range all {
		if entryMatchesSubject(e, subjectID) {
			matched = append(matched, e)
		}
	}
	return matched
}

func entryMatchesSubject(e *model.MemoryEntry, subjectID string) bool {
	if strings.Contains(e.Content, subjectID) {
		return true
	}
	for _, v := range e.Metadata {
		if strings.Contains(fmt.Sprintf("%v", v), subjectID) {
			return true
		}
	}
	for _, t := range e.Tags {
		if strings.Contains(t, subjectID) {
			return true
		}
	}
	return false
}

func (s *Service) complete(requestID string, result map[string]interface{}) (*model.GDPRRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := s.requests[requestID]
	now := time.Now().UTC()
	req.Status = model.StatusCompleted
	req.CompletedAt = &now
	req.Result = result
	s.recordLocked(requestID, model.StatusCompleted, "")
	return req.Clone(), nil
}

func (s *Service) fail(requestID string, cause error) (*model.GDPRRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := s.requests[requestID]
	now := time.Now().UTC()
	req.Status = model.StatusFailed
	req.CompletedAt = &now
	req.Error = cause.Error()
	s.recordLocked(requestID, model.StatusFailed, cause.Error())
	s.log.Warn("gdpr request failed",
		zap.String("request_id", requestID), zap.Error(cause))
	return req.Clone(), nil
}

// recordLocked appends to the capped in-memory trail. Caller holds s.mu.
func (s *Service) recordLocked(requestID, status, detail string) {
	s.trail = append(s.trail, transition{
		RequestID: requestID,
		Status:    status,
		Detail:    detail,
		At:        time.Now().UTC(),
	})
	if len(s.trail) > maxTrail {
		s.trail = s.trail[len(s.trail)-maxTrail:]
	}
}

// Request returns a copy of one request.
func (s *Service) Request(requestID string) (*model.GDPRRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, false
	}
	return req.Clone(), true
}

// Requests returns copies of all tracked requests.
func (s *Service) Requests() []*model.GDPRRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.GDPRRequest, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, req.Clone())
	}
	return out
}

// CleanupExpired purges terminal requests older than maxAge and returns
// how many were removed. Pending and processing requests are never purged.
func (s *Service) CleanupExpired(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, req := range s.requests {
		if !req.Terminal() {
			continue
		}
		at := req.CreatedAt
		if req.CompletedAt != nil {
			at = *req.CompletedAt
		}
		if at.Before(cutoff) {
			delete(s.requests, id)
			removed++
		}
	}
	return removed
}

// Counts returns request totals by status plus the known-subject count.
func (s *Service) Counts() (byStatus map[string]int, subjects int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byStatus = make(map[string]int)
	for _, req := range s.requests {
		byStatus[req.Status]++
	}
	return byStatus, len(s.subjects)
}

// Package model defines the record types and error taxonomy shared by
// every storage tier and compliance component.
package model

import "time"

// Storage tiers.
const (
	TierHot  = "hot"
	TierCold = "cold"
	TierAuto = "auto"
)

// ValidTiers are the allowed storage tier values.
var ValidTiers = map[string]bool{
	TierHot:  true,
	TierCold: true,
	TierAuto: true,
}

// MemoryEntry is a stored record. Content is the post-redaction version;
// the pre-redaction original is never retained anywhere.
type MemoryEntry struct {
	ID           string                 `json:"id"`
	Content      string                 `json:"content"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	Tags         []string               `json:"tags,omitempty"`
	StorageTier  string                 `json:"storage_tier"`
	AccessCount  int                    `json:"access_count"`
	LastAccessed *time.Time             `json:"last_accessed,omitempty"`
}

// Clone returns a copy whose metadata map and tags slice are independent
// of the receiver, so cached entries are never mutated by callers.
func (e *MemoryEntry) Clone() *MemoryEntry {
	if e == nil {
		return nil
	}
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	if e.Tags != nil {
		c.Tags = append([]string(nil), e.Tags...)
	}
	if e.LastAccessed != nil {
		t := *e.LastAccessed
		c.LastAccessed = &t
	}
	return &c
}

// TierStats holds per-backend counts, recomputed on every query.
type TierStats struct {
	Backend   string `json:"backend"`
	Entries   int    `json:"entries"`
	Cached    int    `json:"cached,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Path      string `json:"path,omitempty"`
	Available bool   `json:"available"`
}

// MemoryStats aggregates both tiers plus processing counters. Derived,
// never persisted.
type MemoryStats struct {
	TotalEntries     int            `json:"total_entries"`
	PreservedEntries int            `json:"preserved_entries"`
	DigestedEntries  int            `json:"digested_entries"`
	FailedEntries    int            `json:"failed_entries"`
	AvgProcessingMS  float64        `json:"avg_processing_ms"`
	TierDistribution map[string]int `json:"tier_distribution"`
	PatternMatchRate float64        `json:"pattern_match_rate"`
	GDPRRequests     map[string]int `json:"gdpr_requests,omitempty"`
	KnownSubjects    int            `json:"known_subjects,omitempty"`
}

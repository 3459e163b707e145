package model

import "time"

// GDPR request types.
const (
	RequestAccess        = "access"
	RequestErasure       = "erasure"
	RequestPortability   = "portability"
	RequestRectification = "rectification"
)

// ValidRequestTypes are the supported data-subject request types.
var ValidRequestTypes = map[string]bool{
	RequestAccess:        true,
	RequestErasure:       true,
	RequestPortability:   true,
	RequestRectification: true,
}

// GDPR request statuses. Completed and failed are terminal and never revert.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// GDPRRequest tracks one data-subject request through its lifecycle:
// pending -> processing -> completed | failed.
type GDPRRequest struct {
	RequestID     string                 `json:"request_id"`
	DataSubjectID string                 `json:"data_subject_id"`
	RequestType   string                 `json:"request_type"`
	Status        string                 `json:"status"`
	CreatedAt     time.Time              `json:"created_at"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	Result        map[string]interface{} `json:"result,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

// Terminal reports whether the request has reached a final state.
func (r *GDPRRequest) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Clone returns a copy with an independent result map.
func (r *GDPRRequest) Clone() *GDPRRequest {
	if r == nil {
		return nil
	}
	c := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	if r.Result != nil {
		c.Result = make(map[string]interface{}, len(r.Result))
		for k, v := range r.Result {
			c.Result[k] = v
		}
	}
	return &c
}

// Metadata keys written onto entries tagged for erasure. Physical deletion
// is deferred to the storage layer; these marks are the request's output.
const (
	MetaErasureRequested   = "gdpr_erasure_requested"
	MetaErasureRequestID   = "gdpr_erasure_request_id"
	MetaErasureRequestedAt = "gdpr_erasure_requested_at"
	MetaDataSubject        = "gdpr_data_subject"
)

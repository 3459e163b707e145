package model

// AuditLogEntry is one write-once line of the durable audit log.
// Timestamp is ISO-8601 UTC; Hash is the SHA-256 hex digest over the
// canonical JSON of the other fields and makes each line self-verifying.
type AuditLogEntry struct {
	Action    string                 `json:"action"`
	UserID    string                 `json:"user_id"`
	Resource  string                 `json:"resource"`
	Details   map[string]interface{} `json:"details"`
	Timestamp string                 `json:"timestamp"`
	Hash      string                 `json:"hash"`
}

package model

// RedactionRule describes one detection pattern. A rule whose pattern
// failed to compile is kept but never applied.
type RedactionRule struct {
	Name        string `json:"name"`
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Priority    int    `json:"priority"`
	Enabled     bool   `json:"enabled"`
}

// Redaction records a single rule firing during one redaction pass.
type Redaction struct {
	Rule        string `json:"rule"`
	Matches     int    `json:"matches"`
	Priority    int    `json:"priority"`
	Replacement string `json:"replacement"`
}

// RedactionResult is the outcome of redacting one piece of content.
// RedactionScore is exactly 0 iff RedactionsApplied is empty.
type RedactionResult struct {
	OriginalContent   string      `json:"original_content"`
	RedactedContent   string      `json:"redacted_content"`
	RedactionsApplied []Redaction `json:"redactions_applied"`
	RedactionScore    float64     `json:"redaction_score"`
}

// Risk levels produced by the non-destructive redaction summary.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// RedactionSummary classifies content without modifying it.
type RedactionSummary struct {
	TotalMatches int            `json:"total_matches"`
	ByRule       map[string]int `json:"by_rule,omitempty"`
	WeightedRisk float64        `json:"weighted_risk"`
	RiskLevel    string         `json:"risk_level"`
}

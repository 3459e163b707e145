// Package redact detects and irreversibly masks sensitive substrings
// before storage.
package redact

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/agentops/memvault/internal/model"
)

// rule pairs the stored definition with its compiled pattern. re is nil
// when the pattern failed to compile; such rules are kept but never applied.
type rule struct {
	def model.RedactionRule
	re  *regexp.Regexp
}

// Engine applies priority-ordered redaction rules. Built-in HIPAA-style
// and GDPR-style packs are compiled at construction; callers may add
// custom rules at runtime.
type Engine struct {
	log *zap.Logger

	mu    sync.RWMutex
	rules map[string]*rule
}

// builtinRules are the HIPAA-style and GDPR-style packs. Higher priority
// rules consume text before lower priority rules see it.
var builtinRules = []model.RedactionRule{
	{Name: "ssn", Pattern: `\b\d{3}-\d{2}-\d{4}\b`, Replacement: "[REDACTED-SSN]", Priority: 100, Enabled: true},
	{Name: "credit_card", Pattern: `\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{4}\b`, Replacement: "[REDACTED-CC]", Priority: 95, Enabled: true},
	{Name: "medical_record_id", Pattern: `\bMRN[-: ]?\d{6,10}\b`, Replacement: "[REDACTED-MRN]", Priority: 90, Enabled: true},
	{Name: "national_id", Pattern: `\b[A-Z]{2}\d{6,9}\b`, Replacement: "[REDACTED-NATIONAL-ID]", Priority: 85, Enabled: true},
	{Name: "email", Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`, Replacement: "[REDACTED-EMAIL]", Priority: 80, Enabled: true},
	{Name: "phone", Pattern: `\b(?:\+?1[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`, Replacement: "[REDACTED-PHONE]", Priority: 75, Enabled: true},
	{Name: "dob", Pattern: `\b(?:0?[1-9]|1[0-2])/(?:0?[1-9]|[12]\d|3[01])/(?:19|20)\d{2}\b`, Replacement: "[REDACTED-DOB]", Priority: 70, Enabled: true},
	{Name: "biometric", Pattern: `(?i)\b(?:fingerprint|retina|iris|faceprint)\s*(?:id|scan)?\s*[:=]\s*\S+`, Replacement: "[REDACTED-BIOMETRIC]", Priority: 65, Enabled: true},
	{Name: "ip_address", Pattern: `\b(?:\d{1,3}\.){3}\d{1,3}\b`, Replacement: "[REDACTED-IP]", Priority: 60, Enabled: true},
	{Name: "location", Pattern: `(?i)\b(?:lat|latitude|lon|lng|longitude)\s*[:=]\s*-?\d{1,3}\.\d+`, Replacement: "[REDACTED-LOCATION]", Priority: 50, Enabled: true},
}

// NewEngine precompiles the built-in rule packs.
func NewEngine(log *zap.Logger) *Engine {
	e := &Engine{log: log, rules: make(map[string]*rule, len(builtinRules))}
	for _, def := range builtinRules {
		e.rules[def.Name] = &rule{def: def, re: regexp.MustCompile(def.Pattern)}
	}
	return e
}

// AddRule registers a caller-defined rule. A malformed pattern is stored
// but never compiled or applied; the validation error reports the problem
// without breaking the pipeline.
func (e *Engine) AddRule(def model.RedactionRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := &rule{def: def}
	re, err := regexp.Compile(def.Pattern)
	if err == nil {
		r.re = re
	} else {
		e.log.Warn("redaction rule pattern failed to compile; rule inert",
			zap.String("rule", def.Name), zap.Error(err))
	}
	e.rules[def.Name] = r

	if err != nil {
		return model.NewValidationError("add_rule", def.Name, err)
	}
	return nil
}

// SetEnabled toggles a rule, reporting whether it exists. Disabling
// removes the rule from the active matching order.
func (e *Engine) SetEnabled(name string, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[name]
	if !ok {
		return false
	}
	r.def.Enabled = enabled
	return true
}

// Rules returns the stored definitions, priority descending.
func (e *Engine) Rules() []model.RedactionRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.RedactionRule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r.def)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// active returns the enabled, compiled rules in application order:
// priority descending, name ascending on ties so order is deterministic.
func (e *Engine) active() []*rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*rule
	for _, r := range e.rules {
		if r.def.Enabled && r.re != nil {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].def.Priority != out[j].def.Priority {
			return out[i].def.Priority > out[j].def.Priority
		}
		return out[i].def.Name < out[j].def.Name
	})
	return out
}

// Redact applies the active rules to content. Each rule matches against
// the current text and replaces its matches in reverse offset order, so a
// higher-priority rule consumes text before lower-priority rules run.
func (e *Engine) Redact(content string) *model.RedactionResult {
	result := &model.RedactionResult{
		OriginalContent: content,
		RedactedContent: content,
	}

	cur := content
	for _, r := range e.active() {
		locs := r.re.FindAllStringIndex(cur, -1)
		if len(locs) == 0 {
			continue
		}
		for i := len(locs) - 1; i >= 0; i-- {
			cur = cur[:locs[i][0]] + r.def.Replacement + cur[locs[i][1]:]
		}
		result.RedactionsApplied = append(result.RedactionsApplied, model.Redaction{
			Rule:        r.def.Name,
			Matches:     len(locs),
			Priority:    r.def.Priority,
			Replacement: r.def.Replacement,
		})
	}

	result.RedactedContent = cur
	result.RedactionScore = score(result)
	return result
}

// score combines match volume, rule priority, and how much the content
// changed. Exactly 0 iff no rule fired.
func score(r *model.RedactionResult) float64 {
	if len(r.RedactionsApplied) == 0 {
		return 0
	}

	matches := 0
	prioSum := 0.0
	for _, a := range r.RedactionsApplied {
		matches += a.Matches
		prioSum += float64(a.Priority) / 100
	}
	meanPrio := prioSum / float64(len(r.RedactionsApplied))

	volume := float64(matches) / 10
	if volume > 1 {
		volume = 1
	}

	lengthShift := 0.0
	if n := len(r.OriginalContent); n > 0 {
		delta := len(r.OriginalContent) - len(r.RedactedContent)
		if delta < 0 {
			delta = -delta
		}
		lengthShift = 2 * float64(delta) / float64(n)
		if lengthShift > 1 {
			lengthShift = 1
		}
	}

	s := 0.4*volume + 0.3*meanPrio + 0.3*lengthShift
	if s < 0 {
		s = 0
	}
	if s > 1 {
		s = 1
	}
	return s
}

// Summary runs the active rules non-destructively and classifies the
// accumulated weighted risk.
func (e *Engine) Summary(content string) *model.RedactionSummary {
	sum := &model.RedactionSummary{ByRule: make(map[string]int)}
	for _, r := range e.active() {
		n := len(r.re.FindAllStringIndex(content, -1))
		if n == 0 {
			continue
		}
		sum.ByRule[r.def.Name] = n
		sum.TotalMatches += n
		sum.WeightedRisk += float64(n) * float64(r.def.Priority) / 100
	}

	switch {
	case sum.WeightedRisk <= 2:
		sum.RiskLevel = model.RiskLow
	case sum.WeightedRisk <= 5:
		sum.RiskLevel = model.RiskMedium
	default:
		sum.RiskLevel = model.RiskHigh
	}
	return sum
}

// String implements fmt.Stringer for log-friendly engine state.
func (e *Engine) String() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	active := 0
	for _, r := range e.rules {
		if r.def.Enabled && r.re != nil {
			active++
		}
	}
	return fmt.Sprintf("redact.Engine(%d rules, %d active)", len(e.rules), active)
}

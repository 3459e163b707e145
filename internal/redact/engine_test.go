package redact

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/agentops/memvault/internal/model"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(zap.NewNop())
}

func TestRedactSSN(t *testing.T) {
	e := newTestEngine(t)

	res := e.Redact("patient ssn is 123-45-6789, call back")
	if strings.Contains(res.RedactedContent, "123-45-6789") {
		t.Errorf("ssn survived redaction: %q", res.RedactedContent)
	}
	if !strings.Contains(res.RedactedContent, "[REDACTED-SSN]") {
		t.Errorf("expected ssn placeholder, got %q", res.RedactedContent)
	}
	if res.OriginalContent != "patient ssn is 123-45-6789, call back" {
		t.Error("original content must be preserved")
	}
	if len(res.RedactionsApplied) != 1 || res.RedactionsApplied[0].Rule != "ssn" {
		t.Errorf("unexpected applied rules: %+v", res.RedactionsApplied)
	}
}

func TestRedactMultipleMatches(t *testing.T) {
	e := newTestEngine(t)

	res := e.Redact("alice@example.com wrote to bob@example.org")
	if strings.Count(res.RedactedContent, "[REDACTED-EMAIL]") != 2 {
		t.Errorf("expected both emails masked: %q", res.RedactedContent)
	}
	if res.RedactionsApplied[0].Matches != 2 {
		t.Errorf("expected 2 matches recorded, got %d", res.RedactionsApplied[0].Matches)
	}
}

func TestRedactPriorityConsumesFirst(t *testing.T) {
	e := newTestEngine(t)

	// An SSN is also phone-shaped digits; the higher priority rule must
	// consume it before the phone rule runs.
	res := e.Redact("id 123-45-6789 end")
	if !strings.Contains(res.RedactedContent, "[REDACTED-SSN]") {
		t.Errorf("expected ssn placeholder, got %q", res.RedactedContent)
	}
	if strings.Contains(res.RedactedContent, "[REDACTED-PHONE]") {
		t.Errorf("lower-priority rule fired on consumed text: %q", res.RedactedContent)
	}
}

func TestRedactScoreZeroIffClean(t *testing.T) {
	e := newTestEngine(t)

	clean := e.Redact("nothing sensitive here at all")
	if clean.RedactionScore != 0 {
		t.Errorf("clean content must score 0, got %f", clean.RedactionScore)
	}
	if len(clean.RedactionsApplied) != 0 {
		t.Errorf("clean content fired rules: %+v", clean.RedactionsApplied)
	}

	dirty := e.Redact("ssn 123-45-6789")
	if dirty.RedactionScore <= 0 || dirty.RedactionScore > 1 {
		t.Errorf("dirty content score out of range: %f", dirty.RedactionScore)
	}
}

func TestAddRuleCustom(t *testing.T) {
	e := newTestEngine(t)

	err := e.AddRule(model.RedactionRule{
		Name:        "api_key",
		Pattern:     `\bsk-[A-Za-z0-9]{16,}\b`,
		Replacement: "[REDACTED-API-KEY]",
		Priority:    99,
		Enabled:     true,
	})
	if err != nil {
		t.Fatalf("add rule: %v", err)
	}

	res := e.Redact("token sk-abcdefghij0123456789 leaked")
	if !strings.Contains(res.RedactedContent, "[REDACTED-API-KEY]") {
		t.Errorf("custom rule did not fire: %q", res.RedactedContent)
	}
}

func TestAddRuleMalformedIsInert(t *testing.T) {
	e := newTestEngine(t)

	err := e.AddRule(model.RedactionRule{
		Name:     "broken",
		Pattern:  `([unclosed`,
		Priority: 200,
		Enabled:  true,
	})
	if err == nil {
		t.Fatal("malformed pattern must return an error")
	}
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	// The rule is stored but must never apply, and the pipeline keeps working.
	found := false
	for _, r := range e.Rules() {
		if r.Name == "broken" {
			found = true
		}
	}
	if !found {
		t.Error("malformed rule must still be listed")
	}
	res := e.Redact("ssn 123-45-6789")
	if !strings.Contains(res.RedactedContent, "[REDACTED-SSN]") {
		t.Errorf("pipeline broken by inert rule: %q", res.RedactedContent)
	}
}

func TestSetEnabled(t *testing.T) {
	e := newTestEngine(t)

	if !e.SetEnabled("email", false) {
		t.Fatal("disable of existing rule must report true")
	}
	res := e.Redact("mail me at alice@example.com")
	if strings.Contains(res.RedactedContent, "[REDACTED-EMAIL]") {
		t.Errorf("disabled rule fired: %q", res.RedactedContent)
	}

	if e.SetEnabled("no_such_rule", true) {
		t.Error("unknown rule must report false")
	}
}

func TestRulesOrdering(t *testing.T) {
	e := newTestEngine(t)

	rules := e.Rules()
	for i := 1; i < len(rules); i++ {
		if rules[i].Priority > rules[i-1].Priority {
			t.Fatalf("rules not priority-descending at %d: %+v", i, rules)
		}
		if rules[i].Priority == rules[i-1].Priority && rules[i].Name < rules[i-1].Name {
			t.Fatalf("tie not name-ascending at %d", i)
		}
	}
}

func TestSummaryRiskLevels(t *testing.T) {
	e := newTestEngine(t)

	low := e.Summary("contact alice@example.com")
	if low.RiskLevel != model.RiskLow {
		t.Errorf("one email should be low risk, got %s (risk %f)", low.RiskLevel, low.WeightedRisk)
	}

	high := e.Summary(strings.Repeat("123-45-6789 ", 8))
	if high.RiskLevel != model.RiskHigh {
		t.Errorf("eight ssns should be high risk, got %s (risk %f)", high.RiskLevel, high.WeightedRisk)
	}
	if high.ByRule["ssn"] != 8 {
		t.Errorf("expected 8 ssn matches, got %d", high.ByRule["ssn"])
	}
	if high.TotalMatches != 8 {
		t.Errorf("expected 8 total matches, got %d", high.TotalMatches)
	}
}

func TestSummaryNonDestructive(t *testing.T) {
	e := newTestEngine(t)

	content := "ssn 123-45-6789"
	e.Summary(content)
	if content != "ssn 123-45-6789" {
		t.Error("summary must not mutate content")
	}
}

package store

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func newTestFTS(t *testing.T) *FTSStore {
	t.Helper()
	s, err := NewFTSStore(filepath.Join(t.TempDir(), "fts.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("create fts store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFTSRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestFTS(t)

	e := testEntry("f1", "the deployment pipeline failed on stage three")
	e.Tags = []string{"incident"}
	if err := s.Store(ctx, e); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := s.Retrieve(ctx, "f1")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if got == nil || got.Content != e.Content {
		t.Fatalf("round trip failed: %+v", got)
	}
	if got.AccessCount != 1 {
		t.Errorf("retrieve must bump access count, got %d", got.AccessCount)
	}
}

func TestFTSSearchMatch(t *testing.T) {
	ctx := context.Background()
	s := newTestFTS(t)

	s.Store(ctx, testEntry("f1", "kubernetes cluster upgrade notes"))
	s.Store(ctx, testEntry("f2", "postgres backup schedule"))

	hits, err := s.Search(ctx, "kubernetes", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "f1" {
		t.Fatalf("expected single match f1, got %+v", hits)
	}
}

func TestFTSSearchTags(t *testing.T) {
	ctx := context.Background()
	s := newTestFTS(t)

	e := testEntry("f1", "unrelated body text")
	e.Tags = []string{"runbook", "oncall"}
	s.Store(ctx, e)

	hits, _ := s.Search(ctx, "runbook", 10)
	if len(hits) != 1 {
		t.Fatalf("expected tag match, got %d hits", len(hits))
	}
}

func TestFTSSearchEmptyQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestFTS(t)

	s.Store(ctx, testEntry("f1", "one"))
	s.Store(ctx, testEntry("f2", "two"))

	hits, err := s.Search(ctx, "", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("empty query must scan all rows, got %d", len(hits))
	}
}

func TestFTSSearchQuotesUserInput(t *testing.T) {
	ctx := context.Background()
	s := newTestFTS(t)

	s.Store(ctx, testEntry("f1", "plain content"))

	// FTS operators in user input must be treated as literals, not syntax.
	if _, err := s.Search(ctx, `AND OR NOT "`, 10); err != nil {
		t.Fatalf("hostile query must not error: %v", err)
	}
}

func TestFTSUpdateReplacesIndexRow(t *testing.T) {
	ctx := context.Background()
	s := newTestFTS(t)

	s.Store(ctx, testEntry("f1", "original wording"))
	s.Store(ctx, testEntry("f1", "revised wording"))

	if hits, _ := s.Search(ctx, "original", 10); len(hits) != 0 {
		t.Errorf("stale index row survived update: %+v", hits)
	}
	hits, _ := s.Search(ctx, "revised", 10)
	if len(hits) != 1 {
		t.Fatalf("updated content not indexed, got %d hits", len(hits))
	}
}

func TestFTSDeleteRemovesIndexRow(t *testing.T) {
	ctx := context.Background()
	s := newTestFTS(t)

	s.Store(ctx, testEntry("f1", "ephemeral note"))

	ok, err := s.Delete(ctx, "f1")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if hits, _ := s.Search(ctx, "ephemeral", 10); len(hits) != 0 {
		t.Error("index row survived delete")
	}
	if got, _ := s.Retrieve(ctx, "f1"); got != nil {
		t.Error("row survived delete")
	}

	ok, err = s.Delete(ctx, "f1")
	if err != nil || ok {
		t.Errorf("repeat delete: ok=%v err=%v", ok, err)
	}
}

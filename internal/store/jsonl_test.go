package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func newTestJSONL(t *testing.T) (*JSONLStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "entries.jsonl")
	s, err := NewJSONLStore(path, zap.NewNop())
	if err != nil {
		t.Fatalf("create jsonl store: %v", err)
	}
	return s, path
}

func TestJSONLRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestJSONL(t)

	e := testEntry("j1", "line one")
	e.Tags = []string{"log"}
	if err := s.Store(ctx, e); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := s.Retrieve(ctx, "j1")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if got == nil || got.Content != "line one" {
		t.Fatalf("round trip failed: %+v", got)
	}
	if got.AccessCount != 1 {
		t.Errorf("expected access count 1, got %d", got.AccessCount)
	}
}

func TestJSONLReplay(t *testing.T) {
	ctx := context.Background()
	s, path := newTestJSONL(t)

	s.Store(ctx, testEntry("j1", "first"))
	s.Store(ctx, testEntry("j2", "second"))
	s.Store(ctx, testEntry("j1", "first-updated"))

	// A fresh store over the same file must see the latest state.
	s2, err := NewJSONLStore(path, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, _ := s2.Retrieve(ctx, "j1")
	if got == nil || got.Content != "first-updated" {
		t.Fatalf("replay must keep last write: %+v", got)
	}
	st, _ := s2.Stats(ctx)
	if st.Entries != 2 {
		t.Errorf("expected 2 live entries after replay, got %d", st.Entries)
	}
}

func TestJSONLReplaySkipsMalformed(t *testing.T) {
	ctx := context.Background()
	s, path := newTestJSONL(t)

	s.Store(ctx, testEntry("j1", "good"))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{not valid json\n")
	f.WriteString("\n")
	f.Close()

	s.Store(ctx, testEntry("j2", "also good"))

	s2, err := NewJSONLStore(path, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen with corrupt line: %v", err)
	}
	for _, id := range []string{"j1", "j2"} {
		if got, _ := s2.Retrieve(ctx, id); got == nil {
			t.Errorf("entry %s lost to a malformed neighbor", id)
		}
	}
}

func TestJSONLDeleteCompacts(t *testing.T) {
	ctx := context.Background()
	s, path := newTestJSONL(t)

	s.Store(ctx, testEntry("j1", "keep"))
	s.Store(ctx, testEntry("j2", "drop"))

	ok, err := s.Delete(ctx, "j2")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "drop") {
		t.Error("deleted entry still present in file after compaction")
	}
	if !strings.Contains(string(data), "keep") {
		t.Error("surviving entry missing after compaction")
	}

	ok, err = s.Delete(ctx, "j2")
	if err != nil || ok {
		t.Errorf("repeat delete: ok=%v err=%v", ok, err)
	}
}

func TestJSONLSearchOrdering(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestJSONL(t)

	s.Store(ctx, testEntry("a", "shared term alpha"))
	s.Store(ctx, testEntry("b", "shared term beta"))
	s.Retrieve(ctx, "b")

	hits, err := s.Search(ctx, "shared term", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "b" {
		t.Errorf("expected most-accessed first, got %s", hits[0].ID)
	}
}

package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/agentops/memvault/internal/audit"
	"github.com/agentops/memvault/internal/gdpr"
	"github.com/agentops/memvault/internal/model"
	"github.com/agentops/memvault/internal/redact"
	"github.com/agentops/memvault/internal/store"
)

type fixture struct {
	eng  *Engine
	hot  *store.HotStore
	cold *store.ColdStore
}

func newFixture(t *testing.T, withCold bool) *fixture {
	t.Helper()
	log := zap.NewNop()
	dir := t.TempDir()

	hot, err := store.NewHotStore(filepath.Join(dir, "hot.db"), 100, log)
	if err != nil {
		t.Fatalf("hot store: %v", err)
	}
	t.Cleanup(func() { hot.Close() })

	var cold *store.ColdStore
	if withCold {
		arch, err := store.NewBadgerArchive(filepath.Join(dir, "cold"))
		if err != nil {
			t.Fatalf("cold archive: %v", err)
		}
		t.Cleanup(func() { arch.Close() })
		cold = store.NewColdStore(arch, log)
	} else {
		cold = store.NewColdStore(nil, log)
	}

	auditor, err := audit.New(audit.Config{Dir: filepath.Join(dir, "audit")}, log)
	if err != nil {
		t.Fatalf("audit logger: %v", err)
	}

	eng := New(Options{
		Hot:           hot,
		Cold:          cold,
		Redactor:      redact.NewEngine(log),
		GDPR:          gdpr.NewService(log),
		Audit:         auditor,
		TierThreshold: 100,
		Logger:        log,
	})
	return &fixture{eng: eng, hot: hot, cold: cold}
}

func TestStoreDefaultsToHot(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, true)

	entry, err := fx.eng.Store(ctx, StoreParams{Content: "short note"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if entry.StorageTier != model.TierHot {
		t.Errorf("short content must go hot, got %s", entry.StorageTier)
	}
	if entry.ID == "" {
		t.Error("id not assigned")
	}

	got, _ := fx.hot.Retrieve(ctx, entry.ID)
	if got == nil {
		t.Error("entry not in hot tier")
	}
}

func TestStoreRejectsEmptyContent(t *testing.T) {
	fx := newFixture(t, true)

	_, err := fx.eng.Store(context.Background(), StoreParams{})
	if err == nil {
		t.Fatal("empty content must be rejected")
	}
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected ValidationError, got %T", err)
	}
}

func TestStoreLongContentGoesCold(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, true)

	entry, err := fx.eng.Store(ctx, StoreParams{Content: strings.Repeat("x", 101)})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if entry.StorageTier != model.TierCold {
		t.Fatalf("over-threshold content must go cold, got %s", entry.StorageTier)
	}

	got, _ := fx.cold.Retrieve(ctx, entry.ID)
	if got == nil {
		t.Error("entry not in cold tier")
	}
	if got, _ := fx.hot.Retrieve(ctx, entry.ID); got != nil {
		t.Error("cold entry leaked into hot tier")
	}
}

func TestStoreTierOverride(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, true)

	entry, err := fx.eng.Store(ctx, StoreParams{
		Content:  "tiny",
		Metadata: map[string]interface{}{"storage_tier": model.TierCold},
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if entry.StorageTier != model.TierCold {
		t.Errorf("explicit override ignored, got %s", entry.StorageTier)
	}
}

func TestStoreColdUnavailableFallsBackHot(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, false)

	entry, err := fx.eng.Store(ctx, StoreParams{Content: strings.Repeat("x", 101)})
	if err != nil {
		t.Fatalf("store must fall back, not fail: %v", err)
	}
	if entry.StorageTier != model.TierHot {
		t.Errorf("expected hot fallback, got %s", entry.StorageTier)
	}
}

func TestStoreRedactsBeforePersisting(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, true)

	entry, err := fx.eng.Store(ctx, StoreParams{Content: "patient ssn 123-45-6789 admitted"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if strings.Contains(entry.Content, "123-45-6789") {
		t.Error("raw pii persisted")
	}
	if entry.Metadata["redaction_applied"] != true {
		t.Error("redaction provenance missing")
	}

	// The durable copy is the redacted one.
	got, _ := fx.hot.Retrieve(ctx, entry.ID)
	if strings.Contains(got.Content, "123-45-6789") {
		t.Error("raw pii reached storage")
	}
}

func TestStoreTagsDataSubject(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, true)

	entry, err := fx.eng.Store(ctx, StoreParams{Content: "customer asked about billing"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	sid, ok := entry.Metadata[model.MetaDataSubject].(string)
	if !ok || len(sid) != 16 {
		t.Errorf("expected pseudonymous subject id, got %v", entry.Metadata[model.MetaDataSubject])
	}
}

func TestRetrievePromotesFromCold(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, true)

	stored, err := fx.eng.Store(ctx, StoreParams{Content: strings.Repeat("y", 150)})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := fx.eng.Retrieve(ctx, stored.ID)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if got == nil {
		t.Fatal("cold entry not found")
	}
	if got.StorageTier != model.TierHot {
		t.Errorf("promoted copy must be hot, got %s", got.StorageTier)
	}

	// Hot now serves it; the cold copy stays for archival.
	if hotCopy, _ := fx.hot.Retrieve(ctx, stored.ID); hotCopy == nil {
		t.Error("promotion did not land in hot tier")
	}
	if coldCopy, _ := fx.cold.Retrieve(ctx, stored.ID); coldCopy == nil {
		t.Error("promotion must not remove the cold copy")
	}

	// A second retrieve is served hot.
	again, _ := fx.eng.Retrieve(ctx, stored.ID)
	if again == nil || again.StorageTier != model.TierHot {
		t.Errorf("second retrieve must serve from hot, got %+v", again)
	}
}

func TestRetrieveMissing(t *testing.T) {
	fx := newFixture(t, true)

	got, err := fx.eng.Retrieve(context.Background(), "no-such-id")
	if err != nil || got != nil {
		t.Errorf("missing id: got=%v err=%v", got, err)
	}
}

func TestSearchHotOnly(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, true)

	fx.eng.Store(ctx, StoreParams{Content: "incident report alpha"})
	fx.eng.Store(ctx, StoreParams{Content: "incident report beta"})
	// Cold entries are reachable by id but never by search.
	fx.eng.Store(ctx, StoreParams{Content: "incident " + strings.Repeat("z", 150)})

	results, err := fx.eng.Search(ctx, "incident", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 hot results, got %d", len(results))
	}
}

func TestDeleteBothTiers(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, true)

	hotEntry, _ := fx.eng.Store(ctx, StoreParams{Content: "hot record"})
	coldEntry, _ := fx.eng.Store(ctx, StoreParams{Content: strings.Repeat("c", 150)})

	for _, id := range []string{hotEntry.ID, coldEntry.ID} {
		ok, err := fx.eng.Delete(ctx, id)
		if err != nil || !ok {
			t.Fatalf("delete %s: ok=%v err=%v", id, ok, err)
		}
		if got, _ := fx.eng.Retrieve(ctx, id); got != nil {
			t.Errorf("entry %s still retrievable after delete", id)
		}
	}

	ok, err := fx.eng.Delete(ctx, hotEntry.ID)
	if err != nil {
		t.Fatalf("repeat delete must not fail: %v", err)
	}
	if ok {
		t.Error("repeat delete should report false")
	}
}

func TestMigrateToCold(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, true)

	entry, _ := fx.eng.Store(ctx, StoreParams{Content: "archive me"})

	if err := fx.eng.MigrateToCold(ctx, entry.ID); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if got, _ := fx.hot.Retrieve(ctx, entry.ID); got != nil {
		t.Error("migrated entry still in hot tier")
	}
	got, _ := fx.cold.Retrieve(ctx, entry.ID)
	if got == nil {
		t.Fatal("migrated entry missing from cold tier")
	}
	if got.StorageTier != model.TierCold {
		t.Errorf("migrated copy must be cold, got %s", got.StorageTier)
	}
}

func TestMigrateMissingEntry(t *testing.T) {
	fx := newFixture(t, true)

	err := fx.eng.MigrateToCold(context.Background(), "no-such-id")
	if err == nil {
		t.Fatal("migrating a missing id must fail")
	}
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound in chain, got %v", err)
	}
}

func TestMigrateWithoutCold(t *testing.T) {
	fx := newFixture(t, false)

	entry, _ := fx.eng.Store(context.Background(), StoreParams{Content: "stuck hot"})
	err := fx.eng.MigrateToCold(context.Background(), entry.ID)
	if !errors.Is(err, model.ErrColdUnavailable) {
		t.Errorf("expected ErrColdUnavailable, got %v", err)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, true)

	fx.eng.Store(ctx, StoreParams{Content: "plain"})
	fx.eng.Store(ctx, StoreParams{Content: "ssn 123-45-6789"})
	fx.eng.Store(ctx, StoreParams{Content: strings.Repeat("q", 150)})

	st, err := fx.eng.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalEntries != 3 {
		t.Errorf("expected 3 total, got %d", st.TotalEntries)
	}
	if st.TierDistribution[model.TierHot] != 2 || st.TierDistribution[model.TierCold] != 1 {
		t.Errorf("tier distribution: %v", st.TierDistribution)
	}
	if st.PatternMatchRate <= 0 || st.PatternMatchRate >= 1 {
		t.Errorf("one of three stores redacted, rate %f", st.PatternMatchRate)
	}
	if st.AvgProcessingMS < 0 {
		t.Errorf("negative avg processing time: %f", st.AvgProcessingMS)
	}
}

func TestGDPRErasureEndToEnd(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, true)

	entry, err := fx.eng.Store(ctx, StoreParams{Content: "customer complaint thread"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	sid := entry.Metadata[model.MetaDataSubject].(string)

	req, err := fx.eng.CreateGDPRRequest(sid, model.RequestErasure)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	done, err := fx.eng.ProcessGDPRRequest(ctx, req.RequestID)
	if err != nil {
		t.Fatalf("process request: %v", err)
	}
	if done.Status != model.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", done.Status, done.Error)
	}

	got, _ := fx.eng.Retrieve(ctx, entry.ID)
	if got == nil {
		t.Fatal("erasure must mark, not delete")
	}
	if got.Metadata[model.MetaErasureRequested] != true {
		t.Error("entry not marked for erasure")
	}
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, true)

	fx.eng.Store(ctx, StoreParams{Content: "survives cleanup"})
	if err := fx.eng.Cleanup(ctx); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	st, _ := fx.eng.Stats(ctx)
	if st.TotalEntries != 1 {
		t.Errorf("cleanup must not drop entries, got %d", st.TotalEntries)
	}
}

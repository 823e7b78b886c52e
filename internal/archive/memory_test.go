package archive

import (
	"context"
	"testing"
	"time"

	"harmonia/internal/score"
	"harmonia/internal/toggle"
	"harmonia/internal/variant"
)

func TestMemoryStoreRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	run := RunRecord{
		VersionedRecord: CurrentVersion(),
		ID:              "run-1",
		StartedAt:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		FinishedAt:      time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC),
		Seed:            7,
		Ticks:           600,
		FinalScore:      0.42,
		AggregateScore:  0.61,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}

	got, ok, err := store.GetRun(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if got.FinalScore != run.FinalScore || got.Seed != run.Seed {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing run: ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		run := RunRecord{VersionedRecord: CurrentVersion(), ID: id, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "new" || runs[2].ID != "old" {
		t.Fatalf("unexpected order: %+v", runs)
	}
}

func TestMemoryStoreInitPreservesRecordsResetWipes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	run := RunRecord{VersionedRecord: CurrentVersion(), ID: "run-1"}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}

	if err := store.Init(ctx); err != nil {
		t.Fatalf("second init: %v", err)
	}
	if _, ok, err := store.GetRun(ctx, "run-1"); err != nil || !ok {
		t.Fatalf("run lost across init: ok=%v err=%v", ok, err)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, ok, err := store.GetRun(ctx, "run-1"); err != nil || ok {
		t.Fatalf("run survived reset: ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreHistoryIsCopied(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	entries := []score.Entry{{Final: 0.5, Raw: 0.6}}
	if err := store.SaveScoreHistory(ctx, "run-1", entries); err != nil {
		t.Fatalf("save history: %v", err)
	}
	entries[0].Final = 0.9

	got, ok, err := store.GetScoreHistory(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get history: ok=%v err=%v", ok, err)
	}
	if got[0].Final != 0.5 {
		t.Fatalf("stored entry mutated through caller slice: %g", got[0].Final)
	}
}

func TestMemoryStoreAuditAndLineage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	events := []toggle.Event{{Kind: toggle.KindStop, Action: toggle.ActionActivated, Value: 0.85}}
	if err := store.SaveFlagAudit(ctx, "run-1", events); err != nil {
		t.Fatalf("save audit: %v", err)
	}
	gotEvents, ok, err := store.GetFlagAudit(ctx, "run-1")
	if err != nil || !ok || len(gotEvents) != 1 || gotEvents[0].Kind != toggle.KindStop {
		t.Fatalf("audit round trip: ok=%v err=%v events=%+v", ok, err, gotEvents)
	}

	agents := []variant.Agent{{ID: "a-1", Generation: 1, Weight: 0.5}}
	if err := store.SaveLineage(ctx, "run-1", agents); err != nil {
		t.Fatalf("save lineage: %v", err)
	}
	gotAgents, ok, err := store.GetLineage(ctx, "run-1")
	if err != nil || !ok || len(gotAgents) != 1 || gotAgents[0].ID != "a-1" {
		t.Fatalf("lineage round trip: ok=%v err=%v agents=%+v", ok, err, gotAgents)
	}
}

package history_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"memsweep/internal/history"
	"memsweep/internal/logging"
	"memsweep/internal/scheduler"
	"memsweep/internal/testsupport"
)

func outcomeAt(id string, started time.Time, freed int64) scheduler.Outcome {
	return scheduler.Outcome{
		ID:          id,
		Trigger:     scheduler.TriggerInterval,
		StartedAt:   started,
		Duration:    1500 * time.Millisecond,
		BytesBefore: 1000 + freed,
		BytesAfter:  1000,
		FreedBytes:  freed,
		Actions:     []string{"flush-modified-pages"},
	}
}

func TestRecordAndRecent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	first := outcomeAt("a", base, 100)
	second := outcomeAt("b", base.Add(500*time.Millisecond), 200)
	second.Failures = []scheduler.ActionFailure{{Capability: "flush-standby-list", Error: "permission denied"}}
	third := outcomeAt("c", base.Add(time.Second), -50)
	for _, o := range []scheduler.Outcome{second, first, third} {
		if err := store.Record(ctx, o); err != nil {
			t.Fatalf("Record(%s): %v", o.ID, err)
		}
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "c" || recent[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", recent)
	}
	got := recent[1]
	if got.FreedBytes != 200 || got.Duration != 1500*time.Millisecond || !got.StartedAt.Equal(second.StartedAt) {
		t.Fatalf("unexpected stored pass: %+v", got)
	}
	if !slices.Equal(got.Actions, second.Actions) || len(got.Failures) != 1 || got.Failures[0].Capability != "flush-standby-list" {
		t.Fatalf("unexpected actions/failures: %+v", got)
	}

	totals, err := store.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if totals.Passes != 3 || totals.FreedBytes != 250 || totals.Failures != 1 || !totals.Since.Equal(base) {
		t.Fatalf("unexpected totals: %+v", totals)
	}
}

func TestPruneRemovesOldPasses(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	now := time.Now().UTC()
	for i, age := range []time.Duration{100 * 24 * time.Hour, 10 * 24 * time.Hour, time.Hour} {
		if err := store.Record(ctx, outcomeAt(string(rune('a'+i)), now.Add(-age), 1)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	removed, err := store.Prune(ctx, now.AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned pass, got %d", removed)
	}
	all, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 passes left, got %d", len(all))
	}
}

func TestEmptyTotals(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	totals, err := store.Totals(context.Background())
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if totals.Passes != 0 || totals.FreedBytes != 0 || !totals.Since.IsZero() {
		t.Fatalf("unexpected empty totals: %+v", totals)
	}
}

func TestRecorderWritesOutcomes(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	recorder := history.NewRecorder(store, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	recorder.ReportOutcome(ctx, outcomeAt("x", time.Now(), 42))

	recent, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].FreedBytes != 42 {
		t.Fatalf("expected recorded outcome, got %+v", recent)
	}
}

func TestOpenRejectsNewerHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := history.OpenPath(path); !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestReopenKeepsRecordedPasses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	ctx := context.Background()
	if err := store.Record(ctx, outcomeAt("pass-1", time.Now(), 10)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("read user_version: %v", err)
	}
	db.Close()
	if version != 1 {
		t.Fatalf("expected history version 1, got %d", version)
	}

	reopened, err := history.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	passes, err := reopened.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(passes) != 1 || passes[0].ID != "pass-1" {
		t.Fatalf("expected pass kept across reopen, got %+v", passes)
	}
}

package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/nao1215/sitecrawl/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *HistoryDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database file", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "nested", "dir")
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close()

		if db.Path() != filepath.Join(dir, FileName) {
			t.Errorf("Path() = %q", db.Path())
		}
		if _, err := os.Stat(db.Path()); err != nil {
			t.Errorf("database file missing: %v", err)
		}
	})

	t.Run("missing database without create", func(t *testing.T) {
		t.Parallel()

		_, err := Open(t.TempDir(), Options{CreateIfNotExists: false})
		if err == nil {
			t.Fatal("expected error for missing database")
		}
	})

	t.Run("reopen existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		ctx := context.Background()
		if _, err := db.BeginRun(ctx, "https://example.com/", time.Now()); err != nil {
			t.Fatalf("BeginRun() error = %v", err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false})
		if err != nil {
			t.Fatalf("reopen error = %v", err)
		}
		defer db.Close()

		runs, err := db.ListRuns(ctx, "", 0)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if len(runs) != 1 {
			t.Errorf("len(runs) = %d, want 1", len(runs))
		}
	})
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	started := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	id, err := db.BeginRun(ctx, "https://example.com/", started)
	if err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}

	run, err := db.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Done() {
		t.Error("run should not be done before FinishRun")
	}
	if !run.Started.Equal(started) {
		t.Errorf("Started = %v, want %v", run.Started, started)
	}

	pages := []model.PageRecord{
		model.NewPageRecord("https://example.com/", "Home", "welcome", 0, ""),
		model.NewPageRecord("https://example.com/a", "A", "page a", 1, "https://example.com/"),
	}
	for _, p := range pages {
		if err := db.SavePage(ctx, id, p); err != nil {
			t.Fatalf("SavePage() error = %v", err)
		}
	}

	stats := model.CrawlStats{FetchedOK: 2, Enqueued: 1, Duplicates: 3}
	finished := started.Add(time.Minute)
	if err := db.FinishRun(ctx, id, stats, finished, ""); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	run, err = db.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if !run.Done() {
		t.Error("run should be done")
	}
	if run.Stats != stats {
		t.Errorf("Stats = %+v, want %+v", run.Stats, stats)
	}
	if run.Pages != 2 {
		t.Errorf("Pages = %d, want 2", run.Pages)
	}
	if run.Error != "" {
		t.Errorf("Error = %q, want empty", run.Error)
	}

	stored, err := db.Pages(ctx, id)
	if err != nil {
		t.Fatalf("Pages() error = %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("len(stored) = %d, want 2", len(stored))
	}
	if stored[0].DiscoveredFrom != "" {
		t.Errorf("seed DiscoveredFrom = %q, want empty", stored[0].DiscoveredFrom)
	}
	if stored[1].DiscoveredFrom != "https://example.com/" {
		t.Errorf("DiscoveredFrom = %q", stored[1].DiscoveredFrom)
	}
	if stored[1].TextLen != len("page a") {
		t.Errorf("TextLen = %d", stored[1].TextLen)
	}
}

func TestSavePageReplaces(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	id, err := db.BeginRun(ctx, "https://example.com/", time.Now())
	if err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}

	first := model.NewPageRecord("https://example.com/", "Old", "old", 0, "")
	second := model.NewPageRecord("https://example.com/", "New", "new", 0, "")
	if err := db.SavePage(ctx, id, first); err != nil {
		t.Fatal(err)
	}
	if err := db.SavePage(ctx, id, second); err != nil {
		t.Fatal(err)
	}

	stored, err := db.Pages(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 {
		t.Fatalf("len(stored) = %d, want 1", len(stored))
	}
	if stored[0].Title != "New" {
		t.Errorf("Title = %q, want New", stored[0].Title)
	}
}

func TestRunNotFound(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.GetRun(ctx, 42); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() error = %v, want ErrRunNotFound", err)
	}
	if err := db.FinishRun(ctx, 42, model.CrawlStats{}, time.Now(), ""); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("FinishRun() error = %v, want ErrRunNotFound", err)
	}
	if _, err := db.Diff(ctx, 1, 2); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Diff() error = %v, want ErrRunNotFound", err)
	}
}

func TestListRunsAndSeeds(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	seeds := []string{"https://b.example/", "https://a.example/", "https://b.example/"}
	ids := make([]int64, 0, len(seeds))
	for _, seed := range seeds {
		id, err := db.BeginRun(ctx, seed, time.Now())
		if err != nil {
			t.Fatalf("BeginRun() error = %v", err)
		}
		ids = append(ids, id)
	}

	all, err := db.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}
	if all[0].ID != ids[2] {
		t.Errorf("newest run first: got %d, want %d", all[0].ID, ids[2])
	}

	bRuns, err := db.ListRuns(ctx, "https://b.example/", 1)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(bRuns) != 1 || bRuns[0].ID != ids[2] {
		t.Errorf("ListRuns(seed, 1) = %+v", bRuns)
	}

	gotSeeds, err := db.ListSeeds(ctx)
	if err != nil {
		t.Fatalf("ListSeeds() error = %v", err)
	}
	want := []string{"https://a.example/", "https://b.example/"}
	if !slices.Equal(gotSeeds, want) {
		t.Errorf("ListSeeds() = %v, want %v", gotSeeds, want)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	seed := "https://example.com/"

	save := func(texts map[string]string) int64 {
		t.Helper()
		id, err := db.BeginRun(ctx, seed, time.Now())
		if err != nil {
			t.Fatalf("BeginRun() error = %v", err)
		}
		for url, text := range texts {
			if err := db.SavePage(ctx, id, model.NewPageRecord(url, "", text, 0, "")); err != nil {
				t.Fatalf("SavePage() error = %v", err)
			}
		}
		return id
	}

	if d, err := db.DiffLatest(ctx, seed); err != nil || d != nil {
		t.Fatalf("DiffLatest() with no runs = %v, %v", d, err)
	}

	oldID := save(map[string]string{
		seed + "same":   "unchanged",
		seed + "edit":   "before",
		seed + "gone":   "removed",
		seed + "gone-2": "removed too",
	})
	newID := save(map[string]string{
		seed + "same": "unchanged",
		seed + "edit": "after",
		seed + "new":  "added",
	})

	diff, err := db.Diff(ctx, oldID, newID)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if !slices.Equal(diff.Added, []string{seed + "new"}) {
		t.Errorf("Added = %v", diff.Added)
	}
	if !slices.Equal(diff.Removed, []string{seed + "gone", seed + "gone-2"}) {
		t.Errorf("Removed = %v", diff.Removed)
	}
	if !slices.Equal(diff.Changed, []string{seed + "edit"}) {
		t.Errorf("Changed = %v", diff.Changed)
	}
	if diff.Unchanged != 1 {
		t.Errorf("Unchanged = %d, want 1", diff.Unchanged)
	}
	if diff.Empty() {
		t.Error("Empty() = true, want false")
	}

	latest, err := db.DiffLatest(ctx, seed)
	if err != nil {
		t.Fatalf("DiffLatest() error = %v", err)
	}
	if latest == nil || latest.OldRun != oldID || latest.NewRun != newID {
		t.Errorf("DiffLatest() = %+v", latest)
	}

	same, err := db.Diff(ctx, newID, newID)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if !same.Empty() {
		t.Errorf("self diff not empty: %+v", same)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			name:  "RFC3339Nano",
			input: "2026-01-02T03:04:05.000000006Z",
			want:  time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC),
		},
		{
			name:  "RFC3339",
			input: "2026-01-02T03:04:05Z",
			want:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{
			name:  "SQLite datetime",
			input: "2026-01-02 03:04:05",
			want:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{
			name:  "invalid",
			input: "yesterday",
			want:  time.Time{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := parseTimestamp(tt.input); !got.Equal(tt.want) {
				t.Errorf("parseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

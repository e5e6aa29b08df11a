package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/nao1215/linkcheck/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *HistoryDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newRun(root string, startedAt time.Time, lines map[string][]string) *model.Run {
	report := model.NewLinkReport()
	for doc, docLines := range lines {
		report.Broken[doc] = append([]string(nil), docLines...)
	}
	return &model.Run{
		Root:         root,
		StartedAt:    startedAt,
		Duration:     250 * time.Millisecond,
		Documents:    3,
		References:   10,
		Ignored:      1,
		RemoteProbes: 4,
		Digest:       "abc123",
		Steps:        []string{"extract", "index"},
		Report:       report,
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, DBFileName)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if db.Path() != filepath.Join(dbDir, DBFileName) {
			t.Errorf("Path() = %q", db.Path())
		}
	})

	t.Run("missing database without create is an error", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "absent"), Options{CreateIfNotExists: false})
		if err == nil {
			t.Fatal("expected error for missing database")
		}
	})

	t.Run("reopens existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		run := newRun("site", time.Now(), nil)
		if err := db.SaveRun(context.Background(), run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
		db.Close()

		reopened, err := Open(dir, Options{CreateIfNotExists: false})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer reopened.Close()

		if _, err := reopened.GetRun(context.Background(), run.ID); err != nil {
			t.Errorf("expected saved run after reopen: %v", err)
		}
	})
}

func TestSaveAndGetRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	startedAt := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)
	run := newRun("public", startedAt, map[string][]string{
		"a.html": {"x.png (not found)", "https://example.com/ (HTTP 404)"},
		"b.html": {"y.css (not found)"},
	})

	if err := db.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected SaveRun to assign an ID")
	}

	got, err := db.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if !got.StartedAt.Equal(startedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, startedAt)
	}
	if got.Root != "public" || got.Documents != 3 || got.References != 10 || got.Ignored != 1 || got.RemoteProbes != 4 {
		t.Errorf("unexpected summary %+v", got)
	}
	if got.Duration != 250*time.Millisecond || got.Digest != "abc123" {
		t.Errorf("unexpected duration or digest %+v", got)
	}
	if !slices.Equal(got.Steps, []string{"extract", "index"}) {
		t.Errorf("Steps = %v", got.Steps)
	}
	if got.Report.String() != run.Report.String() {
		t.Errorf("report mismatch\ngot:\n%s\nwant:\n%s", got.Report.String(), run.Report.String())
	}
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	_, err := db.GetRun(context.Background(), "does-not-exist")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestLatestRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := range 3 {
		run := newRun("site", base.Add(time.Duration(i)*time.Hour), map[string][]string{
			"a.html": {"x (not found)"},
		})
		if err := db.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
		ids = append(ids, run.ID)
	}
	if err := db.SaveRun(ctx, newRun("other", base, nil)); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	runs, err := db.LatestRuns(ctx, "site", 2)
	if err != nil {
		t.Fatalf("LatestRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Errorf("expected newest first, got %s, %s", runs[0].ID, runs[1].ID)
	}
	if runs[0].BrokenCount != 1 {
		t.Errorf("BrokenCount = %d, want 1", runs[0].BrokenCount)
	}

	all, err := db.LatestRuns(ctx, "site", 0)
	if err != nil {
		t.Fatalf("LatestRuns failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 runs without limit, got %d", len(all))
	}

	roots, err := db.ListRoots(ctx)
	if err != nil {
		t.Fatalf("ListRoots failed: %v", err)
	}
	if !slices.Equal(roots, []string{"other", "site"}) {
		t.Errorf("ListRoots() = %v", roots)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	older := newRun("site", time.Now(), map[string][]string{
		"a.html": {"fixed.png (not found)", "still.png (not found)"},
		"b.html": {"https://gone.example/ (HTTP 404)"},
	})
	newer := newRun("site", time.Now(), map[string][]string{
		"a.html": {"still.png (not found)", "new.png (not found)"},
		"c.html": {"https://gone.example/ (HTTP 404)"},
	})

	diff := Diff(older, newer)
	if diff.Unchanged() {
		t.Fatal("expected changes")
	}

	wantIntroduced := "a.html\n  new.png (not found)\n\nc.html\n  https://gone.example/ (HTTP 404)"
	if got := diff.Introduced.String(); got != wantIntroduced {
		t.Errorf("Introduced:\n%s\nwant:\n%s", got, wantIntroduced)
	}
	wantFixed := "a.html\n  fixed.png (not found)\n\nb.html\n  https://gone.example/ (HTTP 404)"
	if got := diff.Fixed.String(); got != wantFixed {
		t.Errorf("Fixed:\n%s\nwant:\n%s", got, wantFixed)
	}

	if !Diff(newer, newer).Unchanged() {
		t.Error("expected identical runs to be unchanged")
	}
}

// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package sink

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tomtom215/gaingest/internal/batch"
	"github.com/tomtom215/gaingest/internal/staging"
)

func writePrepared(t *testing.T, dir string, sessions, hits *batch.Batch) (string, string) {
	t.Helper()
	sp := filepath.Join(dir, "ga_sessions_prep.csv")
	hp := filepath.Join(dir, "ga_hits_prep.csv")
	if err := staging.WriteCSV(sp, sessions); err != nil {
		t.Fatalf("WriteCSV(sessions) error = %v", err)
	}
	if err := staging.WriteCSV(hp, hits); err != nil {
		t.Fatalf("WriteCSV(hits) error = %v", err)
	}
	return sp, hp
}

func TestBootstrap(t *testing.T) {
	t.Parallel()

	s := setupTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	sp, hp := writePrepared(t, dir,
		sessionBatch("s1", "s2"),
		hitBatch(hitKey{"s1", 1}, hitKey{"s1", 2}, hitKey{"s2", 1}, hitKey{"orphan", 1}),
	)

	report, err := s.Bootstrap(ctx, sp, hp)
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if report.SessionsRead != 2 || report.SessionsInserted != 2 {
		t.Errorf("sessions read/inserted = %d/%d, want 2/2", report.SessionsRead, report.SessionsInserted)
	}
	if report.HitsRead != 4 || report.HitsInserted != 3 {
		t.Errorf("hits read/inserted = %d/%d, want 4/3", report.HitsRead, report.HitsInserted)
	}
	if report.OrphansDeleted != 1 {
		t.Errorf("OrphansDeleted = %d, want 1", report.OrphansDeleted)
	}
	if len(report.RemovedFiles) != 2 {
		t.Errorf("RemovedFiles = %v, want both CSVs", report.RemovedFiles)
	}
	for _, p := range []string{sp, hp} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s still exists after bootstrap", p)
		}
	}

	orphans, err := s.CountOrphanHits(ctx)
	if err != nil {
		t.Fatalf("CountOrphanHits() error = %v", err)
	}
	if orphans != 0 {
		t.Errorf("CountOrphanHits() = %d, want 0", orphans)
	}
	if n := count(t, s, batch.TableHits); n != 3 {
		t.Errorf("db_hits has %d rows, want 3", n)
	}
}

func TestBootstrap_Rerun(t *testing.T) {
	t.Parallel()

	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		sp, hp := writePrepared(t, t.TempDir(), sessionBatch("s1"), hitBatch(hitKey{"s1", 1}))
		if _, err := s.Bootstrap(ctx, sp, hp); err != nil {
			t.Fatalf("Bootstrap() pass %d error = %v", i, err)
		}
	}
	if count(t, s, batch.TableSessions) != 1 || count(t, s, batch.TableHits) != 1 {
		t.Error("rerunning bootstrap duplicated rows")
	}
}

func TestBootstrap_HitsForStoredSessions(t *testing.T) {
	t.Parallel()

	s := setupTestStore(t)
	ctx := context.Background()
	s.Upsert(ctx, batch.TableSessions, sessionBatch("earlier"))

	sp, hp := writePrepared(t, t.TempDir(), sessionBatch("s1"), hitBatch(hitKey{"earlier", 1}, hitKey{"s1", 1}))
	report, err := s.Bootstrap(ctx, sp, hp)
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if report.HitsInserted != 2 || report.OrphansDeleted != 0 {
		t.Errorf("report = %+v, want 2 hits and no orphans", report)
	}
}

func TestBootstrap_HeaderMismatch(t *testing.T) {
	t.Parallel()

	s := setupTestStore(t)
	dir := t.TempDir()
	sp, hp := writePrepared(t, dir, sessionBatch("s1"), hitBatch(hitKey{"s1", 1}))

	reordered := hitBatch(hitKey{"s1", 1}).Project([]string{
		"hit_date", "session_id", "hit_number", "hit_page_path", "event_category", "event_action",
	})
	if err := staging.WriteCSV(hp, reordered); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	if _, err := s.Bootstrap(context.Background(), sp, hp); err == nil {
		t.Fatal("Bootstrap() with reordered header expected error")
	}
	if _, err := os.Stat(sp); err != nil {
		t.Errorf("prepared file removed after failed bootstrap: %v", err)
	}
}

func TestBootstrap_MissingFile(t *testing.T) {
	t.Parallel()

	s := setupTestStore(t)
	dir := t.TempDir()
	if _, err := s.Bootstrap(context.Background(), filepath.Join(dir, "a.csv"), filepath.Join(dir, "b.csv")); err == nil {
		t.Error("Bootstrap() with missing files expected error")
	}
}

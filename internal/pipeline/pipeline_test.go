// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/tomtom215/gaingest/internal/normalize"
	"github.com/tomtom215/gaingest/internal/sink"
)

func TestPreprocess_StagesNormalizedArtifacts(t *testing.T) {
	area := newArea(t)
	writeRaw(t, area.IncomingDir(), "ga_sessions_2022-01-02.json", sessionsJSON("2022-01-02", "A", "B", "B"))
	writeRaw(t, area.IncomingDir(), "ga_hits_2022-01-01.json", hitsJSON("2022-01-01", "A:1"))

	p := New(area, newFakeStore(), nil, Options{})
	report, err := p.Preprocess(context.Background())
	if err != nil {
		t.Fatalf("Preprocess() error = %v", err)
	}
	if report.Staged != 2 || report.Empty != 0 || report.Pending != 0 {
		t.Fatalf("report = %+v, want 2 staged", report)
	}
	if got := report.Artifacts[0].Name; got != "ga_hits_2022-01-01.json" {
		t.Errorf("first artifact = %s, want the earlier date token first", got)
	}
	if got := report.Artifacts[1].Rows; got != 2 {
		t.Errorf("session rows = %d, want 2 after dedup", got)
	}
	for _, name := range []string{"prep_ga_sessions_2022-01-02.csv", "prep_ga_hits_2022-01-01.csv"} {
		if !exists(filepath.Join(area.StagingDir(), name)) {
			t.Errorf("%s not staged", name)
		}
	}
	if !exists(filepath.Join(area.IncomingDir(), "ga_sessions_2022-01-02.json")) {
		t.Error("raw file removed by preprocess")
	}
}

func TestPreprocess_EmptyAndUnreadable(t *testing.T) {
	tests := []struct {
		name        string
		file        string
		content     string
		removeEmpty bool
		wantState   ArtifactState
		wantRawKept bool
		wantError   bool
	}{
		{"empty export", "ga_sessions_2022-01-01.json", `{"2022-01-01":[]}`, false, StateEmpty, true, false},
		{"empty export removed", "ga_sessions_2022-01-01.json", `{"2022-01-01":[]}`, true, StateEmpty, false, false},
		{"malformed json", "ga_hits_2022-01-01.json", `{"2022-01-01":[`, true, StateEmpty, true, true},
		{"bad visit time", "ga_sessions_2022-01-01.json", sessionsJSON("2022-01-01", "A|25:99:99"), false, StatePending, true, true},
		{"every row invalid", "ga_hits_2022-01-01.json", `{"d":[{"session_id":"A"}]}`, false, StateEmpty, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			area := newArea(t)
			raw := writeRaw(t, area.IncomingDir(), tt.file, tt.content)

			p := New(area, newFakeStore(), nil, Options{RemoveEmpty: tt.removeEmpty})
			report, err := p.Preprocess(context.Background())
			if err != nil {
				t.Fatalf("Preprocess() error = %v", err)
			}
			if len(report.Artifacts) != 1 {
				t.Fatalf("artifacts = %d, want 1", len(report.Artifacts))
			}
			st := report.Artifacts[0]
			if st.State != tt.wantState {
				t.Errorf("state = %s, want %s", st.State, tt.wantState)
			}
			if (st.Error != "") != tt.wantError {
				t.Errorf("error = %q, wantError %v", st.Error, tt.wantError)
			}
			if exists(raw) != tt.wantRawKept {
				t.Errorf("raw kept = %v, want %v", exists(raw), tt.wantRawKept)
			}
			staged, err := area.ListStaged()
			if err != nil {
				t.Fatalf("ListStaged() error = %v", err)
			}
			if len(staged) != 0 {
				t.Errorf("staged %d artifacts, want none", len(staged))
			}
		})
	}
}

func TestLoad_SessionsBeforeHits(t *testing.T) {
	area := newArea(t)
	// prep_ga_hits_* sorts before prep_ga_sessions_* for the same date.
	writeRaw(t, area.IncomingDir(), "ga_hits_2022-01-01.json", hitsJSON("2022-01-01", "A:1", "A:2", "Z:1"))
	writeRaw(t, area.IncomingDir(), "ga_sessions_2022-01-01.json", sessionsJSON("2022-01-01", "A"))

	store := newFakeStore()
	p := New(area, store, nil, Options{})
	ctx := context.Background()
	if _, err := p.Preprocess(ctx); err != nil {
		t.Fatalf("Preprocess() error = %v", err)
	}
	report, err := p.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []string{"ensure", "upsert db_sessions", "known", "upsert db_hits"}
	if got := store.callLog(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if report.KnownSessions != 1 {
		t.Errorf("KnownSessions = %d, want 1", report.KnownSessions)
	}
	hits := report.Outcomes[1]
	if hits.Inserted != 2 || hits.Filtered != 1 {
		t.Errorf("hit outcome = %+v, want 2 inserted and 1 filtered", hits)
	}
	if report.Inserted() != 3 {
		t.Errorf("Inserted() = %d, want 3", report.Inserted())
	}
	for _, a := range report.Artifacts {
		if a.State != StateDeleted {
			t.Errorf("%s state = %s, want deleted", a.Name, a.State)
		}
	}
	staged, _ := area.ListStaged()
	if len(staged) != 0 {
		t.Errorf("%d staged artifacts left", len(staged))
	}
}

func TestLoad_FailedBatchKeepsArtifact(t *testing.T) {
	area := newArea(t)
	writeRaw(t, area.IncomingDir(), "ga_sessions_2022-01-01.json", sessionsJSON("2022-01-01", "A"))
	writeRaw(t, area.IncomingDir(), "ga_hits_2022-01-01.json", hitsJSON("2022-01-01", "A:1"))

	store := newFakeStore()
	store.upsertErr["db_hits"] = &sink.ConstraintViolation{Table: "db_hits", Err: errors.New("fk")}
	p := New(area, store, nil, Options{RetireRaw: true})
	ctx := context.Background()
	if _, err := p.Preprocess(ctx); err != nil {
		t.Fatalf("Preprocess() error = %v", err)
	}
	report, err := p.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v, a rolled back batch must not fail the task", err)
	}
	if report.FailedBatches() != 1 {
		t.Errorf("FailedBatches() = %d, want 1", report.FailedBatches())
	}
	if !exists(filepath.Join(area.StagingDir(), "prep_ga_hits_2022-01-01.csv")) {
		t.Error("failed batch artifact was removed")
	}
	if !exists(filepath.Join(area.IncomingDir(), "ga_hits_2022-01-01.json")) {
		t.Error("raw artifact of failed batch was retired")
	}
	if exists(filepath.Join(area.IncomingDir(), "ga_sessions_2022-01-01.json")) {
		t.Error("raw artifact of loaded batch was not retired")
	}
}

func TestLoad_ConnectionErrorAborts(t *testing.T) {
	area := newArea(t)
	writeRaw(t, area.IncomingDir(), "ga_sessions_2022-01-01.json", sessionsJSON("2022-01-01", "A"))
	writeRaw(t, area.IncomingDir(), "ga_hits_2022-01-01.json", hitsJSON("2022-01-01", "A:1"))

	store := newFakeStore()
	store.upsertErr["db_sessions"] = &sink.ConnectionError{Dialect: "postgres", Err: errors.New("connection refused")}
	p := New(area, store, nil, Options{})
	ctx := context.Background()
	if _, err := p.Preprocess(ctx); err != nil {
		t.Fatalf("Preprocess() error = %v", err)
	}
	_, err := p.Load(ctx)
	var ce *sink.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("Load() error = %v, want ConnectionError", err)
	}
	for _, c := range store.callLog() {
		if c == "upsert db_hits" {
			t.Error("hits loaded after a connection failure")
		}
	}
}

func TestLoad_StagedEmptyRemoved(t *testing.T) {
	area := newArea(t)
	path := writeRaw(t, area.StagingDir(), "prep_ga_hits_2022-01-01.csv", "session_id,hit_date,hit_number\n")

	p := New(area, newFakeStore(), nil, Options{})
	report, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if exists(path) {
		t.Error("empty staged artifact kept")
	}
	if len(report.Artifacts) != 1 || report.Artifacts[0].State != StateDeleted {
		t.Errorf("artifacts = %+v, want one deleted", report.Artifacts)
	}
	if len(report.Outcomes) != 0 {
		t.Errorf("outcomes = %d, want 0", len(report.Outcomes))
	}
}

func TestLoad_UnreadableStagedKept(t *testing.T) {
	area := newArea(t)
	path := writeRaw(t, area.StagingDir(), "prep_ga_sessions_2022-01-01.csv", "session_id,session_id\nA,A\n")

	p := New(area, newFakeStore(), nil, Options{})
	report, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !exists(path) {
		t.Error("unreadable staged artifact removed")
	}
	if report.FailedBatches() != 1 {
		t.Errorf("FailedBatches() = %d, want 1", report.FailedBatches())
	}
}

func TestRun_PartiallyRejected(t *testing.T) {
	area := newArea(t)
	writeRaw(t, area.IncomingDir(), "ga_sessions_2022-01-01.json", sessionsJSON("2022-01-01", "A", "B|25:99:99"))

	rec := &memRecorder{}
	p := New(area, newFakeStore(), rec, Options{Policy: normalize.PolicyRow})
	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Load.Outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(report.Load.Outcomes))
	}
	out := report.Load.Outcomes[0]
	if out.Kind != sink.OutcomePartiallyRejected || out.Rejected != 1 || out.Inserted != 1 {
		t.Errorf("outcome = %+v, want partially rejected with 1 rejected and 1 inserted", out)
	}
	if len(rec.reports) != 1 || rec.reports[0].ID != report.ID {
		t.Errorf("recorder holds %d reports, want the run report", len(rec.reports))
	}
}

func TestLoad_CountsRowsDroppedAtLoad(t *testing.T) {
	area := newArea(t)
	path := writeRaw(t, area.StagingDir(), "prep_ga_sessions_2022-01-01.csv",
		"session_id,client_id,visit_date,visit_time,visit_number\n"+
			"A,,2022-01-01,14:36:32,1\n"+
			"B,c-B,2022-01-01,14:36:32,1\n")

	p := New(area, newFakeStore(), nil, Options{})
	report, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(report.Outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(report.Outcomes))
	}
	out := report.Outcomes[0]
	if out.Kind != sink.OutcomePartiallyRejected || out.Inserted != 1 || out.Rejected != 1 {
		t.Errorf("outcome = %+v, want partially rejected with 1 inserted and 1 rejected", out)
	}
	if exists(path) {
		t.Error("staged artifact kept after commit")
	}
}

func TestRun_Idempotent(t *testing.T) {
	area := newArea(t)
	store := newFakeStore()
	p := New(area, store, nil, Options{RetireRaw: true})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		writeRaw(t, area.IncomingDir(), "ga_sessions_2022-01-01.json", sessionsJSON("2022-01-01", "A", "B"))
		writeRaw(t, area.IncomingDir(), "ga_hits_2022-01-01.json", hitsJSON("2022-01-01", "A:1", "B:1"))
		report, err := p.Run(ctx)
		if err != nil {
			t.Fatalf("run %d: Run() error = %v", i, err)
		}
		wantInserted, wantSkipped := 4, 0
		if i == 1 {
			wantInserted, wantSkipped = 0, 4
		}
		if report.Load.Inserted() != wantInserted || report.Load.Skipped() != wantSkipped {
			t.Errorf("run %d: inserted %d skipped %d, want %d and %d", i,
				report.Load.Inserted(), report.Load.Skipped(), wantInserted, wantSkipped)
		}
	}
	if len(store.sessions) != 2 || len(store.hits) != 2 {
		t.Errorf("stored %d sessions and %d hits, want 2 and 2", len(store.sessions), len(store.hits))
	}
}

func TestRun_RetriesFailedTask(t *testing.T) {
	area := newArea(t)
	store := newFakeStore()
	store.ensureErrs = []error{&sink.ConnectionError{Dialect: "postgres", Err: errors.New("reset")}}

	p := New(area, store, nil, Options{Retries: 1, RetryDelay: time.Millisecond})
	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.PreprocessAttempts != 1 || report.LoadAttempts != 2 {
		t.Errorf("attempts = %d/%d, want 1/2", report.PreprocessAttempts, report.LoadAttempts)
	}
	if report.Status != RunSucceeded {
		t.Errorf("status = %s, want succeeded", report.Status)
	}
}

func TestRun_FailsAfterRetries(t *testing.T) {
	area := newArea(t)
	store := newFakeStore()
	connErr := &sink.ConnectionError{Dialect: "postgres", Err: errors.New("down")}
	store.ensureErrs = []error{connErr, connErr}

	rec := &memRecorder{}
	p := New(area, store, rec, Options{Retries: 1, RetryDelay: time.Millisecond})
	report, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want failure")
	}
	if report.Status != RunFailed || report.Error == "" {
		t.Errorf("report = %+v, want failed with error", report)
	}
	if len(rec.reports) != 1 {
		t.Errorf("failed run not recorded")
	}
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	area := newArea(t)
	store := newFakeStore()
	store.entered = make(chan struct{})
	store.block = make(chan struct{})

	p := New(area, store, nil, Options{})
	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background())
		done <- err
	}()

	<-store.entered
	if !p.Running() {
		t.Error("Running() = false during a run")
	}
	if _, err := p.Run(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("second Run() error = %v, want ErrRunInProgress", err)
	}
	close(store.block)
	if err := <-done; err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if p.Running() {
		t.Error("Running() = true after the run finished")
	}
}

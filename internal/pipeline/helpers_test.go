// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/tomtom215/gaingest/internal/batch"
	"github.com/tomtom215/gaingest/internal/referential"
	"github.com/tomtom215/gaingest/internal/sink"
	"github.com/tomtom215/gaingest/internal/staging"
)

// fakeStore records the order of store calls and keeps stored keys in
// memory with first-write-wins semantics.
type fakeStore struct {
	mu       sync.Mutex
	calls    []string
	sessions map[string]bool
	hits     map[string]bool

	// ensureErrs is consumed one error per EnsureSchema call.
	ensureErrs []error
	// upsertErr fails every Upsert for the given table.
	upsertErr map[string]error
	// block, when set, is closed by the test to let EnsureSchema return.
	entered chan struct{}
	block   chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]bool{}, hits: map[string]bool{}, upsertErr: map[string]error{}}
}

func (f *fakeStore) EnsureSchema(ctx context.Context) error {
	f.mu.Lock()
	f.calls = append(f.calls, "ensure")
	var err error
	if len(f.ensureErrs) > 0 {
		err, f.ensureErrs = f.ensureErrs[0], f.ensureErrs[1:]
	}
	entered, block := f.entered, f.block
	f.mu.Unlock()

	if block != nil {
		close(entered)
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeStore) Upsert(_ context.Context, table string, b *batch.Batch) sink.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "upsert "+table)

	if err := f.upsertErr[table]; err != nil {
		return sink.Outcome{Kind: sink.OutcomeFailed, Table: table, Source: b.Source, Rows: b.Len(), Reason: err.Error(), Err: err}
	}
	out := sink.Outcome{Kind: sink.OutcomeInserted, Table: table, Source: b.Source, Rows: b.Len()}
	for r := range b.Rows {
		var key string
		stored := f.sessions
		if table == batch.TableHits {
			stored = f.hits
			key = b.Value(r, "session_id").String() + "/" + b.Value(r, "hit_number").String()
		} else {
			key = b.Value(r, "session_id").String()
		}
		if stored[key] {
			out.Skipped++
			continue
		}
		stored[key] = true
		out.Inserted++
	}
	return out
}

func (f *fakeStore) KnownSessionIDs(context.Context) (referential.SessionSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "known")
	ids := make([]string, 0, len(f.sessions))
	for id := range f.sessions {
		ids = append(ids, id)
	}
	return referential.NewSessionSet(ids), nil
}

func (f *fakeStore) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type memRecorder struct {
	mu      sync.Mutex
	reports []*RunReport
}

func (m *memRecorder) Record(_ context.Context, r *RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

func newArea(t *testing.T) *staging.Area {
	t.Helper()
	root := t.TempDir()
	a, err := staging.NewArea(filepath.Join(root, "incoming"), filepath.Join(root, "staging"))
	if err != nil {
		t.Fatalf("NewArea() error = %v", err)
	}
	return a
}

func writeRaw(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// sessionsJSON renders a raw sessions export. Each spec is "id" or
// "id|visit_time" to override the visit time.
func sessionsJSON(date string, specs ...string) string {
	recs := make([]string, 0, len(specs))
	for _, s := range specs {
		id, vt, _ := strings.Cut(s, "|")
		if vt == "" {
			vt = "14:36:32"
		}
		recs = append(recs, fmt.Sprintf(
			`{"session_id":%q,"client_id":"c-%s","visit_date":%q,"visit_time":%q,"visit_number":1,"utm_source":"google","device_model":null}`,
			id, id, date, vt))
	}
	return fmt.Sprintf(`{%q:[%s]}`, date, strings.Join(recs, ","))
}

// hitsJSON renders a raw hits export. Each spec is "session:hit_number".
func hitsJSON(date string, specs ...string) string {
	recs := make([]string, 0, len(specs))
	for _, s := range specs {
		id, num, _ := strings.Cut(s, ":")
		recs = append(recs, fmt.Sprintf(
			`{"session_id":%q,"hit_date":%q,"hit_time":1200,"hit_number":%s,"hit_type":"PAGE","hit_page_path":"/home","event_category":null,"event_action":"view"}`,
			id, date, num))
	}
	return fmt.Sprintf(`{%q:[%s]}`, date, strings.Join(recs, ","))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

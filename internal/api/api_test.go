// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/gaingest/internal/history"
	"github.com/tomtom215/gaingest/internal/pipeline"
)

type pingStub struct{ err error }

func (p pingStub) Ping(context.Context) error { return p.err }

type triggerStub struct{ accept bool }

func (t *triggerStub) Trigger() bool { return t.accept }

func newTestRouter(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	if deps.Runs == nil {
		deps.Runs = history.NewMemory(0)
	}
	return NewRouter(deps)
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, body
}

func seedRuns(t *testing.T, n int) *history.Memory {
	t.Helper()
	mem := history.NewMemory(0)
	base := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		r := &pipeline.RunReport{
			ID:         string(rune('a' + i)),
			StartedAt:  base.Add(time.Duration(i) * 24 * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*24*time.Hour + time.Minute),
			Status:     pipeline.RunSucceeded,
		}
		if err := mem.Record(context.Background(), r); err != nil {
			t.Fatal(err)
		}
	}
	return mem
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		store  Pinger
		status int
	}{
		{"no store", nil, http.StatusOK},
		{"store up", pingStub{}, http.StatusOK},
		{"store down", pingStub{err: errors.New("connection refused")}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(t, Deps{Store: tt.store})
			rec, body := do(t, h, http.MethodGet, "/healthz")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status != http.StatusOK && (body.Error == nil || body.Error.Code != "STORE_UNAVAILABLE") {
				t.Errorf("error body = %+v", body.Error)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter(t, Deps{})
	do(t, h, http.MethodGet, "/api/v1/runs")

	rec, _ := do(t, h, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `gaingest_api_requests_total{method="GET",route="/api/v1/runs"`) {
		t.Errorf("request counter missing from exposition:\n%s", rec.Body.String())
	}
}

func TestListRuns(t *testing.T) {
	h := newTestRouter(t, Deps{Runs: seedRuns(t, 5)})

	tests := []struct {
		name    string
		target  string
		status  int
		wantIDs []string
	}{
		{"default limit", "/api/v1/runs", http.StatusOK, []string{"e", "d", "c", "b", "a"}},
		{"explicit limit", "/api/v1/runs?limit=2", http.StatusOK, []string{"e", "d"}},
		{"not a number", "/api/v1/runs?limit=x", http.StatusBadRequest, nil},
		{"zero", "/api/v1/runs?limit=0", http.StatusBadRequest, nil},
		{"too large", "/api/v1/runs?limit=501", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.wantIDs == nil {
				return
			}
			var body struct {
				Data []pipeline.RunReport `json:"data"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if len(body.Data) != len(tt.wantIDs) {
				t.Fatalf("got %d runs, want %d", len(body.Data), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if body.Data[i].ID != id {
					t.Errorf("runs[%d].ID = %q, want %q", i, body.Data[i].ID, id)
				}
			}
		})
	}
}

func TestGetRun(t *testing.T) {
	h := newTestRouter(t, Deps{Runs: seedRuns(t, 2)})

	rec, _ := do(t, h, http.MethodGet, "/api/v1/runs/b")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Data pipeline.RunReport `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Data.ID != "b" || body.Data.Status != pipeline.RunSucceeded {
		t.Errorf("run = %+v", body.Data)
	}

	rec, resp := do(t, h, http.MethodGet, "/api/v1/runs/missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != "NOT_FOUND" {
		t.Errorf("error body = %+v", resp.Error)
	}
}

func TestTriggerRun(t *testing.T) {
	tests := []struct {
		name    string
		trigger *triggerStub
		status  int
	}{
		{"queued", &triggerStub{accept: true}, http.StatusAccepted},
		{"already pending", &triggerStub{accept: false}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(t, Deps{Trigger: tt.trigger})
			rec, _ := do(t, h, http.MethodPost, "/api/v1/runs")
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}

	t.Run("disabled without trigger", func(t *testing.T) {
		h := newTestRouter(t, Deps{})
		rec, _ := do(t, h, http.MethodPost, "/api/v1/runs")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})
}

func TestRateLimit(t *testing.T) {
	h := newTestRouter(t, Deps{RateLimit: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
		req.RemoteAddr = "192.0.2.10:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}

	// health is outside the limited group
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "192.0.2.10:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := newTestRouter(t, Deps{CORSOrigins: []string{"https://ops.example.com"}})

	tests := []struct {
		name   string
		origin string
		want   string
	}{
		{"allowed origin", "https://ops.example.com", "https://ops.example.com"},
		{"other origin", "https://evil.example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

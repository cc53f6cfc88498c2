// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

// Package history keeps recent run reports for the ops API. It is an audit
// trail only; the pipeline never consults it to decide what to load.
package history

import (
	"context"
	"errors"
	"sync"

	"github.com/tomtom215/gaingest/internal/pipeline"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Lister reads recorded runs, newest first.
type Lister interface {
	List(ctx context.Context, limit int) ([]*pipeline.RunReport, error)
	Get(ctx context.Context, id string) (*pipeline.RunReport, error)
}

// Memory keeps the most recent reports in process memory.
type Memory struct {
	mu      sync.RWMutex
	retain  int
	reports []*pipeline.RunReport // oldest first
}

// NewMemory creates a Memory that keeps at most retain reports. A retain of
// zero or less keeps everything.
func NewMemory(retain int) *Memory {
	return &Memory{retain: retain}
}

// Record implements pipeline.Recorder.
func (m *Memory) Record(_ context.Context, r *pipeline.RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	if m.retain > 0 && len(m.reports) > m.retain {
		m.reports = append([]*pipeline.RunReport(nil), m.reports[len(m.reports)-m.retain:]...)
	}
	return nil
}

// List returns up to limit reports, newest first. A limit of zero or less
// returns all of them.
func (m *Memory) List(_ context.Context, limit int) ([]*pipeline.RunReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*pipeline.RunReport, 0, len(m.reports))
	for i := len(m.reports) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.reports[i])
	}
	return out, nil
}

// Get returns the report with the given id.
func (m *Memory) Get(_ context.Context, id string) (*pipeline.RunReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.reports {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

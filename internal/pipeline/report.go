// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package pipeline

import (
	"time"

	"github.com/tomtom215/gaingest/internal/batch"
	"github.com/tomtom215/gaingest/internal/normalize"
	"github.com/tomtom215/gaingest/internal/sink"
)

// ArtifactState is the lifecycle position of one artifact.
type ArtifactState string

const (
	StatePending    ArtifactState = "pending"
	StateNormalized ArtifactState = "normalized"
	StateEmpty      ArtifactState = "empty"
	StateLoaded     ArtifactState = "loaded"
	StateDeleted    ArtifactState = "deleted"
)

// Terminal reports whether s is a final state.
func (s ArtifactState) Terminal() bool {
	return s == StateEmpty || s == StateDeleted
}

// ArtifactStatus tracks one artifact through a task.
type ArtifactStatus struct {
	Name      string            `json:"name"`
	Kind      batch.Kind        `json:"kind"`
	DateToken string            `json:"date_token"`
	State     ArtifactState     `json:"state"`
	Rows      int               `json:"rows"`
	Normalize *normalize.Report `json:"normalize,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// PreprocessReport is the result of one Preprocess pass.
type PreprocessReport struct {
	Artifacts []ArtifactStatus `json:"artifacts"`
	Staged    int              `json:"staged"`
	Empty     int              `json:"empty"`
	Pending   int              `json:"pending"`
}

// LoadReport is the result of one Load pass.
type LoadReport struct {
	Artifacts []ArtifactStatus `json:"artifacts"`
	Outcomes  []sink.Outcome   `json:"outcomes"`

	// KnownSessions is the size of the snapshot taken after the session phase.
	KnownSessions int `json:"known_sessions"`
}

// Inserted sums the newly inserted rows.
func (r *LoadReport) Inserted() int {
	n := 0
	for _, o := range r.Outcomes {
		n += o.Inserted
	}
	return n
}

// Skipped sums the rows skipped on existing keys.
func (r *LoadReport) Skipped() int {
	n := 0
	for _, o := range r.Outcomes {
		n += o.Skipped
	}
	return n
}

// FailedBatches counts rolled back batches.
func (r *LoadReport) FailedBatches() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Failed() {
			n++
		}
	}
	return n
}

// RunStatus is the final status of a run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RunReport aggregates one scheduled or manual run.
type RunReport struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     RunStatus `json:"status"`
	Error      string    `json:"error,omitempty"`

	PreprocessAttempts int `json:"preprocess_attempts"`
	LoadAttempts       int `json:"load_attempts"`

	Preprocess *PreprocessReport `json:"preprocess,omitempty"`
	Load       *LoadReport       `json:"load,omitempty"`
}

// Duration returns the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

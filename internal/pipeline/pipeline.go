// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

// Package pipeline runs the two ordered tasks of an ingestion run.
//
// Preprocess turns every pending raw artifact into a staged CSV. Load then
// stores every staged session batch, takes one snapshot of the stored
// session ids and stores the hit batches that reference them. Load never
// starts unless Preprocess succeeded, and each task is retried as a whole.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/gaingest/internal/batch"
	"github.com/tomtom215/gaingest/internal/logging"
	"github.com/tomtom215/gaingest/internal/metrics"
	"github.com/tomtom215/gaingest/internal/normalize"
	"github.com/tomtom215/gaingest/internal/referential"
	"github.com/tomtom215/gaingest/internal/sink"
	"github.com/tomtom215/gaingest/internal/staging"
)

// Store is the relational sink used by Load.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, table string, b *batch.Batch) sink.Outcome
	KnownSessionIDs(ctx context.Context) (referential.SessionSet, error)
}

// Recorder keeps finished run reports.
type Recorder interface {
	Record(ctx context.Context, report *RunReport) error
}

// Options configures a Pipeline.
type Options struct {
	Policy     normalize.CoercionPolicy
	Retries    int
	RetryDelay time.Duration

	// RetireRaw removes the raw artifact once its staged batch is loaded.
	RetireRaw bool
	// RemoveEmpty removes raw artifacts that hold no records.
	RemoveEmpty bool
}

// Pipeline orchestrates preprocess and load over a staging area and a store.
type Pipeline struct {
	area     *staging.Area
	store    Store
	recorder Recorder
	opts     Options

	normalizers map[batch.Kind]*normalize.Pipeline

	mu      sync.Mutex
	running bool
}

// New creates a Pipeline. recorder may be nil.
func New(area *staging.Area, store Store, recorder Recorder, opts Options) *Pipeline {
	no := normalize.Options{Policy: opts.Policy}
	return &Pipeline{
		area:     area,
		store:    store,
		recorder: recorder,
		opts:     opts,
		normalizers: map[batch.Kind]*normalize.Pipeline{
			batch.KindSessions: normalize.New(batch.KindSessions, no),
			batch.KindHits:     normalize.New(batch.KindHits, no),
		},
	}
}

// Running reports whether a run is active.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Run executes Preprocess then Load, each through RetryTask. The report is
// returned even when the run fails.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil, ErrRunInProgress
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	report := &RunReport{ID: logging.NewRunID(), StartedAt: time.Now().UTC()}
	ctx = logging.ContextWithRunID(ctx, report.ID)
	log := logging.Ctx(ctx)
	log.Info().Msg("Run started")

	attempts := p.opts.Retries + 1
	var err error

	report.PreprocessAttempts, err = RetryTask(ctx, "preprocess", attempts, p.opts.RetryDelay, func(ctx context.Context) error {
		r, err := p.Preprocess(ctx)
		report.Preprocess = r
		return err
	})
	if err == nil {
		rejected := rejectedByStem(report.Preprocess)
		report.LoadAttempts, err = RetryTask(ctx, "load", attempts, p.opts.RetryDelay, func(ctx context.Context) error {
			r, err := p.load(ctx, rejected)
			report.Load = r
			return err
		})
	}

	report.FinishedAt = time.Now().UTC()
	report.Status = RunSucceeded
	if err != nil {
		report.Status = RunFailed
		report.Error = err.Error()
	}
	p.observe(report)

	if p.recorder != nil {
		if recErr := p.recorder.Record(ctx, report); recErr != nil {
			log.Warn().Err(recErr).Msg("Failed to record run report")
		}
	}

	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	if report.Load != nil {
		ev = ev.Int("inserted", report.Load.Inserted()).
			Int("skipped", report.Load.Skipped()).
			Int("failed_batches", report.Load.FailedBatches())
	}
	ev.Str("status", string(report.Status)).Dur("duration", report.Duration()).Msg("Run finished")

	return report, err
}

func (p *Pipeline) observe(r *RunReport) {
	metrics.Runs.WithLabelValues(string(r.Status)).Inc()
	metrics.RunDuration.Observe(r.Duration().Seconds())
	if r.Status == RunSucceeded {
		metrics.LastSuccess.Set(float64(r.FinishedAt.Unix()))
	}
}

// rejectedByStem maps artifact stems to the rows normalization removed for
// missing required fields or coercion failures. Duplicates do not count.
func rejectedByStem(r *PreprocessReport) map[string]int {
	out := make(map[string]int)
	if r == nil {
		return out
	}
	for _, a := range r.Artifacts {
		if a.Normalize == nil {
			continue
		}
		n := a.Normalize.Rejected()
		for _, s := range a.Normalize.Stages {
			if s.Stage == "required_fields" {
				n += s.Dropped
			}
		}
		out[strings.TrimSuffix(a.Name, filepath.Ext(a.Name))] = n
	}
	return out
}

// isFatal reports whether err must abort the current task.
func isFatal(err error) bool {
	var ce *sink.ConnectionError
	return errors.As(err, &ce) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func wrapTask(task string, err error) error {
	return fmt.Errorf("%s: %w", task, err)
}

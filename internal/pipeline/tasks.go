// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/gaingest/internal/batch"
	"github.com/tomtom215/gaingest/internal/loader"
	"github.com/tomtom215/gaingest/internal/logging"
	"github.com/tomtom215/gaingest/internal/metrics"
	"github.com/tomtom215/gaingest/internal/normalize"
	"github.com/tomtom215/gaingest/internal/referential"
	"github.com/tomtom215/gaingest/internal/sink"
	"github.com/tomtom215/gaingest/internal/staging"
)

// Preprocess normalizes every pending raw artifact into the staging area.
// Empty and unreadable artifacts are marked Empty; artifacts that fail
// normalization stay Pending. Neither stops the pass. Raw files are kept.
func (p *Pipeline) Preprocess(ctx context.Context) (*PreprocessReport, error) {
	log := logging.Ctx(ctx)
	report := &PreprocessReport{}

	arts, err := p.area.ListRaw()
	if err != nil {
		return report, wrapTask("preprocess", err)
	}
	log.Info().Int("artifacts", len(arts)).Msg("Preprocess started")

	for _, art := range arts {
		if err := ctx.Err(); err != nil {
			return report, wrapTask("preprocess", err)
		}
		status, err := p.preprocessOne(ctx, art)
		if err != nil {
			return report, wrapTask("preprocess", err)
		}
		report.Artifacts = append(report.Artifacts, status)
		metrics.Artifacts.WithLabelValues(string(status.Kind), string(status.State)).Inc()

		switch status.State {
		case StateNormalized:
			report.Staged++
		case StateEmpty:
			report.Empty++
		default:
			report.Pending++
		}
	}

	log.Info().Int("staged", report.Staged).Int("empty", report.Empty).
		Int("pending", report.Pending).Msg("Preprocess finished")
	return report, nil
}

// preprocessOne returns an error only when the staging write fails.
func (p *Pipeline) preprocessOne(ctx context.Context, art loader.Artifact) (ArtifactStatus, error) {
	log := logging.Ctx(ctx).With().Str("file", art.Name).Str("kind", string(art.Kind)).Logger()
	status := ArtifactStatus{Name: art.Name, Kind: art.Kind, DateToken: art.DateToken, State: StatePending}

	b, err := loader.LoadKind(art.Path, art.Kind)
	if err != nil {
		var fre *loader.FileReadError
		switch {
		case errors.Is(err, loader.ErrEmpty):
			log.Info().Msg("Artifact is empty")
			status.State = StateEmpty
			if p.opts.RemoveEmpty {
				p.remove(ctx, art.Path, "raw")
			}
		case errors.As(err, &fre):
			log.Warn().Err(err).Msg("Artifact unreadable, treating as empty")
			status.State = StateEmpty
			status.Error = err.Error()
		default:
			log.Error().Err(err).Msg("Artifact load failed")
			status.Error = err.Error()
		}
		return status, nil
	}

	out, rep, err := p.normalizers[art.Kind].Run(b)
	if err != nil {
		log.Error().Err(err).Int("rows", b.Len()).Msg("Normalization failed, artifact left pending")
		status.Error = err.Error()
		return status, nil
	}
	status.Normalize = &rep
	status.Rows = out.Len()
	for _, s := range rep.Stages {
		if n := s.Dropped + s.Rejected; n > 0 {
			metrics.NormalizeDropped.WithLabelValues(string(art.Kind), s.Stage).Add(float64(n))
		}
	}

	if out.Len() == 0 {
		log.Info().Int("rows_in", b.Len()).Msg("No rows survived normalization")
		status.State = StateEmpty
		return status, nil
	}

	path, err := p.area.Stage(art, out)
	if err != nil {
		return status, fmt.Errorf("stage %s: %w", art.Name, err)
	}
	status.State = StateNormalized
	log.Debug().Str("staged", path).Int("rows", out.Len()).
		Int("dropped", rep.Dropped()).Int("imputed", rep.Imputed()).
		Int("rejected", rep.Rejected()).Msg("Artifact staged")
	return status, nil
}

// Load stores every staged artifact. Session batches are stored first, then
// the stored session ids are read once and hit batches are filtered against
// them. A rolled back batch keeps its staged file; a connection failure
// aborts the task.
func (p *Pipeline) Load(ctx context.Context) (*LoadReport, error) {
	return p.load(ctx, nil)
}

func (p *Pipeline) load(ctx context.Context, rejected map[string]int) (*LoadReport, error) {
	log := logging.Ctx(ctx)
	report := &LoadReport{}

	if err := p.store.EnsureSchema(ctx); err != nil {
		return report, wrapTask("load", err)
	}

	arts, err := p.area.ListStaged()
	if err != nil {
		return report, wrapTask("load", err)
	}

	var sessions, hits []loader.Artifact
	for _, art := range arts {
		if art.Kind == batch.KindSessions {
			sessions = append(sessions, art)
		} else {
			hits = append(hits, art)
		}
	}
	log.Info().Int("session_batches", len(sessions)).Int("hit_batches", len(hits)).Msg("Load started")

	for _, art := range sessions {
		if err := p.loadOne(ctx, report, art, nil, rejected[art.Stem]); err != nil {
			return report, wrapTask("load", err)
		}
	}

	known, err := p.store.KnownSessionIDs(ctx)
	if err != nil {
		return report, wrapTask("load", err)
	}
	report.KnownSessions = known.Len()
	log.Debug().Int("known_sessions", known.Len()).Msg("Session snapshot taken")

	for _, art := range hits {
		if err := p.loadOne(ctx, report, art, &known, rejected[art.Stem]); err != nil {
			return report, wrapTask("load", err)
		}
	}

	log.Info().Int("inserted", report.Inserted()).Int("skipped", report.Skipped()).
		Int("failed_batches", report.FailedBatches()).Msg("Load finished")
	return report, nil
}

// loadOne stores one staged artifact. known is nil for session batches.
func (p *Pipeline) loadOne(ctx context.Context, report *LoadReport, art loader.Artifact, known *referential.SessionSet, rejected int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := logging.Ctx(ctx).With().Str("file", art.Name).Logger()
	table := batch.SchemaFor(art.Kind).Table
	status := ArtifactStatus{Name: art.Name, Kind: art.Kind, DateToken: art.DateToken, State: StateNormalized}
	defer func() {
		report.Artifacts = append(report.Artifacts, status)
		metrics.Artifacts.WithLabelValues(string(status.Kind), string(status.State)).Inc()
	}()

	b, err := loader.LoadKind(art.Path, art.Kind)
	if errors.Is(err, loader.ErrEmpty) {
		log.Info().Msg("Staged artifact is empty, removing")
		if p.remove(ctx, art.Path, "staged") {
			status.State = StateDeleted
		}
		return nil
	}
	var norm normalize.Report
	if err == nil {
		b, norm, err = p.normalizers[art.Kind].Run(b)
	}
	if err != nil {
		status.Error = err.Error()
		p.record(report, sink.Outcome{
			Kind: sink.OutcomeFailed, Table: table, Source: art.Name,
			Reason: err.Error(), Err: err,
		})
		log.Error().Err(err).Msg("Staged artifact unusable, kept for inspection")
		return nil
	}

	filtered := 0
	if known != nil {
		var res referential.Result
		b, res = referential.Filter(b, *known)
		filtered = res.Dropped
		if filtered > 0 {
			log.Info().Int("kept", res.Kept).Int("dropped", res.Dropped).Msg("Hits without a stored session dropped")
		}
	}
	status.Rows = b.Len()

	out := p.store.Upsert(ctx, table, b)
	out.Source = art.Name
	out.Filtered = filtered
	lost := norm.Dropped() + norm.Rejected()
	if lost > 0 {
		log.Warn().Int("rows", lost).Msg("Staged rows failed normalization at load")
	}
	out.Rejected = rejected + lost
	if out.Failed() {
		status.Error = out.Reason
		p.record(report, out)
		if isFatal(out.Err) {
			return out.Err
		}
		return nil
	}
	if out.Rejected > 0 {
		out.Kind = sink.OutcomePartiallyRejected
	}
	p.record(report, out)
	status.State = StateLoaded

	if p.remove(ctx, art.Path, "staged") {
		status.State = StateDeleted
	}
	if p.opts.RetireRaw {
		for _, raw := range p.area.RawPaths(art.Stem) {
			p.remove(ctx, raw, "raw")
		}
	}
	return nil
}

func (p *Pipeline) record(report *LoadReport, out sink.Outcome) {
	report.Outcomes = append(report.Outcomes, out)
	metrics.Batches.WithLabelValues(out.Table, string(out.Kind)).Inc()
	metrics.Rows.WithLabelValues(out.Table, "inserted").Add(float64(out.Inserted))
	metrics.Rows.WithLabelValues(out.Table, "skipped").Add(float64(out.Skipped))
	metrics.Rows.WithLabelValues(out.Table, "filtered").Add(float64(out.Filtered))
	metrics.Rows.WithLabelValues(out.Table, "rejected").Add(float64(out.Rejected))
}

// remove deletes path and reports whether it is gone. A file that was
// already missing is logged as a warning and counts as gone.
func (p *Pipeline) remove(ctx context.Context, path, what string) bool {
	err := staging.Remove(path)
	switch {
	case err == nil:
		return true
	case staging.IsMissing(err):
		logging.Ctx(ctx).Warn().Str("path", path).Str("artifact", what).Msg("Artifact already removed")
		return true
	default:
		logging.Ctx(ctx).Error().Err(err).Str("path", path).Str("artifact", what).Msg("Failed to remove artifact")
		return false
	}
}

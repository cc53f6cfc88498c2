// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

// Package scheduler fires ingestion runs on a cron schedule.
//
// The Scheduler is a suture service: Serve blocks until its context is
// cancelled, sleeping until the next fire time and then calling the runner.
// No run fires before the configured start date, and missed fire times are
// never backfilled.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/gaingest/internal/logging"
	"github.com/tomtom215/gaingest/internal/metrics"
	"github.com/tomtom215/gaingest/internal/pipeline"
)

// Defaults of the daily ingestion schedule.
const (
	DefaultCron       = "00 15 * * *"
	DefaultRetries    = 1
	DefaultRetryDelay = 3 * time.Minute
)

// DefaultStartDate is the first day runs may fire.
var DefaultStartDate = time.Date(2023, 3, 7, 0, 0, 0, 0, time.UTC)

// Runner executes one ingestion run.
type Runner interface {
	Run(ctx context.Context) (*pipeline.RunReport, error)
}

// Config holds scheduler configuration.
type Config struct {
	Cron      string
	StartDate time.Time
	Location  *time.Location

	// RunOnStart fires one run as soon as Serve starts, if the start date
	// has passed.
	RunOnStart bool
}

// Scheduler fires runs at the times described by a cron expression.
type Scheduler struct {
	cron    *CronExpression
	cfg     Config
	runner  Runner
	logger  zerolog.Logger
	now     func() time.Time
	trigger chan struct{}
}

// New creates a Scheduler. An empty cron expression means DefaultCron.
func New(cfg Config, runner Runner) (*Scheduler, error) {
	if cfg.Cron == "" {
		cfg.Cron = DefaultCron
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	cron, err := ParseCron(cfg.Cron)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Cron, err)
	}
	return &Scheduler{
		cron:    cron,
		cfg:     cfg,
		runner:  runner,
		logger:  logging.WithComponent("scheduler"),
		now:     time.Now,
		trigger: make(chan struct{}, 1),
	}, nil
}

// Next returns the next fire time after now, never earlier than the start
// date. A fire time equal to the start date is allowed.
func (s *Scheduler) Next(now time.Time) time.Time {
	after := now
	if start := s.cfg.StartDate; !start.IsZero() && now.Before(start) {
		after = start.Add(-time.Minute)
	}
	return s.cron.NextRun(after, s.cfg.Location)
}

// Trigger requests an immediate run. It returns false when a request is
// already pending.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Serve implements suture.Service. Run failures are logged and do not stop
// the scheduler.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.logger.Info().Str("cron", s.cfg.Cron).Time("start_date", s.cfg.StartDate).
		Str("timezone", s.cfg.Location.String()).Msg("Scheduler started")

	if s.cfg.RunOnStart && !s.now().Before(s.cfg.StartDate) {
		s.fire(ctx, "startup")
	}

	for {
		next := s.Next(s.now())
		if next.IsZero() {
			return fmt.Errorf("schedule %q never fires", s.cfg.Cron)
		}
		metrics.SetNextRun(next)
		s.logger.Info().Time("next_run", next).Msg("Next run scheduled")

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Msg("Scheduler stopped")
			return ctx.Err()
		case <-s.trigger:
			timer.Stop()
			s.fire(ctx, "manual")
		case <-timer.C:
			s.fire(ctx, "schedule")
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, reason string) {
	s.logger.Info().Str("trigger", reason).Msg("Starting run")
	report, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.logger.Warn().Str("trigger", reason).Msg("Run skipped, another run is in progress")
	case err != nil:
		ev := s.logger.Error().Err(err).Str("trigger", reason)
		if report != nil {
			ev = ev.Str("run_id", report.ID)
		}
		ev.Msg("Run failed")
	}
}

// String implements fmt.Stringer for suture logging.
func (s *Scheduler) String() string {
	return "scheduler"
}

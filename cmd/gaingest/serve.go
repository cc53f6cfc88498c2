// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/gaingest/internal/api"
	"github.com/tomtom215/gaingest/internal/logging"
	"github.com/tomtom215/gaingest/internal/scheduler"
	"github.com/tomtom215/gaingest/internal/supervisor"
)

func newServeCmd(a *app) *cobra.Command {
	var runOnStart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daily schedule and the ops HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("run-on-start") {
				a.cfg.Schedule.RunOnStart = runOnStart
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "fire one run immediately (overrides schedule.run_on_start)")
	return cmd
}

func (a *app) serve(parent context.Context) error {
	cfg := a.cfg
	ctx, stop := signalContext(parent)
	defer stop()

	logging.Info().
		Str("version", version).
		Str("incoming", cfg.Paths.Resolve(cfg.Paths.Incoming)).
		Str("driver", cfg.Database.Driver).
		Msg("Starting GAIngest with supervisor tree")

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	hist, closeHist, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer closeHist()

	p, err := newPipeline(cfg, store, hist)
	if err != nil {
		return err
	}

	schedCfg, err := cfg.SchedulerConfig()
	if err != nil {
		return err
	}
	sched, err := scheduler.New(schedCfg, p)
	if err != nil {
		return err
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddIngestService(sched)

	if cfg.Server.Addr != "" {
		srv := &http.Server{
			Addr: cfg.Server.Addr,
			Handler: api.NewRouter(api.Deps{
				Store:       store,
				Runs:        hist,
				Trigger:     sched,
				RateLimit:   cfg.Server.RateLimit,
				CORSOrigins: cfg.Server.CORSOrigins,
			}),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
		}
		tree.AddOpsService(supervisor.NewHTTPService(srv, cfg.Server.ShutdownTimeout))
		logging.Info().Str("addr", cfg.Server.Addr).Msg("Ops server enabled")
	}

	err = tree.Serve(ctx)

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("GAIngest stopped")
	return nil
}

// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package main

import (
	"context"
	"fmt"

	"github.com/tomtom215/gaingest/internal/config"
	"github.com/tomtom215/gaingest/internal/history"
	"github.com/tomtom215/gaingest/internal/logging"
	"github.com/tomtom215/gaingest/internal/normalize"
	"github.com/tomtom215/gaingest/internal/pipeline"
	"github.com/tomtom215/gaingest/internal/provision"
	"github.com/tomtom215/gaingest/internal/sink"
	"github.com/tomtom215/gaingest/internal/staging"
)

// recorder is a history store the pipeline records into and the API reads.
type recorder interface {
	pipeline.Recorder
	history.Lister
}

// openStore provisions the database when configured and connects the sink.
func openStore(ctx context.Context, cfg *config.Config) (*sink.Store, error) {
	var svc provision.Service = provision.Noop{}
	if cfg.Database.Provision && cfg.Database.Dialect() == sink.DialectPostgres {
		svc = provision.Postgres{}
	}
	ready, err := svc.EnsureDatabase(ctx, cfg.Credentials())
	if err != nil {
		return nil, fmt.Errorf("provision database: %w", err)
	}
	if ready.Created {
		logging.Info().Str("database", ready.Database).Msg("Provisioned database")
	}

	store, err := sink.Open(ctx, cfg.SinkConfig())
	if err != nil {
		return nil, err
	}
	logging.Info().Str("dialect", string(store.Dialect())).Msg("Database connected")
	return store, nil
}

// openHistory opens the badger run history, or an in-memory one when no
// directory is configured. The returned close func is never nil.
func openHistory(cfg *config.Config) (recorder, func(), error) {
	if cfg.History.Dir == "" {
		return history.NewMemory(cfg.History.Retain), func() {}, nil
	}
	dir := cfg.Paths.Resolve(cfg.History.Dir)
	bs, err := history.OpenBadger(dir, cfg.History.Retain)
	if err != nil {
		return nil, nil, fmt.Errorf("open run history %s: %w", dir, err)
	}
	return bs, func() {
		if err := bs.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close run history")
		}
	}, nil
}

// newPipeline builds the two-task pipeline over store.
func newPipeline(cfg *config.Config, store pipeline.Store, rec pipeline.Recorder) (*pipeline.Pipeline, error) {
	policy, err := normalize.ParsePolicy(cfg.Normalize.Policy)
	if err != nil {
		return nil, err
	}
	area, err := staging.NewArea(cfg.Paths.Resolve(cfg.Paths.Incoming), cfg.Paths.Resolve(cfg.Paths.Staging))
	if err != nil {
		return nil, err
	}
	return pipeline.New(area, store, rec, pipeline.Options{
		Policy:      policy,
		Retries:     cfg.Schedule.Retries,
		RetryDelay:  cfg.Schedule.RetryDelay,
		RetireRaw:   cfg.Paths.RetireRaw,
		RemoveEmpty: cfg.Paths.RemoveEmpty,
	}), nil
}

func closeStore(store *sink.Store) {
	if err := store.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing database")
	}
}

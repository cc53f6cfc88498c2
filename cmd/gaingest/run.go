// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package main

import (
	"context"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/gaingest/internal/logging"
	"github.com/tomtom215/gaingest/internal/pipeline"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run preprocess then load once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withPipeline(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline) error {
				report, err := p.Run(ctx)
				if report != nil {
					if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil {
						return werr
					}
				}
				return err
			})
		},
	}
}

func newPreprocessCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "preprocess",
		Short: "Normalize raw exports into the staging directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withPipeline(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline) error {
				report, err := p.Preprocess(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func newLoadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Load staged exports into the database, sessions first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withPipeline(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline) error {
				report, err := p.Load(ctx)
				if report != nil {
					if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil {
						return werr
					}
				}
				return err
			})
		},
	}
}

// withPipeline opens the store and run history, builds the pipeline and
// calls fn under a signal-cancelled context. A locked history directory
// (serve already running) only disables recording.
func (a *app) withPipeline(parent context.Context, fn func(context.Context, *pipeline.Pipeline) error) error {
	ctx, stop := signalContext(parent)
	defer stop()

	store, err := openStore(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	var rec pipeline.Recorder
	hist, closeHist, err := openHistory(a.cfg)
	if err != nil {
		logging.Warn().Err(err).Msg("Run history unavailable, this run will not be recorded")
	} else {
		defer closeHist()
		rec = hist
	}

	p, err := newPipeline(a.cfg, store, rec)
	if err != nil {
		return err
	}
	return fn(ctx, p)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tomtom215/gaingest/internal/batch"
	"github.com/tomtom215/gaingest/internal/config"
	"github.com/tomtom215/gaingest/internal/loader"
	"github.com/tomtom215/gaingest/internal/logging"
	"github.com/tomtom215/gaingest/internal/normalize"
	"github.com/tomtom215/gaingest/internal/staging"
)

func newBootstrapCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Bulk-load the prepared historical CSVs",
		Long: `Bulk-load paths.bootstrap_sessions and paths.bootstrap_hits.

Hits whose session is not stored are deleted, the foreign key is added when
missing, and both CSVs are removed after the load commits. Rows whose key is
already stored are skipped, so the command is safe to repeat.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			store, err := openStore(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer closeStore(store)

			p := a.cfg.Paths
			report, err := store.Bootstrap(ctx, p.Resolve(p.BootstrapSessions), p.Resolve(p.BootstrapHits))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}

// prepareResult is the outcome for one historical export.
type prepareResult struct {
	Source string           `json:"source"`
	Target string           `json:"target"`
	Rows   int              `json:"rows"`
	Report normalize.Report `json:"normalize"`
}

func newPrepareCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare",
		Short: "Normalize the full historical exports into the bootstrap CSVs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, err := prepare(a.cfg)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}
}

// prepare runs paths.main_sessions and paths.main_hits through the same
// normalization as the daily exports and writes the table-shaped CSVs that
// bootstrap expects.
func prepare(cfg *config.Config) ([]prepareResult, error) {
	policy, err := normalize.ParsePolicy(cfg.Normalize.Policy)
	if err != nil {
		return nil, err
	}
	p := cfg.Paths
	jobs := []struct {
		kind     batch.Kind
		src, dst string
	}{
		{batch.KindSessions, p.Resolve(p.MainSessions), p.Resolve(p.BootstrapSessions)},
		{batch.KindHits, p.Resolve(p.MainHits), p.Resolve(p.BootstrapHits)},
	}

	results := make([]prepareResult, 0, len(jobs))
	for _, job := range jobs {
		if job.src == "" {
			return nil, fmt.Errorf("no source export configured for %s", job.kind)
		}
		res, err := prepareOne(job.kind, job.src, job.dst, policy)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func prepareOne(kind batch.Kind, src, dst string, policy normalize.CoercionPolicy) (prepareResult, error) {
	res := prepareResult{Source: src, Target: dst}

	raw, err := loader.LoadKind(src, kind)
	if errors.Is(err, loader.ErrEmpty) {
		return res, fmt.Errorf("%s holds no records", src)
	}
	if err != nil {
		return res, err
	}

	out, report, err := normalize.New(kind, normalize.Options{Policy: policy}).Run(raw)
	res.Report = report
	if err != nil {
		return res, fmt.Errorf("normalize %s: %w", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return res, fmt.Errorf("create directory for %s: %w", dst, err)
	}
	table := out.Project(batch.SchemaFor(kind).Columns)
	if err := staging.WriteCSV(dst, table); err != nil {
		return res, err
	}
	res.Rows = table.Len()

	logging.Info().
		Str("source", src).
		Str("target", dst).
		Int("rows_in", raw.Len()).
		Int("rows_out", res.Rows).
		Int("dropped", report.Dropped()).
		Msg("Prepared bootstrap CSV")
	return res, nil
}

func newProfileCmd(a *app) *cobra.Command {
	var kindName string
	cmd := &cobra.Command{
		Use:   "profile FILE",
		Short: "Print the share of missing values per column of a raw export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Paths.Resolve(args[0])

			var (
				b   *batch.Batch
				err error
			)
			if kindName == "" {
				b, err = loader.Load(path)
			} else {
				kind, kerr := batch.ParseKind(kindName)
				if kerr != nil {
					return kerr
				}
				b, err = loader.LoadKind(path, kind)
			}
			if err != nil && !errors.Is(err, loader.ErrEmpty) {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s: %d rows\n", path, b.Len())
			for _, c := range normalize.MissingProfile(b) {
				fmt.Fprintf(w, "%-28s %8d %7.2f%%\n", c.Column, c.Missing, c.Percent)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kindName, "kind", "", "sessions or hits, detected from the file name when empty")
	return cmd
}

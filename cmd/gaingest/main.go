// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

// Command gaingest ingests daily web analytics exports into a relational
// store.
//
// Raw session and hit exports (JSON or CSV, one file per day, named
// ga_sessions_<date>.json and ga_hits_<date>.json) are dropped into the
// incoming directory. Each run normalizes every raw export into a staged
// CSV, then loads the staged sessions before the staged hits so that no hit
// row is stored without its session.
//
// # Subcommands
//
//	gaingest serve          run the daily schedule and the ops HTTP server
//	gaingest run            one preprocess + load run, then exit
//	gaingest preprocess     normalize raw exports into the staging directory
//	gaingest load           load staged exports into the database
//	gaingest prepare        normalize the full historical exports for bootstrap
//	gaingest bootstrap      bulk-load the prepared historical CSVs
//	gaingest profile FILE   print the share of missing values per column
//
// # Configuration
//
// Configuration is layered (highest priority wins):
//   - Environment variables (a .env file in the working directory is read first)
//   - Config file (gaingest.yaml, CONFIG_PATH or --config)
//   - Built-in defaults
//
// Common variables: PROJECT_PATH, INCOMING_DIR, DB_DRIVER, DB_HOST, DB_PORT,
// DB_NAME, DB_USER, DB_PASSWORD, DATABASE_URL, SCHEDULE_CRON, LOG_LEVEL.
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the active run. The current batch transaction is
// rolled back and its staged file is kept for the next run.
package main

import (
	"os"

	"github.com/tomtom215/gaingest/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logging.Error().Err(err).Msg("gaingest failed")
		os.Exit(1)
	}
}

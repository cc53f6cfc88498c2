// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

// Package testinfra starts throwaway PostgreSQL servers for integration
// tests through testcontainers-go.
//
//	func TestLoadIntoPostgres(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    pg, err := testinfra.NewPostgresContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, pg)
//
//	    store, err := sink.Open(ctx, sink.Config{Dialect: sink.DialectPostgres, DSN: pg.DSN("")})
//	    ...
//	}
//
// Everything here is behind the integration build tag:
//
//	go test -tags integration ./...
package testinfra

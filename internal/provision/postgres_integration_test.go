// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

//go:build integration

package provision

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/gaingest/internal/testinfra"
)

func TestPostgres_EnsureDatabase(t *testing.T) {
	testinfra.SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg, err := testinfra.NewPostgresContainer(ctx)
	if err != nil {
		t.Fatalf("NewPostgresContainer() error = %v", err)
	}
	t.Cleanup(func() { testinfra.CleanupContainer(t, context.Background(), pg) })

	creds := Credentials{Database: "ga_analytics", MaintenanceDSN: pg.DSN("")}

	first, err := Postgres{}.EnsureDatabase(ctx, creds)
	if err != nil {
		t.Fatalf("EnsureDatabase() error = %v", err)
	}
	if !first.Created {
		t.Error("first EnsureDatabase() did not create the database")
	}

	second, err := Postgres{}.EnsureDatabase(ctx, creds)
	if err != nil {
		t.Fatalf("second EnsureDatabase() error = %v", err)
	}
	if second.Created {
		t.Error("second EnsureDatabase() reported a create")
	}

	// Names needing quoting survive the round trip.
	odd := Credentials{Database: "GA Analytics-2", MaintenanceDSN: pg.DSN("")}
	if r, err := (Postgres{}).EnsureDatabase(ctx, odd); err != nil || !r.Created {
		t.Fatalf("EnsureDatabase(quoted name) = %+v, %v", r, err)
	}
}

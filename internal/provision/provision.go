// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

// Package provision makes sure the target database exists before the sink
// connects to it. It never creates roles and never shells out.
package provision

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tomtom215/gaingest/internal/logging"
)

// Credentials names the database to provision and how to reach the server.
type Credentials struct {
	Database string
	// MaintenanceDSN connects to an existing database on the same server,
	// normally "postgres".
	MaintenanceDSN string
}

// Ready describes the provisioned database.
type Ready struct {
	Database string `json:"database"`
	Created  bool   `json:"created"`
}

// Service provisions databases. EnsureDatabase is idempotent.
type Service interface {
	EnsureDatabase(ctx context.Context, creds Credentials) (Ready, error)
}

// catalog is the server-side view EnsureDatabase needs.
type catalog interface {
	exists(ctx context.Context, name string) (bool, error)
	create(ctx context.Context, name string) error
}

// Postgres provisions databases on a PostgreSQL server through lib/pq.
type Postgres struct{}

// EnsureDatabase creates creds.Database when pg_database lacks it.
func (Postgres) EnsureDatabase(ctx context.Context, creds Credentials) (Ready, error) {
	if creds.Database == "" {
		return Ready{}, errors.New("provision: database name is empty")
	}
	db, err := sql.Open("postgres", creds.MaintenanceDSN)
	if err != nil {
		return Ready{}, fmt.Errorf("open maintenance connection: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Failed to close maintenance connection")
		}
	}()
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return Ready{}, fmt.Errorf("connect to maintenance database: %w", err)
	}
	return ensure(ctx, pgCatalog{db: db}, creds.Database)
}

func ensure(ctx context.Context, cat catalog, name string) (Ready, error) {
	ok, err := cat.exists(ctx, name)
	if err != nil {
		return Ready{}, fmt.Errorf("look up database %s: %w", name, err)
	}
	if ok {
		logging.Ctx(ctx).Debug().Str("database", name).Msg("Database already exists")
		return Ready{Database: name}, nil
	}
	if err := cat.create(ctx, name); err != nil {
		return Ready{}, fmt.Errorf("create database %s: %w", name, err)
	}
	logging.Ctx(ctx).Info().Str("database", name).Msg("Database created")
	return Ready{Database: name, Created: true}, nil
}

type pgCatalog struct {
	db *sql.DB
}

func (c pgCatalog) exists(ctx context.Context, name string) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx, "SELECT 1 FROM pg_database WHERE datname = $1", name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c pgCatalog) create(ctx context.Context, name string) error {
	_, err := c.db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(name))
	var pqErr *pq.Error
	// 42P04 duplicate_database: another process created it first.
	if errors.As(err, &pqErr) && pqErr.Code == "42P04" {
		return nil
	}
	return err
}

// Noop reports the database as ready without touching any server. It is
// used for the embedded DuckDB sink, whose file is created on open.
type Noop struct{}

// EnsureDatabase implements Service.
func (Noop) EnsureDatabase(_ context.Context, creds Credentials) (Ready, error) {
	return Ready{Database: creds.Database}, nil
}

// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

// Package sink persists normalized batches into db_sessions and db_hits.
//
// Two dialects share one implementation over database/sql: postgres through
// lib/pq for production and duckdb through duckdb-go for embedded use and
// tests. Every insert is a conflict-skip insert: a row whose key already
// exists is left untouched.
package sink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the duckdb driver

	"github.com/tomtom215/gaingest/internal/batch"
	"github.com/tomtom215/gaingest/internal/logging"
	"github.com/tomtom215/gaingest/internal/referential"
)

// Dialect selects the database driver.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectDuckDB   Dialect = "duckdb"
)

// Config describes how to reach the store.
type Config struct {
	Dialect Dialect
	// DSN is a lib/pq connection string for postgres or a file path
	// (":memory:" for an in-memory database) for duckdb.
	DSN string
	// ConnMaxLifetime bounds how long the single pooled connection is reused.
	ConnMaxLifetime time.Duration
}

// Store is a handle on the relational store.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects and pings the store. Any failure is a *ConnectionError.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	var driverName string
	switch cfg.Dialect {
	case DialectPostgres:
		driverName = "postgres"
	case DialectDuckDB:
		driverName = "duckdb"
	default:
		return nil, fmt.Errorf("unsupported dialect %q", cfg.Dialect)
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, &ConnectionError{Dialect: cfg.Dialect, Err: err}
	}

	// One connection per process: runs are sequential and no concurrent
	// writers are assumed.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		closeQuietly(db)
		return nil, &ConnectionError{Dialect: cfg.Dialect, Err: err}
	}

	logging.Debug().Str("dialect", string(cfg.Dialect)).Msg("Connected to relational store")
	return &Store{db: db, dialect: cfg.Dialect}, nil
}

// Dialect returns the store dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks that the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &ConnectionError{Dialect: s.dialect, Err: err}
	}
	return nil
}

// Close releases the connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates db_sessions and db_hits if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{createSessionsSQL, createHitsSQL} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", s.classify("", err))
		}
	}
	return nil
}

// KnownSessionIDs snapshots every stored session id.
func (s *Store) KnownSessionIDs(ctx context.Context) (referential.SessionSet, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT session_id FROM db_sessions")
	if err != nil {
		return referential.SessionSet{}, fmt.Errorf("query session ids: %w", s.classify(batch.TableSessions, err))
	}
	defer closeWithLog(rows, "rows")

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return referential.SessionSet{}, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return referential.SessionSet{}, fmt.Errorf("iterate session ids: %w", s.classify(batch.TableSessions, err))
	}
	return referential.NewSessionSet(ids), nil
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int64, error) {
	if _, ok := schemaForTable(table); !ok {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, s.classify(table, err))
	}
	return n, nil
}

// CountOrphanHits returns the number of hit rows without a matching session.
func (s *Store) CountOrphanHits(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM db_hits h
		WHERE NOT EXISTS (SELECT 1 FROM db_sessions s WHERE h.session_id = s.session_id)`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count orphan hits: %w", s.classify(batch.TableHits, err))
	}
	return n, nil
}

// HasForeignKey reports whether db_hits carries a foreign key.
func (s *Store) HasForeignKey(ctx context.Context) (bool, error) {
	return hasForeignKey(ctx, s.db, s.dialect)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func hasForeignKey(ctx context.Context, q queryer, dialect Dialect) (bool, error) {
	query := `SELECT COUNT(*) FROM information_schema.table_constraints
		WHERE table_name = $1 AND constraint_type = 'FOREIGN KEY'`
	if dialect == DialectDuckDB {
		query = `SELECT COUNT(*) FROM duckdb_constraints()
			WHERE table_name = $1 AND constraint_type = 'FOREIGN KEY'`
	}
	var n int64
	if err := q.QueryRowContext(ctx, query, batch.TableHits).Scan(&n); err != nil {
		return false, fmt.Errorf("inspect foreign keys: %w", err)
	}
	return n > 0, nil
}

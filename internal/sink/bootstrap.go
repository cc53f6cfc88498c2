// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/tomtom215/gaingest/internal/batch"
	"github.com/tomtom215/gaingest/internal/loader"
	"github.com/tomtom215/gaingest/internal/logging"
	"github.com/tomtom215/gaingest/internal/staging"
)

// BootstrapReport summarizes a bulk load.
type BootstrapReport struct {
	SessionsRead     int      `json:"sessions_read"`
	SessionsInserted int64    `json:"sessions_inserted"`
	HitsRead         int      `json:"hits_read"`
	HitsInserted     int64    `json:"hits_inserted"`
	OrphansDeleted   int64    `json:"orphans_deleted"`
	ForeignKey       bool     `json:"foreign_key"`
	RemovedFiles     []string `json:"removed_files"`
}

const (
	bootstrapSessions = "bootstrap_sessions"
	bootstrapHits     = "bootstrap_hits"
)

// Bootstrap bulk-loads two prepared CSVs whose headers are the table
// columns in schema order. Both files are copied into temporary tables and
// the sessions are moved into db_sessions. Hit rows whose session is not
// stored are then deleted, the remaining hits are moved into db_hits and the
// foreign key is added when missing. Moves skip existing keys. The CSVs are
// removed after the transaction commits.
func (s *Store) Bootstrap(ctx context.Context, sessionsCSV, hitsCSV string) (BootstrapReport, error) {
	var report BootstrapReport
	log := logging.Ctx(ctx)

	if err := s.EnsureSchema(ctx); err != nil {
		return report, err
	}

	sessions, err := readPrepared(sessionsCSV, batch.KindSessions)
	if err != nil {
		return report, err
	}
	hits, err := readPrepared(hitsCSV, batch.KindHits)
	if err != nil {
		return report, err
	}
	report.SessionsRead = sessions.Len()
	report.HitsRead = hits.Len()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return report, fmt.Errorf("begin bootstrap: %w", s.classify("", err))
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := rollback(tx); rbErr != nil {
				log.Error().Err(rbErr).Msg("Bootstrap rollback failed")
			}
		}
	}()

	for _, t := range []struct {
		tmp, table, path string
		b                *batch.Batch
	}{
		{bootstrapSessions, batch.TableSessions, sessionsCSV, sessions},
		{bootstrapHits, batch.TableHits, hitsCSV, hits},
	} {
		if err := s.bulkLoad(ctx, tx, t.tmp, t.table, t.path, t.b); err != nil {
			return report, err
		}
	}

	if report.SessionsInserted, err = execAffected(ctx, tx, copyIntoSQL(batch.TableSessions, bootstrapSessions)); err != nil {
		return report, fmt.Errorf("insert sessions: %w", s.classify(batch.TableSessions, err))
	}

	orphans, err := execAffected(ctx, tx, `DELETE FROM `+bootstrapHits+` WHERE NOT EXISTS
		(SELECT 1 FROM db_sessions s WHERE `+bootstrapHits+`.session_id = s.session_id)`)
	if err != nil {
		return report, fmt.Errorf("delete orphan hits: %w", s.classify(batch.TableHits, err))
	}
	report.OrphansDeleted = orphans

	if report.HitsInserted, err = execAffected(ctx, tx, copyIntoSQL(batch.TableHits, bootstrapHits)); err != nil {
		return report, fmt.Errorf("insert hits: %w", s.classify(batch.TableHits, err))
	}

	// Tables created by an older deployment may lack the foreign key and
	// already hold orphans.
	stale, err := execAffected(ctx, tx, deleteOrphanHitsSQL)
	if err != nil {
		return report, fmt.Errorf("delete stored orphan hits: %w", s.classify(batch.TableHits, err))
	}
	report.OrphansDeleted += stale

	for _, tmp := range []string{bootstrapSessions, bootstrapHits} {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+tmp); err != nil {
			return report, fmt.Errorf("drop %s: %w", tmp, err)
		}
	}

	hasFK, err := hasForeignKey(ctx, tx, s.dialect)
	if err != nil {
		return report, err
	}
	if !hasFK {
		if s.dialect == DialectDuckDB {
			log.Warn().Msg("db_hits has no foreign key and duckdb cannot add one to an existing table; orphan deletion is the only enforcement")
		} else {
			if _, err := tx.ExecContext(ctx, addHitsForeignKeySQL); err != nil {
				return report, fmt.Errorf("add foreign key: %w", s.classify(batch.TableHits, err))
			}
			hasFK = true
		}
	}
	report.ForeignKey = hasFK

	if err := tx.Commit(); err != nil {
		return report, fmt.Errorf("commit bootstrap: %w", s.classify("", err))
	}
	committed = true

	log.Info().
		Int64("sessions", report.SessionsInserted).
		Int64("hits", report.HitsInserted).
		Int64("orphans_deleted", report.OrphansDeleted).
		Bool("foreign_key", report.ForeignKey).
		Msg("Bootstrap complete")

	for _, p := range []string{sessionsCSV, hitsCSV} {
		if err := staging.Remove(p); err != nil {
			if staging.IsMissing(err) {
				log.Warn().Str("file", p).Msg("Prepared file already removed")
			} else {
				log.Warn().Err(err).Str("file", p).Msg("Failed to remove prepared file")
			}
			continue
		}
		report.RemovedFiles = append(report.RemovedFiles, p)
	}
	return report, nil
}

// readPrepared loads a prepared CSV and checks its header against the table.
func readPrepared(path string, kind batch.Kind) (*batch.Batch, error) {
	b, err := loader.LoadKind(path, kind)
	if err != nil && !errors.Is(err, loader.ErrEmpty) {
		return nil, err
	}
	want := batch.SchemaFor(kind).Columns
	if strings.Join(b.Columns, ",") != strings.Join(want, ",") {
		return nil, fmt.Errorf("%s: header %v does not match %s columns %v",
			path, b.Columns, batch.SchemaFor(kind).Table, want)
	}
	return b, nil
}

// bulkLoad creates tmp shaped like table and fills it from the CSV: COPY
// FROM STDIN through lib/pq on postgres, COPY FROM file on duckdb.
func (s *Store) bulkLoad(ctx context.Context, tx *sql.Tx, tmp, table, path string, b *batch.Batch) error {
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+tmp); err != nil {
		return fmt.Errorf("drop %s: %w", tmp, s.classify(table, err))
	}
	create := fmt.Sprintf("CREATE TEMP TABLE %s AS SELECT * FROM %s LIMIT 0", tmp, table)
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create %s: %w", tmp, s.classify(table, err))
	}
	if b.Len() == 0 {
		return nil
	}

	if s.dialect == DialectDuckDB {
		q := fmt.Sprintf("COPY %s FROM '%s' (HEADER)", tmp, strings.ReplaceAll(path, "'", "''"))
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("copy %s: %w", path, s.classify(table, err))
		}
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(tmp, b.Columns...))
	if err != nil {
		return fmt.Errorf("prepare copy into %s: %w", tmp, s.classify(table, err))
	}
	args := make([]any, len(b.Columns))
	for r, row := range b.Rows {
		for i, v := range row {
			args[i] = v.SQL()
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			closeQuietly(stmt)
			return fmt.Errorf("copy row %d of %s: %w", r, path, s.classify(table, err))
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		closeQuietly(stmt)
		return fmt.Errorf("flush copy of %s: %w", path, s.classify(table, err))
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy of %s: %w", path, err)
	}
	return nil
}

// copyIntoSQL moves rows from a temporary table into table, skipping existing keys.
func copyIntoSQL(table, tmp string) string {
	cols := strings.Join(batch.SchemaFor(kindOf(table)).Columns, ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT DO NOTHING",
		table, cols, cols, tmp)
}

func kindOf(table string) batch.Kind {
	if table == batch.TableHits {
		return batch.KindHits
	}
	return batch.KindSessions
}

func execAffected(ctx context.Context, tx *sql.Tx, query string) (int64, error) {
	res, err := tx.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

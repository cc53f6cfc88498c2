// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomtom215/gaingest/internal/batch"
	"github.com/tomtom215/gaingest/internal/logging"
)

// OutcomeKind classifies the result of one batch insert.
type OutcomeKind string

const (
	// OutcomeInserted means the batch committed. Conflict-skipped rows still count as success.
	OutcomeInserted OutcomeKind = "inserted"
	// OutcomePartiallyRejected means the batch committed after upstream stages removed rows.
	OutcomePartiallyRejected OutcomeKind = "partially_rejected"
	// OutcomeFailed means the transaction was rolled back and nothing was persisted.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome is the structured result of one batch insert.
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Table  string      `json:"table"`
	Source string      `json:"source"`

	// Rows is the number of rows offered to the store.
	Rows int `json:"rows"`
	// Inserted rows were new; Skipped rows hit an existing key.
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`

	// Rejected counts rows removed before the insert by normalization.
	Rejected int `json:"rejected"`
	// Filtered counts hit rows removed because their session is not stored.
	Filtered int `json:"filtered"`

	Reason string `json:"reason,omitempty"`
	Err    error  `json:"-"`
}

// Failed reports whether the batch was rolled back.
func (o Outcome) Failed() bool { return o.Kind == OutcomeFailed }

func failed(table, source string, rows int, err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Table: table, Source: source, Rows: rows, Reason: err.Error(), Err: err}
}

// insertSQL builds the conflict-skip insert for schema with an explicit
// column list. Typed columns are cast so both dialects accept text binds.
func insertSQL(schema batch.Schema) string {
	placeholders := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		p := fmt.Sprintf("$%d", i+1)
		if t := sqlType(schema, c); t != "" {
			p = "CAST(" + p + " AS " + t + ")"
		}
		placeholders[i] = p
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
		schema.Table, strings.Join(schema.Columns, ", "), strings.Join(placeholders, ", "))
}

// Upsert inserts b into table inside one transaction. Rows whose key exists
// are skipped. On any error the transaction is rolled back and the outcome is
// Failed, wrapping a *ConstraintViolation or *ConnectionError when the driver
// reported one. Columns outside the table schema are ignored.
func (s *Store) Upsert(ctx context.Context, table string, b *batch.Batch) (out Outcome) {
	schema, ok := schemaForTable(table)
	if !ok {
		return failed(table, b.Source, b.Len(), fmt.Errorf("unknown table %q", table))
	}
	if b.Kind != schema.Kind {
		return failed(table, b.Source, b.Len(), fmt.Errorf("%s batch cannot be stored in %s", b.Kind, table))
	}
	for _, c := range schema.Columns {
		if !b.HasColumn(c) {
			return failed(table, b.Source, b.Len(), fmt.Errorf("batch lacks column %s", c))
		}
	}

	out = Outcome{Kind: OutcomeInserted, Table: table, Source: b.Source, Rows: b.Len()}
	if b.Len() == 0 {
		return out
	}
	rows := b.Project(schema.Columns)

	log := logging.Ctx(ctx)
	var err error

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return failed(table, b.Source, b.Len(), fmt.Errorf("begin transaction: %w", s.classify(table, err)))
	}
	defer func() {
		if err != nil {
			if rbErr := rollback(tx); rbErr != nil {
				log.Error().Err(rbErr).AnErr("original_error", err).Msg("Transaction rollback failed")
			}
			log.Error().Err(err).Str("table", table).Str("source", b.Source).
				Int("rows", b.Len()).Msg("Batch rolled back")
			out = failed(table, b.Source, b.Len(), err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertSQL(schema))
	if err != nil {
		err = fmt.Errorf("prepare insert: %w", s.classify(table, err))
		return out
	}
	defer closeWithLog(stmt, "statement")

	args := make([]any, len(schema.Columns))
	for r, row := range rows.Rows {
		for i, v := range row {
			args[i] = v.SQL()
		}
		res, execErr := stmt.ExecContext(ctx, args...)
		if execErr != nil {
			err = fmt.Errorf("insert row %d: %w", r, s.classify(table, execErr))
			return out
		}
		affected, raErr := res.RowsAffected()
		if raErr != nil {
			err = fmt.Errorf("rows affected for row %d: %w", r, raErr)
			return out
		}
		if affected > 0 {
			out.Inserted++
		} else {
			out.Skipped++
		}
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("commit: %w", s.classify(table, err))
		return out
	}

	log.Debug().Str("table", table).Str("source", b.Source).
		Int("inserted", out.Inserted).Int("skipped", out.Skipped).Msg("Batch committed")
	return out
}

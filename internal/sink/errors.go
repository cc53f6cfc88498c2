// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package sink

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lib/pq"

	"github.com/tomtom215/gaingest/internal/logging"
)

// ConnectionError reports that the relational store cannot be reached.
type ConnectionError struct {
	Dialect Dialect
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection: %v", e.Dialect, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ConstraintViolation reports an integrity error raised by an insert.
type ConstraintViolation struct {
	Table      string
	Constraint string
	Err        error
}

func (e *ConstraintViolation) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("constraint %s violated on %s: %v", e.Constraint, e.Table, e.Err)
	}
	return fmt.Sprintf("constraint violated on %s: %v", e.Table, e.Err)
}

func (e *ConstraintViolation) Unwrap() error { return e.Err }

// classify maps driver errors onto ConnectionError and ConstraintViolation.
// Other errors are returned unchanged.
func (s *Store) classify(table string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConnectionError
	var cv *ConstraintViolation
	if errors.As(err, &ce) || errors.As(err, &cv) {
		return err
	}
	if isConnectionError(err) {
		return &ConnectionError{Dialect: s.dialect, Err: err}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
		return &ConstraintViolation{Table: table, Constraint: pqErr.Constraint, Err: err}
	}
	if strings.Contains(err.Error(), "Constraint Error") {
		return &ConstraintViolation{Table: table, Err: err}
	}
	return err
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "08" {
		return true
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"bad connection",
		"database is closed",
		"no such host",
		"i/o timeout",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// closeWithLog closes a resource and logs a failure.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// closeQuietly closes a resource on an error path where the close error is not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

type rollbacker interface {
	Rollback() error
}

// rollback aborts tx. A transaction that already ended, as after a failed
// Commit, is not an error.
func rollback(tx rollbacker) error {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

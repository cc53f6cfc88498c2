// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package normalize

import "fmt"

// SchemaViolation records a row dropped because a required field was missing.
type SchemaViolation struct {
	Row    int
	Column string
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("row %d: required field %s is missing", e.Row, e.Column)
}

// TypeCoercionError reports a cell that cannot be converted to its column type.
type TypeCoercionError struct {
	Column string
	Row    int
	Value  string
	Err    error
}

func (e *TypeCoercionError) Error() string {
	return fmt.Sprintf("row %d: column %s: cannot coerce %q: %v", e.Row, e.Column, e.Value, e.Err)
}

func (e *TypeCoercionError) Unwrap() error { return e.Err }

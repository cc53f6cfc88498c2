// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package normalize

import (
	"github.com/tomtom215/gaingest/internal/batch"
)

// ColumnFilter removes the columns the schema drops and moves the stored
// columns into table order. Absent columns are ignored.
type ColumnFilter struct {
	schema batch.Schema
}

// Name implements Stage.
func (s *ColumnFilter) Name() string { return "column_filter" }

// Apply implements Stage.
func (s *ColumnFilter) Apply(b *batch.Batch) (*batch.Batch, StageResult, error) {
	kept := make([]string, 0, len(b.Columns))
	for _, c := range b.Columns {
		if !s.schema.IsDropped(c) {
			kept = append(kept, c)
		}
	}
	out := b.Project(canonicalOrder(s.schema, kept))
	return out, StageResult{Stage: s.Name(), RowsIn: b.Len(), RowsOut: out.Len()}, nil
}

// CategoricalImpute fills missing categorical cells with the sentinel
// category. Categorical columns absent from the header are added.
type CategoricalImpute struct {
	schema batch.Schema
}

// Name implements Stage.
func (s *CategoricalImpute) Name() string { return "categorical_impute" }

// Apply implements Stage.
func (s *CategoricalImpute) Apply(b *batch.Batch) (*batch.Batch, StageResult, error) {
	cols := append([]string(nil), b.Columns...)
	for _, c := range s.schema.Categorical {
		if !b.HasColumn(c) {
			cols = append(cols, c)
		}
	}
	out := b.Project(canonicalOrder(s.schema, cols))

	res := StageResult{Stage: s.Name(), RowsIn: b.Len(), RowsOut: out.Len()}
	sentinel := batch.Text(batch.SentinelCategory)
	for _, c := range s.schema.Categorical {
		i := out.Index(c)
		for _, row := range out.Rows {
			if row[i].IsNull() {
				row[i] = sentinel
				res.Imputed++
			}
		}
	}
	return out, res, nil
}

// RequiredFields drops rows missing any required column. Each dropped row
// is recorded as a SchemaViolation.
type RequiredFields struct {
	schema batch.Schema
}

// Name implements Stage.
func (s *RequiredFields) Name() string { return "required_fields" }

// Apply implements Stage.
func (s *RequiredFields) Apply(b *batch.Batch) (*batch.Batch, StageResult, error) {
	res := StageResult{Stage: s.Name(), RowsIn: b.Len()}
	idx := make([]int, len(s.schema.Required))
	for i, c := range s.schema.Required {
		idx[i] = b.Index(c)
	}

	out := b.Derive()
	for r, row := range b.Rows {
		if col, ok := firstMissing(row, idx, s.schema.Required); ok {
			res.Dropped++
			res.addIssue(&SchemaViolation{Row: r, Column: col})
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	res.RowsOut = out.Len()
	return out, res, nil
}

func firstMissing(row batch.Row, idx []int, names []string) (string, bool) {
	for i, j := range idx {
		if j < 0 || row[j].IsNull() {
			return names[i], true
		}
	}
	return "", false
}

// TypeCoercion converts cells to their column types: integers, dates and
// times of day for the typed columns and text for everything else.
type TypeCoercion struct {
	schema batch.Schema
	policy CoercionPolicy
}

// Name implements Stage.
func (s *TypeCoercion) Name() string { return "type_coercion" }

// Apply implements Stage.
func (s *TypeCoercion) Apply(b *batch.Batch) (*batch.Batch, StageResult, error) {
	res := StageResult{Stage: s.Name(), RowsIn: b.Len()}
	convs := make([]converter, len(b.Columns))
	for i, c := range b.Columns {
		convs[i] = s.converterFor(c)
	}

	out := b.Derive()
	for r, row := range b.Rows {
		nr := make(batch.Row, len(row))
		var rowErr *TypeCoercionError
		for i, v := range row {
			cv, err := convs[i](v)
			if err != nil {
				rowErr = &TypeCoercionError{Column: b.Columns[i], Row: r, Value: v.String(), Err: err}
				break
			}
			nr[i] = cv
		}
		if rowErr != nil {
			if s.policy != PolicyRow {
				return nil, res, rowErr
			}
			res.Rejected++
			res.addIssue(rowErr)
			continue
		}
		out.Rows = append(out.Rows, nr)
	}
	res.RowsOut = out.Len()
	return out, res, nil
}

func (s *TypeCoercion) converterFor(col string) converter {
	switch {
	case col == "visit_number":
		return toPositiveInt
	case s.schema.IsInt(col):
		return toInt
	case s.schema.IsDate(col):
		return toDate
	case s.schema.IsTime(col):
		return toTimeOfDay
	default:
		return toText
	}
}

// Dedup removes exact duplicate rows, keeping the first occurrence.
type Dedup struct{}

// Name implements Stage.
func (s *Dedup) Name() string { return "dedup" }

// Apply implements Stage.
func (s *Dedup) Apply(b *batch.Batch) (*batch.Batch, StageResult, error) {
	res := StageResult{Stage: s.Name(), RowsIn: b.Len()}
	seen := make(map[string]struct{}, b.Len())
	out := b.Derive()
	for r, row := range b.Rows {
		k := b.Key(r)
		if _, dup := seen[k]; dup {
			res.Dropped++
			continue
		}
		seen[k] = struct{}{}
		out.Rows = append(out.Rows, row)
	}
	res.RowsOut = out.Len()
	return out, res, nil
}

// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package normalize

import (
	"sort"

	"github.com/tomtom215/gaingest/internal/batch"
)

// ColumnProfile is the share of missing cells in one column.
type ColumnProfile struct {
	Column  string  `json:"column"`
	Missing int     `json:"missing"`
	Percent float64 `json:"percent"`
}

// MissingProfile returns the percentage of missing cells per column, highest
// first. Ties keep header order.
func MissingProfile(b *batch.Batch) []ColumnProfile {
	out := make([]ColumnProfile, len(b.Columns))
	for i, c := range b.Columns {
		out[i].Column = c
		for _, row := range b.Rows {
			if row[i].IsNull() {
				out[i].Missing++
			}
		}
		if n := b.Len(); n > 0 {
			out[i].Percent = float64(out[i].Missing) * 100 / float64(n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Percent > out[j].Percent })
	return out
}

// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

// Package referential removes hit rows whose session is not stored.
package referential

import (
	"github.com/tomtom215/gaingest/internal/batch"
)

// SessionSet is a snapshot of stored session ids.
type SessionSet struct {
	ids map[string]struct{}
}

// NewSessionSet builds a set from ids.
func NewSessionSet(ids []string) SessionSet {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return SessionSet{ids: m}
}

// Contains reports whether id is in the set.
func (s SessionSet) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of ids.
func (s SessionSet) Len() int { return len(s.ids) }

// Result counts the rows kept and dropped by Filter.
type Result struct {
	Kept    int `json:"kept"`
	Dropped int `json:"dropped"`
}

// Filter returns the hit rows whose session_id is in known, preserving order.
// A batch without a session_id column yields an empty batch.
func Filter(hits *batch.Batch, known SessionSet) (*batch.Batch, Result) {
	out := hits.Derive()
	i := hits.Index("session_id")
	var res Result
	for _, row := range hits.Rows {
		if i >= 0 && !row[i].IsNull() && known.Contains(row[i].String()) {
			out.Rows = append(out.Rows, row)
			res.Kept++
			continue
		}
		res.Dropped++
	}
	return out, res
}

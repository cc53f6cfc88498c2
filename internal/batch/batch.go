// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

// Package batch defines the in-memory table that flows between the loader,
// the normalizer, the referential filter and the sink.
package batch

import (
	"fmt"
	"strings"
)

// Kind is the entity kind of a batch.
type Kind string

const (
	KindSessions Kind = "sessions"
	KindHits     Kind = "hits"
)

// ParseKind parses a kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindSessions:
		return KindSessions, nil
	case KindHits:
		return KindHits, nil
	default:
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
}

// Row is one record; cells are positional against Batch.Columns.
type Row []Value

// Batch is a column-ordered table of one entity kind produced from a single
// artifact.
type Batch struct {
	Kind    Kind
	Source  string
	Columns []string
	Rows    []Row
}

// New returns an empty batch with the given header.
func New(kind Kind, source string, columns []string) *Batch {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Batch{Kind: kind, Source: source, Columns: cols}
}

// Len returns the number of rows.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// Index returns the position of column name, or -1.
func (b *Batch) Index(name string) int {
	for i, c := range b.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether name is part of the header.
func (b *Batch) HasColumn(name string) bool {
	return b.Index(name) >= 0
}

// Append adds a row. The row must match the header width.
func (b *Batch) Append(row Row) error {
	if len(row) != len(b.Columns) {
		return fmt.Errorf("row has %d cells, header has %d columns", len(row), len(b.Columns))
	}
	b.Rows = append(b.Rows, row)
	return nil
}

// Value returns the cell at row r for column name, or Null when the column is absent.
func (b *Batch) Value(r int, name string) Value {
	i := b.Index(name)
	if i < 0 {
		return Null()
	}
	return b.Rows[r][i]
}

// Clone returns a deep copy of b's header and rows.
func (b *Batch) Clone() *Batch {
	out := New(b.Kind, b.Source, b.Columns)
	out.Rows = make([]Row, len(b.Rows))
	for i, r := range b.Rows {
		cp := make(Row, len(r))
		copy(cp, r)
		out.Rows[i] = cp
	}
	return out
}

// Derive returns an empty batch sharing b's kind, source and a copy of its header.
func (b *Batch) Derive() *Batch {
	return New(b.Kind, b.Source, b.Columns)
}

// Project returns a batch restricted to columns, in that order. Columns
// absent from b are filled with Null.
func (b *Batch) Project(columns []string) *Batch {
	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i] = b.Index(c)
	}
	out := New(b.Kind, b.Source, columns)
	out.Rows = make([]Row, len(b.Rows))
	for r, row := range b.Rows {
		nr := make(Row, len(columns))
		for i, j := range idx {
			if j >= 0 {
				nr[i] = row[j]
			}
		}
		out.Rows[r] = nr
	}
	return out
}

// Key renders row r as a string that is equal for two rows exactly when
// every cell is Equal. Used for exact-duplicate detection.
func (b *Batch) Key(r int) string {
	var sb strings.Builder
	for _, v := range b.Rows[r] {
		sb.WriteByte(byte('0' + v.Type()))
		s := v.String()
		fmt.Fprintf(&sb, "%d:", len(s))
		sb.WriteString(s)
	}
	return sb.String()
}

// Equal reports whether a and b have identical headers and rows.
func Equal(a, b *Batch) bool {
	if a.Len() != b.Len() || len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return false
		}
	}
	for r := range a.Rows {
		for c := range a.Rows[r] {
			if !a.Rows[r][c].Equal(b.Rows[r][c]) {
				return false
			}
		}
	}
	return true
}

// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package normalize

import (
	"testing"

	"github.com/tomtom215/gaingest/internal/batch"
)

func TestMissingProfile(t *testing.T) {
	t.Parallel()

	b := batch.New(batch.KindHits, "", []string{"session_id", "event_value", "hit_referer"})
	b.Rows = []batch.Row{
		{batch.Text("A"), batch.Null(), batch.Null()},
		{batch.Text("B"), batch.Null(), batch.Text("x")},
		{batch.Text("C"), batch.Null(), batch.Null()},
		{batch.Text("D"), batch.Text("1"), batch.Text("y")},
	}

	got := MissingProfile(b)
	want := []ColumnProfile{
		{Column: "event_value", Missing: 3, Percent: 75},
		{Column: "hit_referer", Missing: 2, Percent: 50},
		{Column: "session_id", Missing: 0, Percent: 0},
	}
	if len(got) != len(want) {
		t.Fatalf("MissingProfile() = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("MissingProfile()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestMissingProfile_Empty(t *testing.T) {
	t.Parallel()

	got := MissingProfile(batch.New(batch.KindHits, "", []string{"a"}))
	if len(got) != 1 || got[0].Percent != 0 {
		t.Errorf("MissingProfile(empty) = %+v", got)
	}
}

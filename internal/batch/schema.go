// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package batch

import "slices"

// Table names in the relational store.
const (
	TableSessions = "db_sessions"
	TableHits     = "db_hits"
)

// SentinelCategory replaces missing categorical values.
const SentinelCategory = "other"

// Schema describes how one entity kind is normalized and stored.
type Schema struct {
	Kind  Kind
	Table string

	// RawColumns is the full field set of a raw export, in export order.
	RawColumns []string

	// Dropped columns are removed by the column filter.
	Dropped []string

	// Categorical columns get SentinelCategory in place of missing values.
	Categorical []string

	// Required columns must be present; rows missing one are dropped.
	Required []string

	IntColumns  []string
	DateColumns []string
	TimeColumns []string

	// Columns is the normalized column order, which is also the table column order.
	Columns []string

	// Key is the primary key of Table.
	Key []string
}

var sessionsSchema = Schema{
	Kind:  KindSessions,
	Table: TableSessions,
	RawColumns: []string{
		"session_id", "client_id", "visit_date", "visit_time", "visit_number",
		"utm_source", "utm_medium", "utm_campaign", "utm_adcontent", "utm_keyword",
		"device_category", "device_os", "device_brand", "device_model",
		"device_screen_resolution", "device_browser", "geo_country", "geo_city",
	},
	Dropped: []string{"device_model", "utm_keyword", "device_os"},
	Categorical: []string{
		"utm_source", "utm_medium", "utm_campaign", "utm_adcontent",
		"device_category", "device_brand", "device_screen_resolution",
		"device_browser", "geo_country", "geo_city",
	},
	Required:    []string{"visit_number", "visit_time", "visit_date", "session_id", "client_id"},
	IntColumns:  []string{"visit_number"},
	DateColumns: []string{"visit_date"},
	TimeColumns: []string{"visit_time"},
	Columns: []string{
		"session_id", "client_id", "visit_date", "visit_time", "visit_number",
		"utm_source", "utm_medium", "utm_campaign", "utm_adcontent",
		"device_category", "device_brand", "device_screen_resolution",
		"device_browser", "geo_country", "geo_city",
	},
	Key: []string{"session_id"},
}

var hitsSchema = Schema{
	Kind:  KindHits,
	Table: TableHits,
	RawColumns: []string{
		"session_id", "hit_date", "hit_time", "hit_number", "hit_type",
		"hit_referer", "hit_page_path", "event_category", "event_action",
		"event_label", "event_value",
	},
	Dropped:     []string{"event_value", "hit_time", "hit_referer", "event_label", "hit_type"},
	Categorical: []string{"hit_page_path", "event_category", "event_action"},
	Required:    []string{"hit_date", "hit_number", "session_id"},
	IntColumns:  []string{"hit_number"},
	DateColumns: []string{"hit_date"},
	Columns: []string{
		"session_id", "hit_date", "hit_number", "hit_page_path",
		"event_category", "event_action",
	},
	Key: []string{"session_id", "hit_number"},
}

// SchemaFor returns the schema of kind. It panics on an unknown kind.
func SchemaFor(kind Kind) Schema {
	switch kind {
	case KindSessions:
		return sessionsSchema
	case KindHits:
		return hitsSchema
	default:
		panic("batch: unknown kind " + string(kind))
	}
}

// IsInt reports whether col is an integer column.
func (s Schema) IsInt(col string) bool { return slices.Contains(s.IntColumns, col) }

// IsDate reports whether col is a date column.
func (s Schema) IsDate(col string) bool { return slices.Contains(s.DateColumns, col) }

// IsTime reports whether col is a time-of-day column.
func (s Schema) IsTime(col string) bool { return slices.Contains(s.TimeColumns, col) }

// IsDropped reports whether the column filter removes col.
func (s Schema) IsDropped(col string) bool { return slices.Contains(s.Dropped, col) }

// IsKnown reports whether col is part of the raw export field set.
func (s Schema) IsKnown(col string) bool { return slices.Contains(s.RawColumns, col) }

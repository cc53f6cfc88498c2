// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package sink

import "github.com/tomtom215/gaingest/internal/batch"

// Both dialects accept the same DDL. The primary key carries uniqueness.
const createSessionsSQL = `CREATE TABLE IF NOT EXISTS db_sessions (
	session_id VARCHAR(50) NOT NULL PRIMARY KEY,
	client_id VARCHAR(50) NOT NULL,
	visit_date DATE NOT NULL,
	visit_time TIME NOT NULL,
	visit_number SMALLINT NOT NULL,
	utm_source VARCHAR(50) NOT NULL,
	utm_medium VARCHAR(50) NOT NULL,
	utm_campaign VARCHAR(50) NOT NULL,
	utm_adcontent VARCHAR(50) NOT NULL,
	device_category VARCHAR(50) NOT NULL,
	device_brand VARCHAR(50) NOT NULL,
	device_screen_resolution VARCHAR(50) NOT NULL,
	device_browser VARCHAR(50) NOT NULL,
	geo_country VARCHAR(50) NOT NULL,
	geo_city VARCHAR(50) NOT NULL
)`

const createHitsSQL = `CREATE TABLE IF NOT EXISTS db_hits (
	session_id VARCHAR(50) NOT NULL,
	hit_date DATE NOT NULL,
	hit_number SMALLINT NOT NULL,
	hit_page_path TEXT NOT NULL,
	event_category VARCHAR(50) NOT NULL,
	event_action VARCHAR(50) NOT NULL,
	PRIMARY KEY (session_id, hit_number),
	FOREIGN KEY (session_id) REFERENCES db_sessions (session_id)
)`

const addHitsForeignKeySQL = `ALTER TABLE db_hits ADD FOREIGN KEY (session_id) REFERENCES db_sessions (session_id)`

const deleteOrphanHitsSQL = `DELETE FROM db_hits WHERE NOT EXISTS
	(SELECT 1 FROM db_sessions s WHERE db_hits.session_id = s.session_id)`

// sqlType returns the cast applied to a bound parameter for col, or "".
func sqlType(schema batch.Schema, col string) string {
	switch {
	case schema.IsDate(col):
		return "DATE"
	case schema.IsTime(col):
		return "TIME"
	case schema.IsInt(col):
		return "SMALLINT"
	default:
		return ""
	}
}

func schemaForTable(table string) (batch.Schema, bool) {
	switch table {
	case batch.TableSessions:
		return batch.SchemaFor(batch.KindSessions), true
	case batch.TableHits:
		return batch.SchemaFor(batch.KindHits), true
	default:
		return batch.Schema{}, false
	}
}

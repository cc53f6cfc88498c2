// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

// Package metrics defines the Prometheus collectors for ingestion runs and
// the ops HTTP surface. Collectors register with the default registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run Metrics
	Runs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaingest_runs_total",
			Help: "Total number of ingestion runs by final status",
		},
		[]string{"status"}, // "succeeded", "failed"
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gaingest_run_duration_seconds",
			Help:    "Wall time of ingestion runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	LastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gaingest_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful run",
		},
	)

	TaskAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaingest_task_attempts_total",
			Help: "Task attempts by task and result",
		},
		[]string{"task", "result"}, // task: "preprocess", "load"
	)

	// Artifact and Batch Metrics
	Artifacts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaingest_artifacts_total",
			Help: "Artifacts processed by kind and resulting state",
		},
		[]string{"kind", "state"},
	)

	NormalizeDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaingest_normalize_dropped_rows_total",
			Help: "Rows removed by normalization stages",
		},
		[]string{"kind", "stage"},
	)

	Batches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaingest_batches_total",
			Help: "Batches offered to the store by table and outcome",
		},
		[]string{"table", "outcome"},
	)

	Rows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaingest_rows_total",
			Help: "Rows by table and result",
		},
		[]string{"table", "result"}, // "inserted", "skipped", "filtered", "rejected"
	)

	// Scheduler Metrics
	SchedulerNextRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gaingest_scheduler_next_run_timestamp_seconds",
			Help: "Unix timestamp of the next scheduled run",
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaingest_api_requests_total",
			Help: "Total number of ops API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gaingest_api_request_duration_seconds",
			Help:    "Duration of ops API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, route, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetNextRun publishes the next scheduled fire time.
func SetNextRun(t time.Time) {
	SchedulerNextRun.Set(float64(t.Unix()))
}

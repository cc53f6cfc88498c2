// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

// Package api serves the ops HTTP surface: health, Prometheus metrics and
// the recent run reports.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/gaingest/internal/history"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Trigger requests an out-of-schedule run.
type Trigger interface {
	Trigger() bool
}

// Deps are the collaborators of the ops router. Trigger may be nil, which
// disables POST /api/v1/runs.
type Deps struct {
	Store   Pinger
	Runs    history.Lister
	Trigger Trigger

	// RateLimit caps /api/v1 requests per client IP per minute. Zero
	// disables the limit.
	RateLimit int

	// CORSOrigins lists browser origins allowed to read /api/v1. Empty
	// sends no CORS headers.
	CORSOrigins []string
}

// Handler holds the route handlers.
type Handler struct {
	deps Deps
}

// NewRouter builds the chi router.
func NewRouter(deps Deps) http.Handler {
	h := &Handler{deps: deps}
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if len(deps.CORSOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: deps.CORSOrigins,
				AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
				ExposedHeaders: []string{"X-Request-Id", "X-RateLimit-Remaining"},
				MaxAge:         300,
			}))
		}
		if deps.RateLimit > 0 {
			r.Use(httprate.LimitByIP(deps.RateLimit, time.Minute))
		}
		r.Use(prometheusMetrics)

		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{id}", h.GetRun)
		if deps.Trigger != nil {
			r.Post("/runs", h.TriggerRun)
		}
	})
	return r
}

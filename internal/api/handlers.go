// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/gaingest/internal/history"
	"github.com/tomtom215/gaingest/internal/logging"
	"github.com/tomtom215/gaingest/internal/validation"
)

const defaultRunLimit = 20

// APIError is the error body of every failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response wraps every JSON body.
type Response struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *APIError `json:"error,omitempty"`
}

type listRunsRequest struct {
	Limit int `koanf:"limit" validate:"gte=1,lte=500"`
}

// Health reports 200 when the store answers a ping and 503 otherwise.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.deps.Store.Ping(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "database is unreachable", err)
			return
		}
	}
	respondJSON(w, http.StatusOK, &Response{Status: "success", Data: map[string]string{"store": "ok"}})
}

// ListRuns returns recent run reports, newest first. ?limit defaults to 20.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	req := listRunsRequest{Limit: defaultRunLimit}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		req.Limit = n
	}
	if err := validation.ValidateStruct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	runs, err := h.deps.Runs.List(r.Context(), req.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "HISTORY_ERROR", "failed to list runs", err)
		return
	}
	respondJSON(w, http.StatusOK, &Response{Status: "success", Data: runs})
}

// GetRun returns one run report.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.deps.Runs.Get(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "run not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "HISTORY_ERROR", "failed to load run", err)
		return
	}
	respondJSON(w, http.StatusOK, &Response{Status: "success", Data: run})
}

// TriggerRun queues a run. 409 means one is already queued.
func (h *Handler) TriggerRun(w http.ResponseWriter, _ *http.Request) {
	if !h.deps.Trigger.Trigger() {
		respondError(w, http.StatusConflict, "RUN_PENDING", "a run is already queued", nil)
		return
	}
	respondJSON(w, http.StatusAccepted, &Response{Status: "success", Data: map[string]string{"run": "queued"}})
}

func respondJSON(w http.ResponseWriter, status int, body *Response) {
	data, err := json.Marshal(body)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Err(err).Str("code", code).Msg("API error")
	}
	respondJSON(w, status, &Response{Status: "error", Error: &APIError{Code: code, Message: message}})
}

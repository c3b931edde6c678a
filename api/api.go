// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package api exposes matching runs over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/someonegg/activitymatch"
	"github.com/someonegg/activitymatch/period"
	"github.com/someonegg/activitymatch/runlock"
	"github.com/someonegg/activitymatch/scoring"
)

type Handler struct {
	Store   period.Store
	Scoring *scoring.Scoring
	Matcher period.Matcher
	Log     logrus.FieldLogger
}

type errorResponse struct {
	Error string `json:"error"`
}

// Router returns the routes:
//
//	GET  /health
//	POST /periods/{id}/match[?dry_run=true]
//	GET  /periods/{id}/snapshot
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.accessLog)

	r.Get("/health", h.health)
	r.Route("/periods/{id}", func(r chi.Router) {
		r.Post("/match", h.match)
		r.Get("/snapshot", h.snapshot)
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) match(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	m := h.Matcher
	m.Log = h.log(r)
	if v := r.URL.Query().Get("dry_run"); v != "" {
		dry, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid dry_run: "+v)
			return
		}
		m.DryRun = dry
	}

	summ, err := m.DeferredAcceptanceFromDatabase(r.Context(), h.Store, id, h.Scoring)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summ)
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var snap *period.Snapshot
	err := h.Store.InTx(r.Context(), func(ctx context.Context, tx period.Tx) error {
		var err error
		snap, err = period.Export(ctx, tx, id)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.log(r).WithError(err).Error("request failed")
		writeError(w, status, "internal error")
		return
	}
	h.log(r).WithError(err).Info("request refused")
	writeError(w, status, err.Error())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, period.ErrPeriodNotFound):
		return http.StatusNotFound
	case errors.Is(err, runlock.ErrLocked),
		errors.Is(err, period.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, period.ErrPeriodInactive),
		errors.Is(err, period.ErrPeriodConfirmed),
		errors.Is(err, activitymatch.ErrNoOccasions),
		errors.Is(err, activitymatch.ErrInvalidCapacity),
		errors.Is(err, activitymatch.ErrDuplicateID),
		errors.Is(err, activitymatch.ErrUnknownOccasion),
		errors.Is(err, activitymatch.ErrInconsistentSnapshot),
		errors.Is(err, scoring.ErrMissingData),
		errors.Is(err, scoring.ErrInvalidScore):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *Handler) log(r *http.Request) logrus.FieldLogger {
	log := h.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return log.WithField("request_id", middleware.GetReqID(r.Context()))
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log(r).WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start),
		}).Debug("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpapi exposes the service's health, status and manual cycle
// trigger endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bcem/leadtracker/internal/cycle"
)

// Pinger is a backend whose reachability /health reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Cycles runs and reports cycles. *cycle.Scheduler implements it.
type Cycles interface {
	Trigger(ctx context.Context) (*cycle.Report, error)
	LastReport() *cycle.Report
	Running() bool
}

// Config wires the API to the running service.
type Config struct {
	Cycles Cycles
	// Checks maps a backend name to its health probe.
	Checks map[string]Pinger
	// PingTimeout bounds each health probe. Defaults to 5s.
	PingTimeout time.Duration
}

type api struct {
	cycles      Cycles
	checks      map[string]Pinger
	pingTimeout time.Duration
}

// NewRouter builds the HTTP handler.
func NewRouter(cfg Config) http.Handler {
	a := &api{cycles: cfg.Cycles, checks: cfg.Checks, pingTimeout: cfg.PingTimeout}
	if a.pingTimeout <= 0 {
		a.pingTimeout = 5 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLog)

	r.Get("/health", a.health)
	r.Get("/status", a.status)
	r.Post("/cycles", a.trigger)
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(a.checks))
	for name := range a.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{Status: "healthy", Checks: map[string]string{}}
	code := http.StatusOK
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), a.pingTimeout)
		err := a.checks[name].Ping(ctx)
		cancel()
		if err != nil {
			slog.Warn("health check failed", "backend", name, "error", err)
			resp.Checks[name] = err.Error()
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, code, resp)
}

type statusResponse struct {
	Running   bool          `json:"running"`
	LastCycle *cycle.Report `json:"last_cycle"`
}

func (a *api) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Running:   a.cycles.Running(),
		LastCycle: a.cycles.LastReport(),
	})
}

type errorResponse struct {
	Error  string        `json:"error"`
	Report *cycle.Report `json:"report,omitempty"`
}

// trigger runs a cycle and waits for it. The cycle is detached from the
// request so a dropped client cannot abort it halfway.
func (a *api) trigger(w http.ResponseWriter, r *http.Request) {
	rep, err := a.cycles.Trigger(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, cycle.ErrCycleInProgress):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Report: rep})
	default:
		writeJSON(w, http.StatusOK, rep)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Package api provides the admin/control HTTP surface fronting the
// Lifecycle Manager: /status plus /pause, /resume, /stop. Grounded on the
// chi routing style of internal/httpserver/router.go in the pack's
// tradepl example (chi.NewRouter, r.Get/r.Post) — scaled down from that
// repo's large authenticated multi-handler router to the handful of
// endpoints one engine process needs. Mounted with all controls wired by
// cmd/execengine, the process that actually owns the Lifecycle Manager
// instance; cmd/gateway only ever sees Redis-published state, never the
// Engine itself, so it mounts the same router with no Controls, serving
// /health and /status only.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Controls bundles the Lifecycle Manager operations the admin surface
// exposes. Each func is optional; a nil one reports 501 Not Implemented
// rather than panicking, so a caller can mount a partial surface (e.g.
// cmd/gateway's read-only deployment, which has no live Engine to drive).
type Controls struct {
	Pause  func()
	Resume func(ctx context.Context)
	Stop   func() error
}

// Deps bundles the status values and control hooks the router exposes.
// ClientCount is a func rather than an int so the router always reads
// the Hub's live count instead of a snapshot taken at wiring time.
type Deps struct {
	Symbol      string
	TF          string
	Started     time.Time
	ClientCount func() int
	Paused      func() bool
	Controls    Controls
}

// NewRouter builds the admin/status router. Mounted under "/api/v1".
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		clients := 0
		if d.ClientCount != nil {
			clients = d.ClientCount()
		}
		paused := false
		if d.Paused != nil {
			paused = d.Paused()
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"symbol":          d.Symbol,
			"tf":              d.TF,
			"uptime_seconds":  time.Since(d.Started).Seconds(),
			"dashboard_peers": clients,
			"paused":          paused,
		})
	})

	r.Post("/pause", func(w http.ResponseWriter, r *http.Request) {
		if d.Controls.Pause == nil {
			writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "pause control not wired on this deployment"})
			return
		}
		d.Controls.Pause()
		writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
	})

	r.Post("/resume", func(w http.ResponseWriter, r *http.Request) {
		if d.Controls.Resume == nil {
			writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "resume control not wired on this deployment"})
			return
		}
		d.Controls.Resume(r.Context())
		writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
	})

	r.Post("/stop", func(w http.ResponseWriter, r *http.Request) {
		if d.Controls.Stop == nil {
			writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "stop control not wired on this deployment"})
			return
		}
		if err := d.Controls.Stop(); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

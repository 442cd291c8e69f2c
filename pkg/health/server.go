// wsfabric - clustered WebSocket messaging framework
// Copyright (C) 2025 wsfabric contributors
//
// This file is part of wsfabric.
//
// wsfabric is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// wsfabric is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public
// License along with wsfabric. If not, see <https://www.gnu.org/licenses/>.

package health

import (
	"encoding/json"
	"net/http"
	"time"
)

// Handlers wraps a Checker with the HTTP handlers wsnode mounts on its
// own mux (/health, /health/live, /health/ready).
type Handlers struct {
	checker *Checker
}

// NewHandlers creates the handler set for checker.
func NewHandlers(checker *Checker) *Handlers {
	return &Handlers{checker: checker}
}

// Mount registers this package's endpoints on mux.
func (h *Handlers) Mount(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/health/live", h.handleLiveness)
	mux.HandleFunc("/health/ready", h.handleReadiness)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.checker.CheckAll()

	switch status.Status {
	case StatusUnhealthy:
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		w.WriteHeader(http.StatusOK)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

// handleLiveness reports whether the process is running at all. It
// performs no registry checks — a wedged supervisor loop is a
// readiness concern, not a liveness one.
func (h *Handlers) handleLiveness(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// handleReadiness reports whether the node is ready to accept
// traffic: it is ready unless CheckAll's aggregated status is
// unhealthy. Cluster peer connectivity is not checked.
func (h *Handlers) handleReadiness(w http.ResponseWriter, r *http.Request) {
	status := h.checker.CheckAll()
	ready := status.Status != StatusUnhealthy

	response := map[string]interface{}{
		"ready":     ready,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"server":    status.ServerStatus,
	}
	if !ready {
		response["errors"] = status.Errors
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

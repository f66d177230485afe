package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/angeloszaimis/ws-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/ws-balancer/internal/session"
)

// StatusProvider is the read-only view of the balancer the endpoints need.
type StatusProvider interface {
	Status() loadbalancer.Status
	Sessions() []session.Info
	HasHealthyBackend() bool
}

type MonitoringHandler struct {
	logger   *slog.Logger
	balancer StatusProvider
}

func NewMonitoringHandler(logger *slog.Logger, balancer StatusProvider) *MonitoringHandler {
	return &MonitoringHandler{
		logger:   logger.With(slog.String("component", "monitoring")),
		balancer: balancer,
	}
}

// Status serves the pool snapshot as JSON.
func (h *MonitoringHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.balancer.Status())
}

// Sessions serves every open session as JSON.
func (h *MonitoringHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.balancer.Sessions())
}

// Healthz answers 200 while at least one backend is healthy and 503 otherwise.
func (h *MonitoringHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if !h.balancer.HasHealthyBackend() {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *MonitoringHandler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to encode response", slog.String("error", err.Error()))
	}
}

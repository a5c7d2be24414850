package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
	"wechat-reader/internal/core"
)

// Pinger reports whether the database is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SystemHandler serves the service-level endpoints
type SystemHandler struct {
	logger   *core.Logger
	registry *core.Registry
	db       Pinger
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(logger *core.Logger, registry *core.Registry, db Pinger) *SystemHandler {
	return &SystemHandler{
		logger:   logger,
		registry: registry,
		db:       db,
	}
}

// HealthCheckHandler reports database reachability and feature status
func (h *SystemHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	if err := h.db.PingContext(ctx); err != nil {
		h.logger.WithContext(r.Context()).Error("Health check database ping failed", "error", err)
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   status,
		"service":  "wechat-reader",
		"version":  "1.0.0",
		"features": h.registry.GetFeatureStatus(),
	})
}

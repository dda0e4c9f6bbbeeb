package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/jwebster45206/combat-engine/internal/services"
)

type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Service    string            `json:"service"`
	Components map[string]string `json:"components"`
	Queues     map[string]int    `json:"queues,omitempty"`
}

// QueueReporter reports how many characters wait in each match queue.
type QueueReporter interface {
	Depths(ctx context.Context) (map[string]int, error)
}

type HealthHandler struct {
	components map[string]services.HealthChecker
	queues     QueueReporter
	logger     *slog.Logger
}

// NewHealthHandler reports on the named dependencies.
func NewHealthHandler(components map[string]services.HealthChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		components: components,
		logger:     logger,
	}
}

// WithQueues adds match queue depths to the report.
func (h *HealthHandler) WithQueues(q QueueReporter) *HealthHandler {
	h.queues = q
	return h
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	h.logger.Debug("Health check requested",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]string, len(h.components))
	overallStatus := "healthy"

	for _, name := range slices.Sorted(maps.Keys(h.components)) {
		if err := h.components[name].Ping(ctx); err != nil {
			h.logger.Warn("Health check failed", "component", name, "error", err)
			components[name] = "unhealthy"
			overallStatus = "degraded"
			continue
		}
		components[name] = "healthy"
	}

	response := HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Service:    "combat-engine",
		Components: components,
	}
	if h.queues != nil && overallStatus == "healthy" {
		depths, err := h.queues.Depths(ctx)
		if err != nil {
			h.logger.Warn("Queue depth check failed", "error", err)
		} else {
			response.Queues = depths
		}
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Error encoding health response",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path)
	}
}

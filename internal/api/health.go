package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

var errDatasetEmpty = errors.New("dataset has no rows")

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RowCounter reports how many working rows are loaded.
type RowCounter interface {
	Len() int
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db      Pinger
	data    RowCounter
	timeout time.Duration
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db Pinger, data RowCounter) *HealthHandler {
	return &HealthHandler{db: db, data: data, timeout: healthCheckTimeout}
}

// Check runs every readiness check and returns the per-check status. The
// error is the first failure.
func (h *HealthHandler) Check(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	var first error

	if err := h.db.Ping(ctx); err != nil {
		checks["database"] = "unreachable"
		first = fmt.Errorf("ping database: %w", err)
	} else {
		checks["database"] = "ok"
	}

	if h.data == nil || h.data.Len() == 0 {
		checks["dataset"] = "empty"
		if first == nil {
			first = errDatasetEmpty
		}
	} else {
		checks["dataset"] = "ok"
	}
	return checks, first
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks, err := h.Check(r.Context())
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK
	if err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		statusCode = http.StatusServiceUnavailable
	}
	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

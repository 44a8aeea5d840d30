// Package api provides HTTP handlers for the postlens API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/postlens/internal/agent"
	"github.com/ashureev/postlens/internal/composer"
	"github.com/ashureev/postlens/internal/config"
	"github.com/ashureev/postlens/internal/dataset"
	"github.com/ashureev/postlens/internal/identity"
	"github.com/ashureev/postlens/internal/store"
)

// Deps bundles what the session, history and dataset endpoints read from.
type Deps struct {
	Service  *agent.Service
	History  store.HistoryStore
	Dataset  *dataset.Dataset
	Composer composer.Options
}

// Handler serves the JSON API around the chat stream.
type Handler struct {
	agent    *agent.Service
	history  store.HistoryStore
	data     *dataset.Dataset
	composer composer.Options
	cfg      *config.Config
}

// NewHandler creates a new Handler. cfg may be nil.
func NewHandler(deps Deps, cfg *config.Config) *Handler {
	opts := deps.Composer
	if deps.Dataset != nil && opts.Columns == nil {
		opts.Columns = deps.Dataset
	}
	return &Handler{
		agent:    deps.Service,
		history:  deps.History,
		data:     deps.Dataset,
		composer: opts,
		cfg:      cfg,
	}
}

// RegisterRoutes registers session, history and dataset routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)
		r.Get("/dataset", h.GetDataset)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Post("/reset", h.ResetSession)
			r.Get("/data", h.GetSessionData)
			r.Get("/insights", h.GetSessionInsights)
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/", h.ListHistory)
			r.Get("/{id}", h.GetHistory)
			r.Delete("/{id}", h.DeleteHistory)
			r.Post("/{id}/restore", h.RestoreHistory)
		})
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// caller returns the identity attached by the identity middleware, writing
// 401 when there is none.
func caller(w http.ResponseWriter, r *http.Request) (userID, sessionID string, ok bool) {
	userID = identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return "", "", false
	}
	return userID, identity.SessionIDFromContext(r.Context()), true
}

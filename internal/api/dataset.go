package api

import (
	"net/http"

	"github.com/ashureev/postlens/internal/composer"
)

// GetDataset describes the loaded dataset.
func (h *Handler) GetDataset(w http.ResponseWriter, _ *http.Request) {
	if h.data == nil {
		Error(w, http.StatusServiceUnavailable, "dataset not loaded")
		return
	}
	JSON(w, http.StatusOK, h.data.Info())
}

// GetConfig returns the server configuration for the frontend.
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	out := map[string]interface{}{
		"page_size": composer.PageSize,
		"top_n":     h.composer.TopN,
	}
	if h.cfg != nil {
		out["language"] = h.cfg.LLM.Language
		out["model"] = h.cfg.LLM.Model
		out["history_backend"] = h.cfg.History.Backend
		out["rate_limit"] = map[string]interface{}{
			"requests":       h.cfg.RateLimit.RequestsPerWindow,
			"window_seconds": int64(h.cfg.RateLimit.WindowDuration.Seconds()),
		}
	}
	JSON(w, http.StatusOK, out)
}

package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/postlens/internal/agent"
	"github.com/ashureev/postlens/internal/conversation"
	"github.com/ashureev/postlens/internal/domain"
	"github.com/ashureev/postlens/internal/store"
)

// ListHistory returns the caller's saved conversations, newest first.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := caller(w, r)
	if !ok {
		return
	}
	metas, err := h.history.ListSnapshots(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list history", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if metas == nil {
		metas = []domain.SnapshotMeta{}
	}
	JSON(w, http.StatusOK, metas)
}

// GetHistory returns one saved conversation.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := caller(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	snap, err := h.history.GetSnapshot(r.Context(), userID, id)
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "history not found")
		return
	}
	if err != nil {
		slog.Error("Failed to load history", "error", err, "user_id", userID, "history_id", id)
		Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	JSON(w, http.StatusOK, snap)
}

// DeleteHistory removes a saved conversation.
func (h *Handler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := caller(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	existed, err := h.history.DeleteSnapshot(r.Context(), userID, id)
	if err != nil {
		slog.Error("Failed to delete history", "error", err, "user_id", userID, "history_id", id)
		Error(w, http.StatusInternalServerError, "failed to delete history")
		return
	}
	if !existed {
		Error(w, http.StatusNotFound, "history not found")
		return
	}
	slog.Info("History deleted", "user_id", userID, "history_id", id)
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// RestoreHistory replaces the caller's session with a saved conversation.
func (h *Handler) RestoreHistory(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := caller(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	st, err := h.agent.Restore(r.Context(), userID, sessionID, id)
	switch {
	case errors.Is(err, agent.ErrSnapshotNotFound):
		Error(w, http.StatusNotFound, "history not found")
		return
	case errors.Is(err, conversation.ErrTurnInProgress):
		Error(w, http.StatusConflict, "turn_in_progress")
		return
	case err != nil:
		slog.Error("Failed to restore history", "error", err, "user_id", userID, "history_id", id)
		Error(w, http.StatusInternalServerError, "failed to restore history")
		return
	}
	slog.Info("History restored", "user_id", userID, "session_id", sessionID, "history_id", id)
	JSON(w, http.StatusOK, viewOf(st))
}

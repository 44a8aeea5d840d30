package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/postlens/internal/composer"
	"github.com/ashureev/postlens/internal/conversation"
	"github.com/ashureev/postlens/internal/domain"
)

// sessionView is the client-facing session state. Matched rows are served
// separately by the paginated data endpoint.
type sessionView struct {
	SessionID       string           `json:"session_id"`
	HistoryID       string           `json:"history_id,omitempty"`
	Phase           domain.Phase     `json:"phase"`
	Messages        []domain.Message `json:"messages"`
	LastSearch      *domain.Topic    `json:"last_search,omitempty"`
	LastDates       []domain.Date    `json:"last_dates,omitempty"`
	Matched         int              `json:"matched"`
	AwaitingDate    bool             `json:"awaiting_date"`
	SearchPerformed bool             `json:"search_performed"`
}

func viewOf(st domain.SessionState) sessionView {
	msgs := st.Messages
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return sessionView{
		SessionID:       st.SessionID,
		HistoryID:       st.HistoryID,
		Phase:           st.Phase(),
		Messages:        msgs,
		LastSearch:      st.LastSearch,
		LastDates:       st.LastDates,
		Matched:         len(st.Matched),
		AwaitingDate:    st.AwaitingDate,
		SearchPerformed: st.SearchPerformed,
	}
}

// GetSession returns the caller's session state.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := caller(w, r)
	if !ok {
		return
	}
	st, err := h.agent.State(r.Context(), userID, sessionID)
	if err != nil {
		slog.Error("Failed to load session", "error", err, "user_id", userID, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	JSON(w, http.StatusOK, viewOf(st))
}

// ResetSession clears the caller's conversation.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := caller(w, r)
	if !ok {
		return
	}
	st, err := h.agent.Reset(r.Context(), userID, sessionID)
	if errors.Is(err, conversation.ErrTurnInProgress) {
		Error(w, http.StatusConflict, "turn_in_progress")
		return
	}
	if err != nil {
		slog.Error("Failed to reset session", "error", err, "user_id", userID, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to reset session")
		return
	}
	slog.Info("Session reset", "user_id", userID, "session_id", sessionID)
	JSON(w, http.StatusOK, viewOf(st))
}

// GetSessionData returns one page of the matched rows. Query parameters:
// page (zero-based), sentiment and topic (repeatable filters).
func (h *Handler) GetSessionData(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page := 0
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			Error(w, http.StatusBadRequest, "page must be an integer")
			return
		}
		page = n
	}

	st, err := h.agent.State(r.Context(), userID, sessionID)
	if err != nil {
		slog.Error("Failed to load session", "error", err, "user_id", userID, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	JSON(w, http.StatusOK, composer.Paginate(st.Matched, composer.PageQuery{
		Page:       page,
		Sentiments: q["sentiment"],
		Topics:     q["topic"],
	}))
}

// GetSessionInsights returns dashboard breakdowns of the matched rows.
func (h *Handler) GetSessionInsights(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := caller(w, r)
	if !ok {
		return
	}
	st, err := h.agent.State(r.Context(), userID, sessionID)
	if err != nil {
		slog.Error("Failed to load session", "error", err, "user_id", userID, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if len(st.Matched) == 0 {
		JSON(w, http.StatusOK, map[string]interface{}{"matched": 0, "insights": nil})
		return
	}
	topic := domain.Topic{}
	if st.LastSearch != nil {
		topic = *st.LastSearch
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"matched":  len(st.Matched),
		"insights": composer.BuildInsights(st.Matched, topic, h.composer),
	})
}

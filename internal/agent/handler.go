package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/postlens/internal/config"
	"github.com/ashureev/postlens/internal/conversation"
	"github.com/ashureev/postlens/internal/identity"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20 // 1MB

// Handler serves the streaming chat endpoint.
type Handler struct {
	agent             *Service
	rateLimiter       *RateLimiter
	maxBodySize       int64
	keepaliveInterval time.Duration
}

// NewHandler creates a chat handler. cfg may be nil for defaults.
func NewHandler(agentService *Service, cfg *config.Config) *Handler {
	rateLimitRequests := 10
	rateLimitWindow := time.Minute
	maxBodySize := int64(defaultMaxRequestBodySize)
	keepalive := 10 * time.Second

	if cfg != nil {
		rateLimitRequests = cfg.RateLimit.RequestsPerWindow
		rateLimitWindow = cfg.RateLimit.WindowDuration
		maxBodySize = cfg.SSE.MaxRequestBodySize
		keepalive = cfg.SSE.KeepaliveInterval
	}
	if keepalive <= 0 {
		keepalive = 10 * time.Second
	}

	return &Handler{
		agent:             agentService,
		rateLimiter:       NewRateLimiter(rateLimitRequests, rateLimitWindow),
		maxBodySize:       maxBodySize,
		keepaliveInterval: keepalive,
	}
}

// RegisterRoutes registers chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/chat", h.HandleChat)
}

// Close releases handler resources.
func (h *Handler) Close() {
	h.rateLimiter.Close()
	if h.agent != nil {
		h.agent.Close()
	}
}

// Service returns the underlying agent service.
func (h *Handler) Service() *Service {
	return h.agent
}

// RateLimiter returns the per-user limiter shared with other chat transports.
func (h *Handler) RateLimiter() *RateLimiter {
	return h.rateLimiter
}

type streamItem struct {
	chunk *Chunk
	err   error
}

// HandleChat handles POST /api/chat. The turn streams as server-sent
// events: turn, message..., done. A session with a turn already in flight
// gets 409 before any event is written.
//
//nolint:gocyclo // Validation and streaming branches are kept inline to preserve request flow.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	// Rate-limit by userID only (not userID:sessionID) so clients cannot bypass
	// throttling by rotating session IDs.
	if !h.rateLimiter.Allow(userID) {
		http.Error(w, `{"error": "rate limit exceeded"}`, http.StatusTooManyRequests)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, `{"error": "request body too large"}`, http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		http.Error(w, `{"error": "message is required"}`, http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error": "streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	req.UserID = userID
	req.SessionID = sessionID
	req.Channel = ChannelHTTP
	req.RequestID = chiMiddleware.GetReqID(r.Context())

	slog.Info("Chat request",
		"user_id", userID,
		"session_id", sessionID,
		"message_length", len(req.Message),
	)

	ctx := r.Context()
	items := make(chan streamItem)
	go func() {
		defer close(items)
		for chunk, err := range h.agent.Chat(ctx, req) {
			select {
			case items <- streamItem{chunk: chunk, err: err}:
			case <-ctx.Done():
				return
			}
		}
	}()

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
	}

	keepalive := time.NewTicker(h.keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Chat stream disconnected", "user_id", userID, "session_id", sessionID)
			return

		case <-keepalive.C:
			start()
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				slog.Warn("failed to write SSE keepalive ping", "error", err, "user_id", userID)
				return
			}
			flusher.Flush()

		case item, open := <-items:
			if !open {
				return
			}
			if item.err != nil {
				if !started {
					writeStartError(w, item.err)
					return
				}
				slog.Error("Chat stream failed", "error", item.err, "session_id", sessionID)
				if writeErr := writeSSEJSON(w, "error", map[string]string{"error": item.err.Error()}); writeErr != nil {
					slog.Warn("failed to write SSE error event", "error", writeErr)
				}
				flusher.Flush()
				return
			}

			start()
			if err := writeChunk(w, item.chunk); err != nil {
				slog.Warn("failed to write SSE event", "error", err, "session_id", sessionID)
				return
			}
			flusher.Flush()
		}
	}
}

func writeStartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrTurnInProgress):
		http.Error(w, `{"error": "turn_in_progress"}`, http.StatusConflict)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		slog.Info("Chat request canceled before streaming", "error", err)
	default:
		slog.Error("Chat turn failed to start", "error", err)
		http.Error(w, `{"error": "failed to start chat turn"}`, http.StatusInternalServerError)
	}
}

func writeChunk(w io.Writer, c *Chunk) error {
	switch c.Type {
	case ChunkTurn:
		return writeSSEJSON(w, string(ChunkTurn), c.Turn)
	case ChunkMessage:
		return writeSSEJSON(w, string(ChunkMessage), map[string]string{"content": c.Content})
	case ChunkDone:
		return writeSSEJSON(w, string(ChunkDone), map[string]string{"content": c.Content})
	default:
		return fmt.Errorf("unknown chunk type %q", c.Type)
	}
}

func writeSSEJSON(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	return writeSSE(w, event, string(data))
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

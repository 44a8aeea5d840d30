package chatws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/ashureev/postlens/internal/agent"
	"github.com/ashureev/postlens/internal/conversation"
	"github.com/ashureev/postlens/internal/identity"
)

const (
	writeTimeout   = 10 * time.Second
	maxPromptBytes = 64 << 10
)

// Client frame types.
const (
	framePrompt = "prompt"
	framePing   = "ping"
	frameReset  = "reset"
)

// Server frame types.
const (
	frameTurn  = "turn"
	frameChunk = "chunk"
	frameDone  = "done"
	framePong  = "pong"
	frameError = "error"
)

type clientFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

type serverFrame struct {
	Type    string          `json:"type"`
	Turn    *agent.TurnInfo `json:"turn,omitempty"`
	Content string          `json:"content,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Handler upgrades GET /ws/chat and runs chat turns over the connection.
type Handler struct {
	agent          *agent.Service
	limiter        *agent.RateLimiter
	conns          *ConnManager
	allowedOrigins []string
	isDev          bool
}

// NewHandler creates a WebSocket chat handler. The limiter is shared with the
// HTTP chat endpoint so both transports draw from one per-user budget.
func NewHandler(service *agent.Service, limiter *agent.RateLimiter, conns *ConnManager, allowedOrigins []string, isDev bool) *Handler {
	if conns == nil {
		conns = NewConnManager()
	}
	return &Handler{
		agent:          service,
		limiter:        limiter,
		conns:          conns,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// Conns returns the connection manager.
func (h *Handler) Conns() *ConnManager {
	return h.conns
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	slog.Info("Chat WebSocket connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	ws.SetReadLimit(maxPromptBytes)

	h.conns.Register(userID, sessionID, ws)
	defer h.conns.Unregister(userID, sessionID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var turns sync.WaitGroup
	h.readLoop(ctx, ws, userID, sessionID, &turns)
	cancel()
	turns.Wait()

	if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
		slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
	}
	slog.Info("Chat WebSocket session ended", "user_id", userID, "session_id", sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.allowedOrigins, "*") || slices.Contains(h.allowedOrigins, origin) {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

// readLoop dispatches client frames until the connection ends. Prompts run
// in their own goroutine so pings are answered while a turn streams.
func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, userID, sessionID string, turns *sync.WaitGroup) {
	for {
		var msg clientFrame
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		switch msg.Type {
		case framePrompt:
			prompt := strings.TrimSpace(msg.Content)
			if prompt == "" {
				h.write(ctx, ws, serverFrame{Type: frameError, Error: "message is required"})
				continue
			}
			if h.limiter != nil && !h.limiter.Allow(userID) {
				h.write(ctx, ws, serverFrame{Type: frameError, Error: "rate limit exceeded"})
				continue
			}
			turns.Add(1)
			go func() {
				defer turns.Done()
				h.runTurn(ctx, ws, agent.ChatRequest{
					Message:   prompt,
					UserID:    userID,
					SessionID: sessionID,
					Channel:   agent.ChannelWebSocket,
				})
			}()

		case framePing:
			h.write(ctx, ws, serverFrame{Type: framePong})

		case frameReset:
			if _, err := h.agent.Reset(ctx, userID, sessionID); err != nil {
				h.write(ctx, ws, serverFrame{Type: frameError, Error: errorCode(err)})
				continue
			}
			slog.Info("Session reset over WebSocket", "user_id", userID, "session_id", sessionID)
			h.write(ctx, ws, serverFrame{Type: frameReset})

		default:
			h.write(ctx, ws, serverFrame{Type: frameError, Error: "unknown frame type"})
		}
	}
}

func (h *Handler) runTurn(ctx context.Context, ws *websocket.Conn, req agent.ChatRequest) {
	for chunk, err := range h.agent.Chat(ctx, req) {
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				h.write(ctx, ws, serverFrame{Type: frameError, Error: errorCode(err)})
			}
			return
		}
		frame := serverFrame{Content: chunk.Content}
		switch chunk.Type {
		case agent.ChunkTurn:
			frame.Type, frame.Turn = frameTurn, chunk.Turn
		case agent.ChunkMessage:
			frame.Type = frameChunk
		case agent.ChunkDone:
			frame.Type = frameDone
		}
		if !h.write(ctx, ws, frame) {
			return
		}
	}
}

func (h *Handler) write(ctx context.Context, ws *websocket.Conn, frame serverFrame) bool {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, ws, frame); err != nil {
		if ctx.Err() == nil {
			slog.Debug("WebSocket write error", "error", err, "frame", frame.Type)
		}
		return false
	}
	return true
}

func errorCode(err error) string {
	if errors.Is(err, conversation.ErrTurnInProgress) {
		return "turn_in_progress"
	}
	slog.Error("Chat WebSocket turn failed", "error", err)
	return "internal_error"
}

// Package agent runs chat turns: it resolves the prompt through the
// conversation engine, composes the grounded context and streams the
// narration back to the transport.
package agent

import (
	"time"

	"github.com/ashureev/postlens/internal/composer"
	"github.com/ashureev/postlens/internal/conversation"
	"github.com/ashureev/postlens/internal/domain"
)

// Channels that carry chat turns.
const (
	ChannelHTTP      = "chat_http"
	ChannelWebSocket = "chat_ws"
)

// ChatRequest represents a chat request to the agent.
type ChatRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"-"`
	SessionID string `json:"-"`
	Channel   string `json:"-"`
	RequestID string `json:"-"`
}

// ChunkType categorizes streamed chat output.
type ChunkType string

const (
	// ChunkTurn announces how the prompt was resolved. It is always first.
	ChunkTurn ChunkType = "turn"
	// ChunkMessage carries one narration fragment.
	ChunkMessage ChunkType = "message"
	// ChunkDone carries the final assistant message. It is always last.
	ChunkDone ChunkType = "done"
)

// Chunk is one element of a chat turn stream.
type Chunk struct {
	Type    ChunkType `json:"type"`
	Turn    *TurnInfo `json:"turn,omitempty"`
	Content string    `json:"content,omitempty"`
}

// TurnInfo describes the resolved turn.
type TurnInfo struct {
	TurnType           domain.TurnType     `json:"turn_type"`
	Action             conversation.Action `json:"action"`
	Reclassified       bool                `json:"reclassified"`
	ClassifierFallback bool                `json:"classifier_fallback"`
	Matched            int                 `json:"matched"`
	Dates              []domain.Date       `json:"dates"`
	Keywords           []string            `json:"keywords"`
	HistoryID          string              `json:"history_id,omitempty"`
}

// Config holds agent configuration.
type Config struct {
	Language           composer.Language
	NarrationModel     string
	NarrationTimeout   time.Duration
	ChatterTemperature float64
	Composer           composer.Options
}

// DefaultConfig returns default agent configuration.
func DefaultConfig() Config {
	return Config{
		Language:           composer.LangIndonesian,
		NarrationTimeout:   120 * time.Second,
		ChatterTemperature: 0.3,
	}
}

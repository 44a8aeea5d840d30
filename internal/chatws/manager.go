// Package chatws serves the chat turn stream over WebSocket.
package chatws

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Conn is the part of a WebSocket connection the manager needs.
type Conn interface {
	Close(code websocket.StatusCode, reason string) error
}

// ConnManager tracks one live connection per user and tab session. A new
// connection for the same session replaces and closes the old one.
type ConnManager struct {
	mu     sync.RWMutex
	active map[string]map[string]Conn
}

// NewConnManager creates a new connection manager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		active: make(map[string]map[string]Conn),
	}
}

// Get returns the active connection for a user and session.
func (m *ConnManager) Get(userID, sessionID string) Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[userID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Count returns the number of live connections.
func (m *ConnManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}

// Register adds a connection for a user/session.
func (m *ConnManager) Register(userID, sessionID string, conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]Conn)
	}

	if existing, exists := m.active[userID][sessionID]; exists && existing != conn {
		go func() {
			if err := existing.Close(websocket.StatusPolicyViolation, "session replaced"); err != nil {
				slog.Debug("Failed to close replaced chat connection", "error", err, "user_id", userID)
			}
		}()
	}

	m.active[userID][sessionID] = conn
	slog.Info("Chat connection registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes a connection if it is still the active one.
func (m *ConnManager) Unregister(userID, sessionID string, conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessions, ok := m.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(m.active, userID)
			}
			slog.Info("Chat connection unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

// CloseAll closes every live connection, for shutdown.
func (m *ConnManager) CloseAll() {
	m.mu.Lock()
	var conns []Conn
	for _, sessions := range m.active {
		for _, conn := range sessions {
			conns = append(conns, conn)
		}
	}
	m.active = make(map[string]map[string]Conn)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := conn.Close(websocket.StatusGoingAway, "server shutting down"); err != nil {
				slog.Debug("Failed to close chat connection", "error", err)
			}
		}()
	}
	wg.Wait()
}

// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/postlens/internal/domain"
)

// ErrNotFound is returned when a session state or snapshot does not exist.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for persisting users, live session states
// and conversation history.
type Repository interface {
	HistoryStore

	// GetUser retrieves a user by their user ID. It returns nil, nil when
	// the user does not exist.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetSessionState retrieves the live state of one chat session.
	GetSessionState(ctx context.Context, userID, sessionID string) (*domain.SessionState, error)

	// SaveSessionState creates or replaces the live state of a chat session.
	SaveSessionState(ctx context.Context, state *domain.SessionState) error

	// DeleteSessionState removes a chat session's live state.
	DeleteSessionState(ctx context.Context, userID, sessionID string) error

	// PurgeSessionStates removes states not updated within olderThan.
	PurgeSessionStates(ctx context.Context, olderThan time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// HistoryStore persists completed conversation snapshots. Snapshots are
// scoped to the user that saved them.
type HistoryStore interface {
	// SaveSnapshot creates or replaces a snapshot.
	SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error

	// ListSnapshots returns snapshot metadata, newest first.
	ListSnapshots(ctx context.Context, userID string) ([]domain.SnapshotMeta, error)

	// GetSnapshot loads a full snapshot or returns ErrNotFound.
	GetSnapshot(ctx context.Context, userID, id string) (*domain.Snapshot, error)

	// DeleteSnapshot removes a snapshot and reports whether it existed.
	DeleteSnapshot(ctx context.Context, userID, id string) (bool, error)
}

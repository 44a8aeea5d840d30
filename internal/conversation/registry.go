package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/postlens/internal/domain"
	"github.com/ashureev/postlens/internal/shared"
	"github.com/ashureev/postlens/internal/store"
)

// ErrTurnInProgress is returned when a session already has a turn running.
var ErrTurnInProgress = errors.New("a turn is already in progress for this session")

// StateRetention is how long persisted session states survive without use.
const StateRetention = 7 * 24 * time.Hour

// SessionStore persists session states between process restarts.
type SessionStore interface {
	GetSessionState(ctx context.Context, userID, sessionID string) (*domain.SessionState, error)
	SaveSessionState(ctx context.Context, state *domain.SessionState) error
	PurgeSessionStates(ctx context.Context, olderThan time.Duration) (int64, error)
}

type sessionKey struct {
	userID    string
	sessionID string
}

type entry struct {
	// turn is held for the whole duration of a turn.
	turn sync.Mutex

	mu       sync.Mutex
	state    domain.SessionState
	lastUsed time.Time
}

// Registry keeps live session states in memory, loads them lazily from the
// store and evicts them after an idle TTL.
type Registry struct {
	store  SessionStore
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*entry
}

// NewRegistry creates a registry. A nil store keeps state in memory only.
func NewRegistry(st SessionStore, ttl time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:    st,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[sessionKey]*entry),
	}
}

func (r *Registry) entry(ctx context.Context, userID, sessionID string) (*entry, error) {
	key := sessionKey{userID: userID, sessionID: sessionID}

	r.mu.Lock()
	e, ok := r.sessions[key]
	r.mu.Unlock()
	if ok {
		return e, nil
	}

	state, err := r.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[key]; ok {
		return existing, nil
	}
	e = &entry{state: state, lastUsed: r.now()}
	r.sessions[key] = e
	sessionsActive.Set(float64(len(r.sessions)))
	return e, nil
}

func (r *Registry) load(ctx context.Context, userID, sessionID string) (domain.SessionState, error) {
	now := r.now()
	fresh := domain.SessionState{SessionID: sessionID, UserID: userID, CreatedAt: now, UpdatedAt: now}
	if r.store == nil {
		return fresh, nil
	}
	stored, err := r.store.GetSessionState(ctx, userID, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return fresh, nil
	}
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("load session state: %w", err)
	}
	return *stored, nil
}

// Get returns a copy of the current session state.
func (r *Registry) Get(ctx context.Context, userID, sessionID string) (domain.SessionState, error) {
	e, err := r.entry(ctx, userID, sessionID)
	if err != nil {
		return domain.SessionState{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastUsed = r.now()
	return e.state.Clone(), nil
}

// Begin claims the session for one turn. It fails with ErrTurnInProgress if
// another turn holds it. The lease must be released.
func (r *Registry) Begin(ctx context.Context, userID, sessionID string) (*Lease, error) {
	key := sessionKey{userID: userID, sessionID: sessionID}
	for {
		e, err := r.entry(ctx, userID, sessionID)
		if err != nil {
			return nil, err
		}
		claimed, err := r.claim(key, e)
		if err != nil {
			return nil, err
		}
		if claimed {
			return &Lease{registry: r, entry: e}, nil
		}
	}
}

// claim takes the turn lock of e. It reports false, with the lock released,
// when e was evicted before the lock was taken; the caller must look the
// session up again.
func (r *Registry) claim(key sessionKey, e *entry) (bool, error) {
	if !e.turn.TryLock() {
		return false, ErrTurnInProgress
	}
	r.mu.Lock()
	current := r.sessions[key] == e
	r.mu.Unlock()
	if !current {
		e.turn.Unlock()
		return false, nil
	}
	return true, nil
}

// Update runs fn on the session state under a turn lease and commits the result.
func (r *Registry) Update(ctx context.Context, userID, sessionID string, fn func(*domain.SessionState) error) (domain.SessionState, error) {
	lease, err := r.Begin(ctx, userID, sessionID)
	if err != nil {
		return domain.SessionState{}, err
	}
	defer lease.Release()

	state := lease.State()
	if err := fn(&state); err != nil {
		return domain.SessionState{}, err
	}
	if err := lease.Commit(ctx, state); err != nil {
		return state, err
	}
	return state, nil
}

// Active returns the number of sessions held in memory.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than the TTL. Sessions in the middle
// of a turn are kept.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for key, e := range r.sessions {
		if !e.turn.TryLock() {
			continue
		}
		e.mu.Lock()
		idle := e.lastUsed.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(r.sessions, key)
			evicted++
		}
		e.turn.Unlock()
	}
	sessionsActive.Set(float64(len(r.sessions)))
	return evicted
}

// StartSweeper runs a background goroutine that evicts idle sessions and
// purges stored states past StateRetention.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		r.logger.Info("Session sweeper started", "interval", interval, "ttl", r.ttl)

		for {
			select {
			case <-ticker.C:
				r.sweepOnce(ctx)
			case <-ctx.Done():
				r.logger.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (r *Registry) sweepOnce(ctx context.Context) {
	if n := r.Sweep(); n > 0 {
		r.logger.Info("Session sweeper evicted idle sessions", "count", n)
	}
	if r.store == nil {
		return
	}
	var deleted int64
	err := shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "purge session states", func() error {
		var err error
		deleted, err = r.store.PurgeSessionStates(ctx, StateRetention)
		return err
	})
	if err != nil {
		r.logger.Error("Session sweeper failed to purge stored states", "error", err)
		return
	}
	if deleted > 0 {
		r.logger.Info("Session sweeper purged stored states", "count", deleted)
	}
}

// Lease is exclusive access to one session for the duration of a turn.
type Lease struct {
	registry *Registry
	entry    *entry
	once     sync.Once
}

// State returns a copy of the session state.
func (l *Lease) State() domain.SessionState {
	l.entry.mu.Lock()
	defer l.entry.mu.Unlock()
	return l.entry.state.Clone()
}

// Commit replaces the in-memory state and persists it. The in-memory state
// is updated even when persisting fails.
func (l *Lease) Commit(ctx context.Context, state domain.SessionState) error {
	now := l.registry.now()
	state.UpdatedAt = now

	l.entry.mu.Lock()
	l.entry.state = state.Clone()
	l.entry.lastUsed = now
	l.entry.mu.Unlock()

	if l.registry.store == nil {
		return nil
	}
	return shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "save session state", func() error {
		return l.registry.store.SaveSessionState(ctx, &state)
	})
}

// Release ends the turn. It is safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.entry.mu.Lock()
		l.entry.lastUsed = l.registry.now()
		l.entry.mu.Unlock()
		l.entry.turn.Unlock()
	})
}

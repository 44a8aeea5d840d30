// Package identity provides anonymous per-device identity primitives.
package identity

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/postlens/internal/domain"
)

// Identity transport names and defaults.
const (
	AnonCookieName        = "postlens_anon_id"
	SessionHeaderName     = "X-Postlens-Session-ID"
	DefaultSessionIDValue = "default"
	anonCookieMaxAge      = 30 * 24 * time.Hour
	lastSeenResolution    = time.Minute
)

// UserStore is the user persistence the middleware needs.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	UpsertUser(ctx context.Context, user *domain.User) error
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error
}

type contextKey int

const (
	userIDKey contextKey = iota
	usernameKey
	sessionIDKey
)

var (
	anonIDPattern    = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// UsernameFromContext extracts the username from the request context.
func UsernameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(usernameKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext extracts the tab session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionIDValue
}

// newAnonID returns "anon_" followed by a random UUID in 32-digit hex form.
func newAnonID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + strings.ReplaceAll(id.String(), "-", ""), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

func deriveUsername(userID string) string {
	if len(userID) > 13 {
		return "anon-" + userID[len(userID)-8:]
	}
	return "anon-user"
}

// ensureUser creates the user on first sight and otherwise refreshes
// last_seen_at at most once per lastSeenResolution.
func ensureUser(ctx context.Context, users UserStore, userID string) error {
	user, err := users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	now := time.Now()
	if user != nil {
		if user.IdleFor(now) < lastSeenResolution {
			return nil
		}
		return users.UpdateLastSeen(ctx, userID, now)
	}

	return users.UpsertUser(ctx, &domain.User{
		UserID:     userID,
		Username:   deriveUsername(userID),
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

// anonID returns the device id from the cookie, minting a new one when the
// cookie is missing or malformed. The cookie is refreshed on every request so
// active devices keep their identity.
func anonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	var id string
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		id = c.Value
	} else if id, err = newAnonID(); err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
	return id, nil
}

// sessionIDFromRequest prefers the header; WebSocket clients cannot set it
// and pass the query parameter instead.
func sessionIDFromRequest(r *http.Request) string {
	if sid := r.Header.Get(SessionHeaderName); sid != "" {
		return sanitizeSessionID(sid)
	}
	return sanitizeSessionID(r.URL.Query().Get("session_id"))
}

// WithIdentity returns ctx carrying the user, its derived username and the
// tab session.
func WithIdentity(ctx context.Context, userID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, usernameKey, deriveUsername(userID))
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// Middleware injects anonymous per-device identity and per-request session ID.
func Middleware(users UserStore, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := anonID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}

			if err := ensureUser(r.Context(), users, userID); err != nil {
				http.Error(w, `{"error":"failed to initialize anonymous user"}`, http.StatusInternalServerError)
				return
			}

			ctx := WithIdentity(r.Context(), userID, sessionIDFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

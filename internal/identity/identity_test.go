package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/postlens/internal/domain"
)

type memUsers struct {
	mu       sync.Mutex
	users    map[string]domain.User
	lastSeen int
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]domain.User)}
}

func (m *memUsers) GetUser(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *memUsers) UpsertUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.UserID] = *u
	return nil
}

func (m *memUsers) UpdateLastSeen(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.LastSeenAt = at
	m.users[id] = u
	m.lastSeen++
	return nil
}

func serve(t *testing.T, users UserStore, req *http.Request) (*httptest.ResponseRecorder, string, string) {
	t.Helper()
	var gotUser, gotSession string
	h := Middleware(users, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotSession = SessionIDFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, gotUser, gotSession
}

func TestMiddlewareCreatesAnonymousUser(t *testing.T) {
	t.Parallel()

	users := newMemUsers()
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set(SessionHeaderName, "tab-1")
	rec, userID, sessionID := serve(t, users, req)

	if !isValidAnonID(userID) {
		t.Fatalf("user id = %q", userID)
	}
	if sessionID != "tab-1" {
		t.Fatalf("session id = %q, want tab-1", sessionID)
	}
	if _, ok := users.users[userID]; !ok {
		t.Fatal("user was not created")
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != AnonCookieName || cookies[0].Value != userID {
		t.Fatalf("cookies = %+v", cookies)
	}
}

func TestMiddlewareReusesCookie(t *testing.T) {
	t.Parallel()

	users := newMemUsers()
	id := "anon_0123456789abcdef0123456789abcdef"
	users.users[id] = domain.User{UserID: id, LastSeenAt: time.Now().Add(-time.Hour)}

	req := httptest.NewRequest(http.MethodGet, "/api/session?session_id=bad%20id", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})
	_, userID, sessionID := serve(t, users, req)

	if userID != id {
		t.Fatalf("user id = %q, want %q", userID, id)
	}
	if sessionID != DefaultSessionIDValue {
		t.Fatalf("invalid session id must fall back to default, got %q", sessionID)
	}
	if users.lastSeen != 1 {
		t.Fatalf("last seen updates = %d, want 1", users.lastSeen)
	}
}

func TestEnsureUserSkipsRecentLastSeen(t *testing.T) {
	t.Parallel()

	users := newMemUsers()
	users.users["u"] = domain.User{UserID: "u", LastSeenAt: time.Now()}
	if err := ensureUser(context.Background(), users, "u"); err != nil {
		t.Fatalf("ensureUser: %v", err)
	}
	if users.lastSeen != 0 {
		t.Fatal("recently seen user must not be rewritten")
	}
}

func TestSanitizeSessionID(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":              DefaultSessionIDValue,
		"  tab-2  ":     "tab-2",
		"../etc/passwd": DefaultSessionIDValue,
		"a:b.c_d-e":     "a:b.c_d-e",
	}
	for in, want := range cases {
		if got := sanitizeSessionID(in); got != want {
			t.Errorf("sanitizeSessionID(%q) = %q, want %q", in, got, want)
		}
	}
}

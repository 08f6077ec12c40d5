package httpapi

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"modelbridge/internal/catalog"
)

// SessionCookie is the cookie name carrying a session token; the
// Authorization bearer header is accepted as an equivalent.
const SessionCookie = "modelbridge_session"

// Session is an authenticated caller.
type Session struct {
	Token    string
	UserType catalog.UserType
	Created  time.Time
}

// SessionStore issues and validates in-memory session tokens. The bridge
// fronts a single local machine, so sessions do not need to survive a
// restart.
type SessionStore struct {
	mu           sync.RWMutex
	sessions     map[string]Session
	accessTokens map[string]bool
}

// NewSessionStore accepts the configured access tokens. With no tokens
// configured, login issues guest sessions only.
func NewSessionStore(accessTokens []string) *SessionStore {
	at := make(map[string]bool, len(accessTokens))
	for _, t := range accessTokens {
		at[t] = true
	}
	return &SessionStore{sessions: make(map[string]Session), accessTokens: at}
}

// Login exchanges an access token for a session. A valid token yields a
// regular session; an empty token yields a guest session; anything else is
// rejected.
func (s *SessionStore) Login(accessToken string) (Session, bool) {
	ut := catalog.UserTypeGuest
	if accessToken != "" {
		s.mu.RLock()
		ok := s.accessTokens[accessToken]
		s.mu.RUnlock()
		if !ok {
			return Session{}, false
		}
		ut = catalog.UserTypeRegular
	}
	sess := Session{Token: uuid.NewString(), UserType: ut, Created: time.Now()}
	s.mu.Lock()
	s.sessions[sess.Token] = sess
	s.mu.Unlock()
	return sess, true
}

// Validate resolves a session token.
func (s *SessionStore) Validate(token string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[token]
	return sess, ok
}

type sessionCtxKey struct{}

// sessionFrom returns the authenticated session stored by RequireSession.
func sessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionCtxKey{}).(Session)
	return s, ok
}

// RequireSession rejects requests without a valid session before any other
// validation runs.
func RequireSession(store *SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				if c, err := r.Cookie(SessionCookie); err == nil {
					token = c.Value
				}
			}
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			sess, ok := store.Validate(token)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionCtxKey{}, sess)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

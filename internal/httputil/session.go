package httputil

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

const sessionUserKey = "user_id"

// SessionConfig holds session cookie configuration.
type SessionConfig struct {
	Name   string
	Secret string
	MaxAge time.Duration
	Secure bool // Set to true in production (HTTPS)
}

// Sessions reads and writes the session's user pointer. Nothing else is
// kept in the cookie.
type Sessions struct {
	store *sessions.CookieStore
	name  string
}

// NewSessions creates a cookie backed session store.
func NewSessions(cfg SessionConfig) (*Sessions, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("session secret must be at least 32 characters long")
	}
	if cfg.Name == "" {
		cfg.Name = "ssa_session"
	}

	store := sessions.NewCookieStore([]byte(cfg.Secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Sessions{store: store, name: cfg.Name}, nil
}

// UserID returns the user id stored in the session, if any. A cookie that
// fails to decode is treated as an empty session.
func (s *Sessions) UserID(r *http.Request) (uuid.UUID, bool) {
	session, err := s.store.Get(r, s.name)
	if err != nil {
		return uuid.Nil, false
	}
	raw, ok := session.Values[sessionUserKey].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// SetUserID points the session at a user.
func (s *Sessions) SetUserID(w http.ResponseWriter, r *http.Request, id uuid.UUID) error {
	// Get returns a fresh session alongside a decode error; overwrite it.
	session, _ := s.store.Get(r, s.name)
	session.Values[sessionUserKey] = id.String()
	return session.Save(r, w)
}

// Clear expires the session cookie.
func (s *Sessions) Clear(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.store.Get(r, s.name)
	delete(session.Values, sessionUserKey)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

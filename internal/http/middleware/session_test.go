package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-social-auth/internal/httputil"
	"github.com/tendant/simple-social-auth/pkg/auth"
	"github.com/tendant/simple-social-auth/pkg/domain"
	"github.com/tendant/simple-social-auth/pkg/repository"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type sessionFixture struct {
	sessions *httputil.Sessions
	store    *repository.MemoryUsersRepository
	handler  http.Handler
	seen     *domain.User
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	sessions, err := httputil.NewSessions(httputil.SessionConfig{Name: "test", Secret: testSecret})
	require.NoError(t, err)
	store := repository.NewMemoryUsersRepository()
	languages, err := auth.NewLanguages([]string{"en", "de"})
	require.NoError(t, err)
	lazy := auth.NewLazyUserService(store, slog.Default(), nil, auth.LazyUserConfig{}, auth.LanguageHook(languages))

	f := &sessionFixture{sessions: sessions, store: store}
	f.handler = Session(sessions, store, lazy, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := CurrentUser(r.Context())
		if !ok {
			t.Error("no user in context")
		}
		f.seen = user
		w.WriteHeader(http.StatusOK)
	}))
	return f
}

func (f *sessionFixture) do(cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/v1/me", nil)
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func TestSession_CreatesGuestAndReusesIt(t *testing.T) {
	f := newSessionFixture(t)

	w := f.do()
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, f.seen)
	guest := f.seen
	assert.True(t, guest.LazyUsername)
	assert.True(t, guest.IsAnonymous())
	assert.Equal(t, "de", guest.Language)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)

	w = f.do(cookies...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, guest.ID, f.seen.ID)
	assert.Empty(t, w.Result().Cookies(), "an existing session is not rewritten")
	assert.Equal(t, 1, f.store.Len())
}

func TestSession_InactiveUserStartsOver(t *testing.T) {
	f := newSessionFixture(t)

	inactive := &domain.User{ID: uuid.New(), Username: "sleepy", PasswordHash: "!x", IsActive: false}
	require.NoError(t, f.store.Create(context.Background(), inactive))

	w := httptest.NewRecorder()
	require.NoError(t, f.sessions.SetUserID(w, httptest.NewRequest("GET", "/", nil), inactive.ID))

	resp := f.do(w.Result().Cookies()...)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotEqual(t, inactive.ID, f.seen.ID)
	assert.Len(t, resp.Result().Cookies(), 1)
}

func TestSession_UnknownUserStartsOver(t *testing.T) {
	f := newSessionFixture(t)

	w := httptest.NewRecorder()
	require.NoError(t, f.sessions.SetUserID(w, httptest.NewRequest("GET", "/", nil), uuid.New()))

	resp := f.do(w.Result().Cookies()...)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, f.store.Len())
}

type failingEnsurer struct{ err error }

func (e failingEnsurer) EnsureSessionUser(context.Context, *domain.User, auth.LazyUserOptions) (*domain.User, bool, error) {
	return nil, false, e.err
}

func TestSession_EnsureFailure(t *testing.T) {
	sessions, err := httputil.NewSessions(httputil.SessionConfig{Secret: testSecret})
	require.NoError(t, err)

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"exhausted", domain.ErrLazyUsernameExhausted, http.StatusServiceUnavailable},
		{"store down", errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Session(sessions, repository.NewMemoryUsersRepository(), failingEnsurer{tt.err}, slog.Default())(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					t.Error("handler must not run")
				}))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRequireAuthenticated(t *testing.T) {
	h := RequireAuthenticated()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		user       *domain.User
		wantStatus int
	}{
		{"no user", nil, http.StatusUnauthorized},
		{"guest", &domain.User{PasswordHash: "!abc"}, http.StatusUnauthorized},
		{"linked", &domain.User{Links: map[domain.Provider]domain.ProviderLink{
			domain.ProviderGoogle: {ProfileData: domain.Profile{"id": "1"}},
		}}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.user != nil {
				req = req.WithContext(WithUser(req.Context(), tt.user))
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Recover(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), "boom")
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/health"`)
}

package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/simple-social-auth/internal/httputil"
	"github.com/tendant/simple-social-auth/pkg/auth"
	"github.com/tendant/simple-social-auth/pkg/domain"
)

type contextKey string

// UserKey is the context key for the session user.
const UserKey contextKey = "user"

// UserLoader loads the user a session points at.
type UserLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// SessionUserEnsurer returns the session user, creating a guest when there is none.
type SessionUserEnsurer interface {
	EnsureSessionUser(ctx context.Context, current *domain.User, opts auth.LazyUserOptions) (*domain.User, bool, error)
}

// Session resolves the session cookie to a user and guarantees one exists.
// A session pointing at a missing or inactive user starts over as a guest.
func Session(sessions *httputil.Sessions, users UserLoader, lazy SessionUserEnsurer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var current *domain.User
			if id, ok := sessions.UserID(r); ok {
				user, err := users.GetByID(ctx, id)
				switch {
				case err == nil && user.IsActive:
					current = user
				case err == nil, errors.Is(err, domain.ErrUserNotFound):
					logger.Debug("session user gone, starting a new one", "user_id", id)
				default:
					logger.Error("failed to load session user", "error", err, "user_id", id)
					httputil.Error(w, http.StatusInternalServerError, "failed to load session")
					return
				}
			}

			user, created, err := lazy.EnsureSessionUser(ctx, current, auth.LazyUserOptions{
				AcceptLanguage: r.Header.Get("Accept-Language"),
			})
			if err != nil {
				logger.Error("failed to ensure session user", "error", err)
				if errors.Is(err, domain.ErrLazyUsernameExhausted) {
					httputil.Error(w, http.StatusServiceUnavailable, "could not start a session")
					return
				}
				httputil.Error(w, http.StatusInternalServerError, "could not start a session")
				return
			}
			if created {
				if err := sessions.SetUserID(w, r, user.ID); err != nil {
					logger.Error("failed to save session", "error", err, "user_id", user.ID)
					httputil.Error(w, http.StatusInternalServerError, "could not start a session")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithUser(ctx, user)))
		})
	}
}

// WithUser returns a context carrying the session user.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// CurrentUser extracts the session user from the request context.
func CurrentUser(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(UserKey).(*domain.User)
	return user, ok && user != nil
}

// RequireAuthenticated rejects guests: the session user needs a usable
// password or a linked provider. Must be used after Session.
func RequireAuthenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := CurrentUser(r.Context())
			if !ok || user.IsAnonymous() {
				httputil.Error(w, http.StatusUnauthorized, "authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

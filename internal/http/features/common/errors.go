package common

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tendant/simple-social-auth/internal/httputil"
	"github.com/tendant/simple-social-auth/pkg/domain"
	"github.com/tendant/simple-social-auth/pkg/provider"
)

var badRequest = []error{
	domain.ErrInvalidEmail,
	domain.ErrInvalidUsername,
	domain.ErrWeakPassword,
	domain.ErrPasswordMismatch,
	domain.ErrMissingField,
	domain.ErrInvalidLanguage,
	domain.ErrInvalidBirthdate,
	domain.ErrEmailNotSet,
}

// StatusFor maps a service error to an HTTP status and a client message.
func StatusFor(err error) (int, string) {
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest, err.Error()
		}
	}

	switch {
	case errors.Is(err, domain.ErrVerificationFailed):
		return http.StatusUnauthorized, "provider rejected the credential"
	case errors.Is(err, provider.ErrStateMismatch):
		return http.StatusBadRequest, "login request expired or was tampered with"
	case errors.Is(err, domain.ErrUnknownProvider):
		return http.StatusNotFound, "unknown provider"
	case errors.Is(err, domain.ErrUsernameAlreadyExists):
		return http.StatusConflict, "username already taken"
	case errors.Is(err, domain.ErrIdentityAlreadyLinked):
		return http.StatusConflict, "identity already linked to another account"
	case errors.Is(err, domain.ErrPersistenceConflict):
		return http.StatusConflict, "account was modified concurrently, please retry"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, domain.ErrInactiveUser):
		return http.StatusForbidden, "account is inactive"
	case errors.Is(err, domain.ErrTokenExpired):
		return http.StatusBadRequest, "token expired"
	case errors.Is(err, domain.ErrInvalidToken):
		return http.StatusBadRequest, "invalid token"
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, domain.ErrLazyUsernameExhausted):
		return http.StatusServiceUnavailable, "could not start a session"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// WriteError logs err at a level matching its class and writes the reply.
// Precondition violations are caller bugs and are always logged as errors.
func WriteError(w http.ResponseWriter, logger *slog.Logger, msg string, err error, args ...any) {
	status, message := StatusFor(err)
	args = append(args, "error", err, "status", status)
	switch {
	case errors.Is(err, domain.ErrPreconditionViolation):
		logger.Error(msg+": precondition violated", args...)
	case status >= http.StatusInternalServerError:
		logger.Error(msg, args...)
	default:
		logger.Info(msg, args...)
	}
	httputil.Error(w, status, message)
}

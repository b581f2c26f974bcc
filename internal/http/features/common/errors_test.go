package common

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-social-auth/pkg/domain"
	"github.com/tendant/simple-social-auth/pkg/provider"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: too short", domain.ErrInvalidUsername), http.StatusBadRequest},
		{domain.ErrPasswordMismatch, http.StatusBadRequest},
		{domain.ErrInvalidBirthdate, http.StatusBadRequest},
		{fmt.Errorf("%w: facebook: timeout", domain.ErrVerificationFailed), http.StatusUnauthorized},
		{provider.ErrStateMismatch, http.StatusBadRequest},
		{domain.ErrUnknownProvider, http.StatusNotFound},
		{domain.ErrUsernameAlreadyExists, http.StatusConflict},
		{domain.ErrIdentityAlreadyLinked, http.StatusConflict},
		{fmt.Errorf("save: %w", domain.ErrPersistenceConflict), http.StatusConflict},
		{domain.ErrInvalidCredentials, http.StatusUnauthorized},
		{domain.ErrInactiveUser, http.StatusForbidden},
		{domain.ErrTokenExpired, http.StatusBadRequest},
		{domain.ErrInvalidToken, http.StatusBadRequest},
		{domain.ErrUserNotFound, http.StatusNotFound},
		{domain.ErrLazyUsernameExhausted, http.StatusServiceUnavailable},
		{domain.ErrPreconditionViolation, http.StatusInternalServerError},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got, msg := StatusFor(tt.err)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestStatusFor_HidesInternalDetails(t *testing.T) {
	_, msg := StatusFor(errors.New("pq: password authentication failed for user postgres"))
	assert.Equal(t, "internal server error", msg)
}

func TestWriteError_LogsPreconditionViolation(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	rec := httptest.NewRecorder()

	WriteError(rec, logger, "link failed", fmt.Errorf("%w: nil session user", domain.ErrPreconditionViolation))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "link failed: precondition violated", entry["msg"])
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("")
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = ParseDate("1990-04-01")
	require.NoError(t, err)
	assert.Equal(t, "1990-04-01", d.Format(DateLayout))

	_, err = ParseDate("April 1st")
	assert.ErrorIs(t, err, domain.ErrInvalidBirthdate)
}

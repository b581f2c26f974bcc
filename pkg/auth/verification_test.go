package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-social-auth/pkg/domain"
	"github.com/tendant/simple-social-auth/pkg/repository"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newVerificationService(t *testing.T) (*VerificationService, *repository.MemoryUsersRepository, *clock) {
	t.Helper()
	store := repository.NewMemoryUsersRepository()
	passwords := NewPasswordService(store, nil, nil, nil, false)
	svc := NewVerificationService(VerificationConfig{Secret: []byte("test-secret"), Issuer: "test"}, store, passwords, nil)
	c := &clock{t: time.Now()}
	svc.now = c.now
	return svc, store, c
}

func TestConfirmEmail(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newVerificationService(t)
	user := &domain.User{Username: "annsmith", Email: "ann@example.com", IsActive: true}
	require.NoError(t, store.Create(ctx, user))

	_, token, err := svc.IssueConfirmation(ctx, user)
	require.NoError(t, err)
	assert.Len(t, token, confirmationTokenLength)

	confirmed, err := svc.ConfirmEmail(ctx, token)
	require.NoError(t, err)
	assert.True(t, confirmed.EmailConfirmed)
	assert.Empty(t, confirmed.ConfirmationToken)

	_, err = svc.ConfirmEmail(ctx, token)
	require.ErrorIs(t, err, domain.ErrInvalidToken, "tokens are single use")
}

func TestConfirmEmail_Expired(t *testing.T) {
	ctx := context.Background()
	svc, store, c := newVerificationService(t)
	user := &domain.User{Username: "annsmith", Email: "ann@example.com", IsActive: true}
	require.NoError(t, store.Create(ctx, user))

	_, token, err := svc.IssueConfirmation(ctx, user)
	require.NoError(t, err)

	c.t = c.t.Add(DefaultConfirmationTTL + time.Minute)
	_, err = svc.ConfirmEmail(ctx, token)
	require.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestIssueConfirmation_NoEmail(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newVerificationService(t)
	user := &domain.User{Username: "annsmith", IsActive: true}
	require.NoError(t, store.Create(ctx, user))

	_, _, err := svc.IssueConfirmation(ctx, user)
	require.ErrorIs(t, err, domain.ErrEmailNotSet)
}

func TestPasswordResetCandidates(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newVerificationService(t)
	hash, _ := HashPassword("secret1")

	require.NoError(t, store.Create(ctx, &domain.User{Username: "withpass", Email: "ann@example.com", PasswordHash: hash, IsActive: true}))
	require.NoError(t, store.Create(ctx, &domain.User{Username: "social", Email: "ann@example.com", PasswordHash: MakeUnusablePassword(), IsActive: true}))

	users, err := svc.PasswordResetCandidates(ctx, "ann@EXAMPLE.com")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "withpass", users[0].Username)
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newVerificationService(t)
	hash, _ := HashPassword("secret1")
	user := &domain.User{Username: "annsmith", Email: "ann@example.com", PasswordHash: hash, IsActive: true}
	require.NoError(t, store.Create(ctx, user))

	token, err := svc.CreatePasswordResetToken(user)
	require.NoError(t, err)

	updated, err := svc.ResetPassword(ctx, token, "newpass1", "newpass1")
	require.NoError(t, err)
	assert.True(t, VerifyPassword("newpass1", updated.PasswordHash))

	// The hash changed, so the token no longer matches its state.
	_, err = svc.ResetPassword(ctx, token, "another1", "another1")
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestResetPassword_Errors(t *testing.T) {
	ctx := context.Background()
	svc, store, c := newVerificationService(t)
	hash, _ := HashPassword("secret1")
	user := &domain.User{Username: "annsmith", PasswordHash: hash, IsActive: true}
	require.NoError(t, store.Create(ctx, user))

	token, err := svc.CreatePasswordResetToken(user)
	require.NoError(t, err)

	_, err = svc.ResetPassword(ctx, "garbage", "newpass1", "newpass1")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	_, err = svc.ResetPassword(ctx, token, "newpass1", "different")
	assert.ErrorIs(t, err, domain.ErrPasswordMismatch)

	other := NewVerificationService(VerificationConfig{Secret: []byte("other-secret")}, store, nil, nil)
	forged, err := other.CreatePasswordResetToken(user)
	require.NoError(t, err)
	_, err = svc.ResetPassword(ctx, forged, "newpass1", "newpass1")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	c.t = c.t.Add(DefaultPasswordResetTTL + time.Hour)
	_, err = svc.ResetPassword(ctx, token, "newpass1", "newpass1")
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-social-auth/pkg/domain"
	"github.com/tendant/simple-social-auth/pkg/repository"
)

func newAccountService(t *testing.T) (*AccountService, *repository.MemoryUsersRepository) {
	t.Helper()
	store := repository.NewMemoryUsersRepository()
	langs, err := NewLanguages([]string{"en", "de"})
	require.NoError(t, err)
	passwords := NewPasswordService(store, nil, nil, nil, false)
	return NewAccountService(store, passwords, langs, nil, false), store
}

func TestUpdateAccount_RequiresPasswordWhenUsable(t *testing.T) {
	ctx := context.Background()
	svc, store := newAccountService(t)
	hash, _ := HashPassword("secret1")
	user := &domain.User{Username: "annsmith", PasswordHash: hash, Email: "ann@example.com", EmailConfirmed: true, IsActive: true}
	require.NoError(t, store.Create(ctx, user))

	in := AccountInput{FirstName: "Ann", LastName: "Smith", Email: "ann@example.com", Gender: domain.GenderFemale}

	_, err := svc.UpdateAccount(ctx, user, in)
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	in.CurrentPassword = "secret1"
	updated, err := svc.UpdateAccount(ctx, user, in)
	require.NoError(t, err)
	assert.Equal(t, "Ann", updated.FirstName)
	assert.Equal(t, domain.GenderFemale, updated.Gender)
	assert.True(t, updated.EmailConfirmed, "unchanged email stays confirmed")

	in.Email = "new@example.com"
	updated, err = svc.UpdateAccount(ctx, updated, in)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", updated.Email)
	assert.False(t, updated.EmailConfirmed)
}

func TestUpdateAccount_SocialUserWithoutPassword(t *testing.T) {
	ctx := context.Background()
	svc, store := newAccountService(t)
	guest := newLazyUser(t, store)

	updated, err := svc.UpdateAccount(ctx, guest, AccountInput{FirstName: "Ann", Email: "bad"})
	require.ErrorIs(t, err, domain.ErrInvalidEmail)
	assert.Nil(t, updated)

	updated, err = svc.UpdateAccount(ctx, guest, AccountInput{FirstName: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "Ann", updated.FirstName)
}

func TestSetLanguage(t *testing.T) {
	ctx := context.Background()
	svc, store := newAccountService(t)
	guest := newLazyUser(t, store)

	updated, err := svc.SetLanguage(ctx, guest, "de")
	require.NoError(t, err)
	assert.Equal(t, "de", updated.Language)

	_, err = svc.SetLanguage(ctx, guest, "fr")
	require.ErrorIs(t, err, domain.ErrInvalidLanguage)
}

func TestLanguages(t *testing.T) {
	langs, err := NewLanguages([]string{"en", "pt-BR", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "pt-BR"}, langs.Codes())
	assert.Equal(t, "en", langs.Default())
	assert.Equal(t, "pt-BR", langs.FromAcceptLanguage("pt-BR,pt;q=0.8"))
	assert.Equal(t, "en", langs.FromAcceptLanguage("ja"))
	assert.Equal(t, "en", langs.FromAcceptLanguage(""))

	code, ok := langs.Lookup("pt-BR")
	assert.True(t, ok)
	assert.Equal(t, "pt-BR", code)

	_, err = NewLanguages([]string{"not a tag!"})
	assert.Error(t, err)

	empty, err := NewLanguages(nil)
	require.NoError(t, err)
	assert.Equal(t, "en", empty.Default())
}

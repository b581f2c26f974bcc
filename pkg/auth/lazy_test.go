package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-social-auth/pkg/domain"
	"github.com/tendant/simple-social-auth/pkg/repository"
)

func sequenceSuffix(suffixes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		s := suffixes[i%len(suffixes)]
		i++
		return s, nil
	}
}

func TestEnsureSessionUser_CreatesGuest(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryUsersRepository()
	svc := NewLazyUserService(store, nil, nil, LazyUserConfig{})

	user, created, err := svc.EnsureSessionUser(ctx, nil, LazyUserOptions{})
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, strings.HasPrefix(user.Username, DefaultLazyUsernamePrefix))
	assert.Len(t, user.Username, len(DefaultLazyUsernamePrefix)+lazySuffixLength)
	assert.True(t, user.LazyUsername)
	assert.False(t, user.HasUsablePassword())
	assert.Empty(t, user.Links)
	assert.True(t, user.IsActive)
	assert.True(t, user.IsAnonymous())

	stored, err := store.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Username, stored.Username)
}

func TestEnsureSessionUser_ReturnsCurrent(t *testing.T) {
	store := repository.NewMemoryUsersRepository()
	svc := NewLazyUserService(store, nil, nil, LazyUserConfig{})
	current := &domain.User{Username: "existing"}

	user, created, err := svc.EnsureSessionUser(context.Background(), current, LazyUserOptions{})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, current, user)
	assert.Equal(t, 0, store.Len())
}

func TestEnsureSessionUser_RetriesOnCollision(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryUsersRepository()
	require.NoError(t, store.Create(ctx, &domain.User{Username: "guest-aaaaaa", IsActive: true}))
	metrics := &recordingMetrics{}

	svc := NewLazyUserService(store, nil, metrics, LazyUserConfig{})
	svc.randomSuffix = sequenceSuffix("AAAAAA", "bbbbbb")

	user, created, err := svc.EnsureSessionUser(ctx, nil, LazyUserOptions{})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "guest-bbbbbb", user.Username)
	assert.Equal(t, []int{2}, metrics.lazy)
}

func TestEnsureSessionUser_Exhausted(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryUsersRepository()
	require.NoError(t, store.Create(ctx, &domain.User{Username: "u-same", IsActive: true}))

	svc := NewLazyUserService(store, nil, nil, LazyUserConfig{UsernamePrefix: "u-", MaxAttempts: 3})
	calls := 0
	svc.randomSuffix = func() (string, error) {
		calls++
		return "same", nil
	}

	_, created, err := svc.EnsureSessionUser(ctx, nil, LazyUserOptions{})
	require.ErrorIs(t, err, domain.ErrLazyUsernameExhausted)
	assert.False(t, created)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, store.Len())
}

func TestEnsureSessionUser_HookError(t *testing.T) {
	store := repository.NewMemoryUsersRepository()
	boom := errors.New("boom")
	svc := NewLazyUserService(store, nil, nil, LazyUserConfig{}, func(ctx context.Context, u *domain.User, o LazyUserOptions) error {
		return boom
	})

	_, _, err := svc.EnsureSessionUser(context.Background(), nil, LazyUserOptions{})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Len())
}

func TestEnsureSessionUser_LanguageHook(t *testing.T) {
	langs, err := NewLanguages([]string{"en", "de", "fr"})
	require.NoError(t, err)
	store := repository.NewMemoryUsersRepository()
	svc := NewLazyUserService(store, nil, nil, LazyUserConfig{}, LanguageHook(langs))

	user, _, err := svc.EnsureSessionUser(context.Background(), nil, LazyUserOptions{AcceptLanguage: "de-CH,de;q=0.9,en;q=0.5"})
	require.NoError(t, err)
	assert.Equal(t, "de", user.Language)
}

func TestEnsureSessionUser_ConcurrentUnique(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryUsersRepository()
	svc := NewLazyUserService(store, nil, nil, LazyUserConfig{})
	// A tiny suffix space forces collisions between goroutines.
	svc.randomSuffix = sequenceSuffix("a", "b", "c", "d", "e", "f", "g", "h", "i", "j")

	const n = 10
	var wg sync.WaitGroup
	names := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, _, err := svc.EnsureSessionUser(ctx, nil, LazyUserOptions{})
			if err == nil {
				names <- user.Username
			}
		}()
	}
	wg.Wait()
	close(names)

	seen := map[string]bool{}
	for name := range names {
		assert.False(t, seen[name], "duplicate username %s", name)
		seen[name] = true
	}
	assert.Equal(t, len(seen), store.Len())
}

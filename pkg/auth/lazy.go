package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-social-auth/pkg/domain"
)

const (
	// DefaultLazyUsernamePrefix prefixes generated guest usernames.
	DefaultLazyUsernamePrefix = "guest-"
	// DefaultMaxLazyUserAttempts bounds username collision retries.
	DefaultMaxLazyUserAttempts = 20

	lazySuffixLength = 6
)

// LazyUserOptions carries request data lazy-user hooks may use.
type LazyUserOptions struct {
	AcceptLanguage string
}

// LazyUserHook runs on a freshly built lazy user before it is stored.
type LazyUserHook func(ctx context.Context, user *domain.User, opts LazyUserOptions) error

// LazyUserConfig holds lazy user settings.
type LazyUserConfig struct {
	UsernamePrefix string
	MaxAttempts    int
}

// LazyUserService guarantees every session has a user.
type LazyUserService struct {
	users        UserStore
	logger       *slog.Logger
	metrics      Metrics
	hooks        []LazyUserHook
	prefix       string
	maxAttempts  int
	randomSuffix func() (string, error)
}

// NewLazyUserService creates a new lazy user service.
func NewLazyUserService(users UserStore, logger *slog.Logger, metrics Metrics, cfg LazyUserConfig, hooks ...LazyUserHook) *LazyUserService {
	if cfg.UsernamePrefix == "" {
		cfg.UsernamePrefix = DefaultLazyUsernamePrefix
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxLazyUserAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LazyUserService{
		users:       users,
		logger:      logger,
		metrics:     metricsOrNop(metrics),
		hooks:       hooks,
		prefix:      cfg.UsernamePrefix,
		maxAttempts: cfg.MaxAttempts,
		randomSuffix: func() (string, error) {
			return randomString(lazySuffixLength, alphanumeric)
		},
	}
}

// EnsureSessionUser returns current when the session already has a user.
// Otherwise it creates a guest account with a placeholder username, an
// unusable password and no provider links. The bool reports whether a new
// user was stored.
func (s *LazyUserService) EnsureSessionUser(ctx context.Context, current *domain.User, opts LazyUserOptions) (*domain.User, bool, error) {
	if current != nil {
		return current, false, nil
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		suffix, err := s.randomSuffix()
		if err != nil {
			return nil, false, fmt.Errorf("generate guest username: %w", err)
		}

		now := time.Now()
		user := &domain.User{
			ID:           uuid.New(),
			Username:     s.prefix + suffix,
			LazyUsername: true,
			PasswordHash: MakeUnusablePassword(),
			IsActive:     true,
			LastLogin:    &now,
		}
		for _, hook := range s.hooks {
			if err := hook(ctx, user, opts); err != nil {
				return nil, false, fmt.Errorf("lazy user hook: %w", err)
			}
		}

		err = s.users.Create(ctx, user)
		if err == nil {
			s.metrics.LazyUserCreated(attempt)
			s.logger.Debug("lazy user created", "user_id", user.ID, "username", user.Username, "attempt", attempt)
			return user, true, nil
		}
		if !errors.Is(err, domain.ErrUsernameAlreadyExists) {
			return nil, false, fmt.Errorf("create lazy user: %w", err)
		}
		s.logger.Debug("guest username taken, retrying", "username", user.Username, "attempt", attempt)
	}

	s.logger.Error("guest username space exhausted", "attempts", s.maxAttempts, "prefix", s.prefix)
	return nil, false, fmt.Errorf("%w after %d attempts", domain.ErrLazyUsernameExhausted, s.maxAttempts)
}

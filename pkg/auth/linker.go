package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tendant/simple-social-auth/pkg/domain"
)

// maxLinkAttempts bounds how often a conflicting save is retried.
const maxLinkAttempts = 3

// Verifier turns a raw credential into a trusted provider profile.
type Verifier interface {
	Verify(ctx context.Context, cred domain.Credential) (domain.Profile, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, cred domain.Credential) (domain.Profile, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, cred domain.Credential) (domain.Profile, error) {
	return f(ctx, cred)
}

// LinkHook runs after backfill and before the user is persisted.
type LinkHook func(ctx context.Context, user *domain.User, profile domain.Profile) error

// ProviderConfig is one row of the provider table.
type ProviderConfig struct {
	Provider     domain.Provider
	Verifier     Verifier
	SubjectField string
	Backfill     BackfillRules
	AfterLink    LinkHook
}

// Linker attaches verified provider identities to local users.
type Linker struct {
	users     UserStore
	providers map[domain.Provider]ProviderConfig
	logger    *slog.Logger
	metrics   Metrics
}

// NewLinker creates a linker for the given provider table.
func NewLinker(users UserStore, logger *slog.Logger, metrics Metrics, configs ...ProviderConfig) *Linker {
	providers := make(map[domain.Provider]ProviderConfig, len(configs))
	for _, cfg := range configs {
		if cfg.SubjectField == "" {
			cfg.SubjectField = cfg.Provider.SubjectField()
		}
		providers[cfg.Provider] = cfg
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{
		users:     users,
		providers: providers,
		logger:    logger,
		metrics:   metricsOrNop(metrics),
	}
}

// Supports reports whether provider has a configured verifier.
func (l *Linker) Supports(provider domain.Provider) bool {
	_, ok := l.providers[provider]
	return ok
}

// Link verifies cred with the provider and returns the user the session
// should continue as. An existing account already linked to the verified
// subject wins; otherwise the identity is attached to current, which must
// be the session's (possibly lazy) user. Nothing is written when
// verification fails.
func (l *Linker) Link(ctx context.Context, provider domain.Provider, cred domain.Credential, current *domain.User) (*domain.User, error) {
	cfg, ok := l.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, provider)
	}

	profile, err := cfg.Verifier.Verify(ctx, cred)
	if err != nil {
		l.metrics.LinkCompleted(provider, LinkOutcomeRejected)
		if !errors.Is(err, domain.ErrVerificationFailed) {
			err = fmt.Errorf("%w: %s: %v", domain.ErrVerificationFailed, provider, err)
		}
		return nil, err
	}

	subject, ok := profile.SubjectID(cfg.SubjectField)
	if !ok {
		l.metrics.LinkCompleted(provider, LinkOutcomeRejected)
		return nil, fmt.Errorf("%w: %s profile has no %q", domain.ErrMissingRequiredProfileField, provider, cfg.SubjectField)
	}

	link := domain.ProviderLink{
		AccessToken:  cred.Token,
		AccessSecret: cred.Secret,
		ProfileData:  profile,
	}

	var lastErr error
	for attempt := 1; attempt <= maxLinkAttempts; attempt++ {
		// A username taken from the provider may collide; later attempts keep the lazy name.
		user, err := l.attach(ctx, cfg, link, subject, current, attempt == 1)
		if err == nil {
			l.metrics.LinkCompleted(provider, LinkOutcomeLinked)
			l.logger.Info("identity linked", "provider", provider, "user_id", user.ID, "attempt", attempt)
			return user, nil
		}
		if !errors.Is(err, domain.ErrPersistenceConflict) {
			l.metrics.LinkCompleted(provider, LinkOutcomeError)
			return nil, err
		}
		lastErr = err
		l.logger.Warn("link save conflict", "provider", provider, "attempt", attempt, "error", err)
	}

	l.metrics.LinkCompleted(provider, LinkOutcomeConflict)
	return nil, lastErr
}

func (l *Linker) attach(ctx context.Context, cfg ProviderConfig, link domain.ProviderLink, subject string, current *domain.User, withUsername bool) (*domain.User, error) {
	target, err := l.users.GetByProviderSubject(ctx, cfg.Provider, subject)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUserNotFound):
		if current == nil {
			return nil, domain.ErrNoSessionUser
		}
		target, err = l.users.GetByID(ctx, current.ID)
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: session user %s no longer exists", domain.ErrNoSessionUser, current.ID)
		}
		if err != nil {
			return nil, fmt.Errorf("reload session user: %w", err)
		}
	default:
		return nil, fmt.Errorf("find %s subject: %w", cfg.Provider, err)
	}

	target.SetLink(cfg.Provider, link)
	cfg.Backfill.Apply(target, link.ProfileData, withUsername)

	if cfg.AfterLink != nil {
		if err := cfg.AfterLink(ctx, target, link.ProfileData); err != nil {
			return nil, fmt.Errorf("%s link hook: %w", cfg.Provider, err)
		}
	}

	if err := l.users.Save(ctx, target); err != nil {
		return nil, err
	}
	return target, nil
}

// Package idm provides social and local authentication for web
// applications: password accounts, lazy guest users, and identity linking
// for facebook, twitter, google, foursquare and browserid.
//
// Setup:
//
//  1. Run migrations (simple-social-auth migrate) or use the memory store
//  2. Create an IDM instance and mount its router
//
// Basic usage:
//
//	db, _ := repository.NewDB(repository.Config{...})
//
//	socialAuth, err := idm.New(idm.Config{
//	    Store:         repository.NewUsersRepository(db),
//	    SessionSecret: "your-secret-key-at-least-32-chars",
//	    BaseURL:       "https://auth.example.com",
//	    Providers: provider.Config{
//	        Google: provider.OAuth2Config{ClientID: "...", ClientSecret: "...",
//	            RedirectURL: "https://auth.example.com/v1/auth/google/callback"},
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer socialAuth.Close()
//
//	http.ListenAndServe(":8080", socialAuth.Router())
package idm

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/tendant/simple-social-auth/internal/cache"
	httpserver "github.com/tendant/simple-social-auth/internal/http"
	"github.com/tendant/simple-social-auth/internal/http/middleware"
	"github.com/tendant/simple-social-auth/internal/httputil"
	"github.com/tendant/simple-social-auth/internal/metrics"
	"github.com/tendant/simple-social-auth/internal/notification"
	"github.com/tendant/simple-social-auth/pkg/auth"
	"github.com/tendant/simple-social-auth/pkg/domain"
	"github.com/tendant/simple-social-auth/pkg/provider"
)

// Config holds the configuration for the IDM library.
type Config struct {
	// Store persists users (required). Use repository.NewUsersRepository
	// or repository.NewMemoryUsersRepository.
	Store auth.UserStore

	// SessionSecret signs the session cookie (required, min 32 chars).
	SessionSecret string

	// TokenSecret signs password reset tokens (default: a key derived from
	// SessionSecret).
	TokenSecret string

	// TokenIssuer is the issuer claim of reset tokens (default: "simple-social-auth").
	TokenIssuer string

	// BaseURL is the public URL used in mailed links.
	BaseURL string

	// Providers holds provider credentials. Providers without credentials are disabled.
	Providers provider.Config

	// Registry replaces the registry built from Providers (optional).
	Registry *provider.Registry

	// Redis stores login handshake state when set; otherwise it is kept in memory.
	Redis *RedisConfig

	// SMTP enables outgoing mail (optional).
	SMTP *SMTPConfig

	// Mailer replaces the SMTP transport (optional).
	Mailer notification.Sender

	// DB is registered with the metrics collectors when set (optional).
	DB *sql.DB

	// EnableMetrics serves prometheus metrics on /metrics.
	EnableMetrics bool

	SessionName          string
	SessionMaxAge        time.Duration
	CookieSecure         bool
	OAuthStateTTL        time.Duration // default: 10 minutes
	ConfirmationTTL      time.Duration // default: 5 days
	PasswordResetTTL     time.Duration // default: 3 days
	LazyUsernamePrefix   string        // default: "guest-"
	Languages            []string      // default: ["en"]
	StrictEmail          bool
	PasswordMinLength    int
	DefaultImageURL      string
	AllowedRedirectHosts []string
	RateLimitRequests    int // per window; 0 disables limiting
	RateLimitWindow      time.Duration
	MaxRequestBodyBytes  int64
	SecurityHeaders      bool

	// Logger is the structured logger (default: JSON to stdout).
	Logger *slog.Logger
}

// RedisConfig selects the redis state store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SMTPConfig holds mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

// IDM is the main identity management instance.
type IDM struct {
	config              Config
	sessions            *httputil.Sessions
	states              cache.Client
	registry            *provider.Registry
	metrics             *metrics.Metrics
	linker              *auth.Linker
	lazyUserService     *auth.LazyUserService
	passwordService     *auth.PasswordService
	verificationService *auth.VerificationService
	accountService      *auth.AccountService
	emailService        *notification.EmailService
}

// New creates a new IDM instance with the given configuration.
func New(cfg Config) (*IDM, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	sessions, err := httputil.NewSessions(httputil.SessionConfig{
		Name:   cfg.SessionName,
		Secret: cfg.SessionSecret,
		MaxAge: cfg.SessionMaxAge,
		Secure: cfg.CookieSecure,
	})
	if err != nil {
		return nil, fmt.Errorf("idm: %w", err)
	}

	languages, err := auth.NewLanguages(cfg.Languages)
	if err != nil {
		return nil, fmt.Errorf("idm: %w", err)
	}

	registry := cfg.Registry
	if registry == nil {
		registry, err = provider.NewRegistryFromConfig(cfg.Providers)
		if err != nil {
			return nil, fmt.Errorf("idm: providers: %w", err)
		}
	}

	var m *metrics.Metrics
	var counters auth.Metrics
	if cfg.EnableMetrics {
		m = metrics.New()
		counters = m
		if cfg.DB != nil {
			if err := m.RegisterDB(cfg.DB, "users"); err != nil {
				return nil, fmt.Errorf("idm: metrics: %w", err)
			}
		}
	}

	states, err := newStateCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("idm: state cache: %w", err)
	}

	policy := auth.DefaultPasswordPolicy()
	if cfg.PasswordMinLength > 0 {
		policy.MinLength = cfg.PasswordMinLength
	}
	passwordService := auth.NewPasswordService(cfg.Store, policy, cfg.Logger, counters, cfg.StrictEmail)
	verificationService := auth.NewVerificationService(auth.VerificationConfig{
		Secret:           []byte(cfg.TokenSecret),
		Issuer:           cfg.TokenIssuer,
		ConfirmationTTL:  cfg.ConfirmationTTL,
		PasswordResetTTL: cfg.PasswordResetTTL,
	}, cfg.Store, passwordService, cfg.Logger)

	var emailService *notification.EmailService
	switch {
	case cfg.Mailer != nil:
		emailService = notification.NewEmailService(cfg.Mailer, cfg.Logger)
	case cfg.SMTP != nil:
		emailService = notification.NewEmailService(notification.NewSMTPSender(notification.EmailConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
		}), cfg.Logger)
	}

	for _, p := range registry.Enabled() {
		cfg.Logger.Info("provider enabled", "provider", p)
	}

	return &IDM{
		config:   cfg,
		sessions: sessions,
		states:   states,
		registry: registry,
		metrics:  m,
		linker:   auth.NewLinker(cfg.Store, cfg.Logger, counters, auth.DefaultProviderConfigs(registry.Verifiers())...),
		lazyUserService: auth.NewLazyUserService(cfg.Store, cfg.Logger, counters, auth.LazyUserConfig{
			UsernamePrefix: cfg.LazyUsernamePrefix,
		}, auth.LanguageHook(languages)),
		passwordService:     passwordService,
		verificationService: verificationService,
		accountService:      auth.NewAccountService(cfg.Store, passwordService, languages, cfg.Logger, cfg.StrictEmail),
		emailService:        emailService,
	}, nil
}

func newStateCache(cfg Config) (cache.Client, error) {
	cc := cache.Config{Driver: "memory", Prefix: "ssa:oauth", DefaultTTL: cfg.OAuthStateTTL}
	if cfg.Redis != nil {
		cc.Driver = "redis"
		cc.Addr = cfg.Redis.Addr
		cc.Password = cfg.Redis.Password
		cc.DB = cfg.Redis.DB
	}
	return cache.New(cc)
}

// Router returns the HTTP handler with all routes.
//
// Routes:
//
//	GET   /health                          - liveness
//	GET   /metrics                         - prometheus (if enabled)
//	POST  /v1/auth/password/register       - register, upgrading the guest session
//	POST  /v1/auth/password/login          - username/password login
//	POST  /v1/auth/logout                  - drop the session
//	GET   /v1/auth/{provider}/login        - redirect to the provider
//	GET   /v1/auth/{provider}/callback     - finish the handshake and link
//	POST  /v1/auth/{provider}/token        - link a client-obtained token
//	POST  /v1/auth/browserid/verify        - link a browserid assertion
//	POST  /v1/auth/email/confirm           - confirm an email address
//	POST  /v1/auth/password/reset-request  - mail a reset link
//	POST  /v1/auth/password/reset          - set a new password with a reset token
//	GET   /v1/me                           - session user
//	PATCH /v1/me                           - update account (authenticated)
//	POST  /v1/me/password                  - change password (authenticated)
//	GET   /v1/me/language                  - available languages
//	POST  /v1/me/language                  - set language
//	POST  /v1/me/email/confirmation        - mail a confirmation link (authenticated)
func (i *IDM) Router() http.Handler {
	securityHeaders := middleware.SecurityHeadersConfig{}
	if i.config.SecurityHeaders {
		securityHeaders = middleware.DefaultSecurityHeaders(i.config.CookieSecure)
	}

	return httpserver.NewRouter(httpserver.RouterConfig{
		Logger:               i.config.Logger,
		Users:                i.config.Store,
		Sessions:             i.sessions,
		LazyUserService:      i.lazyUserService,
		Linker:               i.linker,
		Providers:            i.registry,
		StateCache:           i.states,
		PasswordService:      i.passwordService,
		VerificationService:  i.verificationService,
		AccountService:       i.accountService,
		EmailService:         i.emailService,
		Metrics:              i.metrics,
		AppBaseURL:           i.config.BaseURL,
		DefaultImageURL:      i.config.DefaultImageURL,
		OAuthStateTTL:        i.config.OAuthStateTTL,
		AllowedRedirectHosts: i.config.AllowedRedirectHosts,
		RateLimitRequests:    i.config.RateLimitRequests,
		RateLimitWindow:      i.config.RateLimitWindow,
		MaxRequestBodyBytes:  i.config.MaxRequestBodyBytes,
		SecurityHeaders:      securityHeaders,
	})
}

// SessionMiddleware resolves the session cookie to a user, creating a guest
// when needed. Use it to protect your own routes, with socialAuth being
// the *IDM returned by New:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(socialAuth.SessionMiddleware())
//	    r.Get("/cart", handler)
//	})
func (i *IDM) SessionMiddleware() func(http.Handler) http.Handler {
	return middleware.Session(i.sessions, i.config.Store, i.lazyUserService, i.config.Logger)
}

// CurrentUser returns the session user. Use after SessionMiddleware.
func CurrentUser(r *http.Request) (*domain.User, bool) {
	return middleware.CurrentUser(r.Context())
}

// Link attaches a provider identity to current, for callers that obtain
// credentials outside the bundled routes.
func (i *IDM) Link(ctx context.Context, p domain.Provider, cred domain.Credential, current *domain.User) (*domain.User, error) {
	return i.linker.Link(ctx, p, cred, current)
}

// EnsureSessionUser returns current or a new guest user.
func (i *IDM) EnsureSessionUser(ctx context.Context, current *domain.User) (*domain.User, error) {
	user, _, err := i.lazyUserService.EnsureSessionUser(ctx, current, auth.LazyUserOptions{})
	return user, err
}

// Providers lists the enabled providers.
func (i *IDM) Providers() []domain.Provider {
	return i.registry.Enabled()
}

// Close releases the state cache connection.
func (i *IDM) Close() error {
	return i.states.Close()
}

// deriveKey keeps the cookie key and the reset token key apart.
func deriveKey(secret, purpose string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(purpose))
	return hex.EncodeToString(mac.Sum(nil))
}

func validateConfig(cfg *Config) error {
	if cfg.Store == nil {
		return errors.New("idm: Store is required")
	}
	if len(cfg.SessionSecret) < 32 {
		return errors.New("idm: SessionSecret must be at least 32 characters")
	}
	if cfg.Redis != nil && cfg.Redis.Addr == "" {
		return errors.New("idm: Redis.Addr is required when Redis is configured")
	}
	if cfg.SMTP != nil && cfg.SMTP.Host == "" {
		return errors.New("idm: SMTP.Host is required when SMTP is configured")
	}
	if cfg.TokenSecret != "" && cfg.TokenSecret == cfg.SessionSecret {
		return errors.New("idm: TokenSecret must differ from SessionSecret")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.TokenSecret == "" {
		cfg.TokenSecret = deriveKey(cfg.SessionSecret, "password-reset")
	}
	if cfg.TokenIssuer == "" {
		cfg.TokenIssuer = "simple-social-auth"
	}
	if cfg.OAuthStateTTL == 0 {
		cfg.OAuthStateTTL = 10 * time.Minute
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"en"}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
}

package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/simple-social-auth/internal/cache"
	"github.com/tendant/simple-social-auth/internal/http/features/email"
	"github.com/tendant/simple-social-auth/internal/http/features/me"
	"github.com/tendant/simple-social-auth/internal/http/features/password"
	"github.com/tendant/simple-social-auth/internal/http/features/social"
	"github.com/tendant/simple-social-auth/internal/http/middleware"
	"github.com/tendant/simple-social-auth/internal/httputil"
	"github.com/tendant/simple-social-auth/internal/metrics"
	"github.com/tendant/simple-social-auth/internal/notification"
	"github.com/tendant/simple-social-auth/pkg/auth"
	"github.com/tendant/simple-social-auth/pkg/provider"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger              *slog.Logger
	Users               auth.UserStore
	Sessions            *httputil.Sessions
	LazyUserService     *auth.LazyUserService
	Linker              *auth.Linker
	Providers           *provider.Registry
	StateCache          cache.Client
	PasswordService     *auth.PasswordService
	VerificationService *auth.VerificationService
	AccountService      *auth.AccountService
	EmailService        *notification.EmailService // nil disables outgoing mail
	Metrics             *metrics.Metrics           // nil disables /metrics

	AppBaseURL           string
	DefaultImageURL      string
	OAuthStateTTL        time.Duration
	AllowedRedirectHosts []string
	RateLimitRequests    int
	RateLimitWindow      time.Duration
	MaxRequestBodyBytes  int64
	SecurityHeaders      middleware.SecurityHeadersConfig
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.MaxRequestBodyBytes))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.StateCache != nil {
			if err := cfg.StateCache.Ping(r.Context()); err != nil {
				cfg.Logger.Error("health check failed", "error", err)
				httputil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.Logger)

	confirmations := email.NewConfirmations(cfg.VerificationService, cfg.EmailService, cfg.AppBaseURL)
	passwordHandler := password.NewHandler(
		cfg.Logger,
		cfg.PasswordService,
		cfg.VerificationService,
		cfg.EmailService,
		confirmations,
		cfg.Sessions,
		cfg.AppBaseURL,
		cfg.DefaultImageURL,
	)
	socialHandler := social.NewHandler(
		cfg.Logger,
		cfg.Linker,
		cfg.Providers,
		cfg.StateCache,
		cfg.Sessions,
		cfg.OAuthStateTTL,
		cfg.AllowedRedirectHosts,
		cfg.DefaultImageURL,
	)
	emailHandler := email.NewHandler(cfg.Logger, cfg.VerificationService, confirmations)
	meHandler := me.NewHandler(
		cfg.Logger,
		cfg.AccountService,
		cfg.PasswordService,
		confirmations,
		cfg.DefaultImageURL,
	)

	// Everything below has a session user, created lazily on first visit.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(cfg.Sessions, cfg.Users, cfg.LazyUserService, cfg.Logger))

		r.Group(func(r chi.Router) {
			r.Use(rateLimiters[middleware.LimitAuth])
			r.Post("/v1/auth/password/register", passwordHandler.Register)
			r.Post("/v1/auth/password/login", passwordHandler.Login)
			r.Post("/v1/auth/browserid/verify", socialHandler.BrowserID)
			r.Get("/v1/auth/{provider}/login", socialHandler.Login)
			r.Get("/v1/auth/{provider}/callback", socialHandler.Callback)
			r.Post("/v1/auth/{provider}/token", socialHandler.Token)
		})
		r.Post("/v1/auth/logout", passwordHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(rateLimiters[middleware.LimitReset])
			r.Post("/v1/auth/password/reset-request", passwordHandler.RequestPasswordReset)
			r.Post("/v1/auth/password/reset", passwordHandler.ResetPassword)
		})
		r.With(rateLimiters[middleware.LimitVerify]).Post("/v1/auth/email/confirm", emailHandler.ConfirmEmail)

		r.Group(func(r chi.Router) {
			r.Use(rateLimiters[middleware.LimitAccount])
			r.Get("/v1/me", meHandler.GetMe)
			r.Get("/v1/me/language", meHandler.Languages)
			r.Post("/v1/me/language", meHandler.SetLanguage)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuthenticated())
				r.Patch("/v1/me", meHandler.UpdateMe)
				r.Post("/v1/me/password", meHandler.ChangePassword)
				r.With(rateLimiters[middleware.LimitVerify]).Post("/v1/me/email/confirmation", emailHandler.SendConfirmation)
			})
		})
	})

	return r
}

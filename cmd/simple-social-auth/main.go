package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-social-auth/idm"
	"github.com/tendant/simple-social-auth/internal/config"
	"github.com/tendant/simple-social-auth/internal/notification"
	"github.com/tendant/simple-social-auth/pkg/auth"
	"github.com/tendant/simple-social-auth/pkg/provider"
	"github.com/tendant/simple-social-auth/pkg/repository"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "simple-social-auth",
		Short:         "Social and password login server with lazy guest accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			return serve(cfg, logger)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDB(cmd.Context(), func(ctx context.Context, db *sql.DB) error {
					return repository.Migrate(ctx, db)
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDB(cmd.Context(), repository.MigrationStatus)
			},
		},
	)
	return cmd
}

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func withDB(ctx context.Context, fn func(context.Context, *sql.DB) error) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, db)
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := repository.NewDB(repository.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

func serve(cfg *config.Config, logger *slog.Logger) error {
	var (
		store auth.UserStore
		db    *sql.DB
	)
	switch cfg.StoreDriver {
	case "postgres":
		var err error
		db, err = openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		logger.Info("connected to database")

		if err := repository.Migrate(context.Background(), db); err != nil {
			return err
		}
		store = repository.NewUsersRepository(db)
	default:
		logger.Warn("using in-memory user store, accounts are lost on restart")
		store = repository.NewMemoryUsersRepository()
	}

	idmConfig := idm.Config{
		Store:         store,
		SessionSecret: cfg.SessionSecret,
		TokenSecret:   cfg.TokenSecret,
		TokenIssuer:   cfg.TokenIssuer,
		BaseURL:       cfg.BaseURL,
		Providers:     providerConfig(cfg),
		DB:            db,
		EnableMetrics: true,

		SessionName:          cfg.SessionName,
		SessionMaxAge:        cfg.SessionMaxAge,
		CookieSecure:         cfg.CookieSecure,
		OAuthStateTTL:        cfg.OAuthStateTTL,
		ConfirmationTTL:      cfg.ConfirmationTTL,
		PasswordResetTTL:     cfg.PasswordResetTTL,
		LazyUsernamePrefix:   cfg.LazyUsernamePrefix,
		Languages:            cfg.Languages,
		StrictEmail:          cfg.StrictEmail,
		PasswordMinLength:    cfg.PasswordMinLength,
		DefaultImageURL:      cfg.DefaultImageURL,
		AllowedRedirectHosts: cfg.AllowedRedirectHosts,
		RateLimitRequests:    cfg.RateLimitRequests,
		RateLimitWindow:      cfg.RateLimitWindow,
		MaxRequestBodyBytes:  cfg.MaxRequestBodyBytes,
		SecurityHeaders:      cfg.SecurityHeaders,
		Logger:               logger,
	}
	if cfg.CacheDriver == "redis" {
		idmConfig.Redis = &idm.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}
	}
	if cfg.HasSMTP() {
		idmConfig.SMTP = &idm.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}
		logger.Info("email service enabled")
	} else if cfg.LogLevel == "debug" {
		// Mails are written to the log so links can be followed in development.
		idmConfig.Mailer = notification.NewLogSender(logger)
	}

	socialAuth, err := idm.New(idmConfig)
	if err != nil {
		return err
	}
	defer socialAuth.Close()

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      socialAuth.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", addr, "providers", socialAuth.Providers())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

func providerConfig(cfg *config.Config) provider.Config {
	pc := provider.Config{Timeout: cfg.ProviderTimeout}
	if cfg.HasFacebook() {
		pc.Facebook = provider.OAuth2Config{
			ClientID:     cfg.FacebookClientID,
			ClientSecret: cfg.FacebookClientSecret,
			RedirectURL:  cfg.CallbackURL("facebook"),
		}
	}
	if cfg.HasGoogle() {
		pc.Google = provider.OAuth2Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.CallbackURL("google"),
		}
	}
	if cfg.HasFoursquare() {
		pc.Foursquare = provider.OAuth2Config{
			ClientID:     cfg.FoursquareClientID,
			ClientSecret: cfg.FoursquareClientSecret,
			RedirectURL:  cfg.CallbackURL("foursquare"),
		}
	}
	if cfg.HasTwitter() {
		pc.Twitter = provider.OAuth1Config{
			ConsumerKey:    cfg.TwitterConsumerKey,
			ConsumerSecret: cfg.TwitterConsumerSecret,
			CallbackURL:    cfg.CallbackURL("twitter"),
		}
	}
	if cfg.HasBrowserID() {
		pc.BrowserIDAudience = cfg.BrowserIDAudience
		pc.BrowserIDVerifierURL = cfg.BrowserIDVerifierURL
	}
	return pc
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const minSessionSecretLength = 32

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr string
	ServerPort int
	BaseURL    string
	LogLevel   string

	// Storage
	StoreDriver string // postgres or memory

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// OAuth state cache
	CacheDriver   string // memory or redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	OAuthStateTTL time.Duration

	// Session cookie
	SessionSecret string
	SessionName   string
	SessionMaxAge time.Duration
	CookieSecure  bool

	// Tokens
	TokenSecret      string
	TokenIssuer      string
	ConfirmationTTL  time.Duration
	PasswordResetTTL time.Duration

	// Accounts
	LazyUsernamePrefix string
	Languages          []string
	StrictEmail        bool
	PasswordMinLength  int
	DefaultImageURL    string

	// Providers
	FacebookClientID       string
	FacebookClientSecret   string
	GoogleClientID         string
	GoogleClientSecret     string
	FoursquareClientID     string
	FoursquareClientSecret string
	TwitterConsumerKey     string
	TwitterConsumerSecret  string
	BrowserIDAudience      string
	BrowserIDVerifierURL   string
	ProviderTimeout        time.Duration

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// HTTP hardening
	RateLimitRequests    int
	RateLimitWindow      time.Duration
	MaxRequestBodyBytes  int64
	SecurityHeaders      bool
	AllowedRedirectHosts []string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ServerAddr: getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		BaseURL:    strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		StoreDriver: getEnv("STORE_DRIVER", "postgres"),

		// Database defaults (matches podman setup: make postgres-start)
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 25432),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "simple_social_auth"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		CacheDriver:   getEnv("CACHE_DRIVER", "memory"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		OAuthStateTTL: getEnvDuration("OAUTH_STATE_TTL", 10*time.Minute),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionName:   getEnv("SESSION_NAME", "ssa_session"),
		SessionMaxAge: getEnvDuration("SESSION_MAX_AGE", 14*24*time.Hour),
		CookieSecure:  getEnvBool("COOKIE_SECURE", true),

		TokenSecret:      getEnv("TOKEN_SECRET", ""),
		TokenIssuer:      getEnv("TOKEN_ISSUER", "simple-social-auth"),
		ConfirmationTTL:  getEnvDuration("CONFIRMATION_TTL", 5*24*time.Hour),
		PasswordResetTTL: getEnvDuration("PASSWORD_RESET_TTL", 3*24*time.Hour),

		LazyUsernamePrefix: getEnv("LAZY_USERNAME_PREFIX", "guest-"),
		Languages:          getEnvList("LANGUAGES", []string{"en"}),
		StrictEmail:        getEnvBool("STRICT_EMAIL", false),
		PasswordMinLength:  getEnvInt("PASSWORD_MIN_LENGTH", 6),
		DefaultImageURL:    getEnv("DEFAULT_IMAGE_URL", ""),

		FacebookClientID:       getEnv("FACEBOOK_CLIENT_ID", ""),
		FacebookClientSecret:   getEnv("FACEBOOK_CLIENT_SECRET", ""),
		GoogleClientID:         getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:     getEnv("GOOGLE_CLIENT_SECRET", ""),
		FoursquareClientID:     getEnv("FOURSQUARE_CLIENT_ID", ""),
		FoursquareClientSecret: getEnv("FOURSQUARE_CLIENT_SECRET", ""),
		TwitterConsumerKey:     getEnv("TWITTER_CONSUMER_KEY", ""),
		TwitterConsumerSecret:  getEnv("TWITTER_CONSUMER_SECRET", ""),
		BrowserIDAudience:      getEnv("BROWSERID_AUDIENCE", ""),
		BrowserIDVerifierURL:   getEnv("BROWSERID_VERIFIER_URL", ""),
		ProviderTimeout:        getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@localhost"),

		RateLimitRequests:    getEnvInt("RATE_LIMIT_REQUESTS", 10),
		RateLimitWindow:      getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		MaxRequestBodyBytes:  int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
		SecurityHeaders:      getEnvBool("SECURITY_HEADERS", true),
		AllowedRedirectHosts: getEnvList("ALLOWED_REDIRECT_HOSTS", nil),
	}

	// Validate required fields
	if len(cfg.SessionSecret) < minSessionSecretLength {
		return nil, fmt.Errorf("SESSION_SECRET is required and must be at least %d bytes", minSessionSecretLength)
	}
	switch cfg.StoreDriver {
	case "postgres", "memory":
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", cfg.StoreDriver)
	}
	switch cfg.CacheDriver {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("CACHE_DRIVER must be memory or redis, got %q", cfg.CacheDriver)
	}

	return cfg, nil
}

// CallbackURL is the redirect target registered with a provider.
func (c *Config) CallbackURL(provider string) string {
	return c.BaseURL + "/v1/auth/" + provider + "/callback"
}

// HasFacebook returns true if Facebook login is configured.
func (c *Config) HasFacebook() bool {
	return c.FacebookClientID != "" && c.FacebookClientSecret != ""
}

// HasGoogle returns true if Google login is configured.
func (c *Config) HasGoogle() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// HasFoursquare returns true if Foursquare login is configured.
func (c *Config) HasFoursquare() bool {
	return c.FoursquareClientID != "" && c.FoursquareClientSecret != ""
}

// HasTwitter returns true if Twitter login is configured.
func (c *Config) HasTwitter() bool {
	return c.TwitterConsumerKey != "" && c.TwitterConsumerSecret != ""
}

// HasBrowserID returns true if BrowserID assertions are accepted.
func (c *Config) HasBrowserID() bool {
	return c.BrowserIDAudience != ""
}

// HasSMTP returns true if outgoing mail is configured.
func (c *Config) HasSMTP() bool {
	return c.SMTPHost != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

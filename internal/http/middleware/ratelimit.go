package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/tendant/simple-social-auth/internal/httputil"
)

// Rate limit groups applied by the router.
const (
	LimitAuth    = "auth"
	LimitReset   = "reset"
	LimitVerify  = "verify"
	LimitAccount = "account"
)

// RateLimitConfig holds rate limiting configuration for a specific endpoint type.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Logger   *slog.Logger
}

// RateLimit creates an IP-based rate limiter middleware with logging.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Logger != nil {
				cfg.Logger.Warn("rate limit exceeded",
					"ip", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
					"user_agent", r.UserAgent(),
				)
			}
			httputil.Error(w, http.StatusTooManyRequests, "rate limit exceeded. please try again later")
		}),
	)
}

// NoRateLimit returns a no-op middleware when rate limiting is disabled.
func NoRateLimit() func(http.Handler) http.Handler {
	return passthrough
}

func passthrough(next http.Handler) http.Handler {
	return next
}

// CreateRateLimiters builds one limiter per group. Credential endpoints get
// the configured budget, the rest a multiple of it. A non-positive request
// count disables limiting.
func CreateRateLimiters(requests int, window time.Duration, logger *slog.Logger) map[string]func(http.Handler) http.Handler {
	if requests <= 0 || window <= 0 {
		noOp := NoRateLimit()
		return map[string]func(http.Handler) http.Handler{
			LimitAuth:    noOp,
			LimitReset:   noOp,
			LimitVerify:  noOp,
			LimitAccount: noOp,
		}
	}

	limit := func(n int) func(http.Handler) http.Handler {
		return RateLimit(RateLimitConfig{Requests: n, Window: window, Logger: logger})
	}
	return map[string]func(http.Handler) http.Handler{
		LimitAuth:    limit(requests),
		LimitReset:   limit(max(1, requests/2)),
		LimitVerify:  limit(requests),
		LimitAccount: limit(requests * 3),
	}
}

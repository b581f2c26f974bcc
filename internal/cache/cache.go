// Package cache stores short-lived login handshake state.
//
// Supported drivers:
//   - memory (in-process, for development and single-instance deployments)
//   - redis (shared between instances)
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a key is missing or expired.
var ErrNotFound = errors.New("cache: key not found")

// Client is a string key/value store with expiry.
type Client interface {
	// Get returns the value or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value. A zero ttl never expires.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Take returns the value and deletes it atomically, so single-use
	// values can only be consumed once.
	Take(ctx context.Context, key string) (string, error)

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Ping checks the connection.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// Config selects and configures a driver.
type Config struct {
	Driver     string // "memory" | "redis"
	Addr       string
	Password   string
	DB         int
	Prefix     string
	DefaultTTL time.Duration
}

// New creates a client for cfg.Driver.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(cfg.DefaultTTL), nil
	case "redis":
		return NewRedis(cfg)
	default:
		return nil, fmt.Errorf("cache: unknown driver %q", cfg.Driver)
	}
}

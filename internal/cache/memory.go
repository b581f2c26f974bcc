package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implements Client on go-cache.
type memoryClient struct {
	mu sync.Mutex
	c  *gocache.Cache
}

// NewMemory creates an in-process cache.
func NewMemory(defaultTTL time.Duration) Client {
	if defaultTTL <= 0 {
		defaultTTL = gocache.NoExpiration
	}
	return &memoryClient{c: gocache.New(defaultTTL, time.Minute)}
}

func (m *memoryClient) Get(ctx context.Context, key string) (string, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	s, _ := v.(string)
	return s, nil
}

func (m *memoryClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.c.Set(key, value, ttl)
	return nil
}

func (m *memoryClient) Take(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.c.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	m.c.Delete(key)
	s, _ := v.(string)
	return s, nil
}

func (m *memoryClient) Delete(ctx context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

func (m *memoryClient) Ping(ctx context.Context) error { return nil }
func (m *memoryClient) Close() error                   { return nil }

// Package provider turns provider credentials into trusted profiles and
// drives the browser login handshakes that obtain those credentials.
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tendant/simple-social-auth/pkg/domain"
)

const (
	// DefaultTimeout bounds each upstream verification call.
	DefaultTimeout = 10 * time.Second

	maxProfileBytes = 1 << 20
)

// Options are shared by all verifiers.
type Options struct {
	// BaseURL overrides the provider API root.
	BaseURL string
	// HTTPClient is used for upstream calls; nil uses a client without its own timeout.
	HTTPClient *http.Client
	// Timeout bounds a single Verify call. Zero means DefaultTimeout.
	Timeout time.Duration
}

func (o Options) baseURL(def string) string {
	if o.BaseURL != "" {
		return o.BaseURL
	}
	return def
}

func (o Options) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return http.DefaultClient
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultTimeout
}

func rejected(p domain.Provider, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", domain.ErrVerificationFailed, p, fmt.Sprintf(format, args...))
}

// fetchProfile runs req and decodes a JSON object from a 2xx response.
func fetchProfile(client *http.Client, p domain.Provider, req *http.Request) (domain.Profile, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, rejected(p, "request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, rejected(p, "read response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, rejected(p, "upstream returned %d", resp.StatusCode)
	}

	profile, err := domain.DecodeProfile(body)
	if err != nil {
		return nil, rejected(p, "decode profile: %v", err)
	}
	return profile, nil
}

func withTimeout(ctx context.Context, o Options) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.timeout())
}

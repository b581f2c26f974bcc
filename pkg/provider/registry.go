package provider

import (
	"fmt"
	"net/http"
	"time"

	"github.com/tendant/simple-social-auth/pkg/auth"
	"github.com/tendant/simple-social-auth/pkg/domain"
)

// Registry holds the configured verifiers and login flows by provider.
// It performs no linking itself.
type Registry struct {
	verifiers map[domain.Provider]auth.Verifier
	flows     map[domain.Provider]Flow
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		verifiers: make(map[domain.Provider]auth.Verifier),
		flows:     make(map[domain.Provider]Flow),
	}
}

// Register adds a verifier and, for redirect-based providers, its flow.
func (r *Registry) Register(p domain.Provider, v auth.Verifier, flow Flow) {
	r.verifiers[p] = v
	if flow != nil {
		r.flows[p] = flow
	}
}

// Verifiers returns the verifier table for auth.DefaultProviderConfigs.
func (r *Registry) Verifiers() map[domain.Provider]auth.Verifier {
	out := make(map[domain.Provider]auth.Verifier, len(r.verifiers))
	for p, v := range r.verifiers {
		out[p] = v
	}
	return out
}

// Flow returns the login flow for a provider.
func (r *Registry) Flow(p domain.Provider) (Flow, error) {
	f, ok := r.flows[p]
	if !ok {
		return nil, fmt.Errorf("%w: no login flow for %s", domain.ErrUnknownProvider, p)
	}
	return f, nil
}

// Enabled lists registered providers in canonical order.
func (r *Registry) Enabled() []domain.Provider {
	var out []domain.Provider
	for _, p := range domain.Providers {
		if _, ok := r.verifiers[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Config holds the application credentials of every provider. A provider
// whose credentials are empty is not registered.
type Config struct {
	Facebook   OAuth2Config
	Google     OAuth2Config
	Foursquare OAuth2Config
	Twitter    OAuth1Config

	// BrowserIDAudience enables browserid when set.
	BrowserIDAudience    string
	BrowserIDVerifierURL string

	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewRegistryFromConfig registers every provider with credentials.
func NewRegistryFromConfig(cfg Config) (*Registry, error) {
	r := NewRegistry()
	opts := Options{HTTPClient: cfg.HTTPClient, Timeout: cfg.Timeout}

	oauth2Providers := []struct {
		provider domain.Provider
		creds    OAuth2Config
		verifier auth.Verifier
	}{
		{domain.ProviderFacebook, cfg.Facebook, NewFacebookVerifier(opts)},
		{domain.ProviderGoogle, cfg.Google, NewGoogleVerifier(opts)},
		{domain.ProviderFoursquare, cfg.Foursquare, NewFoursquareVerifier(opts)},
	}
	for _, p := range oauth2Providers {
		if p.creds.ClientID == "" {
			continue
		}
		flow, err := NewOAuth2Flow(p.provider, p.creds)
		if err != nil {
			return nil, err
		}
		r.Register(p.provider, p.verifier, flow)
	}

	if cfg.Twitter.ConsumerKey != "" {
		flow, err := NewTwitterFlow(cfg.Twitter)
		if err != nil {
			return nil, err
		}
		r.Register(domain.ProviderTwitter, NewTwitterVerifier(cfg.Twitter.ConsumerKey, cfg.Twitter.ConsumerSecret, opts), flow)
	}

	if cfg.BrowserIDAudience != "" {
		browserid := opts
		browserid.BaseURL = cfg.BrowserIDVerifierURL
		r.Register(domain.ProviderBrowserID, NewBrowserIDVerifier(cfg.BrowserIDAudience, browserid), nil)
	}

	return r, nil
}

package provider

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"

	"github.com/dghubble/oauth1"
	oauth1twitter "github.com/dghubble/oauth1/twitter"
	"github.com/tendant/simple-social-auth/pkg/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/foursquare"
	"golang.org/x/oauth2/google"
)

// ErrStateMismatch is returned when a callback does not belong to the
// handshake the session started.
var ErrStateMismatch = errors.New("oauth state mismatch")

// FlowState is what a handshake must remember between redirect and callback.
type FlowState struct {
	Provider      domain.Provider `json:"provider"`
	State         string          `json:"state,omitempty"`
	RequestToken  string          `json:"request_token,omitempty"`
	RequestSecret string          `json:"request_secret,omitempty"`
}

// Key identifies the state in a store.
func (s FlowState) Key() string {
	if s.RequestToken != "" {
		return string(s.Provider) + ":" + s.RequestToken
	}
	return string(s.Provider) + ":" + s.State
}

// Flow is a browser login handshake that ends in a credential for Verify.
type Flow interface {
	Provider() domain.Provider
	// Begin returns the provider authorization URL and the state to keep.
	Begin(ctx context.Context) (string, FlowState, error)
	// CallbackKey extracts the state key from a callback query.
	CallbackKey(query url.Values) string
	// Complete exchanges the callback query for a credential.
	Complete(ctx context.Context, state FlowState, query url.Values) (domain.Credential, error)
}

// OAuth2Flow runs the authorization code grant.
type OAuth2Flow struct {
	provider domain.Provider
	config   *oauth2.Config
}

// OAuth2Config holds application credentials for an OAuth2 provider.
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// Endpoint overrides the provider's well-known endpoint.
	Endpoint *oauth2.Endpoint
}

var (
	oauth2Endpoints = map[domain.Provider]oauth2.Endpoint{
		domain.ProviderFacebook:   facebook.Endpoint,
		domain.ProviderGoogle:     google.Endpoint,
		domain.ProviderFoursquare: foursquare.Endpoint,
	}
	oauth2Scopes = map[domain.Provider][]string{
		domain.ProviderFacebook: {"email"},
		domain.ProviderGoogle: {
			"https://www.googleapis.com/auth/userinfo.profile",
			"https://www.googleapis.com/auth/userinfo.email",
		},
	}
)

// NewOAuth2Flow creates a code grant flow for facebook, google or foursquare.
func NewOAuth2Flow(provider domain.Provider, cfg OAuth2Config) (*OAuth2Flow, error) {
	endpoint, ok := oauth2Endpoints[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no oauth2 flow", domain.ErrUnknownProvider, provider)
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, fmt.Errorf("%s oauth config missing required fields", provider)
	}
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = oauth2Scopes[provider]
	}
	return &OAuth2Flow{
		provider: provider,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
	}, nil
}

// Provider returns the provider this flow logs into.
func (f *OAuth2Flow) Provider() domain.Provider {
	return f.provider
}

// Begin builds the authorization URL with a fresh random state.
func (f *OAuth2Flow) Begin(ctx context.Context) (string, FlowState, error) {
	state, err := randomState()
	if err != nil {
		return "", FlowState{}, err
	}
	return f.config.AuthCodeURL(state, oauth2.AccessTypeOnline), FlowState{Provider: f.provider, State: state}, nil
}

// CallbackKey implements Flow.
func (f *OAuth2Flow) CallbackKey(query url.Values) string {
	return FlowState{Provider: f.provider, State: query.Get("state")}.Key()
}

// Complete checks the state and exchanges the code for an access token.
func (f *OAuth2Flow) Complete(ctx context.Context, state FlowState, query url.Values) (domain.Credential, error) {
	if query.Get("state") == "" || query.Get("state") != state.State {
		return domain.Credential{}, ErrStateMismatch
	}
	if e := query.Get("error"); e != "" {
		return domain.Credential{}, rejected(f.provider, "authorization denied: %s", e)
	}
	code := query.Get("code")
	if code == "" {
		return domain.Credential{}, rejected(f.provider, "callback has no code")
	}

	token, err := f.config.Exchange(ctx, code)
	if err != nil {
		return domain.Credential{}, rejected(f.provider, "token exchange failed: %v", err)
	}
	return domain.Credential{Token: token.AccessToken}, nil
}

// OAuth1Flow runs the three-legged OAuth1 handshake used by twitter.
type OAuth1Flow struct {
	provider domain.Provider
	config   *oauth1.Config
}

// OAuth1Config holds consumer credentials for an OAuth1 provider.
type OAuth1Config struct {
	ConsumerKey    string
	ConsumerSecret string
	CallbackURL    string
	// Endpoint overrides the provider's well-known endpoint.
	Endpoint *oauth1.Endpoint
}

// NewTwitterFlow creates the twitter login flow.
func NewTwitterFlow(cfg OAuth1Config) (*OAuth1Flow, error) {
	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" || cfg.CallbackURL == "" {
		return nil, errors.New("twitter oauth config missing required fields")
	}
	endpoint := oauth1twitter.AuthenticateEndpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	return &OAuth1Flow{
		provider: domain.ProviderTwitter,
		config: &oauth1.Config{
			ConsumerKey:    cfg.ConsumerKey,
			ConsumerSecret: cfg.ConsumerSecret,
			CallbackURL:    cfg.CallbackURL,
			Endpoint:       endpoint,
		},
	}, nil
}

// Provider returns the provider this flow logs into.
func (f *OAuth1Flow) Provider() domain.Provider {
	return f.provider
}

// Begin obtains a request token and returns the authorization URL for it.
func (f *OAuth1Flow) Begin(ctx context.Context) (string, FlowState, error) {
	requestToken, requestSecret, err := f.config.RequestToken()
	if err != nil {
		return "", FlowState{}, rejected(f.provider, "request token: %v", err)
	}
	authURL, err := f.config.AuthorizationURL(requestToken)
	if err != nil {
		return "", FlowState{}, err
	}
	return authURL.String(), FlowState{
		Provider:      f.provider,
		RequestToken:  requestToken,
		RequestSecret: requestSecret,
	}, nil
}

// CallbackKey implements Flow.
func (f *OAuth1Flow) CallbackKey(query url.Values) string {
	return FlowState{Provider: f.provider, RequestToken: query.Get("oauth_token")}.Key()
}

// Complete trades the verifier for an access token and secret.
func (f *OAuth1Flow) Complete(ctx context.Context, state FlowState, query url.Values) (domain.Credential, error) {
	if query.Get("denied") != "" {
		return domain.Credential{}, rejected(f.provider, "authorization denied")
	}
	if query.Get("oauth_token") == "" || query.Get("oauth_token") != state.RequestToken {
		return domain.Credential{}, ErrStateMismatch
	}
	verifier := query.Get("oauth_verifier")
	if verifier == "" {
		return domain.Credential{}, rejected(f.provider, "callback has no verifier")
	}

	accessToken, accessSecret, err := f.config.AccessToken(state.RequestToken, state.RequestSecret, verifier)
	if err != nil {
		return domain.Credential{}, rejected(f.provider, "access token: %v", err)
	}
	return domain.Credential{Token: accessToken, Secret: accessSecret}, nil
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

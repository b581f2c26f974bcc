package provider

import (
	"context"
	"net/http"
	"net/url"

	"github.com/tendant/simple-social-auth/pkg/domain"
)

const (
	foursquareAPIURL = "https://api.foursquare.com"
	// foursquareVersion pins the response format of the v2 API.
	foursquareVersion = "20130101"
)

// FoursquareVerifier reads the self profile of an access token's owner.
type FoursquareVerifier struct {
	opts Options
}

// NewFoursquareVerifier creates a foursquare verifier.
func NewFoursquareVerifier(opts Options) *FoursquareVerifier {
	return &FoursquareVerifier{opts: opts}
}

// Verify implements auth.Verifier. The profile is the response.user object.
func (v *FoursquareVerifier) Verify(ctx context.Context, cred domain.Credential) (domain.Profile, error) {
	if cred.Token == "" {
		return nil, rejected(domain.ProviderFoursquare, "missing access token")
	}
	ctx, cancel := withTimeout(ctx, v.opts)
	defer cancel()

	q := url.Values{"oauth_token": {cred.Token}, "v": {foursquareVersion}}
	endpoint := v.opts.baseURL(foursquareAPIURL) + "/v2/users/self?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	envelope, err := fetchProfile(v.opts.client(), domain.ProviderFoursquare, req)
	if err != nil {
		return nil, err
	}

	raw, ok := envelope.Lookup("response", "user")
	if !ok {
		return nil, rejected(domain.ProviderFoursquare, "response has no user")
	}
	user, ok := raw.(map[string]any)
	if !ok {
		return nil, rejected(domain.ProviderFoursquare, "user is not an object")
	}
	return domain.Profile(user), nil
}

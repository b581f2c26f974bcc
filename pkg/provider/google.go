package provider

import (
	"context"
	"net/http"
	"net/url"

	"github.com/tendant/simple-social-auth/pkg/domain"
)

const googleAPIURL = "https://www.googleapis.com"

// GoogleVerifier reads the userinfo profile of an access token's owner.
// The profile carries id, email, verified_email, given_name, family_name,
// picture, locale and gender.
type GoogleVerifier struct {
	opts Options
}

// NewGoogleVerifier creates a google verifier.
func NewGoogleVerifier(opts Options) *GoogleVerifier {
	return &GoogleVerifier{opts: opts}
}

// Verify implements auth.Verifier.
func (v *GoogleVerifier) Verify(ctx context.Context, cred domain.Credential) (domain.Profile, error) {
	if cred.Token == "" {
		return nil, rejected(domain.ProviderGoogle, "missing access token")
	}
	ctx, cancel := withTimeout(ctx, v.opts)
	defer cancel()

	endpoint := v.opts.baseURL(googleAPIURL) + "/oauth2/v1/userinfo?" + url.Values{"access_token": {cred.Token}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return fetchProfile(v.opts.client(), domain.ProviderGoogle, req)
}

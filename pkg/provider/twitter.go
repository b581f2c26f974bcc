package provider

import (
	"context"
	"net/http"

	"github.com/dghubble/oauth1"
	"github.com/tendant/simple-social-auth/pkg/domain"
)

const twitterAPIURL = "https://api.twitter.com"

// TwitterVerifier reads verify_credentials with an OAuth1-signed request.
type TwitterVerifier struct {
	opts   Options
	config *oauth1.Config
}

// NewTwitterVerifier creates a twitter verifier for the application's consumer key.
func NewTwitterVerifier(consumerKey, consumerSecret string, opts Options) *TwitterVerifier {
	return &TwitterVerifier{
		opts:   opts,
		config: oauth1.NewConfig(consumerKey, consumerSecret),
	}
}

// Verify implements auth.Verifier. Both Token and Secret are required.
func (v *TwitterVerifier) Verify(ctx context.Context, cred domain.Credential) (domain.Profile, error) {
	if cred.Token == "" || cred.Secret == "" {
		return nil, rejected(domain.ProviderTwitter, "missing access token or secret")
	}
	ctx, cancel := withTimeout(ctx, v.opts)
	defer cancel()

	// oauth1 takes its transport's base client from the context.
	ctx = context.WithValue(ctx, oauth1.HTTPClient, v.opts.client())
	client := v.config.Client(ctx, oauth1.NewToken(cred.Token, cred.Secret))

	endpoint := v.opts.baseURL(twitterAPIURL) + "/1.1/account/verify_credentials.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return fetchProfile(client, domain.ProviderTwitter, req)
}

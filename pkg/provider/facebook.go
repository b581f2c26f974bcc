package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/tendant/simple-social-auth/pkg/domain"
)

const facebookGraphURL = "https://graph.facebook.com"

var facebookFields = []string{"id", "name", "first_name", "last_name", "email", "gender", "locale"}

// FacebookVerifier reads the graph profile of an access token's owner.
type FacebookVerifier struct {
	opts Options
}

// NewFacebookVerifier creates a facebook verifier.
func NewFacebookVerifier(opts Options) *FacebookVerifier {
	return &FacebookVerifier{opts: opts}
}

// Verify implements auth.Verifier.
func (v *FacebookVerifier) Verify(ctx context.Context, cred domain.Credential) (domain.Profile, error) {
	if cred.Token == "" {
		return nil, rejected(domain.ProviderFacebook, "missing access token")
	}
	ctx, cancel := withTimeout(ctx, v.opts)
	defer cancel()

	q := url.Values{
		"access_token": {cred.Token},
		"fields":       {strings.Join(facebookFields, ",")},
	}
	endpoint := v.opts.baseURL(facebookGraphURL) + "/me?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return fetchProfile(v.opts.client(), domain.ProviderFacebook, req)
}

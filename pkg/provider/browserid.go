package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/tendant/simple-social-auth/pkg/domain"
)

// DefaultBrowserIDVerifierURL is the hosted remote verification service.
const DefaultBrowserIDVerifierURL = "https://verifier.login.persona.org/verify"

// BrowserIDVerifier checks an assertion with a remote verification service.
type BrowserIDVerifier struct {
	opts     Options
	audience string
}

// NewBrowserIDVerifier creates a browserid verifier. opts.BaseURL is the
// full verifier URL. audience is the site origin assertions must name;
// an empty audience trusts the one sent with the credential.
func NewBrowserIDVerifier(audience string, opts Options) *BrowserIDVerifier {
	return &BrowserIDVerifier{opts: opts, audience: audience}
}

// Verify implements auth.Verifier.
func (v *BrowserIDVerifier) Verify(ctx context.Context, cred domain.Credential) (domain.Profile, error) {
	audience := v.audience
	if audience == "" {
		audience = cred.Audience
	}
	if cred.Assertion == "" || audience == "" {
		return nil, rejected(domain.ProviderBrowserID, "missing assertion or audience")
	}
	ctx, cancel := withTimeout(ctx, v.opts)
	defer cancel()

	form := url.Values{"assertion": {cred.Assertion}, "audience": {audience}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.opts.baseURL(DefaultBrowserIDVerifierURL), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	profile, err := fetchProfile(v.opts.client(), domain.ProviderBrowserID, req)
	if err != nil {
		return nil, err
	}
	if status := profile.String("status"); status != "okay" {
		return nil, rejected(domain.ProviderBrowserID, "status %q: %s", status, profile.String("reason"))
	}
	if got := profile.String("audience"); got != audience {
		return nil, rejected(domain.ProviderBrowserID, "audience mismatch %q", got)
	}
	return profile, nil
}

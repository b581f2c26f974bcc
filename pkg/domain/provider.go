package domain

import "fmt"

// Provider identifies a third-party identity service.
type Provider string

// Supported providers.
const (
	ProviderFacebook   Provider = "facebook"
	ProviderTwitter    Provider = "twitter"
	ProviderGoogle     Provider = "google"
	ProviderFoursquare Provider = "foursquare"
	ProviderBrowserID  Provider = "browserid"
)

// Providers lists every provider with a link slot on the account.
var Providers = []Provider{
	ProviderFacebook,
	ProviderTwitter,
	ProviderGoogle,
	ProviderFoursquare,
	ProviderBrowserID,
}

// ParseProvider validates a provider name.
func ParseProvider(name string) (Provider, error) {
	for _, p := range Providers {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownProvider, name)
}

// SubjectField returns the profile key holding the provider's stable subject id.
func (p Provider) SubjectField() string {
	if p == ProviderBrowserID {
		return "email"
	}
	return "id"
}

func (p Provider) String() string {
	return string(p)
}

package auth

import (
	"strings"

	"github.com/tendant/simple-social-auth/pkg/domain"
)

// BackfillRules extract candidate account values from a provider profile.
// A nil rule is skipped. Apply only fills fields that are currently empty.
type BackfillRules struct {
	Username      func(domain.Profile) string
	FirstName     func(domain.Profile) string
	LastName      func(domain.Profile) string
	Email         func(domain.Profile) string
	EmailVerified func(domain.Profile) bool
	Gender        func(domain.Profile) domain.Gender
}

// Apply copies profile values into empty user fields. The username is only
// replaced while the account still carries a lazy placeholder, and only
// when withUsername is set and the candidate is a valid username.
func (r BackfillRules) Apply(user *domain.User, profile domain.Profile, withUsername bool) {
	if withUsername && user.LazyUsername && r.Username != nil {
		if candidate := r.Username(profile); ValidateUsername(candidate) == nil {
			user.Username = candidate
			user.LazyUsername = false
		}
	}

	fill(&user.FirstName, r.FirstName, profile)
	fill(&user.LastName, r.LastName, profile)

	if user.Email == "" && r.Email != nil {
		if email := strings.TrimSpace(r.Email(profile)); email != "" {
			user.Email = email
			if r.EmailVerified != nil && r.EmailVerified(profile) {
				user.EmailConfirmed = true
			}
		}
	}

	if user.Gender == "" && r.Gender != nil {
		user.Gender = r.Gender(profile)
	}
}

func fill(dst *string, rule func(domain.Profile) string, profile domain.Profile) {
	if *dst != "" || rule == nil {
		return
	}
	*dst = SanitizeName(rule(profile))
}

var backfillTable = map[domain.Provider]BackfillRules{
	domain.ProviderFacebook: {
		Username:  field("username"),
		FirstName: field("first_name"),
		LastName:  field("last_name"),
		Email:     field("email"),
		Gender:    gender("gender"),
	},
	domain.ProviderTwitter: {
		Username:  field("screen_name"),
		FirstName: field("name"),
	},
	domain.ProviderGoogle: {
		Username:      localPart("email"),
		FirstName:     field("given_name"),
		LastName:      field("family_name"),
		Email:         field("email"),
		EmailVerified: flag("verified_email"),
		Gender:        gender("gender"),
	},
	domain.ProviderFoursquare: {
		Username:  localPart("contact", "email"),
		FirstName: field("firstName"),
		LastName:  field("lastName"),
		Email:     field("contact", "email"),
		Gender:    gender("gender"),
	},
	domain.ProviderBrowserID: {
		Username:      localPart("email"),
		Email:         field("email"),
		EmailVerified: func(domain.Profile) bool { return true },
	},
}

// Backfill returns the backfill rules for a provider.
func Backfill(provider domain.Provider) BackfillRules {
	return backfillTable[provider]
}

// NewProviderConfig builds the table row for provider around verifier.
func NewProviderConfig(provider domain.Provider, verifier Verifier) ProviderConfig {
	return ProviderConfig{
		Provider:     provider,
		Verifier:     verifier,
		SubjectField: provider.SubjectField(),
		Backfill:     Backfill(provider),
	}
}

// DefaultProviderConfigs builds rows for every provider that has a verifier.
func DefaultProviderConfigs(verifiers map[domain.Provider]Verifier) []ProviderConfig {
	var configs []ProviderConfig
	for _, p := range domain.Providers {
		if v, ok := verifiers[p]; ok && v != nil {
			configs = append(configs, NewProviderConfig(p, v))
		}
	}
	return configs
}

func field(path ...string) func(domain.Profile) string {
	return func(p domain.Profile) string {
		return strings.TrimSpace(p.String(path...))
	}
}

// localPart guesses a username from the part of an email before the last @.
func localPart(path ...string) func(domain.Profile) string {
	return func(p domain.Profile) string {
		email := strings.TrimSpace(p.String(path...))
		at := strings.LastIndex(email, "@")
		if at <= 0 {
			return ""
		}
		return email[:at]
	}
}

func flag(path ...string) func(domain.Profile) bool {
	return func(p domain.Profile) bool {
		return p.Bool(path...)
	}
}

func gender(path ...string) func(domain.Profile) domain.Gender {
	return func(p domain.Profile) domain.Gender {
		return domain.ParseGender(p.String(path...))
	}
}

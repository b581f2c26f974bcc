package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tendant/simple-social-auth/pkg/domain"
)

func TestBackfill_ProviderRules(t *testing.T) {
	tests := []struct {
		name     string
		provider domain.Provider
		profile  domain.Profile
		want     domain.User
	}{
		{
			name:     "facebook",
			provider: domain.ProviderFacebook,
			profile:  domain.Profile{"id": "1", "username": "ann.smith", "first_name": "Ann", "last_name": "Smith", "email": "ann@x.com", "gender": "female"},
			want:     domain.User{Username: "ann.smith", FirstName: "Ann", LastName: "Smith", Email: "ann@x.com", Gender: domain.GenderFemale},
		},
		{
			name:     "twitter",
			provider: domain.ProviderTwitter,
			profile:  domain.Profile{"id": float64(9), "screen_name": "annsmith", "name": "Ann Smith"},
			want:     domain.User{Username: "annsmith", FirstName: "Ann Smith"},
		},
		{
			name:     "google verified",
			provider: domain.ProviderGoogle,
			profile:  domain.Profile{"id": "g", "email": "annie@gmail.com", "verified_email": true, "given_name": "Ann", "family_name": "Smith", "gender": "other"},
			want:     domain.User{Username: "annie", FirstName: "Ann", LastName: "Smith", Email: "annie@gmail.com", EmailConfirmed: true},
		},
		{
			name:     "foursquare",
			provider: domain.ProviderFoursquare,
			profile:  domain.Profile{"id": "4", "firstName": "Ann", "lastName": "Smith", "gender": "male", "contact": map[string]any{"email": "annie@4sq.com"}},
			want:     domain.User{Username: "annie", FirstName: "Ann", LastName: "Smith", Email: "annie@4sq.com", Gender: domain.GenderMale},
		},
		{
			name:     "browserid",
			provider: domain.ProviderBrowserID,
			profile:  domain.Profile{"email": "annie@persona.org"},
			want:     domain.User{Username: "annie", Email: "annie@persona.org", EmailConfirmed: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &domain.User{Username: "guest-abcdef", LazyUsername: true}
			Backfill(tt.provider).Apply(user, tt.profile, true)

			assert.Equal(t, tt.want.Username, user.Username)
			assert.False(t, user.LazyUsername)
			assert.Equal(t, tt.want.FirstName, user.FirstName)
			assert.Equal(t, tt.want.LastName, user.LastName)
			assert.Equal(t, tt.want.Email, user.Email)
			assert.Equal(t, tt.want.EmailConfirmed, user.EmailConfirmed)
			assert.Equal(t, tt.want.Gender, user.Gender)
		})
	}
}

func TestBackfill_NeverOverwrites(t *testing.T) {
	user := &domain.User{
		Username:  "chosen",
		FirstName: "Ann",
		LastName:  "Smith",
		Email:     "ann@example.com",
		Gender:    domain.GenderFemale,
	}
	profile := domain.Profile{"username": "other", "first_name": "Annie", "last_name": "Jones", "email": "x@y.com", "gender": "male"}

	Backfill(domain.ProviderFacebook).Apply(user, profile, true)

	assert.Equal(t, "chosen", user.Username)
	assert.Equal(t, "Ann", user.FirstName)
	assert.Equal(t, "Smith", user.LastName)
	assert.Equal(t, "ann@example.com", user.Email)
	assert.Equal(t, domain.GenderFemale, user.Gender)
}

func TestBackfill_UsernameRules(t *testing.T) {
	t.Run("skipped when not requested", func(t *testing.T) {
		user := &domain.User{Username: "guest-abcdef", LazyUsername: true}
		Backfill(domain.ProviderTwitter).Apply(user, domain.Profile{"screen_name": "annsmith"}, false)
		assert.Equal(t, "guest-abcdef", user.Username)
		assert.True(t, user.LazyUsername)
	})

	t.Run("invalid candidate ignored", func(t *testing.T) {
		user := &domain.User{Username: "guest-abcdef", LazyUsername: true}
		Backfill(domain.ProviderTwitter).Apply(user, domain.Profile{"screen_name": "a b"}, true)
		assert.Equal(t, "guest-abcdef", user.Username)
	})

	t.Run("email without local part", func(t *testing.T) {
		user := &domain.User{Username: "guest-abcdef", LazyUsername: true}
		Backfill(domain.ProviderGoogle).Apply(user, domain.Profile{"email": "@example.com"}, true)
		assert.Equal(t, "guest-abcdef", user.Username)
	})

	t.Run("name sanitized", func(t *testing.T) {
		user := &domain.User{}
		Backfill(domain.ProviderTwitter).Apply(user, domain.Profile{"name": "  " + strings.Repeat("x", 40) + " "}, true)
		assert.Len(t, user.FirstName, 30)
	})
}

func TestDefaultProviderConfigs(t *testing.T) {
	v := VerifierFunc(nil)
	configs := DefaultProviderConfigs(map[domain.Provider]Verifier{
		domain.ProviderGoogle:    v,
		domain.ProviderBrowserID: v,
		domain.ProviderTwitter:   nil,
	})

	var got []domain.Provider
	for _, c := range configs {
		got = append(got, c.Provider)
	}
	assert.Equal(t, []domain.Provider{domain.ProviderGoogle, domain.ProviderBrowserID}, got)
	assert.Equal(t, "email", configs[1].SubjectField)
}

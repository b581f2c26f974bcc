package auth

import (
	"strings"
	"testing"

	"github.com/tendant/simple-social-auth/pkg/domain"
)

func TestImageURL(t *testing.T) {
	withLinks := func(links map[domain.Provider]domain.Profile, email string) *domain.User {
		u := &domain.User{Email: email}
		for p, data := range links {
			u.SetLink(p, domain.ProviderLink{ProfileData: data})
		}
		return u
	}

	tests := []struct {
		name string
		user *domain.User
		want string
	}{
		{
			name: "twitter first",
			user: withLinks(map[domain.Provider]domain.Profile{
				domain.ProviderTwitter:  {"id": "1", "profile_image_url": "https://tw/img.png"},
				domain.ProviderFacebook: {"id": "2"},
			}, ""),
			want: "https://tw/img.png",
		},
		{
			name: "facebook graph picture",
			user: withLinks(map[domain.Provider]domain.Profile{
				domain.ProviderFacebook: {"id": "2"},
				domain.ProviderGoogle:   {"id": "3", "picture": "https://g/p.png"},
			}, ""),
			want: "https://graph.facebook.com/2/picture?type=square",
		},
		{
			name: "foursquare legacy photo",
			user: withLinks(map[domain.Provider]domain.Profile{
				domain.ProviderFoursquare: {"id": "4", "photo": "https://4sq/p.jpg"},
			}, ""),
			want: "https://4sq/p.jpg",
		},
		{
			name: "foursquare prefix and suffix",
			user: withLinks(map[domain.Provider]domain.Profile{
				domain.ProviderFoursquare: {"id": "4", "photo": map[string]any{"prefix": "https://4sq/", "suffix": "/p.jpg"}},
			}, ""),
			want: "https://4sq/100x100/p.jpg",
		},
		{
			name: "google picture",
			user: withLinks(map[domain.Provider]domain.Profile{
				domain.ProviderGoogle: {"id": "3", "picture": "https://g/p.png"},
			}, "ann@example.com"),
			want: "https://g/p.png",
		},
		{
			name: "default",
			user: &domain.User{},
			want: "https://app/default.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ImageURL(tt.user, "https://app/default.png"); got != tt.want {
				t.Errorf("ImageURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestImageURL_Gravatar(t *testing.T) {
	got := ImageURL(&domain.User{Email: " Ann@Example.com "}, "https://app/default.png")
	if !strings.HasPrefix(got, "https://secure.gravatar.com/avatar/") {
		t.Fatalf("unexpected gravatar url %q", got)
	}
	lower := ImageURL(&domain.User{Email: "ann@example.com"}, "https://app/default.png")
	if got != lower {
		t.Errorf("gravatar hash should ignore case: %q != %q", got, lower)
	}
	if !strings.Contains(got, "size=50") || !strings.Contains(got, "default=https%3A%2F%2Fapp%2Fdefault.png") {
		t.Errorf("missing query parameters in %q", got)
	}
}

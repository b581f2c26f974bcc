package auth

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/tendant/simple-social-auth/pkg/domain"
)

const (
	facebookPictureURL = "https://graph.facebook.com/%s/picture?type=square"
	gravatarURL        = "https://secure.gravatar.com/avatar/%s?%s"
	gravatarSize       = "50"
)

// ImageURL picks an avatar for the user: twitter, facebook, foursquare and
// google profile images in that order, then gravatar for the email address,
// then defaultURL.
func ImageURL(user *domain.User, defaultURL string) string {
	if img := user.ProfileData(domain.ProviderTwitter).String("profile_image_url"); img != "" {
		return img
	}
	if id, ok := user.ProfileData(domain.ProviderFacebook).SubjectID("id"); ok {
		return fmt.Sprintf(facebookPictureURL, url.PathEscape(id))
	}
	if img := foursquarePhoto(user.ProfileData(domain.ProviderFoursquare)); img != "" {
		return img
	}
	if img := user.ProfileData(domain.ProviderGoogle).String("picture"); img != "" {
		return img
	}
	if user.Email != "" {
		sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(user.Email))))
		args := url.Values{"size": {gravatarSize}}
		if defaultURL != "" {
			args.Set("default", defaultURL)
		}
		return fmt.Sprintf(gravatarURL, hex.EncodeToString(sum[:]), args.Encode())
	}
	return defaultURL
}

// foursquarePhoto handles both the legacy string form and the v2 prefix/suffix object.
func foursquarePhoto(p domain.Profile) string {
	if img := p.String("photo"); img != "" {
		return img
	}
	prefix, suffix := p.String("photo", "prefix"), p.String("photo", "suffix")
	if prefix == "" || suffix == "" {
		return ""
	}
	return prefix + "100x100" + suffix
}

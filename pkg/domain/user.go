package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UnusablePasswordPrefix marks a password hash that can never match.
const UnusablePasswordPrefix = "!"

// User represents the account.
type User struct {
	ID                 uuid.UUID
	Username           string
	LazyUsername       bool
	PasswordHash       string
	Email              string
	EmailConfirmed     bool
	ConfirmationToken  string
	ConfirmationSentAt *time.Time
	FirstName          string
	LastName           string
	Gender             Gender
	Birthdate          *time.Time
	Language           string
	Links              map[Provider]ProviderLink
	IsActive           bool
	Revision           int64
	LastLogin          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ProviderLink is the credential and last fetched profile for one provider.
type ProviderLink struct {
	AccessToken  string  `json:"access_token,omitempty"`
	AccessSecret string  `json:"access_secret,omitempty"`
	ProfileData  Profile `json:"profile_data,omitempty"`
}

// Credential is the raw input handed to a provider verifier.
type Credential struct {
	Token     string
	Secret    string
	Assertion string
	Audience  string
}

// HasUsablePassword reports whether the account can log in with a password.
func (u *User) HasUsablePassword() bool {
	return u.PasswordHash != "" && !strings.HasPrefix(u.PasswordHash, UnusablePasswordPrefix)
}

// IsAuthenticated reports whether the account carries a real identity:
// a usable password or at least one provider profile.
func (u *User) IsAuthenticated() bool {
	if u.HasUsablePassword() {
		return true
	}
	for _, link := range u.Links {
		if len(link.ProfileData) > 0 {
			return true
		}
	}
	return false
}

// IsAnonymous is the negation of IsAuthenticated.
func (u *User) IsAnonymous() bool {
	return !u.IsAuthenticated()
}

// Link returns the link slot for a provider.
func (u *User) Link(p Provider) (ProviderLink, bool) {
	link, ok := u.Links[p]
	return link, ok
}

// SetLink replaces the link slot for a provider.
func (u *User) SetLink(p Provider, link ProviderLink) {
	if u.Links == nil {
		u.Links = make(map[Provider]ProviderLink)
	}
	u.Links[p] = link
}

// ProfileData returns the stored profile for a provider, or nil.
func (u *User) ProfileData(p Provider) Profile {
	return u.Links[p].ProfileData
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ConfirmationExpired reports whether the stored confirmation token is older than ttl.
func (u *User) ConfirmationExpired(ttl time.Duration, now time.Time) bool {
	if u.ConfirmationSentAt == nil {
		return true
	}
	return now.Sub(*u.ConfirmationSentAt) > ttl
}

// Gender values accepted on the account.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// ParseGender maps a provider or form value to a Gender. Anything other
// than male or female yields the empty value.
func ParseGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m":
		return GenderMale
	case "female", "f":
		return GenderFemale
	default:
		return ""
	}
}

package auth

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/tendant/simple-social-auth/pkg/domain"
)

const (
	minUsernameLength = 4
	maxUsernameLength = 30
	maxEmailLength    = 254 // RFC 5321
	maxNameLength     = 30

	// Birthdates may go back 120 leap years.
	birthdateLowerLimit = 366 * 120 * 24 * time.Hour
)

var usernameRegex = regexp.MustCompile(`^[\w.@+-]+$`)

// Email validation regex (stricter than RFC 5322 for practical use)
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// ValidateUsername checks length (4-30) and charset (letters, digits, @ . + - _).
func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < minUsernameLength || n > maxUsernameLength {
		return fmt.Errorf("%w: must be %d to %d characters", domain.ErrInvalidUsername, minUsernameLength, maxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("%w: letters, digits and @/./+/-/_ only", domain.ErrInvalidUsername)
	}
	return nil
}

// ValidateEmail validates an email address for format and length.
func ValidateEmail(email string, strict bool) error {
	if email == "" {
		return fmt.Errorf("%w: email address is required", domain.ErrInvalidEmail)
	}
	if len(email) > maxEmailLength {
		return fmt.Errorf("%w: too long (max %d characters)", domain.ErrInvalidEmail, maxEmailLength)
	}

	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Address != strings.TrimSpace(email) {
		return domain.ErrInvalidEmail
	}
	if strict && !emailRegex.MatchString(addr.Address) {
		return domain.ErrInvalidEmail
	}
	return nil
}

// NormalizeEmail lowercases the domain part and trims whitespace.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + strings.ToLower(email[at:])
}

// ValidateBirthdate accepts dates between today and 120 leap years ago.
func ValidateBirthdate(birthdate time.Time, now time.Time) error {
	day := truncateDay(birthdate)
	today := truncateDay(now)
	if day.After(today) || day.Before(today.Add(-birthdateLowerLimit)) {
		return domain.ErrInvalidBirthdate
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SanitizeName trims whitespace, strips control characters and caps the length.
func SanitizeName(name string) string {
	name = strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name))
	if utf8.RuneCountInString(name) > maxNameLength {
		name = string([]rune(name)[:maxNameLength])
	}
	return name
}

package auth

import (
	"fmt"
	"unicode"

	"github.com/tendant/simple-social-auth/pkg/domain"
)

// DefaultMinPasswordLength is the shortest password accepted at registration.
const DefaultMinPasswordLength = 6

// PasswordPolicy defines password complexity requirements.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireNumber    bool
}

// DefaultPasswordPolicy only enforces the minimum length.
func DefaultPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{MinLength: DefaultMinPasswordLength}
}

// ValidatePassword checks if a password meets the policy requirements.
func (p *PasswordPolicy) ValidatePassword(password string) error {
	if p.MinLength > 0 && len([]rune(password)) < p.MinLength {
		return fmt.Errorf("%w: at least %d characters", domain.ErrWeakPassword, p.MinLength)
	}
	if p.RequireUppercase && !containsRune(password, unicode.IsUpper) {
		return fmt.Errorf("%w: at least one uppercase letter", domain.ErrWeakPassword)
	}
	if p.RequireNumber && !containsRune(password, unicode.IsDigit) {
		return fmt.Errorf("%w: at least one number", domain.ErrWeakPassword)
	}
	return nil
}

// ValidatePasswordPair checks the policy and that both entries match.
func (p *PasswordPolicy) ValidatePasswordPair(password1, password2 string) error {
	if err := p.ValidatePassword(password1); err != nil {
		return err
	}
	if password1 != password2 {
		return domain.ErrPasswordMismatch
	}
	return nil
}

func containsRune(s string, pred func(rune) bool) bool {
	for _, r := range s {
		if pred(r) {
			return true
		}
	}
	return false
}

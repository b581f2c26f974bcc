package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tendant/simple-social-auth/pkg/domain"
)

// AccountInput is the account change form.
type AccountInput struct {
	CurrentPassword string
	FirstName       string
	LastName        string
	Email           string
	Gender          domain.Gender
	Birthdate       *time.Time
}

// AccountService edits account details and preferences.
type AccountService struct {
	users       UserStore
	passwords   *PasswordService
	languages   *Languages
	logger      *slog.Logger
	strictEmail bool
}

// NewAccountService creates a new account service.
func NewAccountService(users UserStore, passwords *PasswordService, languages *Languages, logger *slog.Logger, strictEmail bool) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		users:       users,
		passwords:   passwords,
		languages:   languages,
		logger:      logger,
		strictEmail: strictEmail,
	}
}

// UpdateAccount changes names, email, gender and birthdate. Accounts with a
// usable password must confirm the change with it. A new email address
// needs to be confirmed again.
func (s *AccountService) UpdateAccount(ctx context.Context, user *domain.User, in AccountInput) (*domain.User, error) {
	fresh, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if fresh.HasUsablePassword() && !s.passwords.CheckPassword(ctx, fresh, in.CurrentPassword) {
		return nil, domain.ErrInvalidCredentials
	}

	email := NormalizeEmail(in.Email)
	if email != "" {
		if err := ValidateEmail(email, s.strictEmail); err != nil {
			return nil, err
		}
	}
	if in.Birthdate != nil {
		if err := ValidateBirthdate(*in.Birthdate, time.Now()); err != nil {
			return nil, err
		}
	}

	fresh.FirstName = SanitizeName(in.FirstName)
	fresh.LastName = SanitizeName(in.LastName)
	if !strings.EqualFold(fresh.Email, email) {
		fresh.EmailConfirmed = false
		fresh.ConfirmationToken = ""
		fresh.ConfirmationSentAt = nil
	}
	fresh.Email = email
	fresh.Gender = in.Gender
	fresh.Birthdate = in.Birthdate

	if err := s.users.Save(ctx, fresh); err != nil {
		return nil, err
	}
	s.logger.Info("account updated", "user_id", fresh.ID)
	return fresh, nil
}

// SetLanguage stores a configured language on the user.
func (s *AccountService) SetLanguage(ctx context.Context, user *domain.User, code string) (*domain.User, error) {
	canonical, ok := s.languages.Lookup(code)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidLanguage, code)
	}

	fresh, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	fresh.Language = canonical
	if err := s.users.Save(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// Languages returns the configured language set.
func (s *AccountService) Languages() *Languages {
	return s.languages
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-social-auth/pkg/domain"
)

// dummyHash is verified when a username does not exist so unknown and
// known usernames take comparable time.
var dummyHash, _ = HashPassword("simple-social-auth-dummy")

// PasswordService handles local password authentication.
type PasswordService struct {
	users       UserStore
	policy      *PasswordPolicy
	logger      *slog.Logger
	metrics     Metrics
	strictEmail bool
}

// NewPasswordService creates a new password service.
func NewPasswordService(users UserStore, policy *PasswordPolicy, logger *slog.Logger, metrics Metrics, strictEmail bool) *PasswordService {
	if policy == nil {
		policy = DefaultPasswordPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PasswordService{
		users:       users,
		policy:      policy,
		logger:      logger,
		metrics:     metricsOrNop(metrics),
		strictEmail: strictEmail,
	}
}

// Policy returns the password policy in force.
func (s *PasswordService) Policy() *PasswordPolicy {
	return s.policy
}

// CheckPassword reports whether raw matches the user's password. A match
// against an outdated hash silently re-hashes and stores the password.
func (s *PasswordService) CheckPassword(ctx context.Context, user *domain.User, raw string) bool {
	ok, upgrade := CheckPasswordHash(raw, user.PasswordHash)
	if !ok {
		return false
	}
	if upgrade {
		s.upgradeHash(ctx, user, raw)
	}
	return true
}

func (s *PasswordService) upgradeHash(ctx context.Context, user *domain.User, raw string) {
	from := HashAlgorithm(user.PasswordHash)
	hash, err := HashPassword(raw)
	if err != nil {
		s.logger.Warn("password rehash failed", "error", err, "user_id", user.ID)
		return
	}

	old := user.PasswordHash
	user.PasswordHash = hash
	if err := s.users.Save(ctx, user); err != nil {
		user.PasswordHash = old
		s.logger.Warn("password rehash not saved", "error", err, "user_id", user.ID)
		return
	}
	s.metrics.PasswordRehashed(from)
	s.logger.Info("password hash upgraded", "user_id", user.ID, "from", from)
}

// Authenticate checks a username (case-insensitive) and password.
func (s *PasswordService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, domain.ErrUserNotFound) {
		VerifyPassword(password, dummyHash)
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !s.CheckPassword(ctx, user, password) {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, domain.ErrInactiveUser
	}

	now := time.Now()
	user.LastLogin = &now
	if err := s.users.Save(ctx, user); err != nil {
		s.logger.Warn("failed to record last login", "error", err, "user_id", user.ID)
	}
	return user, nil
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Username  string
	Password1 string
	Password2 string
	FirstName string
	LastName  string
	Email     string
	Gender    domain.Gender
	Birthdate *time.Time
}

// Register creates a password account. When the session user is still
// anonymous it is upgraded in place so provider links and settings made
// as a guest carry over.
func (s *PasswordService) Register(ctx context.Context, current *domain.User, in RegisterInput) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.FirstName = SanitizeName(in.FirstName)
	in.LastName = SanitizeName(in.LastName)
	in.Email = NormalizeEmail(in.Email)

	if err := ValidateUsername(in.Username); err != nil {
		return nil, err
	}
	if err := s.policy.ValidatePasswordPair(in.Password1, in.Password2); err != nil {
		return nil, err
	}
	if in.FirstName == "" || in.LastName == "" {
		return nil, fmt.Errorf("%w: first and last name are required", domain.ErrMissingField)
	}
	if err := ValidateEmail(in.Email, s.strictEmail); err != nil {
		return nil, err
	}
	if in.Birthdate != nil {
		if err := ValidateBirthdate(*in.Birthdate, time.Now()); err != nil {
			return nil, err
		}
	}

	existing, err := s.users.GetByUsername(ctx, in.Username)
	switch {
	case err == nil:
		if current == nil || existing.ID != current.ID {
			return nil, domain.ErrUsernameAlreadyExists
		}
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, err
	}

	hash, err := HashPassword(in.Password1)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now()
	if current != nil && current.IsAnonymous() {
		user, err := s.users.GetByID(ctx, current.ID)
		if err != nil {
			return nil, fmt.Errorf("reload session user: %w", err)
		}
		applyRegistration(user, in, hash)
		user.LastLogin = &now
		if err := s.users.Save(ctx, user); err != nil {
			return nil, err
		}
		s.logger.Info("guest registered", "user_id", user.ID)
		return user, nil
	}

	user := &domain.User{
		ID:        uuid.New(),
		IsActive:  true,
		LastLogin: &now,
	}
	applyRegistration(user, in, hash)
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

func applyRegistration(user *domain.User, in RegisterInput, hash string) {
	user.Username = in.Username
	user.LazyUsername = false
	user.PasswordHash = hash
	user.FirstName = in.FirstName
	user.LastName = in.LastName
	if !strings.EqualFold(user.Email, in.Email) {
		user.EmailConfirmed = false
		user.ConfirmationToken = ""
	}
	user.Email = in.Email
	if in.Gender != "" {
		user.Gender = in.Gender
	}
	if in.Birthdate != nil {
		user.Birthdate = in.Birthdate
	}
}

// ChangePassword replaces the password after checking the old one.
func (s *PasswordService) ChangePassword(ctx context.Context, user *domain.User, oldPassword, newPassword1, newPassword2 string) (*domain.User, error) {
	fresh, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if !s.CheckPassword(ctx, fresh, oldPassword) {
		return nil, domain.ErrInvalidCredentials
	}
	return s.setPassword(ctx, fresh, newPassword1, newPassword2)
}

// SetPassword replaces the password without checking the old one.
func (s *PasswordService) SetPassword(ctx context.Context, user *domain.User, newPassword1, newPassword2 string) (*domain.User, error) {
	fresh, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return s.setPassword(ctx, fresh, newPassword1, newPassword2)
}

func (s *PasswordService) setPassword(ctx context.Context, user *domain.User, newPassword1, newPassword2 string) (*domain.User, error) {
	if err := s.policy.ValidatePasswordPair(newPassword1, newPassword2); err != nil {
		return nil, err
	}
	hash, err := HashPassword(newPassword1)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	if err := s.users.Save(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("password changed", "user_id", user.ID)
	return user, nil
}

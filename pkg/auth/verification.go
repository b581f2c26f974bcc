package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-social-auth/pkg/domain"
)

const (
	confirmationTokenLength = 20

	// DefaultConfirmationTTL is how long an email confirmation token is valid.
	DefaultConfirmationTTL = 5 * 24 * time.Hour
	// DefaultPasswordResetTTL is how long a password reset token is valid.
	DefaultPasswordResetTTL = 3 * 24 * time.Hour
)

// VerificationConfig holds verification settings.
type VerificationConfig struct {
	Secret           []byte
	Issuer           string
	ConfirmationTTL  time.Duration
	PasswordResetTTL time.Duration
}

// PasswordResetClaims are carried by a password reset token. State binds
// the token to the password hash and last login it was issued against, so
// it stops working once either changes.
type PasswordResetClaims struct {
	jwt.RegisteredClaims
	State string `json:"st"`
}

// VerificationService issues and checks email confirmation and password reset tokens.
type VerificationService struct {
	config    VerificationConfig
	users     UserStore
	passwords *PasswordService
	logger    *slog.Logger
	now       func() time.Time
}

// NewVerificationService creates a new verification service.
func NewVerificationService(config VerificationConfig, users UserStore, passwords *PasswordService, logger *slog.Logger) *VerificationService {
	if config.ConfirmationTTL <= 0 {
		config.ConfirmationTTL = DefaultConfirmationTTL
	}
	if config.PasswordResetTTL <= 0 {
		config.PasswordResetTTL = DefaultPasswordResetTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VerificationService{
		config:    config,
		users:     users,
		passwords: passwords,
		logger:    logger,
		now:       time.Now,
	}
}

// ConfirmationTTL is how long confirmation tokens stay valid.
func (s *VerificationService) ConfirmationTTL() time.Duration {
	return s.config.ConfirmationTTL
}

// PasswordResetTTL is how long password reset tokens stay valid.
func (s *VerificationService) PasswordResetTTL() time.Duration {
	return s.config.PasswordResetTTL
}

// IssueConfirmation stores a fresh confirmation token on the user and returns it.
func (s *VerificationService) IssueConfirmation(ctx context.Context, user *domain.User) (*domain.User, string, error) {
	fresh, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	if fresh.Email == "" {
		return nil, "", domain.ErrEmailNotSet
	}

	token, err := randomString(confirmationTokenLength, alphanumeric)
	if err != nil {
		return nil, "", fmt.Errorf("generate confirmation token: %w", err)
	}
	now := s.now()
	fresh.ConfirmationToken = token
	fresh.ConfirmationSentAt = &now
	if err := s.users.Save(ctx, fresh); err != nil {
		return nil, "", err
	}
	return fresh, token, nil
}

// ConfirmEmail marks the email of the token's owner as confirmed.
func (s *VerificationService) ConfirmEmail(ctx context.Context, token string) (*domain.User, error) {
	user, err := s.users.GetByConfirmationToken(ctx, token)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if user.ConfirmationExpired(s.config.ConfirmationTTL, s.now()) {
		return nil, domain.ErrTokenExpired
	}

	user.EmailConfirmed = true
	user.ConfirmationToken = ""
	user.ConfirmationSentAt = nil
	if err := s.users.Save(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("email confirmed", "user_id", user.ID)
	return user, nil
}

// PasswordResetCandidates returns active users with the email address that
// can log in with a password.
func (s *VerificationService) PasswordResetCandidates(ctx context.Context, email string) ([]*domain.User, error) {
	users, err := s.users.ListByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	var out []*domain.User
	for _, u := range users {
		if u.HasUsablePassword() {
			out = append(out, u)
		}
	}
	return out, nil
}

// CreatePasswordResetToken issues a signed reset token for user.
func (s *VerificationService) CreatePasswordResetToken(user *domain.User) (string, error) {
	now := s.now()
	claims := PasswordResetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.PasswordResetTTL)),
		},
		State: s.resetState(user),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.config.Secret)
}

// ResetPassword sets a new password for the owner of a valid reset token.
func (s *VerificationService) ResetPassword(ctx context.Context, token, password1, password2 string) (*domain.User, error) {
	claims := &PasswordResetClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.config.Secret, nil
	}, jwt.WithTimeFunc(s.now))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, domain.ErrTokenExpired
	}
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive || !hmac.Equal([]byte(claims.State), []byte(s.resetState(user))) {
		return nil, domain.ErrInvalidToken
	}

	return s.passwords.SetPassword(ctx, user, password1, password2)
}

func (s *VerificationService) resetState(user *domain.User) string {
	mac := hmac.New(sha256.New, s.config.Secret)
	mac.Write([]byte(user.ID.String()))
	mac.Write([]byte(user.PasswordHash))
	if user.LastLogin != nil {
		mac.Write([]byte(user.LastLogin.UTC().Format(time.RFC3339)))
	}
	return hex.EncodeToString(mac.Sum(nil))[:32]
}

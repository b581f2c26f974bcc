package password

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tendant/simple-social-auth/internal/http/features/common"
	"github.com/tendant/simple-social-auth/internal/http/features/email"
	"github.com/tendant/simple-social-auth/internal/http/middleware"
	"github.com/tendant/simple-social-auth/internal/httputil"
	"github.com/tendant/simple-social-auth/internal/notification"
	"github.com/tendant/simple-social-auth/pkg/auth"
	"github.com/tendant/simple-social-auth/pkg/domain"
)

// Handler handles password authentication endpoints.
type Handler struct {
	logger              *slog.Logger
	passwordService     *auth.PasswordService
	verificationService *auth.VerificationService
	emailService        *notification.EmailService
	confirmations       *email.Confirmations
	sessions            *httputil.Sessions
	appBaseURL          string
	defaultImageURL     string
}

// NewHandler creates a new password handler. emailService may be nil, in
// which case no confirmation or reset mail is sent.
func NewHandler(
	logger *slog.Logger,
	passwordService *auth.PasswordService,
	verificationService *auth.VerificationService,
	emailService *notification.EmailService,
	confirmations *email.Confirmations,
	sessions *httputil.Sessions,
	appBaseURL string,
	defaultImageURL string,
) *Handler {
	return &Handler{
		logger:              logger,
		passwordService:     passwordService,
		verificationService: verificationService,
		emailService:        emailService,
		confirmations:       confirmations,
		sessions:            sessions,
		appBaseURL:          appBaseURL,
		defaultImageURL:     defaultImageURL,
	}
}

// RegisterRequest represents a registration request.
type RegisterRequest struct {
	Username  string `json:"username"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Gender    string `json:"gender,omitempty"`
	Birthdate string `json:"birthdate,omitempty"`
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ResetRequest asks for a password reset mail.
type ResetRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest sets a new password with a reset token.
type ResetPasswordRequest struct {
	Token     string `json:"token"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
}

// Register creates a password account, upgrading a guest session in place.
// POST /v1/auth/password/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httputil.ReadJSON(w, r, &req) {
		return
	}
	birthdate, err := common.ParseDate(req.Birthdate)
	if err != nil {
		common.WriteError(w, h.logger, "registration rejected", err)
		return
	}

	current, _ := middleware.CurrentUser(r.Context())
	user, err := h.passwordService.Register(r.Context(), current, auth.RegisterInput{
		Username:  req.Username,
		Password1: req.Password1,
		Password2: req.Password2,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Gender:    domain.ParseGender(req.Gender),
		Birthdate: birthdate,
	})
	if err != nil {
		common.WriteError(w, h.logger, "registration failed", err)
		return
	}

	if err := h.sessions.SetUserID(w, r, user.ID); err != nil {
		h.logger.Error("failed to save session", "error", err, "user_id", user.ID)
		httputil.Error(w, http.StatusInternalServerError, "failed to save session")
		return
	}

	h.sendConfirmation(r, user)
	httputil.JSON(w, http.StatusCreated, common.NewUserResponse(user, h.defaultImageURL))
}

// sendConfirmation mails a confirmation link. Failures are logged only;
// the user can ask for a new link later.
func (h *Handler) sendConfirmation(r *http.Request, user *domain.User) {
	if h.confirmations == nil || user.Email == "" {
		return
	}
	err := h.confirmations.SendConfirmation(r.Context(), user)
	switch {
	case errors.Is(err, email.ErrMailDisabled):
	case err != nil:
		h.logger.Error("failed to send confirmation email", "error", err, "user_id", user.ID)
	default:
		h.logger.Info("confirmation email sent", "user_id", user.ID)
	}
}

// Login checks a username and password and points the session at the user.
// POST /v1/auth/password/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.ReadJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := h.passwordService.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		common.WriteError(w, h.logger, "login failed", err, "username", req.Username)
		return
	}

	if err := h.sessions.SetUserID(w, r, user.ID); err != nil {
		h.logger.Error("failed to save session", "error", err, "user_id", user.ID)
		httputil.Error(w, http.StatusInternalServerError, "failed to save session")
		return
	}
	h.logger.Info("user logged in", "user_id", user.ID)
	httputil.JSON(w, http.StatusOK, common.NewUserResponse(user, h.defaultImageURL))
}

// Logout drops the session. The next request starts a fresh guest.
// POST /v1/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Clear(w, r); err != nil {
		h.logger.Error("failed to clear session", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to clear session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestPasswordReset mails a reset link to every account using the
// address. The reply is the same whether or not one exists.
// POST /v1/auth/password/reset-request
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if !httputil.ReadJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.Error(w, http.StatusBadRequest, "email is required")
		return
	}

	accepted := map[string]string{"message": "if the address belongs to an account, a reset link has been sent"}

	users, err := h.verificationService.PasswordResetCandidates(r.Context(), req.Email)
	if err != nil {
		h.logger.Error("failed to look up reset candidates", "error", err)
		httputil.JSON(w, http.StatusAccepted, accepted)
		return
	}
	if h.emailService == nil {
		if len(users) > 0 {
			h.logger.Warn("password reset requested but email is not configured")
		}
		httputil.JSON(w, http.StatusAccepted, accepted)
		return
	}

	for _, user := range users {
		token, err := h.verificationService.CreatePasswordResetToken(user)
		if err != nil {
			h.logger.Error("failed to create reset token", "error", err, "user_id", user.ID)
			continue
		}
		resetURL := h.appBaseURL + "/auth/reset-password?token=" + url.QueryEscape(token)
		if err := h.emailService.SendPasswordReset(r.Context(), user.Email, user.Username, resetURL, h.verificationService.PasswordResetTTL()); err != nil {
			h.logger.Error("failed to send reset email", "error", err, "user_id", user.ID)
			continue
		}
		h.logger.Info("password reset email sent", "user_id", user.ID)
	}
	httputil.JSON(w, http.StatusAccepted, accepted)
}

// ResetPassword sets a new password using a reset token.
// POST /v1/auth/password/reset
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !httputil.ReadJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		httputil.Error(w, http.StatusBadRequest, "token is required")
		return
	}

	user, err := h.verificationService.ResetPassword(r.Context(), req.Token, req.Password1, req.Password2)
	if err != nil {
		common.WriteError(w, h.logger, "password reset failed", err)
		return
	}
	h.logger.Info("password reset", "user_id", user.ID)
	httputil.JSON(w, http.StatusOK, map[string]string{"message": "password has been reset"})
}

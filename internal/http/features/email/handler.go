package email

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tendant/simple-social-auth/internal/http/features/common"
	"github.com/tendant/simple-social-auth/internal/http/middleware"
	"github.com/tendant/simple-social-auth/internal/httputil"
	"github.com/tendant/simple-social-auth/internal/notification"
	"github.com/tendant/simple-social-auth/pkg/auth"
	"github.com/tendant/simple-social-auth/pkg/domain"
)

// ErrMailDisabled is returned when no mail transport is configured.
var ErrMailDisabled = errors.New("email delivery is not configured")

// Confirmations issues confirmation tokens and mails the link.
type Confirmations struct {
	verificationService *auth.VerificationService
	emailService        *notification.EmailService
	appBaseURL          string
}

// NewConfirmations creates a confirmation mailer. emailService may be nil.
func NewConfirmations(verificationService *auth.VerificationService, emailService *notification.EmailService, appBaseURL string) *Confirmations {
	return &Confirmations{
		verificationService: verificationService,
		emailService:        emailService,
		appBaseURL:          appBaseURL,
	}
}

// SendConfirmation stores a fresh token on user and mails the link.
func (c *Confirmations) SendConfirmation(ctx context.Context, user *domain.User) error {
	if c.emailService == nil {
		return ErrMailDisabled
	}
	fresh, token, err := c.verificationService.IssueConfirmation(ctx, user)
	if err != nil {
		return err
	}
	confirmURL := c.appBaseURL + "/auth/confirm-email?token=" + url.QueryEscape(token)
	return c.emailService.SendEmailConfirmation(ctx, fresh.Email, confirmURL, c.verificationService.ConfirmationTTL())
}

// Handler handles email confirmation endpoints.
type Handler struct {
	logger              *slog.Logger
	verificationService *auth.VerificationService
	confirmations       *Confirmations
}

// NewHandler creates a new email handler.
func NewHandler(logger *slog.Logger, verificationService *auth.VerificationService, confirmations *Confirmations) *Handler {
	return &Handler{
		logger:              logger,
		verificationService: verificationService,
		confirmations:       confirmations,
	}
}

// ConfirmRequest carries a confirmation token.
type ConfirmRequest struct {
	Token string `json:"token"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// ConfirmEmail marks an address as confirmed.
// POST /v1/auth/email/confirm
func (h *Handler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	// Support both query parameter and JSON body
	token := r.URL.Query().Get("token")
	if token == "" {
		var req ConfirmRequest
		if !httputil.ReadJSON(w, r, &req) {
			return
		}
		token = req.Token
	}
	if token == "" {
		httputil.Error(w, http.StatusBadRequest, "token is required")
		return
	}

	user, err := h.verificationService.ConfirmEmail(r.Context(), token)
	if err != nil {
		common.WriteError(w, h.logger, "email confirmation failed", err)
		return
	}
	h.logger.Info("email confirmed", "user_id", user.ID)
	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "email address confirmed"})
}

// SendConfirmation mails a new confirmation link to the session user.
// POST /v1/me/email/confirmation
func (h *Handler) SendConfirmation(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if user.EmailConfirmed {
		httputil.JSON(w, http.StatusOK, MessageResponse{Message: "email address already confirmed"})
		return
	}

	err := h.confirmations.SendConfirmation(r.Context(), user)
	if errors.Is(err, ErrMailDisabled) {
		httputil.Error(w, http.StatusServiceUnavailable, "email delivery is not configured")
		return
	}
	if err != nil {
		common.WriteError(w, h.logger, "failed to send confirmation", err, "user_id", user.ID)
		return
	}
	h.logger.Info("confirmation email sent", "user_id", user.ID)
	httputil.JSON(w, http.StatusAccepted, MessageResponse{Message: "confirmation email sent"})
}

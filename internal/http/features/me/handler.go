package me

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/tendant/simple-social-auth/internal/http/features/common"
	"github.com/tendant/simple-social-auth/internal/http/features/email"
	"github.com/tendant/simple-social-auth/internal/http/middleware"
	"github.com/tendant/simple-social-auth/internal/httputil"
	"github.com/tendant/simple-social-auth/pkg/auth"
	"github.com/tendant/simple-social-auth/pkg/domain"
)

// Handler handles account endpoints of the session user.
type Handler struct {
	logger          *slog.Logger
	accountService  *auth.AccountService
	passwordService *auth.PasswordService
	confirmations   *email.Confirmations
	defaultImageURL string
}

// NewHandler creates a new me handler.
func NewHandler(
	logger *slog.Logger,
	accountService *auth.AccountService,
	passwordService *auth.PasswordService,
	confirmations *email.Confirmations,
	defaultImageURL string,
) *Handler {
	return &Handler{
		logger:          logger,
		accountService:  accountService,
		passwordService: passwordService,
		confirmations:   confirmations,
		defaultImageURL: defaultImageURL,
	}
}

// UpdateRequest represents an account update. The current password is
// required when the account has one.
type UpdateRequest struct {
	CurrentPassword string `json:"current_password,omitempty"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Gender          string `json:"gender,omitempty"`
	Birthdate       string `json:"birthdate,omitempty"`
}

// PasswordRequest changes or, for accounts without one, sets the password.
type PasswordRequest struct {
	OldPassword  string `json:"old_password,omitempty"`
	NewPassword1 string `json:"new_password1"`
	NewPassword2 string `json:"new_password2"`
}

// LanguageRequest selects the interface language.
type LanguageRequest struct {
	Language string `json:"language"`
}

// LanguagesResponse lists the selectable languages.
type LanguagesResponse struct {
	Current   string   `json:"current"`
	Available []string `json:"available"`
}

// GetMe returns the session user.
// GET /v1/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	httputil.JSON(w, http.StatusOK, common.NewUserResponse(user, h.defaultImageURL))
}

// UpdateMe changes account details. A changed email address must be
// confirmed again; a confirmation link is mailed when possible.
// PATCH /v1/me
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if !httputil.ReadJSON(w, r, &req) {
		return
	}
	birthdate, err := common.ParseDate(req.Birthdate)
	if err != nil {
		common.WriteError(w, h.logger, "account update rejected", err, "user_id", user.ID)
		return
	}

	oldEmail := user.Email
	updated, err := h.accountService.UpdateAccount(r.Context(), user, auth.AccountInput{
		CurrentPassword: req.CurrentPassword,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Gender:          domain.ParseGender(req.Gender),
		Birthdate:       birthdate,
	})
	if err != nil {
		common.WriteError(w, h.logger, "account update failed", err, "user_id", user.ID)
		return
	}

	if updated.Email != "" && !strings.EqualFold(oldEmail, updated.Email) && h.confirmations != nil {
		if err := h.confirmations.SendConfirmation(r.Context(), updated); err != nil {
			h.logger.Warn("failed to send confirmation email", "error", err, "user_id", updated.ID)
		}
	}

	httputil.JSON(w, http.StatusOK, common.NewUserResponse(updated, h.defaultImageURL))
}

// ChangePassword replaces the password of the session user.
// POST /v1/me/password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}

	var req PasswordRequest
	if !httputil.ReadJSON(w, r, &req) {
		return
	}

	var err error
	if user.HasUsablePassword() {
		_, err = h.passwordService.ChangePassword(r.Context(), user, req.OldPassword, req.NewPassword1, req.NewPassword2)
	} else {
		_, err = h.passwordService.SetPassword(r.Context(), user, req.NewPassword1, req.NewPassword2)
	}
	if err != nil {
		common.WriteError(w, h.logger, "password change failed", err, "user_id", user.ID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Languages lists the selectable languages.
// GET /v1/me/language
func (h *Handler) Languages(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	languages := h.accountService.Languages()
	current := user.Language
	if current == "" {
		current = languages.Default()
	}
	httputil.JSON(w, http.StatusOK, LanguagesResponse{Current: current, Available: languages.Codes()})
}

// SetLanguage stores the interface language. Guests may set it too.
// POST /v1/me/language
func (h *Handler) SetLanguage(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}

	var req LanguageRequest
	if !httputil.ReadJSON(w, r, &req) {
		return
	}

	updated, err := h.accountService.SetLanguage(r.Context(), user, req.Language)
	if err != nil {
		common.WriteError(w, h.logger, "set language failed", err, "user_id", user.ID)
		return
	}
	httputil.JSON(w, http.StatusOK, LanguagesResponse{
		Current:   updated.Language,
		Available: h.accountService.Languages().Codes(),
	})
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	user, ok := middleware.CurrentUser(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return user, true
}

package common

import (
	"fmt"
	"time"

	"github.com/tendant/simple-social-auth/pkg/auth"
	"github.com/tendant/simple-social-auth/pkg/domain"
)

// UserResponse is the public view of an account.
type UserResponse struct {
	ID              string   `json:"id"`
	Username        string   `json:"username"`
	Email           string   `json:"email,omitempty"`
	EmailConfirmed  bool     `json:"email_confirmed"`
	FirstName       string   `json:"first_name,omitempty"`
	LastName        string   `json:"last_name,omitempty"`
	Gender          string   `json:"gender,omitempty"`
	Birthdate       string   `json:"birthdate,omitempty"`
	Language        string   `json:"language,omitempty"`
	IsAuthenticated bool     `json:"is_authenticated"`
	HasPassword     bool     `json:"has_password"`
	Providers       []string `json:"providers"`
	ImageURL        string   `json:"image_url,omitempty"`
}

// NewUserResponse builds the public view of user. Access tokens and the
// password hash never leave the server.
func NewUserResponse(user *domain.User, defaultImageURL string) UserResponse {
	resp := UserResponse{
		ID:              user.ID.String(),
		Username:        user.Username,
		Email:           user.Email,
		EmailConfirmed:  user.EmailConfirmed,
		FirstName:       user.FirstName,
		LastName:        user.LastName,
		Gender:          string(user.Gender),
		Language:        user.Language,
		IsAuthenticated: user.IsAuthenticated(),
		HasPassword:     user.HasUsablePassword(),
		Providers:       []string{},
		ImageURL:        auth.ImageURL(user, defaultImageURL),
	}
	if user.Birthdate != nil {
		resp.Birthdate = user.Birthdate.Format(DateLayout)
	}
	for _, p := range domain.Providers {
		if len(user.ProfileData(p)) > 0 {
			resp.Providers = append(resp.Providers, p.String())
		}
	}
	return resp
}

// DateLayout is the wire format of birthdates.
const DateLayout = "2006-01-02"

// ParseDate parses an optional birthdate. An empty string yields nil.
func ParseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%w: want YYYY-MM-DD", domain.ErrInvalidBirthdate)
	}
	return &t, nil
}

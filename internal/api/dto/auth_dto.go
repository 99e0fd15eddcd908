package dto

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// usernamePattern keeps usernames disjoint from email addresses, which share
// the login field.
var usernamePattern = regexp.MustCompile(`^[^@\s]+$`)

// RegisterRequest payload for new accounts. Account is accepted as an alias
// for Username.
type RegisterRequest struct {
	Username string `json:"username"`
	Account  string `json:"account"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Name returns the requested username.
func (r RegisterRequest) Name() string {
	if r.Username != "" {
		return r.Username
	}
	return r.Account
}

// Validate checks required fields.
func (r RegisterRequest) Validate() error {
	name := r.Name()
	return validation.Errors{
		"username": validation.Validate(name, validation.Required, validation.Length(3, 64),
			validation.Match(usernamePattern).Error("must not contain '@' or whitespace")),
		"email":    validation.Validate(r.Email, validation.Required, validation.Length(3, 254), is.Email),
		"password": validation.Validate(r.Password, validation.Required, validation.Length(8, 128)),
	}.Filter()
}

// LoginRequest payload for login. Account may be a username or an email.
type LoginRequest struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

// Validate checks required fields.
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Account, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// ChangePasswordRequest payload for password changes.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Validate checks required fields.
func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 128)),
	)
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PrincipalResponse is the public view of an account.
type PrincipalResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

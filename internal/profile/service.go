// Package profile serves the signed-in user's profile and password pages.
package profile

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/userhub/userhub-web/internal/auth"
	"github.com/userhub/userhub-web/internal/backend"
	"github.com/userhub/userhub-web/internal/shared"
)

const (
	updateFailedMessage   = "Failed to update profile"
	passwordFailedMessage = "Failed to change password"
	passwordMismatch      = "New passwords do not match"
)

// API is the slice of the backend client used by the profile pages.
type API interface {
	UpdateProfile(ctx context.Context, token string, req backend.ProfileUpdate) (*backend.User, error)
	ChangePassword(ctx context.Context, token string, req backend.PasswordChange) error
}

// ProfileInput is the submitted profile form.
type ProfileInput struct {
	FullName string `validate:"required"`
	Email    string `validate:"required,email"`
}

// PasswordInput is the submitted password form.
type PasswordInput struct {
	CurrentPassword string `validate:"required"`
	NewPassword     string `validate:"required"`
	ConfirmPassword string `validate:"required,eqfield=NewPassword"`
}

// Service validates profile forms and forwards them to the backend.
type Service struct {
	api      API
	validate *validator.Validate
}

// NewService constructs a Service.
func NewService(api API) *Service {
	return &Service{api: api, validate: validator.New()}
}

// UpdateProfile validates in and saves it, returning the updated identity.
func (s *Service) UpdateProfile(ctx context.Context, token string, in ProfileInput) (shared.Identity, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.check(in, profileMessages); err != nil {
		return shared.Identity{}, err
	}
	user, err := s.api.UpdateProfile(ctx, token, backend.ProfileUpdate{FullName: in.FullName, Email: in.Email})
	if err != nil {
		return shared.Identity{}, err
	}
	return auth.IdentityFromUser(*user), nil
}

// ChangePassword validates in locally; a mismatched confirmation never
// reaches the backend.
func (s *Service) ChangePassword(ctx context.Context, token string, in PasswordInput) error {
	if err := s.check(in, passwordMessages); err != nil {
		return err
	}
	return s.api.ChangePassword(ctx, token, backend.PasswordChange{
		CurrentPassword: in.CurrentPassword,
		NewPassword:     in.NewPassword,
	})
}

var profileMessages = map[string]string{
	"FullName.required": "Full name is required",
	"Email.required":    "Email is required",
	"Email.email":       "Enter a valid email address",
}

var passwordMessages = map[string]string{
	"CurrentPassword.required": "Current password is required",
	"NewPassword.required":     "New password is required",
	"ConfirmPassword.required": "Please confirm your new password",
	"ConfirmPassword.eqfield":  passwordMismatch,
}

func (s *Service) check(in any, messages map[string]string) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg, ok := messages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = fe.Error()
		}
		if _, exists := fields[fe.Field()]; !exists {
			fields[fe.Field()] = msg
		}
	}
	return &shared.ValidationError{Fields: fields}
}

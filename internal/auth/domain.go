package auth

import (
	"errors"
	"strings"

	"github.com/userhub/userhub-web/internal/backend"
	"github.com/userhub/userhub-web/internal/shared"
)

// ErrAuth is matched by every AuthError: bad credentials or an expired session.
var ErrAuth = errors.New("auth: not authenticated")

// AuthError reports a failed login or a session the backend no longer accepts.
type AuthError struct {
	Message string
	Cause   error
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return ErrAuth.Error()
	}
	return "auth: " + e.Message
}

// Is makes errors.Is(err, ErrAuth) succeed.
func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

// Unwrap exposes the backend error, if any.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// UserMessage is the text shown on the login form.
func (e *AuthError) UserMessage() string {
	return e.Message
}

// IdentityFromUser projects a backend user onto the session identity.
func IdentityFromUser(u backend.User) shared.Identity {
	return shared.Identity{
		UserID:   u.ID,
		FullName: u.FullName,
		Email:    u.Email,
		Role:     shared.Role(strings.ToLower(u.Role)),
		Status:   shared.Status(strings.ToLower(u.Status)),
	}
}

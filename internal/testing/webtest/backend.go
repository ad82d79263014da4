package webtest

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/userhub/userhub-web/internal/backend"
)

// FakeBackend is a scripted stand-in for *backend.Client. Unset hooks
// succeed with empty results; every call is recorded in order.
type FakeBackend struct {
	mu    sync.Mutex
	calls []string

	LoginFn          func(backend.Credentials) (*backend.AuthResponse, error)
	SignupFn         func(backend.SignupRequest) (*backend.AuthResponse, error)
	LogoutFn         func(token string) error
	GetProfileFn     func(token string) (*backend.User, error)
	UpdateProfileFn  func(token string, req backend.ProfileUpdate) (*backend.User, error)
	ChangePasswordFn func(token string, req backend.PasswordChange) error
	ListUsersFn      func(token string, page, perPage int) (*backend.UserPage, error)
	ActivateFn       func(token string, id int64) error
	DeactivateFn     func(token string, id int64) error
}

// Unauthorized mimics a backend 401 response.
func Unauthorized(message string) error {
	return &backend.APIError{StatusCode: http.StatusUnauthorized, Message: message}
}

// Failure mimics a backend error response with the given status.
func Failure(status int, message string) error {
	return &backend.APIError{StatusCode: status, Message: message}
}

// Calls returns the recorded calls, e.g. "deactivate:7".
func (f *FakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Count returns how many recorded calls start with prefix.
func (f *FakeBackend) Count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (f *FakeBackend) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *FakeBackend) Login(_ context.Context, creds backend.Credentials) (*backend.AuthResponse, error) {
	f.record("login:" + creds.Email)
	if f.LoginFn != nil {
		return f.LoginFn(creds)
	}
	return &backend.AuthResponse{Token: "token", User: backend.User{ID: 1, Email: creds.Email, Role: "user", Status: "active"}}, nil
}

func (f *FakeBackend) Signup(_ context.Context, req backend.SignupRequest) (*backend.AuthResponse, error) {
	f.record("signup:" + req.Email)
	if f.SignupFn != nil {
		return f.SignupFn(req)
	}
	return &backend.AuthResponse{Token: "token", User: backend.User{ID: 2, Email: req.Email, FullName: req.FullName, Role: "user", Status: "active"}}, nil
}

func (f *FakeBackend) Logout(_ context.Context, token string) error {
	f.record("logout")
	if f.LogoutFn != nil {
		return f.LogoutFn(token)
	}
	return nil
}

func (f *FakeBackend) GetProfile(_ context.Context, token string) (*backend.User, error) {
	f.record("get_profile")
	if f.GetProfileFn != nil {
		return f.GetProfileFn(token)
	}
	return &backend.User{ID: 1}, nil
}

func (f *FakeBackend) UpdateProfile(_ context.Context, token string, req backend.ProfileUpdate) (*backend.User, error) {
	f.record("update_profile")
	if f.UpdateProfileFn != nil {
		return f.UpdateProfileFn(token, req)
	}
	return &backend.User{ID: 1, FullName: req.FullName, Email: req.Email, Role: "user", Status: "active"}, nil
}

func (f *FakeBackend) ChangePassword(_ context.Context, token string, req backend.PasswordChange) error {
	f.record("change_password")
	if f.ChangePasswordFn != nil {
		return f.ChangePasswordFn(token, req)
	}
	return nil
}

func (f *FakeBackend) ListUsers(_ context.Context, token string, page, perPage int) (*backend.UserPage, error) {
	f.record(fmt.Sprintf("list_users:%d", page))
	if f.ListUsersFn != nil {
		return f.ListUsersFn(token, page, perPage)
	}
	return &backend.UserPage{Page: page, PerPage: perPage, Pages: 1}, nil
}

func (f *FakeBackend) ActivateUser(_ context.Context, token string, id int64) error {
	f.record(fmt.Sprintf("activate:%d", id))
	if f.ActivateFn != nil {
		return f.ActivateFn(token, id)
	}
	return nil
}

func (f *FakeBackend) DeactivateUser(_ context.Context, token string, id int64) error {
	f.record(fmt.Sprintf("deactivate:%d", id))
	if f.DeactivateFn != nil {
		return f.DeactivateFn(token, id)
	}
	return nil
}

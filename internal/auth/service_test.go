package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/userhub/userhub-web/internal/backend"
	"github.com/userhub/userhub-web/internal/shared"
	"github.com/userhub/userhub-web/internal/testing/webtest"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "5",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return token
}

// probe echoes the identity the middleware resolved.
func probe(store *Store) http.Handler {
	return store.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := shared.IdentityFromContext(r.Context()); ok {
			_, _ = w.Write([]byte("user:" + id.Email))
			return
		}
		_, _ = w.Write([]byte("anonymous"))
	}))
}

func TestRehydrateExpiredTokenClearsSession(t *testing.T) {
	env := webtest.New(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	token := signedToken(t, now.Add(-time.Minute))
	api := &webtest.FakeBackend{
		LoginFn: func(c backend.Credentials) (*backend.AuthResponse, error) {
			return &backend.AuthResponse{Token: token, User: backend.User{ID: 5, Email: c.Email}}, nil
		},
	}
	store := NewStore(api, env.Sessions, env.CSRF, nil)
	store.SetClock(func() time.Time { return now })
	browser := env.Browser(t, probe(store))
	browser.With(func(ctx context.Context, sess *shared.Session) {
		_, err := store.Login(ctx, sess, backend.Credentials{Email: "a@test.local"})
		require.NoError(t, err)
	})

	res := browser.Get("/dashboard")
	assert.Equal(t, "anonymous", res.Body.String())

	sess := browser.Session()
	assert.Empty(t, store.Token(sess))
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "Your session has expired. Please log in again.", flash.Message)
	assert.Zero(t, api.Count("get_profile"))
}

func TestRehydrateKeepsLiveToken(t *testing.T) {
	env := webtest.New(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	token := signedToken(t, now.Add(time.Hour))
	api := &webtest.FakeBackend{
		LoginFn: func(c backend.Credentials) (*backend.AuthResponse, error) {
			return &backend.AuthResponse{Token: token, User: backend.User{ID: 5, Email: c.Email}}, nil
		},
	}
	store := NewStore(api, env.Sessions, env.CSRF, nil)
	store.SetClock(func() time.Time { return now })
	browser := env.Browser(t, probe(store))
	browser.With(func(ctx context.Context, sess *shared.Session) {
		_, err := store.Login(ctx, sess, backend.Credentials{Email: "a@test.local"})
		require.NoError(t, err)
	})

	assert.Equal(t, "user:a@test.local", browser.Get("/dashboard").Body.String())
}

func TestRehydrateResolvesMissingIdentity(t *testing.T) {
	env := webtest.New(t)
	api := &webtest.FakeBackend{
		GetProfileFn: func(token string) (*backend.User, error) {
			assert.Equal(t, "opaque", token)
			return &backend.User{ID: 9, Email: "nine@test.local", Role: "USER", Status: "Active"}, nil
		},
	}
	store := NewStore(api, env.Sessions, env.CSRF, nil)
	browser := env.Browser(t, probe(store))
	browser.With(func(_ context.Context, sess *shared.Session) {
		sess.Set(tokenKey, "opaque")
	})

	assert.Equal(t, "user:nine@test.local", browser.Get("/").Body.String())
	assert.Equal(t, "user:nine@test.local", browser.Get("/").Body.String())
	assert.Equal(t, 1, api.Count("get_profile"))

	id, ok := store.Current(browser.Session())
	require.True(t, ok)
	assert.Equal(t, shared.StatusActive, id.Status)
	assert.Equal(t, "9", browser.Session().User())
}

func TestRehydrateRejectedTokenSignsOut(t *testing.T) {
	env := webtest.New(t)
	api := &webtest.FakeBackend{
		GetProfileFn: func(string) (*backend.User, error) {
			return nil, webtest.Failure(http.StatusForbidden, "Account is deactivated")
		},
	}
	store := NewStore(api, env.Sessions, env.CSRF, nil)
	browser := env.Browser(t, probe(store))
	browser.With(func(_ context.Context, sess *shared.Session) {
		sess.Set(tokenKey, "opaque")
	})

	assert.Equal(t, "anonymous", browser.Get("/").Body.String())
	sess := browser.Session()
	assert.Empty(t, store.Token(sess))
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "Account is deactivated", flash.Message)
}

func TestLoginTransportFailureIsNotAuthError(t *testing.T) {
	env := webtest.New(t)
	boom := errors.New("dial tcp: connection refused")
	api := &webtest.FakeBackend{
		LoginFn: func(backend.Credentials) (*backend.AuthResponse, error) { return nil, boom },
	}
	store := NewStore(api, env.Sessions, env.CSRF, nil)

	sess := &shared.Session{}
	_, err := store.Login(context.Background(), sess, backend.Credentials{})
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrAuth)
}

func TestLoginUnauthorizedFallbackMessage(t *testing.T) {
	env := webtest.New(t)
	api := &webtest.FakeBackend{
		LoginFn: func(backend.Credentials) (*backend.AuthResponse, error) { return nil, webtest.Unauthorized("") },
	}
	store := NewStore(api, env.Sessions, env.CSRF, nil)

	_, err := store.Login(context.Background(), &shared.Session{}, backend.Credentials{})
	require.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, "Invalid email or password", shared.UserSafeMessage(err, "x"))
}

func TestHandleAPIErrorForcesLogout(t *testing.T) {
	env := webtest.New(t)
	store := NewStore(&webtest.FakeBackend{}, env.Sessions, env.CSRF, nil)
	store.OwnKeys("admin_pending")
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !store.HandleAPIError(w, r, webtest.Unauthorized("Token has expired")) {
			w.WriteHeader(http.StatusTeapot)
		}
	})
	browser := env.Browser(t, handler)
	browser.With(func(ctx context.Context, sess *shared.Session) {
		_, err := store.Login(ctx, sess, backend.Credentials{Email: "a@test.local"})
		require.NoError(t, err)
		sess.Set("admin_pending", `{"target_id":7}`)
	})

	res := browser.Get("/admin?page=2")
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/login?next=%2Fadmin%3Fpage%3D2", res.Header().Get("Location"))

	sess := browser.Session()
	assert.Empty(t, store.Token(sess))
	assert.Empty(t, sess.Get("admin_pending"))

	res = browser.PostForm("/admin/actions/confirm", nil)
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/login", res.Header().Get("Location"))
}

func TestLoginOverExistingSessionDropsPreviousUserState(t *testing.T) {
	env := webtest.New(t)
	api := &webtest.FakeBackend{
		LoginFn: func(c backend.Credentials) (*backend.AuthResponse, error) {
			id := int64(1)
			if c.Email == "b@test.local" {
				id = 2
			}
			return &backend.AuthResponse{Token: "tok-" + c.Email, User: backend.User{ID: id, Email: c.Email, Role: "admin", Status: "active"}}, nil
		},
	}
	store := NewStore(api, env.Sessions, env.CSRF, nil)
	store.OwnKeys("admin_pending")

	sess := &shared.Session{}
	_, err := store.Login(context.Background(), sess, backend.Credentials{Email: "a@test.local"})
	require.NoError(t, err)
	require.NoError(t, sess.SetJSON("admin_pending", map[string]any{"target_id": 7, "kind": "deactivate", "page": 1}))

	id, err := store.Login(context.Background(), sess, backend.Credentials{Email: "b@test.local"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), id.UserID)
	assert.Empty(t, sess.Get("admin_pending"))
	assert.Equal(t, "tok-b@test.local", store.Token(sess))
	assert.Equal(t, "2", sess.User())
}

func TestHandleAPIErrorIgnoresOtherErrors(t *testing.T) {
	store := NewStore(&webtest.FakeBackend{}, nil, nil, nil)
	assert.False(t, store.HandleAPIError(nil, nil, webtest.Failure(http.StatusInternalServerError, "")))
	assert.False(t, store.HandleAPIError(nil, nil, nil))
}

func TestSafeNext(t *testing.T) {
	cases := map[string]bool{
		"":                     false,
		"/":                    true,
		"/admin?page=2":        true,
		"//evil.example":       false,
		"/\\evil.example":      false,
		"https://evil.example": false,
		"admin":                false,
	}
	for next, want := range cases {
		assert.Equal(t, want, SafeNext(next), next)
	}
	assert.Equal(t, "/login", LoginPath("/"))
	assert.Equal(t, "/login?next=%2Fprofile", LoginPath("/profile"))
}

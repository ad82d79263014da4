package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/userhub/userhub-web/internal/backend"
	"github.com/userhub/userhub-web/internal/shared"
)

const (
	tokenKey    = "auth_token"
	identityKey = "identity"

	invalidCredentialsMessage = "Invalid email or password"
	sessionExpiredMessage     = "Your session has expired. Please log in again."
)

// API is the slice of the backend client the session store depends on.
type API interface {
	Login(ctx context.Context, creds backend.Credentials) (*backend.AuthResponse, error)
	Signup(ctx context.Context, req backend.SignupRequest) (*backend.AuthResponse, error)
	Logout(ctx context.Context, token string) error
	GetProfile(ctx context.Context, token string) (*backend.User, error)
}

// Store owns the signed-in identity and its bearer token. It is created once
// at startup and passed explicitly to every handler that needs it; the
// per-browser state lives in the Redis backed cookie session.
type Store struct {
	api      API
	sessions *shared.SessionManager
	csrf     *shared.CSRFManager
	logger   *slog.Logger
	now      func() time.Time
	profiles singleflight.Group
	// owned lists session keys written by other packages on behalf of the
	// signed-in user; they are dropped together with the identity.
	owned []string
}

// NewStore constructs a Store.
func NewStore(api API, sessions *shared.SessionManager, csrf *shared.CSRFManager, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{api: api, sessions: sessions, csrf: csrf, logger: logger, now: time.Now}
}

// OwnKeys registers per-user session keys cleared on logout.
func (s *Store) OwnKeys(keys ...string) {
	s.owned = append(s.owned, keys...)
}

// SetClock overrides the time source used for token expiry checks.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Login authenticates against the backend and binds the result to sess.
// Rejected credentials yield an *AuthError and leave sess unauthenticated.
func (s *Store) Login(ctx context.Context, sess *shared.Session, creds backend.Credentials) (shared.Identity, error) {
	if sess == nil {
		return shared.Identity{}, shared.ErrSessionMissing
	}
	resp, err := s.api.Login(ctx, creds)
	if err != nil {
		s.clear(sess)
		if errors.Is(err, backend.ErrUnauthorized) {
			return shared.Identity{}, &AuthError{
				Message: shared.UserSafeMessage(err, invalidCredentialsMessage),
				Cause:   err,
			}
		}
		return shared.Identity{}, err
	}
	return s.bind(sess, resp), nil
}

// Signup registers a new account and signs it in.
func (s *Store) Signup(ctx context.Context, sess *shared.Session, req backend.SignupRequest) (shared.Identity, error) {
	if sess == nil {
		return shared.Identity{}, shared.ErrSessionMissing
	}
	resp, err := s.api.Signup(ctx, req)
	if err != nil {
		return shared.Identity{}, err
	}
	return s.bind(sess, resp), nil
}

// Logout tears the session down: the backend is told first (best effort),
// then the token, identity and cookie session are dropped.
func (s *Store) Logout(ctx context.Context, sess *shared.Session) {
	if sess == nil {
		return
	}
	if token := sess.Get(tokenKey); token != "" {
		if err := s.api.Logout(ctx, token); err != nil {
			s.logger.Warn("backend logout", slog.Any("error", err))
		}
	}
	s.clear(sess)
	s.sessions.Destroy(sess)
}

// UpdateUser replaces the cached identity, e.g. after a profile edit.
func (s *Store) UpdateUser(sess *shared.Session, id shared.Identity) shared.Identity {
	if sess == nil {
		return id
	}
	if current, ok := s.Current(sess); ok && id.UserID == 0 {
		id.UserID = current.UserID
	}
	s.storeIdentity(sess, id)
	return id
}

// Current returns the cached identity, if the session is signed in.
func (s *Store) Current(sess *shared.Session) (shared.Identity, bool) {
	if sess == nil || sess.Get(tokenKey) == "" {
		return shared.Identity{}, false
	}
	var id shared.Identity
	if !sess.GetJSON(identityKey, &id) {
		return shared.Identity{}, false
	}
	return id, true
}

// Token returns the bearer token bound to the session.
func (s *Store) Token(sess *shared.Session) string {
	if sess == nil {
		return ""
	}
	return sess.Get(tokenKey)
}

// Rehydrate restores the identity for a request. An expired token drops the
// session; a token without a cached identity is resolved through the
// backend profile endpoint.
func (s *Store) Rehydrate(ctx context.Context, sess *shared.Session) (shared.Identity, bool) {
	if sess == nil {
		return shared.Identity{}, false
	}
	token := sess.Get(tokenKey)
	if token == "" {
		if sess.Get(identityKey) != "" {
			s.clear(sess)
		}
		return shared.Identity{}, false
	}
	if s.tokenExpired(token) {
		s.clear(sess)
		sess.AddFlash(shared.FlashMessage{Kind: shared.FlashInfo, Message: sessionExpiredMessage})
		return shared.Identity{}, false
	}
	if id, ok := s.Current(sess); ok {
		return id, true
	}

	res, err, _ := s.profiles.Do(token, func() (any, error) {
		return s.api.GetProfile(ctx, token)
	})
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) || errors.Is(err, backend.ErrForbidden) {
			s.clear(sess)
			sess.AddFlash(shared.FlashMessage{Kind: shared.FlashError, Message: shared.UserSafeMessage(err, sessionExpiredMessage)})
			return shared.Identity{}, false
		}
		s.logger.Warn("rehydrate identity", slog.Any("error", err))
		return shared.Identity{}, false
	}
	user, ok := res.(*backend.User)
	if !ok || user == nil {
		return shared.Identity{}, false
	}
	id := IdentityFromUser(*user)
	s.storeIdentity(sess, id)
	return id, true
}

// Middleware rehydrates the identity and exposes it through the request context.
func (s *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if id, ok := s.Rehydrate(r.Context(), sess); ok {
			r = r.WithContext(shared.ContextWithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// HandleAPIError forces a logout when err says the backend rejected the
// token. It reports whether a response has been written.
func (s *Store) HandleAPIError(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, backend.ErrUnauthorized) {
		return false
	}
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		s.clear(sess)
		sess.AddFlash(shared.FlashMessage{Kind: shared.FlashInfo, Message: sessionExpiredMessage})
	}
	http.Redirect(w, r, LoginPathFor(r), http.StatusSeeOther)
	return true
}

// LoginPathFor returns to the current page after login for GET requests only.
func LoginPathFor(r *http.Request) string {
	if r.Method != http.MethodGet {
		return "/login"
	}
	return LoginPath(r.URL.RequestURI())
}

// LoginPath builds the login URL that returns to next after signing in.
func LoginPath(next string) string {
	if !SafeNext(next) || next == "/" {
		return "/login"
	}
	return "/login?next=" + url.QueryEscape(next)
}

// SafeNext reports whether next is a local path suitable for redirects.
func SafeNext(next string) bool {
	if next == "" || next[0] != '/' {
		return false
	}
	if len(next) > 1 && (next[1] == '/' || next[1] == '\\') {
		return false
	}
	u, err := url.Parse(next)
	return err == nil && u.Scheme == "" && u.Host == ""
}

func (s *Store) bind(sess *shared.Session, resp *backend.AuthResponse) shared.Identity {
	// A new sign-in never inherits the previous user's state.
	s.clear(sess)
	s.sessions.Renew(sess)
	if s.csrf != nil {
		if _, err := s.csrf.Rotate(sess); err != nil {
			s.logger.Warn("rotate csrf token", slog.Any("error", err))
		}
	}
	sess.Set(tokenKey, resp.Token)
	id := IdentityFromUser(resp.User)
	s.storeIdentity(sess, id)
	return id
}

func (s *Store) storeIdentity(sess *shared.Session, id shared.Identity) {
	if err := sess.SetJSON(identityKey, id); err != nil {
		s.logger.Error("store identity", slog.Any("error", err))
		return
	}
	sess.SetUser(strconv.FormatInt(id.UserID, 10))
}

func (s *Store) clear(sess *shared.Session) {
	sess.Delete(tokenKey)
	sess.Delete(identityKey)
	if sess.User() != "" {
		sess.SetUser("")
	}
	for _, key := range s.owned {
		sess.Delete(key)
	}
}

// tokenExpired reads the exp claim without verifying the signature; the
// backend remains the authority on validity. Opaque tokens never expire here.
func (s *Store) tokenExpired(token string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !s.now().Before(exp.Time)
}

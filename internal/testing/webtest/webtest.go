// Package webtest holds helpers shared by handler tests: a miniredis backed
// session stack, a cookie replaying browser and a scripted backend.
package webtest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/userhub/userhub-web/internal/shared"
	"github.com/userhub/userhub-web/internal/view"
	_ "github.com/userhub/userhub-web/testing"
)

// Env bundles the stateful dependencies of a handler under test.
type Env struct {
	Redis     *miniredis.Miniredis
	Client    *redis.Client
	Sessions  *shared.SessionManager
	CSRF      *shared.CSRFManager
	Templates *view.Engine
}

// New starts miniredis and builds the session, CSRF and template stack.
func New(t *testing.T) *Env {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	templates, err := view.NewEngine()
	require.NoError(t, err)
	return &Env{
		Redis:     mr,
		Client:    client,
		Sessions:  shared.NewSessionManager(client, "test_session", "secret", time.Hour, false),
		CSRF:      shared.NewCSRFManager("csrfsecret"),
		Templates: templates,
	}
}

// Browser replays the session cookie between requests.
type Browser struct {
	t       *testing.T
	env     *Env
	handler http.Handler
	cookies map[string]*http.Cookie
}

// Browser wraps handler with the session middleware plus any extra
// middleware, applied outermost first.
func (e *Env) Browser(t *testing.T, handler http.Handler, mws ...func(http.Handler) http.Handler) *Browser {
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	return &Browser{
		t:       t,
		env:     e,
		handler: e.Sessions.Middleware(nil)(handler),
		cookies: make(map[string]*http.Cookie),
	}
}

// BareBrowser drives a handler that already loads sessions through
// e.Sessions, such as the full application router.
func (e *Env) BareBrowser(t *testing.T, handler http.Handler) *Browser {
	return &Browser{t: t, env: e, handler: handler, cookies: make(map[string]*http.Cookie)}
}

// Get issues a GET request.
func (b *Browser) Get(path string) *httptest.ResponseRecorder {
	return b.Do(httptest.NewRequest(http.MethodGet, path, nil))
}

// PostForm issues a form POST.
func (b *Browser) PostForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.Do(req)
}

// Do serves req, attaching and then collecting cookies.
func (b *Browser) Do(req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	res := httptest.NewRecorder()
	b.handler.ServeHTTP(res, req)
	b.collect(res.Result().Cookies())
	return res
}

// Session loads the browser's current session from Redis.
func (b *Browser) Session() *shared.Session {
	b.t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	sess, err := b.env.Sessions.Load(context.Background(), req)
	require.NoError(b.t, err)
	return sess
}

// With mutates the browser's session outside of a handler and persists it.
func (b *Browser) With(fn func(ctx context.Context, sess *shared.Session)) {
	b.t.Helper()
	sess := b.Session()
	ctx := context.Background()
	fn(ctx, sess)
	res := httptest.NewRecorder()
	require.NoError(b.t, b.env.Sessions.Commit(ctx, res, httptest.NewRequest(http.MethodGet, "/", nil), sess))
	b.collect(res.Result().Cookies())
}

// CSRFToken returns the token bound to the current session.
func (b *Browser) CSRFToken() string {
	return b.Session().Get(shared.CSRFSessionKey)
}

func (b *Browser) collect(cookies []*http.Cookie) {
	for _, c := range cookies {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = &http.Cookie{Name: c.Name, Value: c.Value}
	}
}

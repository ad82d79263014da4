package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "sid", "secret", time.Hour, false), mr
}

func commit(t *testing.T, sm *SessionManager, sess *Session) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), rec, httptest.NewRequest(http.MethodGet, "/", nil), sess))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func load(t *testing.T, sm *SessionManager, cookie *http.Cookie) *Session {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	return sess
}

func TestSessionRoundTrip(t *testing.T) {
	sm, mr := newTestManager(t)
	sess := load(t, sm, nil)
	sess.Set("auth_token", "tok")
	sess.SetUser("7")
	sess.AddFlash(FlashMessage{Kind: FlashSuccess, Message: "saved", DismissAfter: 3 * time.Second})
	cookie := commit(t, sm, sess)

	assert.True(t, mr.Exists("userhub:session:"+sess.ID))
	assert.Equal(t, time.Hour, mr.TTL("userhub:session:"+sess.ID))

	again := load(t, sm, cookie)
	assert.Equal(t, sess.ID, again.ID)
	assert.Equal(t, "tok", again.Get("auth_token"))
	assert.Equal(t, "7", again.User())
	flash := again.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, int64(3000), flash.DismissAfterMillis())
	assert.Nil(t, again.PopFlash())
}

func TestSessionUnknownIDIsNotAdopted(t *testing.T) {
	sm, _ := newTestManager(t)
	sess := load(t, sm, &http.Cookie{Name: "sid", Value: "attacker-chosen"})
	assert.NotEqual(t, "attacker-chosen", sess.ID)
	assert.Empty(t, sess.Get("auth_token"))
}

func TestSessionRenewDropsPreviousID(t *testing.T) {
	sm, mr := newTestManager(t)
	sess := load(t, sm, nil)
	sess.Set("k", "v")
	cookie := commit(t, sm, sess)
	oldID := sess.ID

	sess = load(t, sm, cookie)
	sm.Renew(sess)
	cookie = commit(t, sm, sess)

	assert.NotEqual(t, oldID, sess.ID)
	assert.False(t, mr.Exists("userhub:session:"+oldID))
	assert.Equal(t, "v", load(t, sm, cookie).Get("k"))
}

func TestSessionDestroyExpiresCookie(t *testing.T) {
	sm, mr := newTestManager(t)
	sess := load(t, sm, nil)
	cookie := commit(t, sm, sess)

	sess = load(t, sm, cookie)
	sm.Destroy(sess)
	expired := commit(t, sm, sess)

	assert.True(t, sess.Destroyed())
	assert.Equal(t, -1, expired.MaxAge)
	assert.False(t, mr.Exists("userhub:session:"+sess.ID))
}

func TestSessionJSONValues(t *testing.T) {
	sess := &Session{}
	require.NoError(t, sess.SetJSON("identity", Identity{UserID: 3, Role: RoleAdmin}))

	var id Identity
	require.True(t, sess.GetJSON("identity", &id))
	assert.True(t, id.IsAdmin())

	sess.Set("broken", "{")
	assert.False(t, sess.GetJSON("broken", &id))
	assert.False(t, sess.GetJSON("missing", &id))
}

func TestSessionMiddlewareCommitsBeforeBody(t *testing.T) {
	sm, mr := newTestManager(t)
	handler := sm.Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SessionFromContext(r.Context()).Set("seen", "yes")
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, mr.Exists("userhub:session:"+cookies[0].Value))
	assert.Equal(t, "yes", load(t, sm, cookies[0]).Get("seen"))
}

func TestSessionMiddlewareFailsOnRedisOutage(t *testing.T) {
	sm, mr := newTestManager(t)
	mr.Close()
	handler := sm.Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "abc"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

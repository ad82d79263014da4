package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type recordedCall struct {
	op     string
	status int
}

type observerStub struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (o *observerStub) ObserveBackendCall(op string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, recordedCall{op: op, status: status})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *observerStub) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	obs := &observerStub{}
	return NewClient(srv.URL+"/", WithObserver(obs)), obs
}

func TestLoginSuccess(t *testing.T) {
	client, obs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		var body Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.com", body.Email)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"tok","user":{"id":3,"email":"a@b.com","full_name":"Ann","role":"admin","status":"active","created_at":"2024-05-01T10:20:30.123456"}}`))
	})

	resp, err := client.Login(context.Background(), Credentials{Email: "a@b.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "tok", resp.Token)
	assert.Equal(t, int64(3), resp.User.ID)
	assert.Equal(t, "Ann", resp.User.FullName)
	assert.Equal(t, 2024, resp.User.CreatedAt.Value().Year())
	assert.Equal(t, []recordedCall{{op: "login", status: http.StatusOK}}, obs.calls)
}

func TestLoginUnauthorizedCarriesMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Unauthorized","message":"Invalid email or password","status":401}`))
	})

	_, err := client.Login(context.Background(), Credentials{Email: "a@b.com", Password: "wrong"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid email or password", apiErr.Message)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestErrorWithoutMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`<html>oops</html>`))
	})

	err := client.ActivateUser(context.Background(), "tok", 9)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Empty(t, apiErr.Message)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
}

func TestAdminCallsSendBearerToken(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer admin-token", r.Header.Get("Authorization"))
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.RequestURI())
		mu.Unlock()
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"users":[{"id":7,"full_name":"Seven","email":"s@x.io","role":"user","status":"active"}],"total":11,"page":2,"pages":2,"per_page":10}`))
			return
		}
		_, _ = w.Write([]byte(`{"message":"User deactivated successfully","user":{"id":7}}`))
	})

	ctx := context.Background()
	page, err := client.ListUsers(ctx, "admin-token", 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Pages)
	require.Len(t, page.Users, 1)
	assert.Equal(t, int64(7), page.Users[0].ID)

	require.NoError(t, client.DeactivateUser(ctx, "admin-token", 7))
	require.NoError(t, client.ActivateUser(ctx, "admin-token", 7))

	assert.Equal(t, []string{
		"GET /api/admin/users?page=2&per_page=10",
		"PUT /api/admin/users/7/deactivate",
		"PUT /api/admin/users/7/activate",
	}, paths)
}

func TestSingleAttemptNoRetry(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := client.ChangePassword(context.Background(), "tok", PasswordChange{CurrentPassword: "a", NewPassword: "b"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestTransportErrorHasNoStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	obs := &observerStub{}
	client := NewClient(url, WithObserver(obs), WithTimeout(time.Second))
	_, err := client.GetProfile(context.Background(), "tok")
	require.Error(t, err)
	assert.Equal(t, 0, StatusCode(err))
	assert.Equal(t, []recordedCall{{op: "get_profile", status: 0}}, obs.calls)
}

func TestTimestampLayouts(t *testing.T) {
	cases := map[string]int{
		`"2024-01-02T03:04:05Z"`:       2024,
		`"2023-07-08T09:10:11.000123"`: 2023,
		`"2022-03-04T05:06:07"`:        2022,
		`"2021-12-31T23:59:59+02:00"`:  2021,
	}
	for raw, year := range cases {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(raw), &ts), raw)
		assert.Equal(t, year, ts.Year(), raw)
	}

	var null Timestamp
	require.NoError(t, json.Unmarshal([]byte(`null`), &null))
	assert.True(t, null.IsZero())

	var bad Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &bad))
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestCallsAreTraced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/admin/users/7/deactivate" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"Forbidden","message":"Admins only","status":403}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	client := NewClient(srv.URL, WithTracerProvider(tp))

	require.NoError(t, client.ActivateUser(context.Background(), "tok", 7))
	err := client.DeactivateUser(context.Background(), "tok", 7)
	require.ErrorIs(t, err, ErrForbidden)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	ok := spans[0]
	assert.Equal(t, "backend.activate_user", ok.Name())
	assert.Equal(t, codes.Unset, ok.Status().Code)

	failed := spans[1]
	assert.Equal(t, "backend.deactivate_user", failed.Name())
	assert.Equal(t, codes.Error, failed.Status().Code)
	status, found := spanAttr(failed, "http.response.status_code")
	require.True(t, found)
	assert.Equal(t, int64(http.StatusForbidden), status.AsInt64())
	path, found := spanAttr(failed, "url.path")
	require.True(t, found)
	assert.Equal(t, "/api/admin/users/7/deactivate", path.AsString())
}

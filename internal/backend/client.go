// Package backend is the HTTP client for the user-account REST API.
//
// The client performs no input validation and never retries: every call is a
// single attempt whose outcome is handed back to the caller. Non-2xx responses
// become *APIError values carrying the backend message verbatim.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/userhub/userhub-web/internal/backend"

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Observer receives one notification per backend call.
type Observer interface {
	ObserveBackendCall(operation string, status int, elapsed time.Duration)
}

// Client wraps interactions with the user-account API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
	observer   Observer
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-call timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithObserver registers a call observer, typically the metrics collector.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithTracerProvider overrides the global OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewClient constructs a new client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping checks if the backend health endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "/health", "", nil, nil)
}

// Login exchanges credentials for a token and user.
func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, "login", http.MethodPost, "/api/auth/login", "", creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Signup registers a new account and returns its token and user.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, "signup", http.MethodPost, "/api/auth/signup", "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout notifies the backend that token is no longer in use.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, "logout", http.MethodPost, "/api/auth/logout", token, nil, nil)
}

// GetProfile fetches the account behind token.
func (c *Client) GetProfile(ctx context.Context, token string) (*User, error) {
	var out User
	if err := c.do(ctx, "get_profile", http.MethodGet, "/api/users/profile", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile edits name and email of the account behind token.
func (c *Client) UpdateProfile(ctx context.Context, token string, req ProfileUpdate) (*User, error) {
	var out User
	if err := c.do(ctx, "update_profile", http.MethodPut, "/api/users/profile", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword replaces the password of the account behind token.
func (c *Client) ChangePassword(ctx context.Context, token string, req PasswordChange) error {
	return c.do(ctx, "change_password", http.MethodPut, "/api/users/password", token, req, nil)
}

// ListUsers fetches one page of accounts. Admin only.
func (c *Client) ListUsers(ctx context.Context, token string, page, perPage int) (*UserPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	var out UserPage
	if err := c.do(ctx, "list_users", http.MethodGet, "/api/admin/users?"+q.Encode(), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ActivateUser sets the account status to active. Admin only.
func (c *Client) ActivateUser(ctx context.Context, token string, id int64) error {
	return c.do(ctx, "activate_user", http.MethodPut, fmt.Sprintf("/api/admin/users/%d/activate", id), token, nil, nil)
}

// DeactivateUser sets the account status to inactive. Admin only.
func (c *Client) DeactivateUser(ctx context.Context, token string, id int64) error {
	return c.do(ctx, "deactivate_user", http.MethodPut, fmt.Sprintf("/api/admin/users/%d/deactivate", id), token, nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path, token string, in, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "backend."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", strings.SplitN(path, "?", 2)[0]),
	)
	start := time.Now()
	status := 0
	defer func() {
		if status > 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", status))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if c.observer != nil {
			c.observer.ObserveBackendCall(op, status, time.Since(start))
		}
	}()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend: %s: encode: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend: %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	status = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("backend: %s: empty response body", op)
		}
		return fmt.Errorf("backend: %s: decode: %w", op, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		return apiErr
	}
	var body errorBody
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Message = strings.TrimSpace(body.Message)
	}
	return apiErr
}

package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/userhub/userhub-web/internal/backend"
	"github.com/userhub/userhub-web/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", &shared.ValidationError{Fields: map[string]string{"email": "Email is required"}}, http.StatusBadRequest},
		{"csrf", shared.ErrCSRFTokenMismatch, http.StatusForbidden},
		{"backend 401", &backend.APIError{StatusCode: http.StatusUnauthorized}, http.StatusUnauthorized},
		{"backend 409", &backend.APIError{StatusCode: http.StatusConflict}, http.StatusConflict},
		{"backend 500", &backend.APIError{StatusCode: http.StatusInternalServerError}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusFor(tc.err))
		})
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("dial tcp 10.0.0.3:5432: refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Internal Server Error", body.Title)
	assert.Empty(t, body.Detail)
}

func TestRespondErrorEchoesBackendMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, &backend.APIError{StatusCode: http.StatusForbidden, Message: "Admins only"})

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusForbidden, body.Status)
	assert.Equal(t, "Admins only", body.Detail)
}

package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized matches 401 responses: missing, invalid or expired token.
	ErrUnauthorized = errors.New("backend: unauthorized")
	// ErrForbidden matches 403 responses.
	ErrForbidden = errors.New("backend: forbidden")
	// ErrNotFound matches 404 responses.
	ErrNotFound = errors.New("backend: not found")
)

// APIError is returned for every non-2xx backend response.
type APIError struct {
	StatusCode int
	// Message is the backend "message" field verbatim; empty when absent.
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend: status %d: %s", e.StatusCode, e.Message)
}

// UserMessage exposes the backend message for display.
func (e *APIError) UserMessage() string {
	return e.Message
}

// Is maps status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// StatusCode extracts the HTTP status from err, or 0 when err is not an APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

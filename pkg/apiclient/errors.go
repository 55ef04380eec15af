package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a non-2xx response from the API
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

func fallbackMessage(status int) string {
	return fmt.Sprintf("API call failed: %d", status)
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not an
// API error
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is an API error with status 404
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsConflict reports whether err is an API error with status 409
func IsConflict(err error) bool {
	return StatusCode(err) == http.StatusConflict
}

package client

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Failure kinds. Every error returned by Client matches at most one of these
// with errors.Is.
var (
	// ErrTransport means no response was received.
	ErrTransport = errors.New("transport failure")
	// ErrAuthInvalid is a 401 the session could not recover from.
	ErrAuthInvalid = errors.New("authentication failed")
	// ErrForbidden is a 403.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation is any other 4xx; Fields holds per-field messages.
	ErrValidation = errors.New("validation failed")
	// ErrServer is a 5xx.
	ErrServer = errors.New("server failure")
)

// HTTPError represents a non-2xx HTTP response from the API.
type HTTPError struct {
	StatusCode int
	Message    string
	// Fields maps a form field to its messages, for validation errors.
	Fields map[string][]string
	// Body is the raw response body, capped at 1 MB.
	Body []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Kind returns the failure kind sentinel for the status code.
func (e *HTTPError) Kind() error {
	switch {
	case e.StatusCode == 401:
		return ErrAuthInvalid
	case e.StatusCode == 403:
		return ErrForbidden
	case e.StatusCode >= 500:
		return ErrServer
	case e.StatusCode >= 400:
		return ErrValidation
	default:
		return nil
	}
}

// Is lets errors.Is match an HTTPError against the kind sentinels.
func (e *HTTPError) Is(target error) bool {
	kind := e.Kind()
	return kind != nil && target == kind
}

// IsStatus returns true if err (or any wrapped error) is an HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}

// FieldErrors returns the per-field messages of a validation error, or nil.
func FieldErrors(err error) map[string][]string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Fields
	}
	return nil
}

// fieldSummary renders fields as "name: msg; name: msg" in name order.
func fieldSummary(fields map[string][]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(fields[name], " "))
	}
	return strings.Join(parts, "; ")
}

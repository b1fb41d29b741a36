package client

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrTransport          = errors.New("transport failure")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrNotOwner           = fmt.Errorf("not owner: %w", ErrForbidden)
	ErrValidation         = errors.New("validation failed")
	ErrPartialFailure     = errors.New("partial failure")
	ErrServer             = errors.New("server error")
)

// APIError is a failure reported by the server.
type APIError struct {
	Status int
	Detail string
	// Fields holds per-field messages; "non_field_errors" collects the rest.
	Fields map[string][]string

	kind error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d)", e.kind, e.Status)
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "; %s: %s", k, strings.Join(e.Fields[k], " "))
		}
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.kind }

// Message is the text meant for the user: the detail, else the first field
// message.
func (e *APIError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	for _, k := range []string{"non_field_errors", "__all__"} {
		if m := e.Fields[k]; len(m) > 0 {
			return m[0]
		}
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if m := e.Fields[k]; len(m) > 0 {
			return k + ": " + m[0]
		}
	}
	return http.StatusText(e.Status)
}

// statusKinds overrides the default kind of a status for one call.
type statusKinds map[int]error

// mapStatus picks the sentinel for a failure status.
func mapStatus(status int, overrides statusKinds) error {
	if k, ok := overrides[status]; ok {
		return k
	}
	switch {
	case status == http.StatusBadRequest:
		return ErrValidation
	case status == http.StatusUnauthorized:
		return ErrInvalidToken
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	default:
		return ErrServer
	}
}

package common

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Server-side domain errors. The HTTP layer maps them onto status codes;
// callers match them with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")

	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrForbidden    = errors.New("forbidden")
	ErrNotOwner     = fmt.Errorf("only owner is allowed: %w", ErrForbidden)
	ErrNotReader    = fmt.Errorf("only reader or owner is allowed: %w", ErrForbidden)

	ErrInternal = errors.New("internal error")
)

// NonFieldErrors is the key for messages that do not belong to one input.
const NonFieldErrors = "non_field_errors"

// FieldErrors collects validation messages per input field. It matches
// ErrValidation.
type FieldErrors map[string][]string

// Add appends msg to field.
func (f FieldErrors) Add(field, msg string) {
	f[field] = append(f[field], msg)
}

// Err returns f as an error, or nil when nothing was added.
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return f
}

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(f[k], " "))
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (f FieldErrors) Unwrap() error { return ErrValidation }

package core

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// The failure vocabulary of the content engine. Callers test with errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidDefinition    = errors.New("invalid definition")
	ErrUnsupportedFieldType = fmt.Errorf("unsupported field type: %w", ErrInvalidDefinition)
	ErrAlreadyExists        = errors.New("already exists")
	ErrValidationFailed     = errors.New("validation failed")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrMethodNotFound       = errors.New("method not found")
	ErrInvalidQuery         = errors.New("invalid query")
)

// ValidationError collects per-field validation messages, keyed by field path
// such as "title" or "sections.2.headline"
type ValidationError struct {
	Errors map[string][]string `json:"errors"`
}

// NewValidationError returns an empty validation error
func NewValidationError() *ValidationError {
	return &ValidationError{Errors: map[string][]string{}}
}

// Add records message for path
func (v *ValidationError) Add(path, message string) {
	v.Errors[path] = append(v.Errors[path], message)
}

// Merge adds all messages of other, prefixing their paths
func (v *ValidationError) Merge(prefix string, other *ValidationError) {
	if other == nil {
		return
	}
	for path, messages := range other.Errors {
		for _, m := range messages {
			v.Add(prefix+"."+path, m)
		}
	}
}

// Empty returns true if no message was recorded
func (v *ValidationError) Empty() bool {
	return len(v.Errors) == 0
}

// ErrorOrNil returns v if it holds messages, nil otherwise
func (v *ValidationError) ErrorOrNil() error {
	if v.Empty() {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	paths := make([]string, 0, len(v.Errors))
	for path := range v.Errors {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	parts := make([]string, 0, len(paths))
	for _, path := range paths {
		parts = append(parts, path+": "+strings.Join(v.Errors[path], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrValidationFailed) true for validation errors
func (v *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// HTTPStatus maps an engine error to the status code the HTTP layer answers with
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidDefinition),
		errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrMethodNotFound),
		errors.Is(err, ErrInvalidQuery):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

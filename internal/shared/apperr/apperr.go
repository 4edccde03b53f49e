package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidState        = errors.New("invalid state")
	ErrResourceUnavailable = errors.New("resource unavailable")
	// ErrRaceLost means a concurrent writer changed a record between read and
	// conditional write. It is retried inside the core and never reaches callers.
	ErrRaceLost   = errors.New("race lost")
	ErrUnexpected = errors.New("unexpected error")
)

func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

func Conflict(format string, args ...any) error {
	return wrap(ErrConflict, format, args...)
}

func InvalidState(format string, args ...any) error {
	return wrap(ErrInvalidState, format, args...)
}

func Unavailable(format string, args ...any) error {
	return wrap(ErrResourceUnavailable, format, args...)
}

func RaceLost(format string, args ...any) error {
	return wrap(ErrRaceLost, format, args...)
}

// Unexpected wraps an infrastructure failure so that both the kind and the
// cause stay reachable through errors.Is.
func Unexpected(cause error, format string, args ...any) error {
	if cause == nil {
		return wrap(ErrUnexpected, format, args...)
	}
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), ErrUnexpected, cause)
}

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}

// Is reports whether err carries one of the taxonomy kinds.
func Is(err error, kind error) bool {
	return errors.Is(err, kind)
}

// HTTPStatus maps an error to the status code used by the HTTP controllers.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrResourceUnavailable), errors.Is(err, ErrRaceLost):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Kind returns a short machine readable label for err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrResourceUnavailable):
		return "resource_unavailable"
	case errors.Is(err, ErrRaceLost):
		return "race_lost"
	default:
		return "unexpected"
	}
}

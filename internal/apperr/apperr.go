// internal/apperr/apperr.go
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrDataLoad means the catalog source is absent, malformed or inconsistent.
	ErrDataLoad = errors.New("catalog data load failed")
	// ErrNotReady means no catalog snapshot has been loaded yet.
	ErrNotReady = errors.New("catalog not ready")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrUnknownTool     = errors.New("unknown tool")
	// ErrBackendUnavailable covers every generative backend failure that is not throttling.
	ErrBackendUnavailable = errors.New("generative backend unavailable")
	ErrRateLimited        = errors.New("generative backend rate limited")
)

// Invalid wraps ErrInvalidArgument with a formatted reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// DataLoad wraps ErrDataLoad with a formatted reason.
func DataLoad(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDataLoad, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// HTTPStatus maps an error to the status code a transport should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownTool):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a short machine-readable label for the error kind.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnknownTool):
		return "unknown_tool"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, ErrNotReady):
		return "not_ready"
	case errors.Is(err, ErrDataLoad):
		return "data_load"
	default:
		return "internal"
	}
}

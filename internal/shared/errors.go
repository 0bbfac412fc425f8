package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrScopeMismatch    = fmt.Errorf("session scope mismatch")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrPageDrift          = fmt.Errorf("inconsistent pagination from upstream")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrTrackNotFound      = fmt.Errorf("track not found")
	ErrUserNotFound       = fmt.Errorf("user not found")

	// Persistence errors
	ErrPersistence = fmt.Errorf("persistence failed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)

// Error kinds surfaced to callers as part of structured failure payloads.
const (
	KindAuthenticationRequired = "authentication_required"
	KindUpstreamAPIError       = "upstream_api_error"
	KindPersistenceError       = "persistence_error"
	KindConfigurationError     = "configuration_error"
	KindInternal               = "internal"
)

// KindOf maps an error chain onto one of the failure kinds. Sentinels that
// do not belong to a kind (input validation, not-implemented) report as
// internal so callers never see an unclassified failure.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAuthenticated),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrScopeMismatch),
		errors.Is(err, ErrAuthFailed),
		errors.Is(err, ErrRefreshFailed),
		errors.Is(err, ErrNoRefreshToken):
		return KindAuthenticationRequired
	case errors.Is(err, ErrAPIRequest),
		errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, ErrPageDrift):
		return KindUpstreamAPIError
	case errors.Is(err, ErrPersistence):
		return KindPersistenceError
	case errors.Is(err, ErrMissingConfig),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrMissingCredentials),
		errors.Is(err, ErrInvalidCredentials):
		return KindConfigurationError
	default:
		return KindInternal
	}
}

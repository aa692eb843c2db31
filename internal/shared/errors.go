package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authorization flow errors. All four require user action and are never
	// retried by the system itself.
	ErrAlreadyPending = fmt.Errorf("authorization already pending")
	ErrUnknownState   = fmt.Errorf("unknown or expired authorization state")
	ErrAuthTimeout    = fmt.Errorf("authorization timed out")
	ErrAuthDenied     = fmt.Errorf("authorization denied")

	// Credential errors
	ErrNotConnected   = fmt.Errorf("account not connected")
	ErrTokenExpired   = fmt.Errorf("access token expired")
	ErrRefreshFailed  = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken = fmt.Errorf("no refresh token available")

	// API and service errors
	ErrAPIRequest   = fmt.Errorf("API request failed")
	ErrRateLimited  = fmt.Errorf("rate limited")
	ErrUserNotFound = fmt.Errorf("user not found")

	// Pipeline errors
	ErrSyncIncomplete = fmt.Errorf("sync incomplete")
	ErrTUIFailure     = fmt.Errorf("terminal UI failed")

	// Recommendation errors
	ErrNoCandidates = fmt.Errorf("no candidate tracks")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)

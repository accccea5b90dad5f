package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig        = fmt.Errorf("configuration not found")
	ErrInvalidConfig        = fmt.Errorf("invalid configuration")
	ErrMissingCredentials   = fmt.Errorf("missing credentials")
	ErrServiceNotConfigured = fmt.Errorf("service is not configured")

	// Session and OAuth errors
	ErrMissingAuthHeader   = fmt.Errorf("authorization header missing")
	ErrMalformedAuthHeader = fmt.Errorf("invalid authorization scheme")
	ErrUnknownSession      = fmt.Errorf("invalid session token")
	ErrAuthFailed          = fmt.Errorf("authentication failed")
	ErrRefreshFailed       = fmt.Errorf("token refresh failed")
	ErrCodeInvalid         = fmt.Errorf("invalid, expired, or already-used code")

	// Upstream and provider errors
	ErrAPIRequest     = fmt.Errorf("API request failed")
	ErrProviderFailed = fmt.Errorf("AI provider request failed")
	ErrImageTooLarge  = fmt.Errorf("generated image exceeds upload size limit")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)

// Package client talks to the filevault REST API.
//
// HTTPClient sends the bearer token on every request and maps error
// responses to the sentinels in internal/common (ErrForbidden, ErrorNotFound,
// ErrTooManyAttempts, ...) so callers can match them with errors.Is. Network
// failures and 503 responses additionally wrap ErrUnavailable. Read-only
// calls are retried with exponential backoff while the server is unavailable.
package client

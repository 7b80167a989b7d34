// Package common defines shared constants and sentinel errors used across
// client and server layers of filevault. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound  = errors.New("not found")
	ErrDuplicateID = errors.New("duplicate id")

	// Access errors. Transports merge ErrForbidden and ErrInvalidKey into a
	// single deny so callers cannot tell which factor failed.
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidKey      = errors.New("invalid download key")
	ErrTooManyAttempts = errors.New("too many failed attempts")

	// Storage errors.
	ErrTransient = errors.New("storage temporarily unavailable")
	ErrIntegrity = errors.New("integrity violation")

	// Server faults. Transports answer 500 / codes.Internal without details.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors.
	ErrValidation = errors.New("validation error")
	ErrTooLarge   = errors.New("file too large")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)

// IsDeny reports whether err is one of the access errors that transports
// present identically as a denied request.
func IsDeny(err error) bool {
	return errors.Is(err, ErrForbidden) || errors.Is(err, ErrInvalidKey) || errors.Is(err, ErrorNotFound)
}

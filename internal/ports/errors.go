package ports

import "errors"

// Service-boundary error kinds. Services wrap these with detail; handlers map
// them to HTTP statuses with errors.Is.
var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrTokenInvalid        = errors.New("token invalid")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrValidation          = errors.New("validation failed")
	ErrProviderUnavailable = errors.New("provider unavailable")
)

package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrExpired      = errors.New("token expired")
)

// TokenKind distinguishes which credential in an access/refresh pair failed
// verification. Clients use it to decide between a silent refresh (expired
// access token) and a forced re-login (expired refresh token).
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

type AppError struct {
	Err     error  // sentinel error category
	Message string // human-readable error message
	Field   string // optional: field (or token kind) causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized returns an AppError for authentication failures other than
// expiry: bad signature, malformed token, wrong credentials, or a stale
// refresh token. HTTP handlers map this to 401.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// ExpiredToken returns an AppError for an expired access or refresh token.
// The kind is carried in Field so transport code can tell the client which
// one expired.
func ExpiredToken(kind TokenKind) *AppError {
	return &AppError{
		Err:     ErrExpired,
		Message: fmt.Sprintf("%s token expired", kind),
		Field:   string(kind),
	}
}

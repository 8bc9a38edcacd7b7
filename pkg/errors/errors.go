// Package errors defines the platform error taxonomy: sentinels for
// errors.Is, machine codes for response bodies, and AppError tying a code
// to its HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Generic sentinels.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrAlreadyExists  = errors.New("resource already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal error")
	ErrServiceUnavail = errors.New("service unavailable")
)

// Authentication sentinels. Each 401 kind wraps ErrUnauthorized and a
// duplicate email wraps ErrAlreadyExists.
var (
	ErrInvalidCredentials     = fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
	ErrUnauthenticated        = fmt.Errorf("unauthenticated: %w", ErrUnauthorized)
	ErrInvalidToken           = fmt.Errorf("invalid token: %w", ErrUnauthorized)
	ErrTokenExpired           = fmt.Errorf("token expired: %w", ErrUnauthorized)
	ErrInvalidRefreshToken    = fmt.Errorf("invalid or expired refresh token: %w", ErrUnauthorized)
	ErrEmailAlreadyRegistered = fmt.Errorf("email already registered: %w", ErrAlreadyExists)
)

// Machine codes carried in AppError.Code and the failure envelope.
const (
	CodeNotFound               = "NOT_FOUND"
	CodeAlreadyExists          = "ALREADY_EXISTS"
	CodeInvalidInput           = "INVALID_INPUT"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeInternal               = "INTERNAL_ERROR"
	CodeInvalidCredentials     = "INVALID_CREDENTIALS"
	CodeEmailAlreadyRegistered = "EMAIL_ALREADY_REGISTERED"
	CodeUnauthenticated        = "UNAUTHENTICATED"
	CodeInvalidToken           = "INVALID_TOKEN"
	CodeTokenExpired           = "TOKEN_EXPIRED"
	CodeInvalidRefreshToken    = "INVALID_REFRESH_TOKEN"
)

// AppError is an error with a public code and message. Err is the cause and
// is never shown to clients.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func newAppError(status int, code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: cause}
}

func NotFound(resource, id string) *AppError {
	return newAppError(http.StatusNotFound, CodeNotFound,
		fmt.Sprintf("%s with id %s not found", resource, id), ErrNotFound)
}

func InvalidInput(message string) *AppError {
	return newAppError(http.StatusBadRequest, CodeInvalidInput, message, ErrInvalidInput)
}

func Forbidden(message string) *AppError {
	return newAppError(http.StatusForbidden, CodeForbidden, message, ErrForbidden)
}

// InvalidCredentials covers both an unknown email and a wrong secret; the
// message is the same for either.
func InvalidCredentials() *AppError {
	return newAppError(http.StatusUnauthorized, CodeInvalidCredentials,
		"invalid email or secret", ErrInvalidCredentials)
}

func EmailAlreadyRegistered(email string) *AppError {
	return newAppError(http.StatusConflict, CodeEmailAlreadyRegistered,
		fmt.Sprintf("email %q is already registered", email), ErrEmailAlreadyRegistered)
}

// Unauthenticated is a missing or malformed Authorization header.
func Unauthenticated(message string) *AppError {
	return newAppError(http.StatusUnauthorized, CodeUnauthenticated, message, ErrUnauthenticated)
}

// InvalidToken is a token that fails signature, algorithm, or claim checks.
// err is the verifier's reason and stays server-side.
func InvalidToken(err error) *AppError {
	return newAppError(http.StatusUnauthorized, CodeInvalidToken, "invalid token",
		errors.Join(ErrInvalidToken, err))
}

func TokenExpired() *AppError {
	return newAppError(http.StatusUnauthorized, CodeTokenExpired, "token expired", ErrTokenExpired)
}

// InvalidOrExpiredRefreshToken is used for expired, revoked, replayed and
// unknown refresh tokens alike.
func InvalidOrExpiredRefreshToken() *AppError {
	return newAppError(http.StatusUnauthorized, CodeInvalidRefreshToken,
		"invalid or expired refresh token", ErrInvalidRefreshToken)
}

// sentinelStatus is checked in order; the first match wins.
var sentinelStatus = []struct {
	err    error
	status int
}{
	{ErrNotFound, http.StatusNotFound},
	{ErrAlreadyExists, http.StatusConflict},
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrUnauthorized, http.StatusUnauthorized},
	{ErrForbidden, http.StatusForbidden},
	{ErrServiceUnavail, http.StatusServiceUnavailable},
}

// HTTPStatus maps err to a status: an AppError's own status, else the first
// matching sentinel, else 500.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	for _, s := range sentinelStatus {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

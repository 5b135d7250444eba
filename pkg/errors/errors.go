package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios. Validation failures are local
// and never the result of a backend call; backend failures are transport
// or service level and not attributable to user input. The two classes
// must not be conflated in the error surface, and a duplicate identity
// is distinct from both.
var (
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrBackend            = New("BACKEND_ERROR", http.StatusBadGateway, "backend service unavailable")
	ErrDuplicateIdentity  = New("DUPLICATE_IDENTITY", http.StatusConflict, "email or student ID already registered")
	ErrUpload             = New("UPLOAD_ERROR", http.StatusBadGateway, "failed to upload ID image")
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid student ID or password")
	ErrPendingApproval    = New("PENDING_APPROVAL", http.StatusForbidden, "account is awaiting administrator approval")
	ErrAccountRejected    = New("ACCOUNT_REJECTED", http.StatusForbidden, "account registration was rejected")
	ErrTwoFactorCode      = New("TWO_FACTOR_INVALID", http.StatusUnauthorized, "invalid verification code")
	ErrChallengeNotFound  = New("CHALLENGE_NOT_FOUND", http.StatusNotFound, "verification challenge not found or expired")
	ErrResendCooldown     = New("RESEND_COOLDOWN", http.StatusTooManyRequests, "verification code was sent recently")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Registration failure categories mapped from account-creation errors.
var (
	ErrAlreadyRegistered = New("ALREADY_REGISTERED", http.StatusConflict,
		"An account with this email already exists. Please use a different email or try logging in.")
	ErrInvalidEmail = New("INVALID_EMAIL", http.StatusBadRequest,
		"Please enter a valid email address.")
	ErrWeakPassword = New("WEAK_PASSWORD", http.StatusBadRequest,
		"Password must be at least 6 characters long.")
	ErrRegistration = New("REGISTRATION_ERROR", http.StatusInternalServerError,
		"An error occurred during registration")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Is reports whether err carries the same code as target. Sentinels are
// frequently cloned with a custom message, so pointer identity is not
// enough to recognise a category.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}

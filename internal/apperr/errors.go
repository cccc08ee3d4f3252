// Package apperr defines the coded error taxonomy shared by the auth, store
// and HTTP layers. Lower layers return coded errors; only the HTTP layer maps
// codes to status codes.
package apperr

import "errors"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown marks an error that carries no classification.
	CodeUnknown Code = "UNKNOWN"

	CodeValidation         Code = "VALIDATION"
	CodeDuplicateEmail     Code = "DUPLICATE_EMAIL"
	CodeWeakPassword       Code = "WEAK_PASSWORD"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeTokenInvalid       Code = "TOKEN_INVALID"
	CodeNotFound           Code = "NOT_FOUND"
	CodeStorage            Code = "STORAGE"
)

// Error is a classified error.
type Error struct {
	Code    Code              // Machine-readable error code
	Message string            // Internal message (for logs)
	Fields  map[string]string // Per-field detail for validation failures
	Cause   error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a coded error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithFields creates a coded error carrying per-field detail.
func WithFields(code Code, message string, fields map[string]string) *Error {
	return &Error{Code: code, Message: message, Fields: fields}
}

// Sentinels for errors.Is comparisons. They match any *Error with the same code.
var (
	ErrNotFound           = New(CodeNotFound, "not found")
	ErrDuplicateEmail     = New(CodeDuplicateEmail, "email already registered")
	ErrWeakPassword       = New(CodeWeakPassword, "password does not meet policy")
	ErrInvalidCredentials = New(CodeInvalidCredentials, "invalid credentials")
	ErrTokenExpired       = New(CodeTokenExpired, "token expired")
	ErrTokenInvalid       = New(CodeTokenInvalid, "token invalid")
	ErrStorage            = New(CodeStorage, "storage failure")
	ErrValidation         = New(CodeValidation, "validation failed")
)

// CodeOf returns the code of the first *Error in err's chain, or CodeUnknown.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeUnknown
}

// FieldsOf returns the validation fields of the first *Error in err's chain.
func FieldsOf(err error) map[string]string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Fields
	}
	return nil
}

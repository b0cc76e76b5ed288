// Package apperror defines the error taxonomy shared by the domain model,
// the stores and the HTTP layer.
//
// Every AppError carries a specific sentinel (Err) and, optionally, a broad
// category (Category) and an underlying cause (Cause). Unwrap exposes all
// three, so callers can match at whichever level they care about:
//
//	errors.Is(err, apperror.ErrDuplicateEmail) // the specific failure
//	errors.Is(err, apperror.ErrConflict)       // its HTTP-facing category
//	errors.Is(err, fs.ErrNotExist)             // the wrapped cause
package apperror

import (
	"errors"
	"fmt"
)

// Categories. HTTP handlers map these to status codes.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
)

// Domain failures.
var (
	ErrEmailInvalid      = errors.New("email invalid")
	ErrDuplicateEmail    = errors.New("duplicate email")
	ErrPasswordMismatch  = errors.New("password mismatch")
	ErrInvalidReference  = errors.New("invalid reference")
	ErrOnLoan            = errors.New("on loan")
	ErrCryptoUnavailable = errors.New("crypto unavailable")
	ErrParse             = errors.New("parse error")
	ErrIO                = errors.New("io error")
)

type AppError struct {
	Err      error  // specific sentinel
	Category error  // optional broad category (ErrNotFound, ErrConflict, ...)
	Cause    error  // optional underlying error
	Message  string // Human-readable error message
	Field    string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() []error {
	errs := make([]error, 0, 3)
	for _, err := range []error{e.Err, e.Category, e.Cause} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
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

// Unauthorized is returned when a request carries no valid session or a
// login attempt fails. The message never says which half was wrong.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// EmailInvalid reports an email that fails the shape check.
func EmailInvalid(email string) *AppError {
	return &AppError{
		Err:      ErrEmailInvalid,
		Category: ErrValidation,
		Message:  fmt.Sprintf("email %q is invalid", email),
		Field:    "email",
	}
}

func DuplicateEmail(email string) *AppError {
	return &AppError{
		Err:      ErrDuplicateEmail,
		Category: ErrConflict,
		Message:  fmt.Sprintf("user with email %s already exists", email),
		Field:    "email",
	}
}

func PasswordMismatch() *AppError {
	return &AppError{
		Err:      ErrPasswordMismatch,
		Category: ErrValidation,
		Message:  "passwords do not match",
		Field:    "passwordConfirm",
	}
}

// InvalidReference reports an identifier that is not registered.
// resource is "user", "item" or "loan".
func InvalidReference(resource, id string) *AppError {
	return &AppError{
		Err:      ErrInvalidReference,
		Category: ErrNotFound,
		Message:  fmt.Sprintf("%s %s is not registered", resource, id),
	}
}

// ItemOnLoan reports an operation blocked because the item is lent out.
func ItemOnLoan(itemID, holderID string) *AppError {
	return &AppError{
		Err:      ErrOnLoan,
		Category: ErrConflict,
		Message:  fmt.Sprintf("item %s is on loan to user %s", itemID, holderID),
	}
}

// LoansOutstanding reports a user that cannot be removed while holding items.
func LoansOutstanding(userID string, n int) *AppError {
	return &AppError{
		Err:      ErrOnLoan,
		Category: ErrConflict,
		Message:  fmt.Sprintf("user %s still holds %d item(s)", userID, n),
	}
}

func CryptoUnavailable(cause error) *AppError {
	return &AppError{
		Err:     ErrCryptoUnavailable,
		Cause:   cause,
		Message: fmt.Sprintf("password hashing unavailable: %v", cause),
	}
}

// ParseFailed reports a persisted document that cannot be turned back into
// a registry, either because it is malformed or because it breaks an
// invariant.
func ParseFailed(source string, cause error) *AppError {
	return &AppError{
		Err:     ErrParse,
		Cause:   cause,
		Message: fmt.Sprintf("parsing %s: %v", source, cause),
	}
}

// IOFailed reports a read or write failure against a store.
func IOFailed(op, path string, cause error) *AppError {
	return &AppError{
		Err:     ErrIO,
		Cause:   cause,
		Message: fmt.Sprintf("%s %s: %v", op, path, cause),
	}
}

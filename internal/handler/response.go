package handler

// RESPONSE HELPERS:
// Every error response from the API has the same shape:
//   {"error": "duplicate_email", "message": "user with email a@b.co already exists", "field": "email"}
//
// "error" is machine-readable and names the specific failure when there is
// one; the HTTP status follows its category.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/lendpal/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Request field at fault, if any
}

// MessageResponse is the body of endpoints that have nothing else to say.
type MessageResponse struct {
	Message string `json:"message"`
}

var validate = newValidator()

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// writeJSON sends a JSON response with the given status code. Headers and
// status have to be set before the body is written.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are already sent, all we can do is log
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// decodeJSON reads the request body into dst and validates it. Both
// malformed JSON and a failed validation come back as apperror.ErrValidation.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("", "invalid JSON body: "+err.Error())
	}

	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return apperror.ValidationFailed(fe.Field(), validationMessage(fe))
		}
		return apperror.ValidationFailed("", err.Error())
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	}
	return fe.Field() + " is invalid"
}

// errorTypes names specific failures. Order matters: the first match wins.
var errorTypes = []struct {
	err  error
	name string
}{
	{apperror.ErrEmailInvalid, "email_invalid"},
	{apperror.ErrDuplicateEmail, "duplicate_email"},
	{apperror.ErrPasswordMismatch, "password_mismatch"},
	{apperror.ErrInvalidReference, "invalid_reference"},
	{apperror.ErrOnLoan, "on_loan"},
	{apperror.ErrUnauthorized, "unauthorized"},
	{apperror.ErrValidation, "validation_error"},
	{apperror.ErrNotFound, "not_found"},
	{apperror.ErrConflict, "conflict"},
}

// statusOf maps an error's category to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError maps a domain error to an HTTP status and sends it.
//
// Store, parse and crypto failures are 500s with a generic message; their
// details may contain file paths and are only logged.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	status := statusOf(err)

	if !errors.As(err, &appErr) || status == http.StatusInternalServerError {
		slog.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	errorType := "internal_error"
	for _, t := range errorTypes {
		if errors.Is(err, t.err) {
			errorType = t.name
			break
		}
	}

	writeJSON(w, status, ErrorResponse{
		Error:   errorType,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

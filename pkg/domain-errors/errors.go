// Package domainerrors defines the single structured error type used across the
// claim engine. Client rejections and non-fatal embedded (materialization) errors
// both use *Error so callers branch on Code rather than on message text.
package domainerrors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error identifier returned to clients.
type Code string

const (
	// Client errors: the submission is rejected before anything is persisted.
	CodeUnknownReference      Code = "unknown_reference"
	CodeTypeMismatch          Code = "type_mismatch"
	CodeForbidden             Code = "forbidden"
	CodeOverClaimLimit        Code = "over_claim_limit"
	CodeOverRegistrationLimit Code = "over_registration_limit"
	CodeDuplicateConfirmation Code = "duplicate_confirmation"
	CodeUnregisteredIssuer    Code = "unregistered_issuer"
	CodeUnrecordedReference   Code = "unrecorded_reference"
	CodeUnauthorized          Code = "unauthorized"
	CodeBadRequest            Code = "bad_request"
	CodeValidation            Code = "validation_error"
	CodeNotFound              Code = "not_found"
	CodeConflict              Code = "conflict"

	// Server errors.
	CodeInternal    Code = "internal_error"
	CodeUnavailable Code = "unavailable"
	CodeTimeout     Code = "timeout"
)

// IsClientError reports whether the code describes a problem with the submission
// itself rather than with the server.
func (c Code) IsClientError() bool {
	switch c {
	case CodeInternal, CodeUnavailable, CodeTimeout:
		return false
	}
	return true
}

// IsQuota reports whether the code is one of the quota gate rejections.
func (c Code) IsQuota() bool {
	return c == CodeOverClaimLimit || c == CodeOverRegistrationLimit
}

// Error carries a code, a human message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON renders the error the way it appears inside ingestion responses.
// The cause is never serialized.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	}{Code: e.Code, Message: e.Message})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *Error) UnmarshalJSON(data []byte) error {
	var body struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	e.Code = body.Code
	e.Message = body.Message
	return nil
}

// New creates an error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// As extracts the first *Error in the chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// HasCode is an alias of Is kept for call sites that read better with it.
func HasCode(err error, code Code) bool {
	return Is(err, code)
}

// CodeOf returns the code of err, or CodeInternal when err is not an *Error.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// From converts any error to an *Error, wrapping unknown errors as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if de, ok := As(err); ok {
		return de
	}
	return Wrap(err, CodeInternal, "internal error")
}

// Package httputil writes JSON bodies and maps domain error codes to HTTP statuses.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "endorser/pkg/domain-errors"
)

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// StatusFor maps a domain error code to its HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeTypeMismatch:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeUnregisteredIssuer:
		return http.StatusForbidden
	case dErrors.CodeNotFound, dErrors.CodeUnknownReference, dErrors.CodeUnrecordedReference:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeDuplicateConfirmation:
		return http.StatusConflict
	case dErrors.CodeOverClaimLimit, dErrors.CodeOverRegistrationLimit:
		return http.StatusTooManyRequests
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as {error, error_description}. Server-side errors
// never expose their message.
func WriteError(w http.ResponseWriter, err error) {
	de := dErrors.From(err)
	body := errorBody{Error: string(de.Code)}
	if de.Code.IsClientError() {
		body.ErrorDescription = de.Message
	}
	WriteJSON(w, StatusFor(de.Code), body)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

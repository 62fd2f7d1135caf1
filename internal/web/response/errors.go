// Package response renders JSON payloads and errors for the HTTP API.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pagecraft/pagecraft/internal/model"
)

// ErrorResponse is the body of every API error: {error, message, code, details}
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ValidationErrorResponse carries per-field messages of an invalid model or
// field so a form can show them inline
type ValidationErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Code    string              `json:"code"`
	Fields  map[string][]string `json:"fields"`
}

// JSON writes v with the given status
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RenderError renders err with the given status; validation errors are
// always rendered as 422 with their per-field messages
func RenderError(w http.ResponseWriter, status int, err error) {
	RenderErrorWithDetails(w, status, err, nil)
}

// RenderErrorWithDetails renders err with details such as the destructive
// flag of an unconfirmed publish
func RenderErrorWithDetails(w http.ResponseWriter, status int, err error, details map[string]interface{}) {
	var verr *model.ValidationErrors
	if errors.As(err, &verr) {
		RenderValidationError(w, verr)
		return
	}

	JSON(w, status, &ErrorResponse{
		Error:   "error",
		Message: err.Error(),
		Code:    errorCodeFromStatus(status),
		Details: details,
	})
}

// RenderValidationError renders verr as a 422
func RenderValidationError(w http.ResponseWriter, verr *model.ValidationErrors) {
	JSON(w, http.StatusUnprocessableEntity, &ValidationErrorResponse{
		Error:   "validation_failed",
		Message: "The request contains invalid data",
		Code:    "validation_error",
		Fields:  verr.Fields,
	})
}

// codes maps statuses to the machine readable error code; the default
// message is used when a helper is called with an empty message
var codes = map[int]struct{ code, message string }{
	http.StatusBadRequest:          {"bad_request", "Bad request"},
	http.StatusUnauthorized:        {"unauthorized", "Authentication required"},
	http.StatusForbidden:           {"forbidden", "Forbidden"},
	http.StatusNotFound:            {"not_found", "Resource not found"},
	http.StatusConflict:            {"conflict", "Conflict"},
	http.StatusUnprocessableEntity: {"unprocessable_entity", "Unprocessable entity"},
	http.StatusTooManyRequests:     {"rate_limited", "Too many requests"},
	http.StatusInternalServerError: {"internal_error", "Internal server error"},
	http.StatusServiceUnavailable:  {"service_unavailable", "Service unavailable"},
}

func errorCodeFromStatus(status int) string {
	if c, ok := codes[status]; ok {
		return c.code
	}
	return "error"
}

// renderMessage renders message, or the default message of status when empty
func renderMessage(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = codes[status].message
	}
	RenderError(w, status, errors.New(message))
}

// RenderBadRequest renders a 400 with message
func RenderBadRequest(w http.ResponseWriter, message string) {
	renderMessage(w, http.StatusBadRequest, message)
}

// RenderUnauthorized renders a 401; the API answers this for anonymous calls
func RenderUnauthorized(w http.ResponseWriter, message string) {
	renderMessage(w, http.StatusUnauthorized, message)
}

// RenderNotFound renders a 404 for a missing page, model or row
func RenderNotFound(w http.ResponseWriter, message string) {
	renderMessage(w, http.StatusNotFound, message)
}

// RenderInternalError renders a 500 carrying err's message, which for a failed
// publish is the raw database message
func RenderInternalError(w http.ResponseWriter, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	renderMessage(w, http.StatusInternalServerError, message)
}

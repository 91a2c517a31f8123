package admin

import (
	"encoding/json"
	"net/http"

	"qsar/internal/errors"
)

// ErrorResponse represents an HTTP error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err error, status int) {
	resp := ErrorResponse{
		Error: err.Error(),
		Code:  string(errors.CodeOf(err)),
	}
	if qe, ok := err.(*errors.QsarError); ok {
		resp.Error = qe.Message
		resp.Details = qe.Details
	}
	WriteJSON(w, resp, status)
}

// WriteQsarError writes a QsarError with automatic status code mapping
func WriteQsarError(w http.ResponseWriter, err *errors.QsarError) {
	WriteError(w, err, errors.HTTPStatus(err.Code))
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// BadRequest writes a 400 Bad Request error
func BadRequest(w http.ResponseWriter, message string) {
	WriteQsarError(w, errors.New(errors.InvalidParameter, message, nil))
}

// NotFound writes a 404 Not Found error
func NotFound(w http.ResponseWriter, message string) {
	WriteQsarError(w, errors.New(errors.UnrecognizedRoute, message, nil))
}

// MethodNotAllowed writes a 405 error
func MethodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	WriteError(w, errors.New(errors.UnrecognizedMethod, "method not allowed", nil), http.StatusMethodNotAllowed)
}

// InternalError writes a 500 Internal Server Error
func InternalError(w http.ResponseWriter, message string, err error) {
	WriteQsarError(w, errors.New(errors.InternalError, message, err))
}

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// MalformedRequestLine indicates fewer than two tokens on the request line
	MalformedRequestLine ErrorCode = "MALFORMED_REQUEST_LINE"
	// MissingRouteSegment indicates the path has no segment at the requested position
	MissingRouteSegment ErrorCode = "MISSING_ROUTE_SEGMENT"
	// UnrecognizedMethod indicates a method token outside the known verbs
	UnrecognizedMethod ErrorCode = "UNRECOGNIZED_METHOD"
	// UnrecognizedRoute indicates the first path segment matches no route
	UnrecognizedRoute ErrorCode = "UNRECOGNIZED_ROUTE"
	// SocketReadFailure indicates the read returned an error or zero bytes
	SocketReadFailure ErrorCode = "SOCKET_READ_FAILURE"
	// SocketWriteFailure indicates the response could not be fully written
	SocketWriteFailure ErrorCode = "SOCKET_WRITE_FAILURE"
	// DecodeFailure indicates the request bytes are not valid UTF-8 text
	DecodeFailure ErrorCode = "DECODE_FAILURE"
	// AcceptFailure indicates the listener failed to accept a connection
	AcceptFailure ErrorCode = "ACCEPT_FAILURE"
	// Unauthorized indicates a missing or wrong admin bearer token
	Unauthorized ErrorCode = "UNAUTHORIZED"
	// InvalidParameter indicates a bad admin query parameter
	InvalidParameter ErrorCode = "INVALID_PARAMETER"
	// ConfigInvalid indicates a configuration value failed validation
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// QsarError represents a qsar error with a stable code and message
type QsarError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new QsarError
func New(code ErrorCode, message string, cause error) *QsarError {
	return &QsarError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Error implements the error interface
func (e *QsarError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *QsarError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a *QsarError with the same code, so callers can
// match with errors.Is(err, &QsarError{Code: DecodeFailure}).
func (e *QsarError) Is(target error) bool {
	t, ok := target.(*QsarError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails adds details to the error
func (e *QsarError) WithDetails(details interface{}) *QsarError {
	e.Details = details
	return e
}

// CodeOf extracts the error code from err, or InternalError when err is not a
// QsarError. A nil error has no code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var qe *QsarError
	if stderrors.As(err, &qe) {
		return qe.Code
	}
	return InternalError
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps error codes to the HTTP status sent to the client.
// Transport-level codes have no client-facing status and map to 0.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case MalformedRequestLine:
		return http.StatusBadRequest // 400
	case MissingRouteSegment:
		return http.StatusBadRequest // 400
	case UnrecognizedMethod:
		return http.StatusBadRequest // 400
	case UnrecognizedRoute:
		return http.StatusNotFound // 404
	case Unauthorized:
		return http.StatusUnauthorized // 401
	case InvalidParameter:
		return http.StatusBadRequest // 400
	case SocketReadFailure, SocketWriteFailure, DecodeFailure, AcceptFailure:
		return 0
	case ConfigInvalid, InternalError:
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

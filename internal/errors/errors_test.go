package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("underlying error")

	err := New(MalformedRequestLine, "request line has 1 token", cause)

	if err.Code != MalformedRequestLine {
		t.Errorf("Code = %v, want %v", err.Code, MalformedRequestLine)
	}
	if err.Message != "request line has 1 token" {
		t.Errorf("Message = %q, want %q", err.Message, "request line has 1 token")
	}
}

func TestQsarError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      SocketReadFailure,
			message:   "read from 127.0.0.1:5000",
			cause:     errors.New("connection reset by peer"),
			wantParts: []string{"SOCKET_READ_FAILURE", "read from 127.0.0.1:5000", "connection reset by peer"},
		},
		{
			name:      "without cause",
			code:      UnrecognizedRoute,
			message:   "no route for \"foo\"",
			cause:     nil,
			wantParts: []string{"UNRECOGNIZED_ROUTE", "no route for \"foo\""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, tt.cause)
			got := err.Error()

			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, want to contain %q", got, part)
				}
			}
		})
	}
}

func TestQsarError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := New(InternalError, "something went wrong", cause)

	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}

	errNoCause := New(DecodeFailure, "invalid utf-8", nil)
	if errNoCause.Unwrap() != nil {
		t.Errorf("Unwrap() on error without cause should return nil")
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause through Unwrap")
	}
}

func TestQsarError_Is(t *testing.T) {
	err := fmt.Errorf("handling conn: %w", New(DecodeFailure, "invalid utf-8", nil))

	if !errors.Is(err, &QsarError{Code: DecodeFailure}) {
		t.Error("errors.Is should match on code")
	}
	if errors.Is(err, &QsarError{Code: SocketReadFailure}) {
		t.Error("errors.Is should not match a different code")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(MalformedRequestLine, "bad line", nil).WithDetails(map[string]int{"tokens": 1})

	details, ok := err.Details.(map[string]int)
	if !ok {
		t.Fatalf("Details type = %T, want map[string]int", err.Details)
	}
	if details["tokens"] != 1 {
		t.Errorf("details[tokens] = %d, want 1", details["tokens"])
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("boom"), InternalError},
		{"direct", New(UnrecognizedRoute, "x", nil), UnrecognizedRoute},
		{"wrapped", fmt.Errorf("outer: %w", New(MissingRouteSegment, "x", nil)), MissingRouteSegment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}

	if !HasCode(New(AcceptFailure, "x", nil), AcceptFailure) {
		t.Error("HasCode should report the error's own code")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{MalformedRequestLine, 400},
		{MissingRouteSegment, 400},
		{UnrecognizedMethod, 400},
		{UnrecognizedRoute, 404},
		{SocketReadFailure, 0},
		{SocketWriteFailure, 0},
		{DecodeFailure, 0},
		{AcceptFailure, 0},
		{Unauthorized, 401},
		{InvalidParameter, 400},
		{InternalError, 500},
		{ErrorCode("SOMETHING_ELSE"), 500},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := HTTPStatus(tt.code); got != tt.want {
				t.Errorf("HTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

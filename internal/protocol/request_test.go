package protocol

import (
	"reflect"
	"testing"

	qerrors "qsar/internal/errors"
)

func TestParseMethod(t *testing.T) {
	tests := []struct {
		token string
		want  Method
	}{
		{"GET", MethodGet},
		{"POST", MethodPost},
		{"PUT", MethodPut},
		{"PATCH", MethodPatch},
		{"DELETE", MethodDelete},
		{"HEAD", MethodHead},
		{"OPTIONS", MethodOptions},
		{"TRACE", MethodTrace},
		{"CONNECT", MethodConnect},
		{"get", MethodUnknown},
		{"FOO", MethodUnknown},
		{"", MethodUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			if got := ParseMethod(tt.token); got != tt.want {
				t.Errorf("ParseMethod(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}

func TestMethodStringRoundTrip(t *testing.T) {
	known := 0
	for m := MethodGet; m.Known(); m++ {
		if got := ParseMethod(m.String()); got != m {
			t.Errorf("ParseMethod(%q) = %v, want %v", m.String(), got, m)
		}
		known++
	}
	if known != 9 {
		t.Errorf("known methods = %d, want 9", known)
	}
	if MethodUnknown.Known() {
		t.Error("MethodUnknown should not be known")
	}
	if MethodUnknown.String() != "UNKNOWN" {
		t.Errorf("MethodUnknown.String() = %q", MethodUnknown.String())
	}
	if Method(42).String() != "UNKNOWN" {
		t.Errorf("out-of-range method should render as UNKNOWN")
	}
}

func TestFilterEndpoint(t *testing.T) {
	tests := []struct {
		target string
		want   []string
	}{
		{"/a/b/c?x=1", []string{"a", "b", "c"}},
		{"//a//", []string{"a"}},
		{"", []string{}},
		{"/", []string{}},
		{"//api//v1/", []string{"api", "v1"}},
		{"/api/users", []string{"api", "users"}},
		{"/index?", []string{"index"}},
		{"?x=1", []string{}},
		{"/a?b/c", []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			got := FilterEndpoint(tt.target)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FilterEndpoint(%q) = %#v, want %#v", tt.target, got, tt.want)
			}
		})
	}
}

func TestFilterQuery(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   []QueryPair
	}{
		{"two pairs", "/a?x=1&y=2", []QueryPair{{"x", "1", true}, {"y", "2", true}}},
		{"absent value", "/a?x", []QueryPair{{"x", "", false}}},
		{"no query", "/a", []QueryPair{}},
		{"empty query", "/a?", []QueryPair{}},
		{"empty value", "/a?x=", []QueryPair{{"x", "", true}}},
		{"split on first equals", "/a?x=1=2", []QueryPair{{"x", "1=2", true}}},
		{"empty chunk preserved", "/a?x=1&&y", []QueryPair{{"x", "1", true}, {"", "", false}, {"y", "", false}}},
		{"second question mark kept", "/a?x=?", []QueryPair{{"x", "?", true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterQuery(tt.target)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FilterQuery(%q) = %#v, want %#v", tt.target, got, tt.want)
			}
		})
	}
}

func TestQueryPairString(t *testing.T) {
	if got := (QueryPair{Key: "x"}).String(); got != "x" {
		t.Errorf("String() = %q, want %q", got, "x")
	}
	if got := (QueryPair{Key: "x", Value: "1", HasValue: true}).String(); got != "x=1" {
		t.Errorf("String() = %q, want %q", got, "x=1")
	}
}

func TestParseRequestLine(t *testing.T) {
	req, err := ParseRequestLine("GET /api/users?id=7&verbose HTTP/1.1")
	if err != nil {
		t.Fatalf("ParseRequestLine failed: %v", err)
	}

	if req.Method != MethodGet {
		t.Errorf("Method = %v, want GET", req.Method)
	}
	if req.MethodToken != "GET" {
		t.Errorf("MethodToken = %q, want GET", req.MethodToken)
	}
	if req.Target != "/api/users?id=7&verbose" {
		t.Errorf("Target = %q", req.Target)
	}
	if !reflect.DeepEqual(req.Path, []string{"api", "users"}) {
		t.Errorf("Path = %#v", req.Path)
	}
	if req.Proto != "HTTP/1.1" {
		t.Errorf("Proto = %q, want HTTP/1.1", req.Proto)
	}
	wantQuery := []QueryPair{{Key: "id", Value: "7", HasValue: true}, {Key: "verbose"}}
	if !reflect.DeepEqual(req.Query, wantQuery) {
		t.Errorf("Query = %+v, want %+v", req.Query, wantQuery)
	}
}

func TestParseRequestLine_UnknownMethodIsNotAnError(t *testing.T) {
	req, err := ParseRequestLine("FOO /index HTTP/1.1")
	if err != nil {
		t.Fatalf("unknown method should parse, got %v", err)
	}
	if req.Method != MethodUnknown {
		t.Errorf("Method = %v, want UNKNOWN", req.Method)
	}
	if req.MethodToken != "FOO" {
		t.Errorf("MethodToken = %q, want FOO", req.MethodToken)
	}
}

func TestParseRequestLine_TwoTokens(t *testing.T) {
	req, err := ParseRequestLine("GET /posts")
	if err != nil {
		t.Fatalf("two-token line should parse, got %v", err)
	}
	if req.Proto != "" {
		t.Errorf("Proto = %q, want empty", req.Proto)
	}
	if !reflect.DeepEqual(req.Path, []string{"posts"}) {
		t.Errorf("Path = %#v", req.Path)
	}
}

func TestParseRequestLine_Malformed(t *testing.T) {
	lines := []string{
		"",
		"GET",
		"/index",
		" /index HTTP/1.1",
		"GET  /nope HTTP/1.1",
		"GET ",
		"GET  ",
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			_, err := ParseRequestLine(line)
			if err == nil {
				t.Fatalf("ParseRequestLine(%q) should fail", line)
			}
			if !qerrors.HasCode(err, qerrors.MalformedRequestLine) {
				t.Errorf("code = %s, want MALFORMED_REQUEST_LINE", qerrors.CodeOf(err))
			}
		})
	}
}

func TestRequestSegment(t *testing.T) {
	req, err := ParseRequestLine("GET / HTTP/1.1")
	if err != nil {
		t.Fatalf("ParseRequestLine failed: %v", err)
	}

	if _, err := req.Segment(0); !qerrors.HasCode(err, qerrors.MissingRouteSegment) {
		t.Errorf("Segment(0) on bare path: err = %v, want MISSING_ROUTE_SEGMENT", err)
	}

	req, _ = ParseRequestLine("GET /api/users HTTP/1.1")
	if seg, err := req.Segment(1); err != nil || seg != "users" {
		t.Errorf("Segment(1) = %q, %v", seg, err)
	}
	if _, err := req.Segment(-1); err == nil {
		t.Error("Segment(-1) should fail")
	}
}

func TestDecodeRequestLine(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"crlf", []byte("GET /index HTTP/1.1\r\nHost: x\r\n\r\n"), "GET /index HTTP/1.1"},
		{"lf only", []byte("GET /index HTTP/1.1\nHost: x\n\n"), "GET /index HTTP/1.1"},
		{"no terminator", []byte("GET /index HTTP/1.1"), "GET /index HTTP/1.1"},
		{"empty", []byte{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRequestLine(tt.in)
			if err != nil {
				t.Fatalf("DecodeRequestLine failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodeRequestLine() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := DecodeRequestLine([]byte{0xff, 0xfe, 'G', 'E', 'T'}); !qerrors.HasCode(err, qerrors.DecodeFailure) {
		t.Errorf("invalid UTF-8: err = %v, want DECODE_FAILURE", err)
	}
}

func TestDecodeRequestLine_CutRune(t *testing.T) {
	full := []byte("GET /index HTTP/1.1\r\nX-Name: caf\u00e9\u20ac")

	// Cut inside the two-byte é and inside the three-byte €.
	for _, cut := range []int{len(full) - 4, len(full) - 2, len(full) - 1} {
		got, err := DecodeRequestLine(full[:cut])
		if err != nil {
			t.Errorf("cut at %d: err = %v", cut, err)
			continue
		}
		if got != "GET /index HTTP/1.1" {
			t.Errorf("cut at %d: line = %q", cut, got)
		}
	}

	for _, bad := range [][]byte{
		[]byte("GET / HTTP/1.1\r\n\xff"),
		[]byte("GET / HTTP/1.1\r\n\xc3\x28"),
		[]byte("GET /\xe9 HTTP/1.1\r\n"),
	} {
		if _, err := DecodeRequestLine(bad); !qerrors.HasCode(err, qerrors.DecodeFailure) {
			t.Errorf("DecodeRequestLine(%q) err = %v, want DECODE_FAILURE", bad, err)
		}
	}
}

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest([]byte("POST /api/users HTTP/1.1\r\n\r\n"))
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}
	if req.Method != MethodPost {
		t.Errorf("Method = %v, want POST", req.Method)
	}

	if _, err := ParseRequest([]byte("GET\r\n\r\n")); !qerrors.HasCode(err, qerrors.MalformedRequestLine) {
		t.Errorf("one-token line: err = %v, want MALFORMED_REQUEST_LINE", err)
	}
}

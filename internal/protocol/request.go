// Package protocol implements the wire side of qsar: turning the first line
// of a request into a Request and rendering a Response back into bytes.
//
// Only the request line is parsed. Headers and bodies sent by the client are
// ignored, and every response is written for a single-request connection.
package protocol

import (
	"fmt"
	"strings"
	"unicode/utf8"

	qerrors "qsar/internal/errors"
)

// QueryPair is one key/value chunk of a query string. HasValue is false when
// the chunk carried no '='.
type QueryPair struct {
	Key      string
	Value    string
	HasValue bool
}

// String renders the pair the way it appeared on the wire.
func (p QueryPair) String() string {
	if !p.HasValue {
		return p.Key
	}
	return p.Key + "=" + p.Value
}

// Request is the parsed request line. It is built once per connection and
// never mutated afterwards.
type Request struct {
	Method      Method
	MethodToken string // raw token as sent, kept for access logs
	Target      string // path and query as sent
	Path        []string
	Query       []QueryPair
	Proto       string // not validated; empty for a two-token line
}

// Segment returns path segment i, or a MISSING_ROUTE_SEGMENT error.
func (r Request) Segment(i int) (string, error) {
	if i < 0 || i >= len(r.Path) {
		return "", qerrors.New(qerrors.MissingRouteSegment,
			fmt.Sprintf("path %q has no segment %d", r.Target, i), nil)
	}
	return r.Path[i], nil
}

// ParseRequestLine parses "<METHOD> <TARGET> <VERSION>". Tokens are split on
// single spaces. A line with fewer than two tokens, or an empty method or
// target token ("GET  /x"), is MALFORMED_REQUEST_LINE.
func ParseRequestLine(line string) (Request, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return Request{}, qerrors.New(qerrors.MalformedRequestLine,
			fmt.Sprintf("request line has %d token(s), need at least 2", len(parts)), nil).
			WithDetails(map[string]string{"line": truncate(line, 128)})
	}
	if parts[0] == "" || parts[1] == "" {
		which := "method"
		if parts[0] != "" {
			which = "target"
		}
		return Request{}, qerrors.New(qerrors.MalformedRequestLine, "request line has an empty "+which+" token", nil).
			WithDetails(map[string]string{"line": truncate(line, 128)})
	}

	req := Request{
		Method:      ParseMethod(parts[0]),
		MethodToken: parts[0],
		Target:      parts[1],
		Path:        FilterEndpoint(parts[1]),
		Query:       FilterQuery(parts[1]),
	}
	if len(parts) == 3 {
		req.Proto = parts[2]
	}
	return req, nil
}

// FilterEndpoint returns the non-empty path segments of target, ignoring
// anything after the first '?'.
func FilterEndpoint(target string) []string {
	path, _, _ := strings.Cut(target, "?")
	segments := []string{}
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// FilterQuery returns the key/value pairs after the first '?' of target.
// Empty chunks ("a&&b") become empty-key pairs rather than being dropped.
func FilterQuery(target string) []QueryPair {
	_, query, found := strings.Cut(target, "?")
	if !found || query == "" {
		return []QueryPair{}
	}

	chunks := strings.Split(query, "&")
	pairs := make([]QueryPair, 0, len(chunks))
	for _, chunk := range chunks {
		key, value, hasValue := strings.Cut(chunk, "=")
		pairs = append(pairs, QueryPair{Key: key, Value: value, HasValue: hasValue})
	}
	return pairs
}

// DecodeRequestLine validates buf as UTF-8 text and returns its first line
// without the line terminator. A multi-byte character cut off at the end of
// buf, as happens when a read fills the buffer, is ignored.
func DecodeRequestLine(buf []byte) (string, error) {
	buf = trimPartialRune(buf)
	if !utf8.Valid(buf) {
		return "", qerrors.New(qerrors.DecodeFailure, "request bytes are not valid UTF-8", nil)
	}
	text := string(buf)
	line, _, _ := strings.Cut(text, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// ParseRequest decodes raw socket bytes and parses their request line.
func ParseRequest(buf []byte) (Request, error) {
	line, err := DecodeRequestLine(buf)
	if err != nil {
		return Request{}, err
	}
	return ParseRequestLine(line)
}

// trimPartialRune drops an incomplete UTF-8 sequence from the end of buf.
// Invalid bytes are left in place for utf8.Valid to reject.
func trimPartialRune(buf []byte) []byte {
	for i := len(buf) - 1; i >= 0 && i >= len(buf)-utf8.UTFMax; i-- {
		if utf8.RuneStart(buf[i]) {
			if !utf8.FullRune(buf[i:]) {
				return buf[:i]
			}
			break
		}
	}
	return buf
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package protocol

import (
	"bytes"
	"io"
	"sort"
	"strconv"
	"strings"
)

// BodyKind tags the closed set of response body variants.
type BodyKind int

const (
	BodyEmpty BodyKind = iota
	BodyText
	BodyStream
)

func (k BodyKind) String() string {
	switch k {
	case BodyEmpty:
		return "empty"
	case BodyText:
		return "text"
	case BodyStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Body is a response payload. Exactly one variant is populated, selected by
// Kind: nothing for BodyEmpty, text for BodyText, stream for BodyStream.
type Body struct {
	Kind   BodyKind
	text   []byte
	stream io.ReadCloser
	size   int64 // -1 when the stream length is unknown
}

// EmptyBody returns a body with no bytes.
func EmptyBody() Body {
	return Body{Kind: BodyEmpty}
}

// TextBody returns a fixed-string body.
func TextBody(s string) Body {
	return Body{Kind: BodyText, text: []byte(s)}
}

// StreamBody returns a body read from rc when the response is written. size
// is the known length or -1. The stream is closed by WriteResponse.
func StreamBody(rc io.ReadCloser, size int64) Body {
	if rc == nil {
		return EmptyBody()
	}
	return Body{Kind: BodyStream, stream: rc, size: size}
}

// Len returns the body length, or -1 for a stream of unknown size.
func (b Body) Len() int64 {
	switch b.Kind {
	case BodyText:
		return int64(len(b.text))
	case BodyStream:
		return b.size
	default:
		return 0
	}
}

// Bytes returns the fixed bytes of an empty or text body. Streams return nil.
func (b Body) Bytes() []byte {
	if b.Kind == BodyText {
		return b.text
	}
	return nil
}

// Response is built fresh per request and written once.
type Response struct {
	Status  int
	Headers map[string]string
	Body    Body
}

// NewResponse builds a response with an empty header map.
func NewResponse(status int, body Body) Response {
	return Response{Status: status, Headers: map[string]string{}, Body: body}
}

// HTMLResponse builds a text/html response carrying its Content-Length.
func HTMLResponse(status int, html string) Response {
	r := NewResponse(status, TextBody(html))
	r.Headers["Content-Type"] = "text/html; charset=utf-8"
	r.Headers["Content-Length"] = strconv.Itoa(len(html))
	return r
}

// ReasonPhrase returns the status text for code. Unmapped codes get a
// generic placeholder.
func ReasonPhrase(code int) string {
	switch code {
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 204:
		return "No Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 304:
		return "Not Modified"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	case 503:
		return "Service Unavailable"
	default:
		return "Unknown Status"
	}
}

// Render formats a complete response:
//
//	HTTP/1.1 <code> <reason>\r\n<Name: Value\r\n>*\r\n<body>
//
// Headers are emitted in sorted key order.
func Render(status int, headers map[string]string, body []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(64 + len(body))
	writeHead(&buf, status, headers)
	buf.Write(body)
	return buf.Bytes()
}

// Bytes renders r. Stream bodies are not drained; only the head is returned
// for them.
func (r Response) Bytes() []byte {
	return Render(r.Status, r.Headers, r.Body.Bytes())
}

// WriteResponse writes r to w and closes a stream body. It returns the number
// of bytes written.
func WriteResponse(w io.Writer, r Response) (int64, error) {
	if r.Body.Kind != BodyStream {
		n, err := w.Write(r.Bytes())
		return int64(n), err
	}

	defer func() { _ = r.Body.stream.Close() }()

	var head bytes.Buffer
	writeHead(&head, r.Status, r.Headers)
	n, err := w.Write(head.Bytes())
	written := int64(n)
	if err != nil {
		return written, err
	}
	m, err := io.Copy(w, r.Body.stream)
	return written + m, err
}

func writeHead(buf *bytes.Buffer, status int, headers map[string]string) {
	buf.WriteString("HTTP/1.1 ")
	buf.WriteString(strconv.Itoa(status))
	buf.WriteByte(' ')
	buf.WriteString(ReasonPhrase(status))
	buf.WriteString("\r\n")

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := sanitizeHeader(k)
		if name == "" {
			continue
		}
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.WriteString(sanitizeHeader(headers[k]))
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
}

// sanitizeHeader strips CR, LF, DEL and control bytes other than HTAB.
func sanitizeHeader(v string) string {
	if v == "" {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == '\r' || c == '\n' || c == 0x7f {
			continue
		}
		if c < 0x20 && c != '\t' {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

package protocol

// Method is an HTTP request verb. MethodUnknown is a valid parse result for
// tokens outside the known set; rejecting it is the router's job.
type Method int

const (
	MethodUnknown Method = iota
	MethodGet
	MethodPost
	MethodPut
	MethodPatch
	MethodDelete
	MethodHead
	MethodOptions
	MethodTrace
	MethodConnect
)

var methodNames = [...]string{
	MethodUnknown: "UNKNOWN",
	MethodGet:     "GET",
	MethodPost:    "POST",
	MethodPut:     "PUT",
	MethodPatch:   "PATCH",
	MethodDelete:  "DELETE",
	MethodHead:    "HEAD",
	MethodOptions: "OPTIONS",
	MethodTrace:   "TRACE",
	MethodConnect: "CONNECT",
}

// ParseMethod maps a request-line token to a Method. Matching is
// case-sensitive: "get" is MethodUnknown.
func ParseMethod(token string) Method {
	switch token {
	case "GET":
		return MethodGet
	case "POST":
		return MethodPost
	case "PUT":
		return MethodPut
	case "PATCH":
		return MethodPatch
	case "DELETE":
		return MethodDelete
	case "HEAD":
		return MethodHead
	case "OPTIONS":
		return MethodOptions
	case "TRACE":
		return MethodTrace
	case "CONNECT":
		return MethodConnect
	default:
		return MethodUnknown
	}
}

// String returns the canonical token, or "UNKNOWN".
func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return methodNames[MethodUnknown]
	}
	return methodNames[m]
}

// Known reports whether m is one of the enumerated verbs.
func (m Method) Known() bool {
	return m > MethodUnknown && int(m) < len(methodNames)
}

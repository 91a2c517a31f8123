package router

import "qsar/internal/protocol"

// apiMethods are the verbs the API sub-router answers.
var apiMethods = map[protocol.Method]bool{
	protocol.MethodGet:    true,
	protocol.MethodPost:   true,
	protocol.MethodPut:    true,
	protocol.MethodPatch:  true,
	protocol.MethodDelete: true,
}

// APIHandler is the /api sub-router. It selects on the method alone: the
// five CRUD verbs get 200 with no headers and no body, everything else 404.
func APIHandler() Handler {
	return HandlerFunc(func(req protocol.Request) protocol.Response {
		if apiMethods[req.Method] {
			return protocol.NewResponse(200, protocol.EmptyBody())
		}
		return protocol.NewResponse(404, protocol.EmptyBody())
	})
}

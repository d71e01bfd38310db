// Package router implements the application router (spec §4.3): given a
// (channel, request) pair it decides whether diagnostics or the
// application-specific API layer owns the request, and dispatches the
// RespondsTo / PrepareResponse / OnRequest queries accordingly.
package router

// Handler is the shape both the diagnostics dispatcher and an
// application-provided API layer implement. It is transport.Responder plus
// ListensTo; Router implements the three transport.Responder methods, so a
// Router can itself be handed to transport.NewChannel as its Responder.
type Handler interface {
	RespondsTo(channel int, request uint16) bool
	ListensTo(channel int, request uint16) bool
	PrepareResponse(channel int, request uint16, buf []byte) (size int, ok bool)
	OnRequest(channel int, request uint16, size uint8, payload []byte)
}

// nopHandler is the weak-linkage default policy for an API layer the host
// never configured: it never listens, never responds. A device with no
// application-defined requests still functions as pure diagnostics.
type nopHandler struct{}

func (nopHandler) RespondsTo(int, uint16) bool { return false }
func (nopHandler) ListensTo(int, uint16) bool  { return false }
func (nopHandler) PrepareResponse(int, uint16, []byte) (int, bool) {
	return 0, false
}
func (nopHandler) OnRequest(int, uint16, uint8, []byte) {}

// Router glues a diagnostics Handler and an (optional) application API
// Handler into one transport.Responder. Diagnostics is checked first at
// every decision point; first match wins.
type Router struct {
	diag Handler
	api  Handler
}

// New builds a router. api may be nil, in which case it is replaced with
// the never-listens/never-responds default.
func New(diag Handler, api Handler) *Router {
	if api == nil {
		api = nopHandler{}
	}
	return &Router{diag: diag, api: api}
}

// RespondsTo reports whether either layer wants to answer this request.
func (r *Router) RespondsTo(channel int, request uint16) bool {
	return r.diag.RespondsTo(channel, request) || r.api.RespondsTo(channel, request)
}

// PrepareResponse dispatches to whichever layer claimed the request in
// RespondsTo, diagnostics first.
func (r *Router) PrepareResponse(channel int, request uint16, buf []byte) (int, bool) {
	if r.diag.RespondsTo(channel, request) {
		return r.diag.PrepareResponse(channel, request, buf)
	}
	if r.api.RespondsTo(channel, request) {
		return r.api.PrepareResponse(channel, request, buf)
	}
	return 0, false
}

// OnRequest dispatches to whichever layer listens for this request,
// diagnostics first; if neither listens, the request is ignored.
func (r *Router) OnRequest(channel int, request uint16, size uint8, payload []byte) {
	if r.diag.ListensTo(channel, request) {
		r.diag.OnRequest(channel, request, size, payload)
		return
	}
	if r.api.ListensTo(channel, request) {
		r.api.OnRequest(channel, request, size, payload)
	}
}

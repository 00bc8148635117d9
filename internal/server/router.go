package server

import (
	"net/http"
)

// BasicRouter implements [Router] over an [http.ServeMux]. Route patterns use
// the stdlib method-prefixed form ("GET /api/playlists").
type BasicRouter struct {
	mux         *http.ServeMux
	middlewares []Middleware
}

// NewBasicRouter creates an empty router.
func NewBasicRouter() *BasicRouter {
	return &BasicRouter{mux: http.NewServeMux()}
}

// Use appends middleware to the stack.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers one pattern, wrapped with the current middleware stack.
func (r *BasicRouter) Handle(pattern string, handler http.Handler) {
	r.mux.Handle(pattern, r.apply(handler))
}

// Handler registers every route a [Handler] declares.
func (r *BasicRouter) Handler(handler Handler) {
	wrapped := r.apply(handler)
	for _, pattern := range handler.Routes() {
		r.mux.Handle(pattern, wrapped)
	}
}

func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// apply wraps a handler with the middleware stack in reverse order, so the
// first registered middleware runs outermost.
func (r *BasicRouter) apply(handler http.Handler) http.Handler {
	wrapped := handler
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		wrapped = r.middlewares[i](wrapped)
	}
	return wrapped
}

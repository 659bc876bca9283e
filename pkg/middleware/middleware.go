// Package middleware holds the HTTP middleware shared by service modules:
// request ids, access logging, CORS, and bearer-token auth.
package middleware

import "net/http"

// Middleware wraps a handler.
type Middleware = func(http.Handler) http.Handler

// System is an ordered middleware stack. The first Use is outermost.
type System interface {
	Use(mw Middleware)
	Apply(handler http.Handler) http.Handler
}

type stack struct {
	mws []Middleware
}

// New creates an empty stack.
func New() System {
	return &stack{}
}

func (s *stack) Use(mw Middleware) {
	s.mws = append(s.mws, mw)
}

func (s *stack) Apply(handler http.Handler) http.Handler {
	return Chain(s.mws...)(handler)
}

// Chain composes mws into one middleware, the first outermost.
func Chain(mws ...Middleware) Middleware {
	return func(h http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		return h
	}
}

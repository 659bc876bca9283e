package routes

import "net/http"

// Group shares a prefix across its routes and children. Middleware wraps
// every route in the group, including those of its children; the first
// entry is outermost.
type Group struct {
	Prefix     string
	Routes     []Route
	Children   []Group
	Middleware []func(http.Handler) http.Handler
}

// Register adds every route in groups to mux and returns the registered
// patterns in declaration order.
func Register(mux *http.ServeMux, groups ...Group) []string {
	var patterns []string
	for _, g := range groups {
		patterns = register(mux, "", nil, g, patterns)
	}
	return patterns
}

func register(
	mux *http.ServeMux,
	parent string,
	inherited []func(http.Handler) http.Handler,
	g Group,
	patterns []string,
) []string {
	prefix := parent + g.Prefix
	chain := append(inherited[:len(inherited):len(inherited)], g.Middleware...)

	for _, r := range g.Routes {
		p := r.pattern(prefix)
		mux.Handle(p, wrap(r.Handler, chain))
		patterns = append(patterns, p)
	}
	for _, child := range g.Children {
		patterns = register(mux, prefix, chain, child, patterns)
	}
	return patterns
}

func wrap(h http.Handler, chain []func(http.Handler) http.Handler) http.Handler {
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

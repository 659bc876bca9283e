package api

import (
	"net/http"

	"github.com/JaimeStill/arbiter/internal/requests"
	"github.com/JaimeStill/arbiter/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	runtime *Runtime,
) {
	requestsHandler := requests.NewHandler(domain.Workflow, runtime.Logger, runtime.Pagination)
	artifacts := newArtifactsHandler(runtime.Storage, runtime.Logger, runtime.MaxListSize)

	patterns := routes.Register(
		mux,
		routes.Group{
			Middleware: []func(http.Handler) http.Handler{noStore},
			Children: []routes.Group{
				requestsHandler.Routes(),
				artifacts.routes(),
			},
		},
	)

	runtime.Logger.Debug("routes registered", "count", len(patterns), "patterns", patterns)
}

// noStore keeps customer data out of shared caches.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
